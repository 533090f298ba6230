package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORE", "memory")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.App.Store)
	assert.Equal(t, "fs", cfg.Artifacts.Backend)
	assert.Equal(t, 15*time.Second, cfg.AEAT.SubmitTimeout)
	assert.Equal(t, 3, cfg.AEAT.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE", "memory")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("AEAT_SUBMIT_TIMEOUT_SECONDS", "2")
	t.Setenv("ARTIFACT_BACKEND", "dynamodb")
	t.Setenv("DYNAMODB_ENDPOINT", "http://localhost:8000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.Equal(t, 2*time.Second, cfg.AEAT.SubmitTimeout)
	assert.Equal(t, "dynamodb", cfg.Artifacts.Backend)
	assert.Equal(t, "http://localhost:8000", cfg.Artifacts.DynamoEndpoint)
}

func TestLoad_StoreInvalido(t *testing.T) {
	t.Setenv("STORE", "sqlite")
	_, err := Load()
	assert.Error(t, err)
}

func TestDBConfig_DSNEscapaPassword(t *testing.T) {
	c := DBConfig{Host: "db", Port: 5432, User: "app", Password: "p@ss/word", DBName: "concesionario", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss%2Fword@db:5432/concesionario?sslmode=disable", c.DSN())

	c.DatabaseURL = "postgres://x@y/z"
	assert.Equal(t, "postgres://x@y/z", c.ConnectionString())
}
