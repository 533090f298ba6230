package jwt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret-key-for-unit-tests"

func TestGenerateAndParse(t *testing.T) {
	tok, err := Generate(secret, "u1", "c1", RoleFacturacion, "concesionario-test", 60)
	require.NoError(t, err)

	userID, companyID, role, err := Parse(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", userID)
	assert.Equal(t, "c1", companyID)
	assert.Equal(t, RoleFacturacion, role)
}

func TestParse_Expirado(t *testing.T) {
	tok, err := Generate(secret, "u1", "c1", RoleAdmin, "concesionario-test", -1)
	require.NoError(t, err)

	_, err = ParseClaims(secret, tok)
	assert.Error(t, err)
}

func TestParse_SecretIncorrecto(t *testing.T) {
	tok, err := Generate(secret, "u1", "c1", RoleAdmin, "concesionario-test", 60)
	require.NoError(t, err)

	_, _, _, err = Parse("otro-secret", tok)
	assert.Error(t, err)
}

func TestGenerate_SecretVacio(t *testing.T) {
	_, err := Generate("", "u1", "c1", RoleAdmin, "x", 60)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
