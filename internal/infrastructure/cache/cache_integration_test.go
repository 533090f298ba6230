//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func TestRedisInvalidator(t *testing.T) {
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	testcontainers.CleanupContainer(t, container)

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	for _, k := range []string{"facturas:c1:p1", "facturas:c1:p2", "proformas:c1", "clientes:c1"} {
		require.NoError(t, client.Set(ctx, k, "x", 0).Err())
	}

	NewRedisInvalidator(client, logger.Nop(), nil).Invalidate(ctx, PatternInvoices, PatternProformas)

	_, err = client.Get(ctx, "facturas:c1:p1").Result()
	assert.ErrorIs(t, err, redis.Nil)
	_, err = client.Get(ctx, "proformas:c1").Result()
	assert.ErrorIs(t, err, redis.Nil)
	v, err := client.Get(ctx, "clientes:c1").Result()
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
