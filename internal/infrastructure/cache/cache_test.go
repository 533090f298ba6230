package cache

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func TestRedisInvalidator_FalloNoSePropaga(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	m := metrics.New(prometheus.NewRegistry())

	assert.NotPanics(t, func() {
		NewRedisInvalidator(client, logger.Nop(), m).Invalidate(context.Background(), PatternInvoices)
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheInvalidations.WithLabelValues("error")))
}

func TestConnect_SinURL(t *testing.T) {
	c, err := Connect(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, c)
}
