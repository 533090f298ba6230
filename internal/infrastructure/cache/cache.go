// Package cache invalida listados cacheados por patrón de clave.
package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/Concesionario-api/internal/infrastructure/metrics"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

// Patrones de los listados afectados por una emisión.
const (
	PatternInvoices  = "facturas:*"
	PatternProformas = "proformas:*"
)

// Invalidator señal de invalidación por patrón. Los fallos se registran y no
// se propagan: una caché obsoleta no invalida una factura ya emitida.
type Invalidator interface {
	Invalidate(ctx context.Context, patterns ...string)
}

// NopInvalidator no hace nada (sin Redis configurado).
type NopInvalidator struct{}

func (NopInvalidator) Invalidate(context.Context, ...string) {}

// RedisInvalidator borra con SCAN + DEL las claves que casan con cada patrón.
type RedisInvalidator struct {
	client  redis.UniversalClient
	log     *logger.Logger
	metrics *metrics.Metrics
	batch   int64
}

var _ Invalidator = (*RedisInvalidator)(nil)

// NewRedisInvalidator envuelve un cliente ya conectado.
func NewRedisInvalidator(client redis.UniversalClient, log *logger.Logger, m *metrics.Metrics) *RedisInvalidator {
	return &RedisInvalidator{client: client, log: log.Component("cache"), metrics: m, batch: 200}
}

// Connect abre el cliente a partir de REDIS_URL. Con URL vacía devuelve nil, nil.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Invalidate elimina las claves de cada patrón.
func (r *RedisInvalidator) Invalidate(ctx context.Context, patterns ...string) {
	for _, p := range patterns {
		n, err := r.deletePattern(ctx, p)
		if err != nil {
			r.metrics.IncCacheInvalidation("error")
			r.log.Warn().Err(err).Str("pattern", p).Msg("no se pudo invalidar la caché")
			continue
		}
		r.metrics.IncCacheInvalidation("ok")
		r.log.Debug().Str("pattern", p).Int64("deleted", n).Msg("caché invalidada")
	}
}

func (r *RedisInvalidator) deletePattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, r.batch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := r.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
