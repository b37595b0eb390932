// Package cache adapta Redis para los nodos centrales: caché de posiciones
// y lock distribuido de ingesta por tienda EDGE.
package cache

import (
	"context"
	"fmt"

	"github.com/jhoicas/pos-multitienda/pkg/config"
	redis "github.com/redis/go-redis/v9"
)

// NewClient abre el cliente y verifica la conexión con PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}
