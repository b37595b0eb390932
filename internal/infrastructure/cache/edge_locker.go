package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	redis "github.com/redis/go-redis/v9"
)

var _ syncer.EdgeLocker = (*EdgeLocker)(nil)

// EdgeLocker lock distribuido por tienda EDGE entre réplicas de la central.
// Si otra réplica ya procesa un sobre de la misma tienda, Lock falla con domain.ErrOverloaded
// y el pusher reintenta tras el backoff.
type EdgeLocker struct {
	locker *redislock.Client
	ttl    time.Duration
}

// NewEdgeLocker ttl acota cuánto vive el lock si la réplica muere sin liberarlo.
func NewEdgeLocker(client *redis.Client, ttl time.Duration) *EdgeLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &EdgeLocker{locker: redislock.New(client), ttl: ttl}
}

func (l *EdgeLocker) Lock(ctx context.Context, edgeStoreID string) (func(), error) {
	lock, err := l.locker.Obtain(ctx, "ingest:"+edgeStoreID, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: ingesta de %s en curso", domain.ErrOverloaded, edgeStoreID)
	}
	if err != nil {
		return nil, fmt.Errorf("obtener lock de ingesta: %w", err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(ctx)
	}, nil
}
