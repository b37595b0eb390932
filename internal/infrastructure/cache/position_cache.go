package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	redis "github.com/redis/go-redis/v9"
)

var _ ledger.Cache = (*PositionCache)(nil)

const positionPrefix = "pos:"

// PositionCache caché de posiciones en Redis, una clave JSON por (tienda, producto).
type PositionCache struct {
	client *redis.Client
}

func NewPositionCache(client *redis.Client) *PositionCache {
	return &PositionCache{client: client}
}

func positionKey(k entity.PositionKey) string {
	return positionPrefix + k.StoreID + "|" + k.ProductID
}

type cachedPosition struct {
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get devuelve (nil, nil) si la clave no existe o expiró.
func (c *PositionCache) Get(ctx context.Context, key entity.PositionKey) (*entity.StockPosition, error) {
	val, err := c.client.Get(ctx, positionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cp cachedPosition
	if err := json.Unmarshal(val, &cp); err != nil {
		return nil, err
	}
	return &entity.StockPosition{
		StoreID:   cp.StoreID,
		ProductID: cp.ProductID,
		OnHand:    cp.OnHand,
		Reserved:  cp.Reserved,
		Version:   cp.Version,
		UpdatedAt: cp.UpdatedAt,
	}, nil
}

func (c *PositionCache) Set(ctx context.Context, pos *entity.StockPosition, ttl time.Duration) error {
	if pos == nil {
		return nil
	}
	payload, err := json.Marshal(cachedPosition{
		StoreID:   pos.StoreID,
		ProductID: pos.ProductID,
		OnHand:    pos.OnHand,
		Reserved:  pos.Reserved,
		Version:   pos.Version,
		UpdatedAt: pos.UpdatedAt,
	})
	if err != nil {
		return err
	}
	return c.client.Set(ctx, positionKey(pos.Key()), payload, ttl).Err()
}

func (c *PositionCache) Delete(ctx context.Context, keys ...entity.PositionKey) error {
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = positionKey(k)
	}
	return c.client.Del(ctx, names...).Err()
}
