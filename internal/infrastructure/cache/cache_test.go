package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Estas pruebas necesitan un Redis real: TEST_REDIS_ADDR=localhost:6379.
func testClientConfig(t *testing.T) config.RedisConfig {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR no definido")
	}
	return config.RedisConfig{Addr: addr, DB: 15}
}

func TestPositionCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testClientConfig(t))
	require.NoError(t, err)
	defer client.Close()

	c := NewPositionCache(client)
	key := entity.PositionKey{StoreID: "A", ProductID: "P-" + time.Now().Format("150405.000000")}
	t.Cleanup(func() { _ = c.Delete(context.Background(), key) })

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)

	pos := &entity.StockPosition{StoreID: key.StoreID, ProductID: key.ProductID, OnHand: 7, Version: 3, UpdatedAt: time.Now().UTC()}
	require.NoError(t, c.Set(ctx, pos, time.Minute))

	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.OnHand)
	assert.Equal(t, int64(3), got.Version)

	require.NoError(t, c.Delete(ctx, key))
	got, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestEdgeLocker_SecondHolderIsOverloaded(t *testing.T) {
	ctx := context.Background()
	client, err := NewClient(ctx, testClientConfig(t))
	require.NoError(t, err)
	defer client.Close()

	l := NewEdgeLocker(client, 5*time.Second)
	edge := "E-" + time.Now().Format("150405.000000")

	release, err := l.Lock(ctx, edge)
	require.NoError(t, err)

	_, err = l.Lock(ctx, edge)
	assert.ErrorIs(t, err, domain.ErrOverloaded)

	release()
	release2, err := l.Lock(ctx, edge)
	require.NoError(t, err)
	release2()
}
