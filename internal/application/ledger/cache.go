package ledger

import (
	"context"
	"hash/maphash"
	"sync/atomic"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// Reader lectura de una posición.
type Reader interface {
	Read(ctx context.Context, storeID, productID string) (*entity.StockPosition, error)
}

// Cache almacén de posiciones. Get devuelve (nil, nil) cuando no hay entrada.
type Cache interface {
	Get(ctx context.Context, key entity.PositionKey) (*entity.StockPosition, error)
	Set(ctx context.Context, pos *entity.StockPosition, ttl time.Duration) error
	Delete(ctx context.Context, keys ...entity.PositionKey) error
}

var (
	_ Reader         = (*CachedReader)(nil)
	_ CommitListener = (*CachedReader)(nil)
)

// CachedReader lectura read-through delante del Ledger.
// Se registra como CommitListener para invalidar las claves tras cada Commit;
// las entradas además expiran a los ttl.
type CachedReader struct {
	next  Reader
	cache Cache
	ttl   time.Duration
	log   *logger.Logger

	// epochs cuenta invalidaciones por franja de claves. Read no guarda lo leído
	// si un Commit tocó su franja mientras leía del Ledger.
	seed   maphash.Seed
	epochs [epochStripes]atomic.Uint64
}

const epochStripes = 256

// NewCachedReader construye el adaptador.
func NewCachedReader(next Reader, cache Cache, ttl time.Duration, log *logger.Logger) *CachedReader {
	return &CachedReader{next: next, cache: cache, ttl: ttl, log: log.Named("position_cache"), seed: maphash.MakeSeed()}
}

func (c *CachedReader) epoch(key entity.PositionKey) *atomic.Uint64 {
	h := maphash.String(c.seed, key.StoreID+"\x00"+key.ProductID)
	return &c.epochs[h%epochStripes]
}

// SetSource cambia la fuente de lectura; el Ledger y la caché se necesitan mutuamente al construirse.
func (c *CachedReader) SetSource(next Reader) { c.next = next }

// Read busca en caché y si no está lee del Ledger y la guarda.
// Un error de la caché nunca falla la lectura.
func (c *CachedReader) Read(ctx context.Context, storeID, productID string) (*entity.StockPosition, error) {
	key := entity.PositionKey{StoreID: storeID, ProductID: productID}
	pos, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("store_id", storeID).Str("product_id", productID).Msg("lectura de caché falló")
	} else if pos != nil {
		return pos, nil
	}

	epoch := c.epoch(key)
	seen := epoch.Load()
	pos, err = c.next.Read(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	if epoch.Load() != seen {
		return pos, nil
	}
	if err := c.cache.Set(ctx, pos, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("store_id", storeID).Str("product_id", productID).Msg("escritura de caché falló")
	}
	return pos, nil
}

// PositionsCommitted invalida las claves tocadas por un lote confirmado.
// Entre instancias que comparten la caché el TTL sigue acotando lo que quede viejo.
func (c *CachedReader) PositionsCommitted(keys []entity.PositionKey) {
	for _, k := range keys {
		c.epoch(k).Add(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.cache.Delete(ctx, keys...); err != nil {
		c.log.Error().Err(err).Int("keys", len(keys)).Msg("invalidación de caché falló")
	}
}
