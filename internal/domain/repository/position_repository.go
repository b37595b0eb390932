package repository

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// PositionRepository puerto de las posiciones de stock (tienda, producto).
type PositionRepository interface {
	// Get devuelve la posición o una posición en cero (Version 0) si nunca se tocó.
	Get(ctx context.Context, storeID, productID string) (*entity.StockPosition, error)

	// LockForUpdate bloquea las posiciones en orden ascendente (store_id, product_id).
	// Las que no existen se devuelven en cero con Version 0; keys debe venir ordenado.
	LockForUpdate(ctx context.Context, keys []entity.PositionKey) (map[entity.PositionKey]*entity.StockPosition, error)

	// Save inserta o actualiza las posiciones (on_hand, reserved, version).
	Save(ctx context.Context, positions []*entity.StockPosition) error

	ListByStore(ctx context.Context, storeID string) ([]*entity.StockPosition, error)

	// CountNonZero cuenta posiciones de la tienda con on_hand distinto de cero.
	CountNonZero(ctx context.Context, storeID string) (int, error)
}
