package repository

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// TransferRepository puerto de persistencia de traslados y sus líneas.
type TransferRepository interface {
	// Create inserta el traslado; inserted=false si el ID ya existía.
	Create(ctx context.Context, transfer *entity.Transfer) (inserted bool, err error)
	GetByID(ctx context.Context, id string) (*entity.Transfer, error)
	GetForUpdate(ctx context.Context, id string) (*entity.Transfer, error)

	// UpdateState persiste State y las marcas de tiempo de la transición.
	UpdateState(ctx context.Context, transfer *entity.Transfer) error

	// CountOpenByStore traslados DRAFT o DISPATCHED que tocan la tienda (origen o destino).
	CountOpenByStore(ctx context.Context, storeID string) (int, error)
}
