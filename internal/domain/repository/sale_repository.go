package repository

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// SaleRepository puerto de persistencia de ventas y sus líneas.
type SaleRepository interface {
	// InsertPending inserta la venta si (store_id, client_key) no existe.
	// inserted=false significa que otra venta con la misma llave ya estaba registrada.
	InsertPending(ctx context.Context, sale *entity.Sale) (inserted bool, err error)

	GetByID(ctx context.Context, id string) (*entity.Sale, error)
	GetByClientKey(ctx context.Context, storeID, clientKey string) (*entity.Sale, error)

	// GetForUpdate obtiene la venta y bloquea la fila (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, id string) (*entity.Sale, error)

	// UpdateState persiste State, AppliedAt, VoidedAt y Shortages.
	UpdateState(ctx context.Context, sale *entity.Sale) error
}
