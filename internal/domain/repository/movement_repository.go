package repository

import (
	"context"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// MovementRepository puerto del log de movimientos (solo inserción).
type MovementRepository interface {
	// Append persiste el movimiento y le asigna Seq.
	Append(ctx context.Context, movement *entity.Movement) error

	// ListByPosition movimientos de una posición ordenados por Seq, con rango opcional de fechas.
	ListByPosition(ctx context.Context, storeID, productID string, from, to *time.Time) ([]*entity.Movement, error)

	ListByRef(ctx context.Context, refID string) ([]*entity.Movement, error)

	// SumByRef suma de deltas de todos los movimientos con ese ref_id.
	SumByRef(ctx context.Context, refID string) (int64, error)

	// ExistsByRef indica si ya hay movimientos de ese tipo con ese ref_id.
	ExistsByRef(ctx context.Context, refID, kind string) (bool, error)
}
