package inventory

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

// Guard autoriza acciones sobre tiendas.
type Guard interface {
	Check(actor entity.Actor, storeID string, action access.Action) error
}

// LedgerWriter entrada transaccional del Ledger; los ajustes nunca tocan posiciones directamente.
type LedgerWriter interface {
	ApplyInTx(ctx context.Context, tx repository.Tx, batch ledger.Batch) ([]*entity.StockPosition, error)
}
