package inventory

import (
	"context"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// HistorySource log de movimientos de una posición.
type HistorySource interface {
	History(ctx context.Context, storeID, productID string, from, to *time.Time) ([]*entity.Movement, error)
}

// QueryUseCase consultas de posición e historial, con permiso READ sobre la tienda.
type QueryUseCase struct {
	positions ledger.Reader
	history   HistorySource
	guard     Guard
}

// NewQueryUseCase construye el caso de uso. positions suele ser el CachedReader.
func NewQueryUseCase(positions ledger.Reader, history HistorySource, guard Guard) *QueryUseCase {
	return &QueryUseCase{positions: positions, history: history, guard: guard}
}

// Position posición actual de (storeID, productID).
func (uc *QueryUseCase) Position(ctx context.Context, actor entity.Actor, storeID, productID string) (*dto.PositionResponse, error) {
	if storeID == "" || productID == "" {
		return nil, domain.Invalid("store_id y product_id son obligatorios")
	}
	if err := uc.guard.Check(actor, storeID, access.ActionRead); err != nil {
		return nil, err
	}
	pos, err := uc.positions.Read(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	resp := dto.NewPositionResponse(pos)
	return &resp, nil
}

// History movimientos de la posición en el rango pedido, en orden de Seq.
func (uc *QueryUseCase) History(ctx context.Context, actor entity.Actor, q dto.HistoryQuery) ([]dto.MovementResponse, error) {
	if q.StoreID == "" || q.ProductID == "" {
		return nil, domain.Invalid("store_id y product_id son obligatorios")
	}
	from, err := parseBound("from", q.From)
	if err != nil {
		return nil, err
	}
	to, err := parseBound("to", q.To)
	if err != nil {
		return nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, domain.Invalid("to es anterior a from")
	}
	if err := uc.guard.Check(actor, q.StoreID, access.ActionRead); err != nil {
		return nil, err
	}
	list, err := uc.history.History(ctx, q.StoreID, q.ProductID, from, to)
	if err != nil {
		return nil, err
	}
	return dto.NewMovementResponses(list), nil
}

func parseBound(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domain.Invalid("%s debe ser RFC3339: %v", name, err)
	}
	t = t.UTC()
	return &t, nil
}
