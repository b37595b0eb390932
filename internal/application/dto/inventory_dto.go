package dto

import (
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// AdjustmentRequest body para POST /api/inventory/adjustments.
type AdjustmentRequest struct {
	StoreID         string `json:"store_id" validate:"required"`
	ProductID       string `json:"product_id" validate:"required"`
	ClientKey       string `json:"client_key" validate:"required,max=200"`
	Delta           int64  `json:"delta" validate:"required,ne=0"`
	ExpectedVersion *int64 `json:"expected_version,omitempty" validate:"omitempty,min=0"`
}

// PositionQuery query de GET /api/inventory.
type PositionQuery struct {
	StoreID   string `query:"store_id" validate:"required"`
	ProductID string `query:"product_id" validate:"required"`
}

// HistoryQuery query de GET /api/inventory/history. Fechas RFC3339 opcionales.
type HistoryQuery struct {
	StoreID   string `query:"store_id" validate:"required"`
	ProductID string `query:"product_id" validate:"required"`
	From      string `query:"from"`
	To        string `query:"to"`
}

// PositionResponse posición de stock.
type PositionResponse struct {
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	OnHand    int64     `json:"on_hand"`
	Reserved  int64     `json:"reserved"`
	Available int64     `json:"available"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// MovementResponse entrada del log de movimientos.
type MovementResponse struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	TS        time.Time `json:"ts"`
	StoreID   string    `json:"store_id"`
	ProductID string    `json:"product_id"`
	Delta     int64     `json:"delta"`
	Kind      string    `json:"kind"`
	RefID     string    `json:"ref_id"`
	ActorID   string    `json:"actor_id"`
}

// NewPositionResponse arma la respuesta desde la entidad.
func NewPositionResponse(p *entity.StockPosition) PositionResponse {
	return PositionResponse{
		StoreID:   p.StoreID,
		ProductID: p.ProductID,
		OnHand:    p.OnHand,
		Reserved:  p.Reserved,
		Available: p.Available(),
		Version:   p.Version,
		UpdatedAt: p.UpdatedAt,
	}
}

// NewMovementResponses convierte una lista de movimientos.
func NewMovementResponses(list []*entity.Movement) []MovementResponse {
	out := make([]MovementResponse, 0, len(list))
	for _, m := range list {
		out = append(out, MovementResponse{
			ID: m.ID, Seq: m.Seq, TS: m.TS, StoreID: m.StoreID, ProductID: m.ProductID,
			Delta: m.Delta, Kind: m.Kind, RefID: m.RefID, ActorID: m.ActorID,
		})
	}
	return out
}
