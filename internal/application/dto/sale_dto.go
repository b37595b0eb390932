package dto

import (
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/shopspring/decimal"
)

// SaleLineRequest línea de una venta.
type SaleLineRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ApplySaleRequest body para POST /api/sales.
type ApplySaleRequest struct {
	StoreID   string            `json:"store_id" validate:"required"`
	ClientKey string            `json:"client_key" validate:"required,max=200"`
	Lines     []SaleLineRequest `json:"lines" validate:"required,min=1,dive"`
}

// SaleLineResponse línea de una venta.
type SaleLineResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// SaleResponse salida de una venta.
type SaleResponse struct {
	ID        string             `json:"id"`
	StoreID   string             `json:"store_id"`
	ClientKey string             `json:"client_key"`
	State     string             `json:"state"`
	Lines     []SaleLineResponse `json:"lines"`
	Total     decimal.Decimal    `json:"total"`
	Shortages []domain.Shortage  `json:"shortages,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	AppliedAt *time.Time         `json:"applied_at,omitempty"`
	VoidedAt  *time.Time         `json:"voided_at,omitempty"`
	Duplicate bool               `json:"duplicate"`
}

// ToSaleLines convierte las líneas del request.
func (r ApplySaleRequest) ToSaleLines() []entity.SaleLine {
	lines := make([]entity.SaleLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, entity.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice})
	}
	return lines
}

// NewSaleResponse arma la respuesta desde la entidad.
func NewSaleResponse(s *entity.Sale, duplicate bool) SaleResponse {
	lines := make([]SaleLineResponse, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, SaleLineResponse{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice, Subtotal: l.Subtotal()})
	}
	return SaleResponse{
		ID:        s.ID,
		StoreID:   s.StoreID,
		ClientKey: s.ClientKey,
		State:     s.State,
		Lines:     lines,
		Total:     s.Total,
		Shortages: s.Shortages,
		CreatedAt: s.CreatedAt,
		AppliedAt: s.AppliedAt,
		VoidedAt:  s.VoidedAt,
		Duplicate: duplicate,
	}
}
