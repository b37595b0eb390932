package dto

import (
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// TransferLineDTO producto y cantidad.
type TransferLineDTO struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

// CreateTransferRequest body para POST /api/transfers. TransferID opcional (idempotencia).
type CreateTransferRequest struct {
	TransferID    string            `json:"transfer_id" validate:"omitempty,max=100"`
	SourceStoreID string            `json:"source_store_id" validate:"required"`
	DestStoreID   string            `json:"dest_store_id" validate:"required,nefield=SourceStoreID"`
	Lines         []TransferLineDTO `json:"lines" validate:"required,min=1,dive"`
}

// TransferResponse salida de un traslado.
type TransferResponse struct {
	ID            string            `json:"id"`
	SourceStoreID string            `json:"source_store_id"`
	DestStoreID   string            `json:"dest_store_id"`
	State         string            `json:"state"`
	Lines         []TransferLineDTO `json:"lines"`
	CreatedBy     string            `json:"created_by"`
	CreatedAt     time.Time         `json:"created_at"`
	DispatchedAt  *time.Time        `json:"dispatched_at,omitempty"`
	ReceivedAt    *time.Time        `json:"received_at,omitempty"`
	CanceledAt    *time.Time        `json:"canceled_at,omitempty"`
	Duplicate     bool              `json:"duplicate"`
}

// ToTransferLines convierte las líneas del request.
func (r CreateTransferRequest) ToTransferLines() []entity.TransferLine {
	lines := make([]entity.TransferLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, entity.TransferLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return lines
}

// NewTransferResponse arma la respuesta desde la entidad.
func NewTransferResponse(t *entity.Transfer, duplicate bool) TransferResponse {
	lines := make([]TransferLineDTO, 0, len(t.Lines))
	for _, l := range t.Lines {
		lines = append(lines, TransferLineDTO{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return TransferResponse{
		ID:            t.ID,
		SourceStoreID: t.SourceStoreID,
		DestStoreID:   t.DestStoreID,
		State:         t.State,
		Lines:         lines,
		CreatedBy:     t.CreatedBy,
		CreatedAt:     t.CreatedAt,
		DispatchedAt:  t.DispatchedAt,
		ReceivedAt:    t.ReceivedAt,
		CanceledAt:    t.CanceledAt,
		Duplicate:     duplicate,
	}
}
