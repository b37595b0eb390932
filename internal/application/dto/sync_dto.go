package dto

import (
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// EnvelopeRequest body de POST /api/sync/envelopes. Es también el formato que envía la EDGE.
type EnvelopeRequest struct {
	ID          string             `json:"id" validate:"required"`
	EdgeStoreID string             `json:"edge_store_id" validate:"required"`
	Sequence    int64              `json:"sequence" validate:"required,gt=0"`
	Operations  []entity.Operation `json:"operations" validate:"required,min=1"`
	Hash        string             `json:"hash" validate:"required"`
	ProducedAt  time.Time          `json:"produced_at"`
}

// ConflictDTO conflicto de una operación reproducida.
type ConflictDTO struct {
	OperationIndex int       `json:"operation_index"`
	OperationID    string    `json:"operation_id"`
	Reason         string    `json:"reason"`
	Resolution     string    `json:"resolution"`
	Detail         string    `json:"detail"`
	Sequence       int64     `json:"sequence,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// IngestResponse resultado de la ingesta de un sobre.
type IngestResponse struct {
	Accepted             bool          `json:"accepted"`
	Duplicate            bool          `json:"duplicate"`
	LastAcceptedSequence int64         `json:"last_accepted_sequence"`
	Conflicts            []ConflictDTO `json:"conflicts"`
	BackoffHint          int           `json:"backoff_hint"`
}

// EdgeStatusResponse cursor y conflictos recientes de una EDGE.
type EdgeStatusResponse struct {
	EdgeStoreID          string        `json:"edge_store_id"`
	LastAcceptedSequence int64         `json:"last_accepted_sequence"`
	UpdatedAt            time.Time     `json:"updated_at"`
	Conflicts            []ConflictDTO `json:"conflicts"`
	Page                 PageResponse  `json:"page"`
}

// ToEnvelope convierte el request en la entidad.
func (r EnvelopeRequest) ToEnvelope() *entity.SyncEnvelope {
	return &entity.SyncEnvelope{
		ID:          r.ID,
		EdgeStoreID: r.EdgeStoreID,
		Sequence:    r.Sequence,
		Operations:  r.Operations,
		Hash:        r.Hash,
		ProducedAt:  r.ProducedAt,
	}
}

// NewEnvelopeRequest arma el body a enviar desde la entidad.
func NewEnvelopeRequest(e *entity.SyncEnvelope) EnvelopeRequest {
	return EnvelopeRequest{
		ID:          e.ID,
		EdgeStoreID: e.EdgeStoreID,
		Sequence:    e.Sequence,
		Operations:  e.Operations,
		Hash:        e.Hash,
		ProducedAt:  e.ProducedAt,
	}
}

// NewConflictDTOs convierte conflictos.
func NewConflictDTOs(list []*entity.ConflictRecord) []ConflictDTO {
	out := make([]ConflictDTO, 0, len(list))
	for _, c := range list {
		out = append(out, ConflictDTO{
			OperationIndex: c.OperationIndex,
			OperationID:    c.OperationID,
			Reason:         c.Reason,
			Resolution:     c.Resolution,
			Detail:         c.Detail,
			Sequence:       c.Sequence,
			CreatedAt:      c.CreatedAt,
		})
	}
	return out
}
