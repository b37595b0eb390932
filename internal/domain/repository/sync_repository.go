package repository

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// SyncRepository puerto de la central para sobres, cursores y conflictos.
type SyncRepository interface {
	// LockEdge serializa la ingesta de una tienda EDGE hasta el fin de la transacción.
	LockEdge(ctx context.Context, edgeStoreID string) error

	// GetCursor devuelve el cursor; LastSequence 0 si la tienda nunca sincronizó.
	GetCursor(ctx context.Context, edgeStoreID string) (*entity.SyncCursor, error)
	SaveCursor(ctx context.Context, cursor *entity.SyncCursor) error

	// SaveEnvelope falla con domain.ErrDuplicate si (edge_store_id, sequence) ya existe.
	SaveEnvelope(ctx context.Context, envelope *entity.SyncEnvelope) error
	SaveConflicts(ctx context.Context, conflicts []*entity.ConflictRecord) error
	ListConflicts(ctx context.Context, edgeStoreID string, limit, offset int) ([]*entity.ConflictRecord, error)
}

// OperationJournal registro local (write-ahead) de una tienda EDGE.
// Record deja la operación en espera antes de aplicarla localmente: Seal no la ve.
// Commit la pasa a la cola sellable cuando la transacción local confirmó;
// Discard la borra si la aplicación falló o no cambió nada.
type OperationJournal interface {
	Record(ctx context.Context, op entity.Operation) error
	Commit(ctx context.Context, opID string) error
	Discard(ctx context.Context, opID string) error
}
