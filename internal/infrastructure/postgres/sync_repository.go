package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.SyncRepository = (*SyncRepo)(nil)

// SyncRepo sobres, cursores y conflictos de la central.
type SyncRepo struct {
	q Querier
}

func NewSyncRepository(q Querier) *SyncRepo {
	return &SyncRepo{q: q}
}

// LockEdge toma un advisory lock de transacción por tienda EDGE; se libera en Commit o Rollback.
func (r *SyncRepo) LockEdge(ctx context.Context, edgeStoreID string) error {
	if _, err := r.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, edgeStoreID); err != nil {
		return fmt.Errorf("lock edge %s: %w", edgeStoreID, err)
	}
	return nil
}

func (r *SyncRepo) GetCursor(ctx context.Context, edgeStoreID string) (*entity.SyncCursor, error) {
	c := entity.SyncCursor{EdgeStoreID: edgeStoreID}
	err := r.q.QueryRow(ctx,
		`SELECT last_sequence, updated_at FROM sync_cursors WHERE edge_store_id = $1`, edgeStoreID,
	).Scan(&c.LastSequence, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &c, nil
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

func (r *SyncRepo) SaveCursor(ctx context.Context, c *entity.SyncCursor) error {
	query := `
		INSERT INTO sync_cursors (edge_store_id, last_sequence, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (edge_store_id)
		DO UPDATE SET last_sequence = EXCLUDED.last_sequence, updated_at = EXCLUDED.updated_at`
	if _, err := r.q.Exec(ctx, query, c.EdgeStoreID, c.LastSequence, c.UpdatedAt); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}

// SaveEnvelope guarda el sobre con sus operaciones como JSONB.
func (r *SyncRepo) SaveEnvelope(ctx context.Context, e *entity.SyncEnvelope) error {
	ops, err := json.Marshal(e.Operations)
	if err != nil {
		return fmt.Errorf("encode operations: %w", err)
	}
	query := `
		INSERT INTO sync_envelopes (id, edge_store_id, sequence, operations, hash, produced_at, accepted_at, conflict_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.q.Exec(ctx, query,
		e.ID, e.EdgeStoreID, e.Sequence, ops, e.Hash, e.ProducedAt, e.AcceptedAt, e.ConflictCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("insert envelope: %w", err)
	}
	return nil
}

func (r *SyncRepo) SaveConflicts(ctx context.Context, conflicts []*entity.ConflictRecord) error {
	query := `
		INSERT INTO sync_conflicts (id, envelope_id, edge_store_id, sequence, operation_index, operation_id, reason, resolution, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, c := range conflicts {
		_, err := r.q.Exec(ctx, query,
			c.ID, c.EnvelopeID, c.EdgeStoreID, c.Sequence, c.OperationIndex, c.OperationID,
			c.Reason, c.Resolution, c.Detail, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert conflict: %w", err)
		}
	}
	return nil
}

// ListConflicts del más reciente al más antiguo.
func (r *SyncRepo) ListConflicts(ctx context.Context, edgeStoreID string, limit, offset int) ([]*entity.ConflictRecord, error) {
	query := `
		SELECT id, envelope_id, edge_store_id, sequence, operation_index, operation_id, reason, resolution, detail, created_at
		FROM sync_conflicts
		WHERE edge_store_id = $1
		ORDER BY sequence DESC, operation_index DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(ctx, query, edgeStoreID, limitOrAll(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	defer rows.Close()
	var list []*entity.ConflictRecord
	for rows.Next() {
		var c entity.ConflictRecord
		err := rows.Scan(&c.ID, &c.EnvelopeID, &c.EdgeStoreID, &c.Sequence, &c.OperationIndex, &c.OperationID,
			&c.Reason, &c.Resolution, &c.Detail, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		list = append(list, &c)
	}
	return list, rows.Err()
}
