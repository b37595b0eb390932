package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.TransferRepository = (*TransferRepo)(nil)

// TransferRepo traslados y sus líneas sobre PostgreSQL.
type TransferRepo struct {
	q Querier
}

func NewTransferRepository(q Querier) *TransferRepo {
	return &TransferRepo{q: q}
}

const transferColumns = `id, source_store_id, dest_store_id, state, created_by, created_at, dispatched_at, received_at, canceled_at`

// Create inserta el traslado con sus líneas; inserted=false si el ID ya existía.
func (r *TransferRepo) Create(ctx context.Context, t *entity.Transfer) (bool, error) {
	query := `
		INSERT INTO transfers (` + transferColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`
	tag, err := r.q.Exec(ctx, query,
		t.ID, t.SourceStoreID, t.DestStoreID, t.State, t.CreatedBy,
		t.CreatedAt, t.DispatchedAt, t.ReceivedAt, t.CanceledAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	line := `INSERT INTO transfer_lines (transfer_id, line_no, product_id, quantity) VALUES ($1, $2, $3, $4)`
	for i, l := range t.Lines {
		if _, err := r.q.Exec(ctx, line, t.ID, i, l.ProductID, l.Quantity); err != nil {
			return false, fmt.Errorf("insert transfer line: %w", err)
		}
	}
	return true, nil
}

func (r *TransferRepo) GetByID(ctx context.Context, id string) (*entity.Transfer, error) {
	return r.get(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1`, id)
}

func (r *TransferRepo) GetForUpdate(ctx context.Context, id string) (*entity.Transfer, error) {
	return r.get(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id = $1 FOR UPDATE`, id)
}

// UpdateState persiste el estado y las marcas de tiempo; las líneas no cambian.
func (r *TransferRepo) UpdateState(ctx context.Context, t *entity.Transfer) error {
	query := `
		UPDATE transfers
		SET state = $2, dispatched_at = $3, received_at = $4, canceled_at = $5
		WHERE id = $1`
	tag, err := r.q.Exec(ctx, query, t.ID, t.State, t.DispatchedAt, t.ReceivedAt, t.CanceledAt)
	if err != nil {
		return fmt.Errorf("update transfer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TransferRepo) CountOpenByStore(ctx context.Context, storeID string) (int, error) {
	var n int
	query := `
		SELECT count(*) FROM transfers
		WHERE state IN ($2, $3) AND (source_store_id = $1 OR dest_store_id = $1)`
	err := r.q.QueryRow(ctx, query, storeID, entity.TransferStateDraft, entity.TransferStateDispatched).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count open transfers: %w", err)
	}
	return n, nil
}

func (r *TransferRepo) get(ctx context.Context, query string, id string) (*entity.Transfer, error) {
	var t entity.Transfer
	err := r.q.QueryRow(ctx, query, id).Scan(
		&t.ID, &t.SourceStoreID, &t.DestStoreID, &t.State, &t.CreatedBy,
		&t.CreatedAt, &t.DispatchedAt, &t.ReceivedAt, &t.CanceledAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transfer: %w", err)
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.DispatchedAt = utcPtr(t.DispatchedAt)
	t.ReceivedAt = utcPtr(t.ReceivedAt)
	t.CanceledAt = utcPtr(t.CanceledAt)

	rows, err := r.q.Query(ctx,
		`SELECT product_id, quantity FROM transfer_lines WHERE transfer_id = $1 ORDER BY line_no`, t.ID)
	if err != nil {
		return nil, fmt.Errorf("list transfer lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l entity.TransferLine
		if err := rows.Scan(&l.ProductID, &l.Quantity); err != nil {
			return nil, fmt.Errorf("scan transfer line: %w", err)
		}
		t.Lines = append(t.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transfer lines: %w", err)
	}
	return &t, nil
}
