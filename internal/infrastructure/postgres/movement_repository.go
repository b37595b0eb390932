package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.MovementRepository = (*MovementRepo)(nil)

// MovementRepo log de movimientos; solo INSERT, nunca UPDATE ni DELETE.
type MovementRepo struct {
	q Querier
}

func NewMovementRepository(q Querier) *MovementRepo {
	return &MovementRepo{q: q}
}

const movementColumns = `seq, id, ts, store_id, product_id, delta, kind, ref_id, actor_id`

// Append inserta el movimiento y toma Seq del BIGSERIAL.
func (r *MovementRepo) Append(ctx context.Context, m *entity.Movement) error {
	query := `
		INSERT INTO movements (id, ts, store_id, product_id, delta, kind, ref_id, actor_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		m.ID, m.TS, m.StoreID, m.ProductID, m.Delta, m.Kind, m.RefID, m.ActorID,
	).Scan(&m.Seq)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

func (r *MovementRepo) ListByPosition(ctx context.Context, storeID, productID string, from, to *time.Time) ([]*entity.Movement, error) {
	query := `
		SELECT ` + movementColumns + `
		FROM movements
		WHERE store_id = $1 AND product_id = $2
		  AND ($3::timestamptz IS NULL OR ts >= $3)
		  AND ($4::timestamptz IS NULL OR ts <= $4)
		ORDER BY seq`
	rows, err := r.q.Query(ctx, query, storeID, productID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return collectMovements(rows)
}

func (r *MovementRepo) ListByRef(ctx context.Context, refID string) ([]*entity.Movement, error) {
	rows, err := r.q.Query(ctx, `SELECT `+movementColumns+` FROM movements WHERE ref_id = $1 ORDER BY seq`, refID)
	if err != nil {
		return nil, fmt.Errorf("list movements by ref: %w", err)
	}
	return collectMovements(rows)
}

func (r *MovementRepo) SumByRef(ctx context.Context, refID string) (int64, error) {
	var sum int64
	if err := r.q.QueryRow(ctx, `SELECT COALESCE(sum(delta), 0)::bigint FROM movements WHERE ref_id = $1`, refID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum movements: %w", err)
	}
	return sum, nil
}

func (r *MovementRepo) ExistsByRef(ctx context.Context, refID, kind string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM movements WHERE ref_id = $1 AND kind = $2)`
	if err := r.q.QueryRow(ctx, query, refID, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists movement: %w", err)
	}
	return exists, nil
}

func collectMovements(rows pgx.Rows) ([]*entity.Movement, error) {
	defer rows.Close()
	var list []*entity.Movement
	for rows.Next() {
		var m entity.Movement
		if err := rows.Scan(&m.Seq, &m.ID, &m.TS, &m.StoreID, &m.ProductID, &m.Delta, &m.Kind, &m.RefID, &m.ActorID); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		m.TS = m.TS.UTC()
		list = append(list, &m)
	}
	return list, rows.Err()
}
