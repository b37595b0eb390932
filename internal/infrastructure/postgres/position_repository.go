package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.PositionRepository = (*PositionRepo)(nil)

// PositionRepo posiciones de stock sobre PostgreSQL.
type PositionRepo struct {
	q Querier
}

func NewPositionRepository(q Querier) *PositionRepo {
	return &PositionRepo{q: q}
}

const positionColumns = `store_id, product_id, on_hand, reserved, version, updated_at`

func scanPosition(row pgx.Row) (*entity.StockPosition, error) {
	var p entity.StockPosition
	if err := row.Scan(&p.StoreID, &p.ProductID, &p.OnHand, &p.Reserved, &p.Version, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Get devuelve la posición o una en cero si nunca se tocó.
func (r *PositionRepo) Get(ctx context.Context, storeID, productID string) (*entity.StockPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM stock_positions WHERE store_id = $1 AND product_id = $2`
	p, err := scanPosition(r.q.QueryRow(ctx, query, storeID, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &entity.StockPosition{StoreID: storeID, ProductID: productID}, nil
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// LockForUpdate crea en cero las filas que falten y bloquea todas con SELECT FOR UPDATE
// en orden (store_id, product_id), el mismo orden para todo lote.
func (r *PositionRepo) LockForUpdate(ctx context.Context, keys []entity.PositionKey) (map[entity.PositionKey]*entity.StockPosition, error) {
	out := make(map[entity.PositionKey]*entity.StockPosition, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	stores := make([]string, len(keys))
	products := make([]string, len(keys))
	for i, k := range keys {
		stores[i] = k.StoreID
		products[i] = k.ProductID
	}

	insert := `
		INSERT INTO stock_positions (store_id, product_id)
		SELECT s, p FROM unnest($1::text[], $2::text[]) AS k(s, p)
		ORDER BY s COLLATE "C", p COLLATE "C"
		ON CONFLICT (store_id, product_id) DO NOTHING`
	if _, err := r.q.Exec(ctx, insert, stores, products); err != nil {
		return nil, fmt.Errorf("seed positions: %w", err)
	}

	lock := `
		SELECT ` + positionColumns + `
		FROM stock_positions
		WHERE (store_id, product_id) IN (SELECT s, p FROM unnest($1::text[], $2::text[]) AS k(s, p))
		ORDER BY store_id COLLATE "C", product_id COLLATE "C"
		FOR UPDATE`
	rows, err := r.q.Query(ctx, lock, stores, products)
	if err != nil {
		return nil, fmt.Errorf("lock positions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out[p.Key()] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock positions: %w", err)
	}
	for _, k := range keys {
		if _, ok := out[k]; !ok {
			return nil, fmt.Errorf("lock positions: falta %s/%s", k.StoreID, k.ProductID)
		}
	}
	return out, nil
}

// Save escribe on_hand, reserved y version de cada posición (upsert).
func (r *PositionRepo) Save(ctx context.Context, positions []*entity.StockPosition) error {
	query := `
		INSERT INTO stock_positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (store_id, product_id)
		DO UPDATE SET on_hand = EXCLUDED.on_hand, reserved = EXCLUDED.reserved,
		              version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`
	for _, p := range positions {
		if _, err := r.q.Exec(ctx, query, p.StoreID, p.ProductID, p.OnHand, p.Reserved, p.Version, p.UpdatedAt); err != nil {
			return fmt.Errorf("save position %s/%s: %w", p.StoreID, p.ProductID, err)
		}
	}
	return nil
}

func (r *PositionRepo) ListByStore(ctx context.Context, storeID string) ([]*entity.StockPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM stock_positions WHERE store_id = $1 ORDER BY product_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, storeID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (r *PositionRepo) CountNonZero(ctx context.Context, storeID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM stock_positions WHERE store_id = $1 AND on_hand <> 0`, storeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count positions: %w", err)
	}
	return n, nil
}
