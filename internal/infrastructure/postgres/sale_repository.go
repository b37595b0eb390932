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

var _ repository.SaleRepository = (*SaleRepo)(nil)

// SaleRepo ventas y líneas de venta sobre PostgreSQL.
type SaleRepo struct {
	q Querier
}

func NewSaleRepository(q Querier) *SaleRepo {
	return &SaleRepo{q: q}
}

const saleColumns = `id, store_id, client_key, total, state, actor_id, created_at, applied_at, voided_at, shortages`

// InsertPending inserta cabecera y líneas. La llave (store_id, client_key) resuelve
// la carrera de dos envíos simultáneos: el segundo no inserta nada.
func (r *SaleRepo) InsertPending(ctx context.Context, sale *entity.Sale) (bool, error) {
	shortages, err := encodeShortages(sale.Shortages)
	if err != nil {
		return false, err
	}
	query := `
		INSERT INTO sales (` + saleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (store_id, client_key) DO NOTHING`
	tag, err := r.q.Exec(ctx, query,
		sale.ID, sale.StoreID, sale.ClientKey, sale.Total, sale.State, sale.ActorID,
		sale.CreatedAt, sale.AppliedAt, sale.VoidedAt, shortages,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: venta %s", domain.ErrDuplicate, sale.ID)
		}
		return false, fmt.Errorf("insert sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	line := `INSERT INTO sale_lines (sale_id, line_no, product_id, quantity, unit_price) VALUES ($1, $2, $3, $4, $5)`
	for i, l := range sale.Lines {
		if _, err := r.q.Exec(ctx, line, sale.ID, i, l.ProductID, l.Quantity, l.UnitPrice); err != nil {
			return false, fmt.Errorf("insert sale line: %w", err)
		}
	}
	return true, nil
}

func (r *SaleRepo) GetByID(ctx context.Context, id string) (*entity.Sale, error) {
	return r.get(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1`, id)
}

func (r *SaleRepo) GetByClientKey(ctx context.Context, storeID, clientKey string) (*entity.Sale, error) {
	return r.get(ctx, `SELECT `+saleColumns+` FROM sales WHERE store_id = $1 AND client_key = $2`, storeID, clientKey)
}

// GetForUpdate obtiene la venta y bloquea la fila (SELECT FOR UPDATE).
func (r *SaleRepo) GetForUpdate(ctx context.Context, id string) (*entity.Sale, error) {
	return r.get(ctx, `SELECT `+saleColumns+` FROM sales WHERE id = $1 FOR UPDATE`, id)
}

func (r *SaleRepo) UpdateState(ctx context.Context, sale *entity.Sale) error {
	shortages, err := encodeShortages(sale.Shortages)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE sales SET state = $2, applied_at = $3, voided_at = $4, shortages = $5 WHERE id = $1`,
		sale.ID, sale.State, sale.AppliedAt, sale.VoidedAt, shortages,
	)
	if err != nil {
		return fmt.Errorf("update sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SaleRepo) get(ctx context.Context, query string, args ...any) (*entity.Sale, error) {
	var (
		s         entity.Sale
		shortages []byte
	)
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&s.ID, &s.StoreID, &s.ClientKey, &s.Total, &s.State, &s.ActorID,
		&s.CreatedAt, &s.AppliedAt, &s.VoidedAt, &shortages,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sale: %w", err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.AppliedAt = utcPtr(s.AppliedAt)
	s.VoidedAt = utcPtr(s.VoidedAt)
	if len(shortages) > 0 {
		if err := json.Unmarshal(shortages, &s.Shortages); err != nil {
			return nil, fmt.Errorf("decode shortages: %w", err)
		}
	}

	rows, err := r.q.Query(ctx,
		`SELECT product_id, quantity, unit_price FROM sale_lines WHERE sale_id = $1 ORDER BY line_no`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("list sale lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l entity.SaleLine
		if err := rows.Scan(&l.ProductID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan sale line: %w", err)
		}
		s.Lines = append(s.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sale lines: %w", err)
	}
	return &s, nil
}

// encodeShortages nil si no hay faltantes, para guardar NULL.
func encodeShortages(shortages []domain.Shortage) ([]byte, error) {
	if len(shortages) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(shortages)
	if err != nil {
		return nil, fmt.Errorf("encode shortages: %w", err)
	}
	return b, nil
}
