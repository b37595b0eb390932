package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.ReportRepository = (*ReportRepo)(nil)

// ReportRepo consultas de lectura del reporte consolidado. Se usa dentro de la
// transacción REPEATABLE READ de TxRunner.ReadOnly, así todas ven la misma instantánea.
type ReportRepo struct {
	q Querier
}

func NewReportRepository(q Querier) *ReportRepo {
	return &ReportRepo{q: q}
}

// appliedWindow filtra ventas APPLIED a $3 (asOf) con applied_at en [$1, $2).
const appliedWindow = `
	s.applied_at IS NOT NULL AND s.applied_at <= $3
	AND (s.voided_at IS NULL OR s.voided_at > $3)
	AND s.applied_at >= $1 AND s.applied_at < $2`

// onHandAt reconstruye on_hand a $1 restando los movimientos posteriores. Excluye tránsito.
const onHandAt = `
	WITH later AS (
		SELECT store_id, product_id, sum(delta) AS d
		FROM movements
		WHERE ts > $1 AND store_id NOT LIKE '` + entity.TransitStorePrefix + `%'
		GROUP BY store_id, product_id
	)
	SELECT p.store_id, p.product_id, (p.on_hand - COALESCE(l.d, 0))::bigint AS qty
	FROM stock_positions p
	LEFT JOIN later l ON l.store_id = p.store_id AND l.product_id = p.product_id
	WHERE p.store_id NOT LIKE '` + entity.TransitStorePrefix + `%'`

func (r *ReportRepo) SalesByStore(ctx context.Context, from, to, asOf time.Time) ([]repository.StoreSalesRow, error) {
	query := `
		SELECT s.store_id, COALESCE(st.name, ''), count(*), COALESCE(sum(s.total), 0)
		FROM sales s
		LEFT JOIN stores st ON st.id = s.store_id
		WHERE ` + appliedWindow + `
		GROUP BY s.store_id, st.name
		ORDER BY s.store_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, from, to, asOf)
	if err != nil {
		return nil, fmt.Errorf("sales by store: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.StoreSalesRow, error) {
		var s repository.StoreSalesRow
		err := row.Scan(&s.StoreID, &s.StoreName, &s.SaleCount, &s.Total)
		return s, err
	})
}

func (r *ReportRepo) RevenueByProduct(ctx context.Context, from, to, asOf time.Time) ([]repository.ProductRevenueRow, error) {
	query := `
		SELECT l.product_id, COALESCE(p.sku, ''), COALESCE(p.name, ''),
		       sum(l.quantity)::bigint, sum(l.quantity * l.unit_price)
		FROM sales s
		JOIN sale_lines l ON l.sale_id = s.id
		LEFT JOIN products p ON p.id = l.product_id
		WHERE ` + appliedWindow + `
		GROUP BY l.product_id, p.sku, p.name
		ORDER BY l.product_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, from, to, asOf)
	if err != nil {
		return nil, fmt.Errorf("revenue by product: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.ProductRevenueRow, error) {
		var p repository.ProductRevenueRow
		err := row.Scan(&p.ProductID, &p.SKU, &p.Name, &p.Units, &p.Revenue)
		return p, err
	})
}

func (r *ReportRepo) ValuationByStore(ctx context.Context, asOf time.Time) ([]repository.StoreValuationRow, error) {
	query := `
		WITH pos AS (` + onHandAt + `)
		SELECT pos.store_id, COALESCE(st.name, ''), sum(pos.qty)::bigint, COALESCE(sum(pos.qty * p.unit_price), 0)
		FROM pos
		JOIN products p ON p.id = pos.product_id
		LEFT JOIN stores st ON st.id = pos.store_id
		GROUP BY pos.store_id, st.name
		ORDER BY pos.store_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("valuation by store: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.StoreValuationRow, error) {
		var v repository.StoreValuationRow
		err := row.Scan(&v.StoreID, &v.StoreName, &v.Units, &v.Value)
		return v, err
	})
}

func (r *ReportRepo) PositionsAt(ctx context.Context, storeID string, asOf time.Time) ([]repository.PositionAtRow, error) {
	query := `
		WITH pos AS (` + onHandAt + `)
		SELECT pos.store_id, pos.product_id, p.sku, p.name, pos.qty, p.low_stock_threshold
		FROM pos
		JOIN products p ON p.id = pos.product_id
		WHERE $2 = '' OR pos.store_id = $2
		ORDER BY pos.store_id COLLATE "C", pos.product_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, asOf, storeID)
	if err != nil {
		return nil, fmt.Errorf("positions at: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.PositionAtRow, error) {
		var p repository.PositionAtRow
		err := row.Scan(&p.StoreID, &p.ProductID, &p.SKU, &p.ProductName, &p.OnHand, &p.LowStockThreshold)
		return p, err
	})
}

// TransferFlows recibidos en [$1, $2) y unidades en tránsito a $3, por par origen/destino.
func (r *ReportRepo) TransferFlows(ctx context.Context, from, to, asOf time.Time) ([]repository.TransferFlowRow, error) {
	query := `
		WITH t AS (
			SELECT tr.source_store_id, tr.dest_store_id,
			       (tr.received_at IS NOT NULL AND tr.received_at <= $3
			        AND tr.received_at >= $1 AND tr.received_at < $2) AS received,
			       (tr.dispatched_at IS NOT NULL AND tr.dispatched_at <= $3
			        AND (tr.received_at IS NULL OR tr.received_at > $3)
			        AND (tr.canceled_at IS NULL OR tr.canceled_at > $3)) AS in_transit,
			       (SELECT COALESCE(sum(l.quantity), 0) FROM transfer_lines l WHERE l.transfer_id = tr.id) AS units
			FROM transfers tr
		)
		SELECT source_store_id, dest_store_id,
		       count(*) FILTER (WHERE received),
		       COALESCE(sum(units) FILTER (WHERE received), 0)::bigint,
		       COALESCE(sum(units) FILTER (WHERE in_transit), 0)::bigint
		FROM t
		WHERE received OR in_transit
		GROUP BY source_store_id, dest_store_id
		ORDER BY source_store_id COLLATE "C", dest_store_id COLLATE "C"`
	rows, err := r.q.Query(ctx, query, from, to, asOf)
	if err != nil {
		return nil, fmt.Errorf("transfer flows: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.TransferFlowRow, error) {
		var f repository.TransferFlowRow
		err := row.Scan(&f.SourceStoreID, &f.DestStoreID, &f.ReceivedCount, &f.ReceivedUnits, &f.InTransitUnits)
		return f, err
	})
}
