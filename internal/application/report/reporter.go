// Package report arma los reportes consolidados de todas las tiendas.
// Cada llamada lee una única instantánea y nunca modifica datos.
package report

import (
	"context"
	"sort"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/shopspring/decimal"
)

const defaultTopN = 10

// Guard autoriza acciones sobre tiendas.
type Guard interface {
	Check(actor entity.Actor, storeID string, action access.Action) error
}

// Config límites del reporte.
type Config struct {
	// StalenessBound cuánto puede atrasarse asOf respecto de ahora.
	StalenessBound    time.Duration
	LowStockThreshold int64
}

// Reporter Consolidated Reporter.
type Reporter struct {
	runner repository.TxRunner
	guard  Guard
	clock  clock.Clock
	log    *logger.Logger
	cfg    Config
}

// NewReporter construye el reporter.
func NewReporter(runner repository.TxRunner, guard Guard, clk clock.Clock, log *logger.Logger, cfg Config) *Reporter {
	return &Reporter{runner: runner, guard: guard, clock: clk, log: log.Named("report"), cfg: cfg}
}

// Range intervalo [From, To) de un reporte. To cero = hasta asOf.
type Range struct {
	From time.Time
	To   time.Time
}

// SalesTotals ventas APPLIED por tienda y total global.
func (r *Reporter) SalesTotals(ctx context.Context, actor entity.Actor, rng Range, page Page) (*dto.SalesTotalsResponse, error) {
	meta, c, err := r.begin(actor, page)
	if err != nil {
		return nil, err
	}
	from, to := rng.bounds(c.asOf)

	var rows []repository.StoreSalesRow
	if err := r.snapshot(ctx, "ventas", func(tx repository.Tx) error {
		var err error
		rows, err = tx.Reports().SalesByStore(ctx, from, to, c.asOf)
		return err
	}); err != nil {
		return nil, err
	}

	out := &dto.SalesTotalsResponse{ReportMeta: meta, GlobalTotal: decimal.Zero}
	for _, row := range rows {
		out.GlobalCount += row.SaleCount
		out.GlobalTotal = out.GlobalTotal.Add(row.Total)
	}
	sort.Slice(rows, func(i, j int) bool {
		if d := rows[i].Total.Cmp(rows[j].Total); d != 0 {
			return d > 0
		}
		return rows[i].StoreID < rows[j].StoreID
	})
	items := make([]dto.StoreSalesItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.StoreSalesItem{StoreID: row.StoreID, StoreName: row.StoreName, SaleCount: row.SaleCount, Total: row.Total})
	}
	out.Items, out.NextToken = window(items, c, page.size())
	return out, nil
}

// InventoryValuation Σ on_hand × precio por tienda, con on_hand reconstruido a asOf.
func (r *Reporter) InventoryValuation(ctx context.Context, actor entity.Actor, page Page) (*dto.ValuationResponse, error) {
	meta, c, err := r.begin(actor, page)
	if err != nil {
		return nil, err
	}

	var rows []repository.StoreValuationRow
	if err := r.snapshot(ctx, "valorización", func(tx repository.Tx) error {
		var err error
		rows, err = tx.Reports().ValuationByStore(ctx, c.asOf)
		return err
	}); err != nil {
		return nil, err
	}

	out := &dto.ValuationResponse{ReportMeta: meta, GlobalValue: decimal.Zero}
	for _, row := range rows {
		out.GlobalUnits += row.Units
		out.GlobalValue = out.GlobalValue.Add(row.Value)
	}
	sort.Slice(rows, func(i, j int) bool {
		if d := rows[i].Value.Cmp(rows[j].Value); d != 0 {
			return d > 0
		}
		return rows[i].StoreID < rows[j].StoreID
	})
	items := make([]dto.StoreValuationItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.StoreValuationItem{StoreID: row.StoreID, StoreName: row.StoreName, Units: row.Units, Value: row.Value})
	}
	out.Items, out.NextToken = window(items, c, page.size())
	return out, nil
}

// TopProducts los n productos con más ingresos en el rango (n <= 0 usa 10).
func (r *Reporter) TopProducts(ctx context.Context, actor entity.Actor, rng Range, n int, page Page) (*dto.TopProductsResponse, error) {
	meta, c, err := r.begin(actor, page)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = defaultTopN
	}
	from, to := rng.bounds(c.asOf)

	var rows []repository.ProductRevenueRow
	if err := r.snapshot(ctx, "productos top", func(tx repository.Tx) error {
		var err error
		rows, err = tx.Reports().RevenueByProduct(ctx, from, to, c.asOf)
		return err
	}); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if d := rows[i].Revenue.Cmp(rows[j].Revenue); d != 0 {
			return d > 0
		}
		return rows[i].ProductID < rows[j].ProductID
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	items := make([]dto.TopProductItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.TopProductItem{ProductID: row.ProductID, SKU: row.SKU, Name: row.Name, Units: row.Units, Revenue: row.Revenue})
	}
	out := &dto.TopProductsResponse{ReportMeta: meta}
	out.Items, out.NextToken = window(items, c, page.size())
	return out, nil
}

// LowStock posiciones con on_hand <= umbral (del producto o el global). storeID vacío = todas.
// Orden: menor holgura (umbral - on_hand) primero.
func (r *Reporter) LowStock(ctx context.Context, actor entity.Actor, storeID string, page Page) (*dto.LowStockResponse, error) {
	meta, c, err := r.begin(actor, page)
	if err != nil {
		return nil, err
	}

	var rows []repository.PositionAtRow
	if err := r.snapshot(ctx, "stock bajo", func(tx repository.Tx) error {
		var err error
		rows, err = tx.Reports().PositionsAt(ctx, storeID, c.asOf)
		return err
	}); err != nil {
		return nil, err
	}

	items := make([]dto.LowStockItem, 0)
	for _, row := range rows {
		threshold := r.cfg.LowStockThreshold
		if row.LowStockThreshold != nil {
			threshold = *row.LowStockThreshold
		}
		if row.OnHand > threshold {
			continue
		}
		items = append(items, dto.LowStockItem{
			StoreID:     row.StoreID,
			ProductID:   row.ProductID,
			SKU:         row.SKU,
			ProductName: row.ProductName,
			OnHand:      row.OnHand,
			Threshold:   threshold,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		gi, gj := items[i].Threshold-items[i].OnHand, items[j].Threshold-items[j].OnHand
		if gi != gj {
			return gi > gj
		}
		if items[i].StoreID != items[j].StoreID {
			return items[i].StoreID < items[j].StoreID
		}
		return items[i].ProductID < items[j].ProductID
	})
	out := &dto.LowStockResponse{ReportMeta: meta}
	out.Items, out.NextToken = window(items, c, page.size())
	return out, nil
}

// TransferThroughput por par (origen, destino): recibidos en el rango y unidades en tránsito a asOf.
func (r *Reporter) TransferThroughput(ctx context.Context, actor entity.Actor, rng Range, page Page) (*dto.TransferThroughputResponse, error) {
	meta, c, err := r.begin(actor, page)
	if err != nil {
		return nil, err
	}
	from, to := rng.bounds(c.asOf)

	var rows []repository.TransferFlowRow
	if err := r.snapshot(ctx, "traslados", func(tx repository.Tx) error {
		var err error
		rows, err = tx.Reports().TransferFlows(ctx, from, to, c.asOf)
		return err
	}); err != nil {
		return nil, err
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ReceivedUnits != rows[j].ReceivedUnits {
			return rows[i].ReceivedUnits > rows[j].ReceivedUnits
		}
		if rows[i].SourceStoreID != rows[j].SourceStoreID {
			return rows[i].SourceStoreID < rows[j].SourceStoreID
		}
		return rows[i].DestStoreID < rows[j].DestStoreID
	})
	items := make([]dto.TransferFlowItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, dto.TransferFlowItem{
			SourceStoreID:  row.SourceStoreID,
			DestStoreID:    row.DestStoreID,
			ReceivedCount:  row.ReceivedCount,
			ReceivedUnits:  row.ReceivedUnits,
			InTransitUnits: row.InTransitUnits,
		})
	}
	out := &dto.TransferThroughputResponse{ReportMeta: meta}
	out.Items, out.NextToken = window(items, c, page.size())
	return out, nil
}

// begin autoriza y fija asOf: el del token o ahora menos la cota de atraso.
func (r *Reporter) begin(actor entity.Actor, page Page) (dto.ReportMeta, cursor, error) {
	if err := r.guard.Check(actor, "", access.ActionReportRead); err != nil {
		return dto.ReportMeta{}, cursor{}, err
	}
	now := r.clock.Now()
	c := cursor{asOf: now.Add(-r.cfg.StalenessBound)}
	if page.Token != "" {
		var err error
		if c, err = decodeToken(page.Token); err != nil {
			return dto.ReportMeta{}, cursor{}, err
		}
	}
	return dto.ReportMeta{GeneratedAt: now, AsOf: c.asOf}, c, nil
}

// snapshot ejecuta fn en una transacción de solo lectura; cualquier fallo es INTERNAL.
func (r *Reporter) snapshot(ctx context.Context, name string, fn func(tx repository.Tx) error) error {
	if err := r.runner.ReadOnly(ctx, fn); err != nil {
		r.log.Error().Err(err).Str("report", name).Msg("reporte fallido")
		return domain.Internal("no se pudo generar el reporte de "+name, err)
	}
	return nil
}

func (rng Range) bounds(asOf time.Time) (time.Time, time.Time) {
	to := rng.To
	if to.IsZero() || to.After(asOf) {
		to = asOf.Add(time.Nanosecond)
	}
	return rng.From, to
}
