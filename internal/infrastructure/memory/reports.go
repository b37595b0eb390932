package memory

import (
	"context"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/shopspring/decimal"
)

var _ repository.ReportRepository = reportRepo{}

type reportRepo struct{ st *state }

// appliedAt indica si la venta estaba APPLIED a asOf dentro de [from, to).
func appliedAt(s entity.Sale, from, to, asOf time.Time) bool {
	if s.AppliedAt == nil || s.AppliedAt.After(asOf) {
		return false
	}
	if s.VoidedAt != nil && !s.VoidedAt.After(asOf) {
		return false
	}
	return !s.AppliedAt.Before(from) && s.AppliedAt.Before(to)
}

func (r reportRepo) SalesByStore(_ context.Context, from, to, asOf time.Time) ([]repository.StoreSalesRow, error) {
	byStore := map[string]*repository.StoreSalesRow{}
	for _, s := range r.st.sales {
		if !appliedAt(s, from, to, asOf) {
			continue
		}
		row, ok := byStore[s.StoreID]
		if !ok {
			row = &repository.StoreSalesRow{StoreID: s.StoreID, StoreName: r.st.stores[s.StoreID].Name, Total: decimal.Zero}
			byStore[s.StoreID] = row
		}
		row.SaleCount++
		row.Total = row.Total.Add(s.Total)
	}
	out := make([]repository.StoreSalesRow, 0, len(byStore))
	for _, id := range sortedKeys(byStore) {
		out = append(out, *byStore[id])
	}
	return out, nil
}

func (r reportRepo) RevenueByProduct(_ context.Context, from, to, asOf time.Time) ([]repository.ProductRevenueRow, error) {
	byProduct := map[string]*repository.ProductRevenueRow{}
	for _, s := range r.st.sales {
		if !appliedAt(s, from, to, asOf) {
			continue
		}
		for _, l := range s.Lines {
			row, ok := byProduct[l.ProductID]
			if !ok {
				p := r.st.products[l.ProductID]
				row = &repository.ProductRevenueRow{ProductID: l.ProductID, SKU: p.SKU, Name: p.Name, Revenue: decimal.Zero}
				byProduct[l.ProductID] = row
			}
			row.Units += l.Quantity
			row.Revenue = row.Revenue.Add(l.Subtotal())
		}
	}
	out := make([]repository.ProductRevenueRow, 0, len(byProduct))
	for _, id := range sortedKeys(byProduct) {
		out = append(out, *byProduct[id])
	}
	return out, nil
}

// onHandAt reconstruye on_hand a asOf restando los movimientos posteriores.
func (r reportRepo) onHandAt(asOf time.Time) map[entity.PositionKey]int64 {
	out := make(map[entity.PositionKey]int64, len(r.st.positions))
	for k, p := range r.st.positions {
		if entity.IsTransitStore(k.StoreID) {
			continue
		}
		out[k] = p.OnHand
	}
	for _, m := range r.st.movements {
		if !m.TS.After(asOf) || entity.IsTransitStore(m.StoreID) {
			continue
		}
		out[entity.PositionKey{StoreID: m.StoreID, ProductID: m.ProductID}] -= m.Delta
	}
	return out
}

func (r reportRepo) ValuationByStore(_ context.Context, asOf time.Time) ([]repository.StoreValuationRow, error) {
	byStore := map[string]*repository.StoreValuationRow{}
	for k, qty := range r.onHandAt(asOf) {
		row, ok := byStore[k.StoreID]
		if !ok {
			row = &repository.StoreValuationRow{StoreID: k.StoreID, StoreName: r.st.stores[k.StoreID].Name, Value: decimal.Zero}
			byStore[k.StoreID] = row
		}
		row.Units += qty
		row.Value = row.Value.Add(r.st.products[k.ProductID].UnitPrice.Mul(decimal.NewFromInt(qty)))
	}
	out := make([]repository.StoreValuationRow, 0, len(byStore))
	for _, id := range sortedKeys(byStore) {
		out = append(out, *byStore[id])
	}
	return out, nil
}

func (r reportRepo) PositionsAt(_ context.Context, storeID string, asOf time.Time) ([]repository.PositionAtRow, error) {
	var out []repository.PositionAtRow
	for k, qty := range r.onHandAt(asOf) {
		if storeID != "" && k.StoreID != storeID {
			continue
		}
		p := r.st.products[k.ProductID]
		out = append(out, repository.PositionAtRow{
			StoreID:           k.StoreID,
			ProductID:         k.ProductID,
			SKU:               p.SKU,
			ProductName:       p.Name,
			OnHand:            qty,
			LowStockThreshold: p.LowStockThreshold,
		})
	}
	return out, nil
}

func (r reportRepo) TransferFlows(_ context.Context, from, to, asOf time.Time) ([]repository.TransferFlowRow, error) {
	byPair := map[string]*repository.TransferFlowRow{}
	get := func(t entity.Transfer) *repository.TransferFlowRow {
		key := t.SourceStoreID + "\x00" + t.DestStoreID
		row, ok := byPair[key]
		if !ok {
			row = &repository.TransferFlowRow{SourceStoreID: t.SourceStoreID, DestStoreID: t.DestStoreID}
			byPair[key] = row
		}
		return row
	}
	for _, t := range r.st.transfers {
		received := t.ReceivedAt != nil && !t.ReceivedAt.After(asOf)
		if received && !t.ReceivedAt.Before(from) && t.ReceivedAt.Before(to) {
			row := get(t)
			row.ReceivedCount++
			row.ReceivedUnits += t.TotalUnits()
		}
		dispatched := t.DispatchedAt != nil && !t.DispatchedAt.After(asOf)
		canceled := t.CanceledAt != nil && !t.CanceledAt.After(asOf)
		if dispatched && !received && !canceled {
			get(t).InTransitUnits += t.TotalUnits()
		}
	}
	out := make([]repository.TransferFlowRow, 0, len(byPair))
	for _, k := range sortedKeys(byPair) {
		out = append(out, *byPair[k])
	}
	return out, nil
}
