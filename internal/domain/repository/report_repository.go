package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StoreSalesRow total vendido por una tienda.
type StoreSalesRow struct {
	StoreID   string
	StoreName string
	SaleCount int
	Total     decimal.Decimal
}

// ProductRevenueRow ingresos por producto (Σ cantidad × precio de líneas APPLIED).
type ProductRevenueRow struct {
	ProductID string
	SKU       string
	Name      string
	Units     int64
	Revenue   decimal.Decimal
}

// StoreValuationRow valorización de inventario por tienda.
type StoreValuationRow struct {
	StoreID   string
	StoreName string
	Units     int64
	Value     decimal.Decimal
}

// PositionAtRow posición reconstruida a un instante, con datos del producto.
type PositionAtRow struct {
	StoreID           string
	ProductID         string
	SKU               string
	ProductName       string
	OnHand            int64
	LowStockThreshold *int64
}

// TransferFlowRow flujo de traslados entre un par (origen, destino).
type TransferFlowRow struct {
	SourceStoreID  string
	DestStoreID    string
	ReceivedCount  int
	ReceivedUnits  int64
	InTransitUnits int64
}

// ReportRepository consultas de solo lectura del reporte consolidado.
// asOf acota lo visible: ventas aplicadas, movimientos y transiciones posteriores no cuentan.
// Las tiendas de tránsito nunca aparecen como stock de tienda.
type ReportRepository interface {
	SalesByStore(ctx context.Context, from, to, asOf time.Time) ([]StoreSalesRow, error)
	RevenueByProduct(ctx context.Context, from, to, asOf time.Time) ([]ProductRevenueRow, error)
	ValuationByStore(ctx context.Context, asOf time.Time) ([]StoreValuationRow, error)

	// PositionsAt posiciones de tiendas reales a asOf; storeID vacío = todas.
	PositionsAt(ctx context.Context, storeID string, asOf time.Time) ([]PositionAtRow, error)
	TransferFlows(ctx context.Context, from, to, asOf time.Time) ([]TransferFlowRow, error)
}
