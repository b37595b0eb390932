package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReportQuery parámetros comunes de los reportes. From/To RFC3339; Token continúa una página previa.
type ReportQuery struct {
	From    string `query:"from"`
	To      string `query:"to"`
	StoreID string `query:"store_id"`
	Limit   int    `query:"limit" validate:"min=0,max=100"`
	N       int    `query:"n" validate:"min=0,max=100"`
	Token   string `query:"token"`
}

// ReportMeta metadatos de una página de reporte.
type ReportMeta struct {
	GeneratedAt time.Time `json:"generated_at"`
	AsOf        time.Time `json:"as_of"`
	NextToken   string    `json:"next_token,omitempty"`
}

// StoreSalesItem ventas aplicadas de una tienda.
type StoreSalesItem struct {
	StoreID   string          `json:"store_id"`
	StoreName string          `json:"store_name"`
	SaleCount int             `json:"sale_count"`
	Total     decimal.Decimal `json:"total"`
}

// SalesTotalsResponse totales por tienda y global.
type SalesTotalsResponse struct {
	ReportMeta
	Items       []StoreSalesItem `json:"items"`
	GlobalCount int              `json:"global_count"`
	GlobalTotal decimal.Decimal  `json:"global_total"`
}

// StoreValuationItem valorización de una tienda.
type StoreValuationItem struct {
	StoreID   string          `json:"store_id"`
	StoreName string          `json:"store_name"`
	Units     int64           `json:"units"`
	Value     decimal.Decimal `json:"value"`
}

// ValuationResponse valorización por tienda y global.
type ValuationResponse struct {
	ReportMeta
	Items       []StoreValuationItem `json:"items"`
	GlobalUnits int64                `json:"global_units"`
	GlobalValue decimal.Decimal      `json:"global_value"`
}

// TopProductItem ingresos de un producto.
type TopProductItem struct {
	ProductID string          `json:"product_id"`
	SKU       string          `json:"sku"`
	Name      string          `json:"name"`
	Units     int64           `json:"units"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// TopProductsResponse productos con más ingresos.
type TopProductsResponse struct {
	ReportMeta
	Items []TopProductItem `json:"items"`
}

// LowStockItem posición en o por debajo de su umbral.
type LowStockItem struct {
	StoreID     string `json:"store_id"`
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	ProductName string `json:"product_name"`
	OnHand      int64  `json:"on_hand"`
	Threshold   int64  `json:"threshold"`
}

// LowStockResponse posiciones con stock bajo.
type LowStockResponse struct {
	ReportMeta
	Items []LowStockItem `json:"items"`
}

// TransferFlowItem flujo entre un par (origen, destino).
type TransferFlowItem struct {
	SourceStoreID  string `json:"source_store_id"`
	DestStoreID    string `json:"dest_store_id"`
	ReceivedCount  int    `json:"received_count"`
	ReceivedUnits  int64  `json:"received_units"`
	InTransitUnits int64  `json:"in_transit_units"`
}

// TransferThroughputResponse rendimiento de traslados.
type TransferThroughputResponse struct {
	ReportMeta
	Items []TransferFlowItem `json:"items"`
}
