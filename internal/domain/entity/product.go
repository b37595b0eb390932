package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un producto vendible en todas las tiendas.
// SKU es único global e inmutable una vez asignado; el stock vive por tienda en StockPosition.
type Product struct {
	ID                string
	SKU               string
	Name              string
	UnitPrice         decimal.Decimal // precio de venta de referencia
	Active            bool
	LowStockThreshold *int64 // nil = usar el umbral por defecto de la configuración
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ThresholdOr devuelve el umbral de stock bajo del producto o el valor por defecto.
func (p *Product) ThresholdOr(def int64) int64 {
	if p.LowStockThreshold != nil {
		return *p.LowStockThreshold
	}
	return def
}
