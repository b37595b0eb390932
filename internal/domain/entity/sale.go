package entity

import (
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/shopspring/decimal"
)

// Estados de una venta.
const (
	SaleStatePending = "PENDING"
	SaleStateApplied = "APPLIED"
	SaleStateVoid    = "VOID"
)

// SaleLine una línea de venta.
type SaleLine struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// Subtotal cantidad × precio unitario.
func (l SaleLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// Sale venta de una tienda. (StoreID, ClientKey) es único: es la llave de idempotencia.
type Sale struct {
	ID        string
	StoreID   string
	ClientKey string
	Lines     []SaleLine
	Total     decimal.Decimal
	State     string
	ActorID   string
	CreatedAt time.Time
	AppliedAt *time.Time
	VoidedAt  *time.Time
	// Shortages se llena cuando la venta quedó VOID por falta de stock.
	Shortages []domain.Shortage
}

// ComputeTotal suma los subtotales de las líneas.
func ComputeTotal(lines []SaleLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// SameLines compara las líneas de dos ventas (mismo orden, cantidades y precios).
func (s *Sale) SameLines(lines []SaleLine) bool {
	if len(s.Lines) != len(lines) {
		return false
	}
	for i := range lines {
		a, b := s.Lines[i], lines[i]
		if a.ProductID != b.ProductID || a.Quantity != b.Quantity || !a.UnitPrice.Equal(b.UnitPrice) {
			return false
		}
	}
	return true
}
