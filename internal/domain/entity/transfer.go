package entity

import "time"

// Estados de un traslado entre tiendas.
const (
	TransferStateDraft      = "DRAFT"
	TransferStateDispatched = "DISPATCHED"
	TransferStateReceived   = "RECEIVED"
	TransferStateCanceled   = "CANCELED"
)

// TransferLine producto y cantidad trasladada.
type TransferLine struct {
	ProductID string
	Quantity  int64
}

// Transfer traslado de unidades de SourceStoreID a DestStoreID pasando por tránsito.
// Los estados RECEIVED y CANCELED son terminales e inmutables.
type Transfer struct {
	ID            string
	SourceStoreID string
	DestStoreID   string
	Lines         []TransferLine
	State         string
	CreatedBy     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
	ReceivedAt    *time.Time
	CanceledAt    *time.Time
}

// IsTerminal indica si el traslado ya no admite transiciones.
func (t *Transfer) IsTerminal() bool {
	return t.State == TransferStateReceived || t.State == TransferStateCanceled
}

// TotalUnits suma de cantidades de todas las líneas.
func (t *Transfer) TotalUnits() int64 {
	var n int64
	for _, l := range t.Lines {
		n += l.Quantity
	}
	return n
}
