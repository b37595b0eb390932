package entity

import "time"

// Tipos de movimiento del Ledger.
const (
	MovementKindSale           = "SALE"
	MovementKindSaleReversal   = "SALE_REVERSAL"
	MovementKindTransferOut    = "TRANSFER_OUT"
	MovementKindTransferIn     = "TRANSFER_IN"
	MovementKindTransferCancel = "TRANSFER_CANCEL"
	MovementKindAdjustment     = "ADJUSTMENT"
	MovementKindSyncApply      = "SYNC_APPLY"
)

// ValidMovementKind indica si kind es un tipo de movimiento conocido.
func ValidMovementKind(kind string) bool {
	switch kind {
	case MovementKindSale, MovementKindSaleReversal, MovementKindTransferOut, MovementKindTransferIn,
		MovementKindTransferCancel, MovementKindAdjustment, MovementKindSyncApply:
		return true
	}
	return false
}

// Movement es una entrada inmutable del log de movimientos (append-only).
// Seq es estrictamente creciente en orden de inserción; RefID correlaciona los
// movimientos de una misma operación (id de venta, id de traslado).
type Movement struct {
	ID        string
	Seq       int64
	TS        time.Time
	StoreID   string
	ProductID string
	Delta     int64 // positivo entrada, negativo salida
	Kind      string
	RefID     string
	ActorID   string
}
