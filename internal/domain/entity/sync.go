package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Tipos de operación que una tienda EDGE registra y reenvía a la central.
const (
	OpSale             = "SALE"
	OpSaleVoid         = "SALE_VOID"
	OpTransferCreate   = "TRANSFER_CREATE"
	OpTransferDispatch = "TRANSFER_DISPATCH"
	OpTransferReceive  = "TRANSFER_RECEIVE"
	OpTransferCancel   = "TRANSFER_CANCEL"
	OpAdjustment       = "ADJUSTMENT"
)

// Operation una operación mutante registrada en la tienda EDGE.
// Conserva la llave del cliente / ref original para que la central la absorba si ya existe.
type Operation struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	StoreID         string          `json:"store_id"`
	ActorID         string          `json:"actor_id"`
	ClientKey       string          `json:"client_key,omitempty"`
	SaleID          string          `json:"sale_id,omitempty"`
	Lines           []OperationLine `json:"lines,omitempty"`
	TransferID      string          `json:"transfer_id,omitempty"`
	SourceStoreID   string          `json:"source_store_id,omitempty"`
	DestStoreID     string          `json:"dest_store_id,omitempty"`
	ProductID       string          `json:"product_id,omitempty"`
	Delta           int64           `json:"delta,omitempty"`
	ExpectedVersion *int64          `json:"expected_version,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// OperationLine línea de una operación (venta o traslado). UnitPrice como string decimal.
type OperationLine struct {
	ProductID string `json:"product_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice string `json:"unit_price,omitempty"`
}

// SyncEnvelope lote ordenado de operaciones producido por una EDGE.
// (EdgeStoreID, Sequence) es único; Hash es SHA-256 del payload canónico.
type SyncEnvelope struct {
	ID            string
	EdgeStoreID   string
	Sequence      int64
	Operations    []Operation
	Hash          string
	ProducedAt    time.Time
	AcceptedAt    *time.Time
	ConflictCount int
}

// Razones de conflicto.
const (
	ConflictStockShort        = "STOCK_SHORT"
	ConflictDupKey            = "DUP_KEY"
	ConflictUnknownProduct    = "UNKNOWN_PRODUCT"
	ConflictVersionStale      = "VERSION_STALE"
	ConflictIllegalTransition = "ILLEGAL_TRANSITION"
)

// Resoluciones de conflicto (política fija).
const (
	ResolutionRejected   = "REJECTED"
	ResolutionMerged     = "MERGED"
	ResolutionSuperseded = "SUPERSEDED"
)

// ConflictRecord hallazgo de la central al reproducir una operación que no aplicó limpiamente.
type ConflictRecord struct {
	ID             string
	EnvelopeID     string
	EdgeStoreID    string
	Sequence       int64
	OperationIndex int
	OperationID    string
	Reason         string
	Resolution     string
	Detail         string
	CreatedAt      time.Time
}

// SyncCursor última secuencia aceptada por la central para una EDGE.
type SyncCursor struct {
	EdgeStoreID  string
	LastSequence int64
	UpdatedAt    time.Time
}

// HashOperations calcula el hash hex SHA-256 del payload canónico (JSON) de las operaciones.
// Edge y central usan la misma función; RecordedAt debe estar en UTC.
func HashOperations(ops []Operation) (string, error) {
	if ops == nil {
		ops = []Operation{}
	}
	payload, err := json.Marshal(ops)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
