package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifica la categoría estable de un error expuesto a los clientes.
// La capa HTTP traduce cada Kind a un código de estado; el núcleo nunca usa pánicos
// para resultados esperados como la falta de stock.
type Kind string

const (
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindIllegalTransition Kind = "ILLEGAL_TRANSITION"
	KindDuplicate         Kind = "DUPLICATE"
	KindOutOfOrder        Kind = "OUT_OF_ORDER"
	KindCorruptEnvelope   Kind = "CORRUPT_ENVELOPE"
	KindVersionConflict   Kind = "VERSION_CONFLICT"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindOverloaded        Kind = "OVERLOADED"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidInput      Kind = "INVALID_INPUT"
	KindInternal          Kind = "INTERNAL"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound          = errors.New("recurso no encontrado")
	ErrInvalidInput      = errors.New("entrada inválida")
	ErrDuplicate         = errors.New("recurso duplicado")
	ErrUnauthorized      = errors.New("no autorizado")
	ErrForbidden         = errors.New("acceso denegado")
	ErrInsufficientStock = errors.New("stock insuficiente")
	ErrStockShort        = errors.New("posición de stock quedaría negativa")
	ErrIllegalTransition = errors.New("transición de estado no permitida")
	ErrOutOfOrder        = errors.New("secuencia de sobre fuera de orden")
	ErrCorruptEnvelope   = errors.New("hash del sobre no coincide")
	ErrVersionConflict   = errors.New("versión de la posición desactualizada")
	ErrOverloaded        = errors.New("servicio saturado, reintente más tarde")
	ErrInternal          = errors.New("error interno")

	// ErrUnknownProduct producto inexistente o inactivo; es una entrada inválida.
	ErrUnknownProduct = fmt.Errorf("%w: producto desconocido o inactivo", ErrInvalidInput)
	// ErrUnknownStore tienda inexistente o inactiva.
	ErrUnknownStore = fmt.Errorf("%w: tienda desconocida o inactiva", ErrInvalidInput)
)

// Shortage describe un producto sin unidades suficientes en una tienda.
type Shortage struct {
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Available int64  `json:"available"`
	Requested int64  `json:"requested"`
}

// StockShortError lo devuelve el Ledger cuando un lote dejaría alguna posición en negativo.
// Satisface errors.Is con ErrStockShort y con ErrInsufficientStock.
type StockShortError struct {
	Shortages []Shortage
}

func (e *StockShortError) Error() string {
	parts := make([]string, 0, len(e.Shortages))
	for _, s := range e.Shortages {
		parts = append(parts, fmt.Sprintf("%s/%s disponible=%d solicitado=%d", s.StoreID, s.ProductID, s.Available, s.Requested))
	}
	return ErrInsufficientStock.Error() + ": " + strings.Join(parts, ", ")
}

// Is permite errors.Is(err, ErrStockShort) y errors.Is(err, ErrInsufficientStock).
func (e *StockShortError) Is(target error) bool {
	return target == ErrStockShort || target == ErrInsufficientStock
}

// ShortagesOf extrae los faltantes de un error de stock, o nil si no lo es.
func ShortagesOf(err error) []Shortage {
	var short *StockShortError
	if errors.As(err, &short) {
		return short.Shortages
	}
	return nil
}

// OperatorError es un error INTERNAL con un mensaje pensado para el operador.
type OperatorError struct {
	Message string
	Err     error
}

func (e *OperatorError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *OperatorError) Unwrap() error { return e.Err }

// Is hace que todo OperatorError se clasifique como ErrInternal.
func (e *OperatorError) Is(target error) bool { return target == ErrInternal }

// Internal envuelve err como INTERNAL con un mensaje para el operador.
func Internal(message string, err error) error {
	return &OperatorError{Message: message, Err: err}
}

// KindOf clasifica cualquier error en su Kind estable. Errores desconocidos son INTERNAL.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrStockShort):
		return KindInsufficientStock
	case errors.Is(err, ErrIllegalTransition):
		return KindIllegalTransition
	case errors.Is(err, ErrDuplicate):
		return KindDuplicate
	case errors.Is(err, ErrOutOfOrder):
		return KindOutOfOrder
	case errors.Is(err, ErrCorruptEnvelope):
		return KindCorruptEnvelope
	case errors.Is(err, ErrVersionConflict):
		return KindVersionConflict
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrOverloaded):
		return KindOverloaded
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// Invalid construye un ErrInvalidInput con detalle.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
