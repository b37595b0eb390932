package entity

import (
	"strings"
	"time"
)

// Tipos de tienda.
const (
	StoreKindCentral = "CENTRAL"
	StoreKindEdge    = "EDGE"
)

// TransitStorePrefix identifica las tiendas sintéticas que guardan unidades en tránsito.
const TransitStorePrefix = "transit:"

// Store representa una tienda física o lógica. Solo existe una CENTRAL.
// No se elimina mientras tenga stock o traslados abiertos; se desactiva.
type Store struct {
	ID        string
	Code      string
	Name      string
	Kind      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCentral indica si la tienda es la autoridad central.
func (s *Store) IsCentral() bool { return s.Kind == StoreKindCentral }

// TransitStoreID devuelve la tienda sintética de tránsito de un traslado.
func TransitStoreID(transferID string) string {
	return TransitStorePrefix + transferID
}

// IsTransitStore indica si storeID es una tienda sintética de tránsito.
func IsTransitStore(storeID string) bool {
	return strings.HasPrefix(storeID, TransitStorePrefix)
}
