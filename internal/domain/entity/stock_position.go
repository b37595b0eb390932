package entity

import "time"

// PositionKey identifica una posición (tienda, producto).
type PositionKey struct {
	StoreID   string
	ProductID string
}

// Less ordena por (store_id, product_id) ascendente; es el orden de adquisición de bloqueos.
func (k PositionKey) Less(o PositionKey) bool {
	if k.StoreID != o.StoreID {
		return k.StoreID < o.StoreID
	}
	return k.ProductID < o.ProductID
}

// StockPosition es la cantidad autoritativa de un producto en una tienda.
// Invariante: OnHand >= Reserved >= 0. Version crece en uno por cada lote que la toca.
// Se crea en el primer movimiento y nunca se elimina.
type StockPosition struct {
	StoreID   string
	ProductID string
	OnHand    int64
	Reserved  int64
	Version   int64
	UpdatedAt time.Time
}

// Key devuelve la clave de la posición.
func (p *StockPosition) Key() PositionKey {
	return PositionKey{StoreID: p.StoreID, ProductID: p.ProductID}
}

// Available unidades libres (no reservadas).
func (p *StockPosition) Available() int64 {
	return p.OnHand - p.Reserved
}
