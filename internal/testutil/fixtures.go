// Package testutil arma escenarios de prueba sobre la infraestructura en memoria.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/memory"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// IDs fijos de los escenarios.
const (
	Central  = "central"
	StoreA   = "A"
	StoreB   = "B"
	EdgeE    = "E"
	ProductP = "P"
	ProductQ = "Q"
)

// Start instante inicial del reloj de pruebas.
var Start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Env infraestructura en memoria con tiendas y productos cargados.
type Env struct {
	Store *memory.Store
	Clock *clock.Stepper
}

// NewEnv crea central, A, B, E (EDGE) y productos P (5.00) y Q (2.50, umbral 10).
func NewEnv(t testing.TB) *Env {
	t.Helper()
	env := &Env{Store: memory.New(), Clock: clock.NewStepper(Start, time.Millisecond)}
	threshold := int64(10)
	stores := []entity.Store{
		{ID: Central, Code: "CEN", Name: "Central", Kind: entity.StoreKindCentral, Active: true},
		{ID: StoreA, Code: "A", Name: "Tienda A", Kind: entity.StoreKindEdge, Active: true},
		{ID: StoreB, Code: "B", Name: "Tienda B", Kind: entity.StoreKindEdge, Active: true},
		{ID: EdgeE, Code: "E", Name: "Tienda E", Kind: entity.StoreKindEdge, Active: true},
	}
	products := []entity.Product{
		{ID: ProductP, SKU: "SKU-P", Name: "Producto P", UnitPrice: decimal.RequireFromString("5.00"), Active: true},
		{ID: ProductQ, SKU: "SKU-Q", Name: "Producto Q", UnitPrice: decimal.RequireFromString("2.50"), Active: true, LowStockThreshold: &threshold},
	}
	err := env.Store.Run(context.Background(), func(tx repository.Tx) error {
		for i := range stores {
			stores[i].CreatedAt, stores[i].UpdatedAt = Start, Start
			if err := tx.Stores().Create(context.Background(), &stores[i]); err != nil {
				return err
			}
		}
		for i := range products {
			products[i].CreatedAt, products[i].UpdatedAt = Start, Start
			if err := tx.Products().Create(context.Background(), &products[i]); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
	return env
}

// SetStock deja on_hand = qty en la posición con un movimiento ADJUSTMENT.
func (e *Env) SetStock(t testing.TB, storeID, productID string, qty int64) {
	t.Helper()
	ctx := context.Background()
	err := e.Store.Run(ctx, func(tx repository.Tx) error {
		pos, err := tx.Positions().Get(ctx, storeID, productID)
		if err != nil {
			return err
		}
		delta := qty - pos.OnHand
		if delta == 0 {
			return nil
		}
		now := e.Clock.Now()
		pos.OnHand = qty
		pos.Version++
		pos.UpdatedAt = now
		if err := tx.Positions().Save(ctx, []*entity.StockPosition{pos}); err != nil {
			return err
		}
		return tx.Movements().Append(ctx, &entity.Movement{
			ID: e.Clock.NewID(), TS: now, StoreID: storeID, ProductID: productID,
			Delta: delta, Kind: entity.MovementKindAdjustment, RefID: "seed-" + storeID + "-" + productID, ActorID: "seed",
		})
	})
	require.NoError(t, err)
}

// OnHand lee on_hand actual de la posición.
func (e *Env) OnHand(t testing.TB, storeID, productID string) int64 {
	t.Helper()
	return e.Position(t, storeID, productID).OnHand
}

// Position lee la posición actual.
func (e *Env) Position(t testing.TB, storeID, productID string) *entity.StockPosition {
	t.Helper()
	var pos *entity.StockPosition
	err := e.Store.ReadOnly(context.Background(), func(tx repository.Tx) error {
		var err error
		pos, err = tx.Positions().Get(context.Background(), storeID, productID)
		return err
	})
	require.NoError(t, err)
	return pos
}

// MovementsByRef movimientos con ese ref_id en orden de inserción.
func (e *Env) MovementsByRef(t testing.TB, refID string) []*entity.Movement {
	t.Helper()
	var list []*entity.Movement
	err := e.Store.ReadOnly(context.Background(), func(tx repository.Tx) error {
		var err error
		list, err = tx.Movements().ListByRef(context.Background(), refID)
		return err
	})
	require.NoError(t, err)
	return list
}

// CentralActor actor con rol de alcance CENTRAL.
func CentralActor() entity.Actor {
	return entity.Actor{ID: "admin", Roles: []entity.Role{{Name: "admin", Scope: entity.ScopeCentral}}}
}

// StoreActor actor con rol STORE asignado a las tiendas dadas.
func StoreActor(id string, stores ...string) entity.Actor {
	return entity.Actor{ID: id, Roles: []entity.Role{{Name: "cajero", Scope: entity.ScopeStore}}, StoreIDs: stores}
}
