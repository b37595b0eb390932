// Package memory implementa todos los puertos de persistencia en proceso.
// Cada transacción trabaja sobre una copia del estado y la publica en Commit;
// un único mutex serializa las escrituras. Pensado para pruebas y demo de un solo nodo.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var _ repository.TxRunner = (*Store)(nil)

type state struct {
	stores    map[string]entity.Store
	products  map[string]entity.Product
	positions map[entity.PositionKey]entity.StockPosition
	movements []entity.Movement
	nextSeq   int64
	sales     map[string]entity.Sale
	saleKeys  map[string]string
	transfers map[string]entity.Transfer
	cursors   map[string]entity.SyncCursor
	envelopes map[string]entity.SyncEnvelope
	conflicts []entity.ConflictRecord
}

func newState() *state {
	return &state{
		stores:    make(map[string]entity.Store),
		products:  make(map[string]entity.Product),
		positions: make(map[entity.PositionKey]entity.StockPosition),
		sales:     make(map[string]entity.Sale),
		saleKeys:  make(map[string]string),
		transfers: make(map[string]entity.Transfer),
		cursors:   make(map[string]entity.SyncCursor),
		envelopes: make(map[string]entity.SyncEnvelope),
	}
}

func (s *state) clone() *state {
	c := &state{
		stores:    make(map[string]entity.Store, len(s.stores)),
		products:  make(map[string]entity.Product, len(s.products)),
		positions: make(map[entity.PositionKey]entity.StockPosition, len(s.positions)),
		movements: make([]entity.Movement, len(s.movements)),
		nextSeq:   s.nextSeq,
		sales:     make(map[string]entity.Sale, len(s.sales)),
		saleKeys:  make(map[string]string, len(s.saleKeys)),
		transfers: make(map[string]entity.Transfer, len(s.transfers)),
		cursors:   make(map[string]entity.SyncCursor, len(s.cursors)),
		envelopes: make(map[string]entity.SyncEnvelope, len(s.envelopes)),
		conflicts: make([]entity.ConflictRecord, len(s.conflicts)),
	}
	for k, v := range s.stores {
		c.stores[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.positions {
		c.positions[k] = v
	}
	copy(c.movements, s.movements)
	// Las líneas de ventas y traslados se guardan como copias y nunca se mutan en sitio.
	for k, v := range s.sales {
		c.sales[k] = v
	}
	for k, v := range s.saleKeys {
		c.saleKeys[k] = v
	}
	for k, v := range s.transfers {
		c.transfers[k] = v
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	for k, v := range s.envelopes {
		c.envelopes[k] = v
	}
	copy(c.conflicts, s.conflicts)
	return c
}

// Store base de datos en memoria. Implementa repository.TxRunner.
type Store struct {
	mu sync.RWMutex
	st *state
}

// New crea un Store vacío.
func New() *Store {
	return &Store{st: newState()}
}

// Run ejecuta fn sobre una copia del estado y la publica si fn devuelve nil
// y el contexto sigue vivo. Los hooks OnCommit corren después de liberar el lock.
func (s *Store) Run(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	work := s.st.clone()
	tx := &txn{st: work}
	if err := fn(tx); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := ctx.Err(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.st = work
	s.mu.Unlock()

	for _, h := range tx.hooks {
		h()
	}
	return nil
}

// ReadOnly ejecuta fn sobre una instantánea; lo que fn escriba se descarta.
func (s *Store) ReadOnly(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()
	return fn(&txn{st: snapshot})
}

type txn struct {
	st    *state
	hooks []func()
}

func (t *txn) Stores() repository.StoreRepository       { return storeRepo{t.st} }
func (t *txn) Products() repository.ProductRepository   { return productRepo{t.st} }
func (t *txn) Positions() repository.PositionRepository { return positionRepo{t.st} }
func (t *txn) Movements() repository.MovementRepository { return movementRepo{t.st} }
func (t *txn) Sales() repository.SaleRepository         { return saleRepo{t.st} }
func (t *txn) Transfers() repository.TransferRepository { return transferRepo{t.st} }
func (t *txn) Sync() repository.SyncRepository          { return syncRepo{t.st} }
func (t *txn) Reports() repository.ReportRepository     { return reportRepo{t.st} }

func (t *txn) Savepoint(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	child := &txn{st: t.st.clone()}
	if err := fn(child); err != nil {
		return err
	}
	*t.st = *child.st
	t.hooks = append(t.hooks, child.hooks...)
	return nil
}

func (t *txn) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
