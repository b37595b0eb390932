package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
)

var (
	_ repository.StoreRepository    = storeRepo{}
	_ repository.ProductRepository  = productRepo{}
	_ repository.PositionRepository = positionRepo{}
	_ repository.MovementRepository = movementRepo{}
	_ repository.SaleRepository     = saleRepo{}
	_ repository.TransferRepository = transferRepo{}
	_ repository.SyncRepository     = syncRepo{}
)

// ── Stores ──────────────────────────────────────────────────────────────────

type storeRepo struct{ st *state }

func (r storeRepo) Create(_ context.Context, s *entity.Store) error {
	if _, ok := r.st.stores[s.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, other := range r.st.stores {
		if other.Code == s.Code {
			return domain.ErrDuplicate
		}
		if s.Kind == entity.StoreKindCentral && other.Kind == entity.StoreKindCentral {
			return domain.ErrDuplicate
		}
	}
	r.st.stores[s.ID] = *s
	return nil
}

func (r storeRepo) GetByID(_ context.Context, id string) (*entity.Store, error) {
	s, ok := r.st.stores[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r storeRepo) GetCentral(_ context.Context) (*entity.Store, error) {
	for _, s := range r.st.stores {
		if s.Kind == entity.StoreKindCentral {
			s := s
			return &s, nil
		}
	}
	return nil, nil
}

func (r storeRepo) List(_ context.Context, limit, offset int) ([]*entity.Store, error) {
	var list []*entity.Store
	for _, id := range sortedKeys(r.st.stores) {
		s := r.st.stores[id]
		list = append(list, &s)
	}
	return page(list, limit, offset), nil
}

func (r storeRepo) Update(_ context.Context, s *entity.Store) error {
	if _, ok := r.st.stores[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.st.stores[s.ID] = *s
	return nil
}

// ── Products ────────────────────────────────────────────────────────────────

type productRepo struct{ st *state }

func (r productRepo) Create(_ context.Context, p *entity.Product) error {
	if _, ok := r.st.products[p.ID]; ok {
		return domain.ErrDuplicate
	}
	for _, other := range r.st.products {
		if other.SKU == p.SKU {
			return domain.ErrDuplicate
		}
	}
	r.st.products[p.ID] = *p
	return nil
}

func (r productRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r productRepo) GetBySKU(_ context.Context, sku string) (*entity.Product, error) {
	for _, p := range r.st.products {
		if p.SKU == sku {
			p := p
			return &p, nil
		}
	}
	return nil, nil
}

func (r productRepo) List(_ context.Context, limit, offset int) ([]*entity.Product, error) {
	var list []*entity.Product
	for _, id := range sortedKeys(r.st.products) {
		p := r.st.products[id]
		list = append(list, &p)
	}
	return page(list, limit, offset), nil
}

func (r productRepo) Update(_ context.Context, p *entity.Product) error {
	old, ok := r.st.products[p.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if old.SKU != p.SKU {
		return domain.Invalid("el SKU es inmutable")
	}
	r.st.products[p.ID] = *p
	return nil
}

// ── Positions ───────────────────────────────────────────────────────────────

type positionRepo struct{ st *state }

func (r positionRepo) Get(_ context.Context, storeID, productID string) (*entity.StockPosition, error) {
	key := entity.PositionKey{StoreID: storeID, ProductID: productID}
	if p, ok := r.st.positions[key]; ok {
		return &p, nil
	}
	return &entity.StockPosition{StoreID: storeID, ProductID: productID}, nil
}

func (r positionRepo) LockForUpdate(ctx context.Context, keys []entity.PositionKey) (map[entity.PositionKey]*entity.StockPosition, error) {
	out := make(map[entity.PositionKey]*entity.StockPosition, len(keys))
	for _, k := range keys {
		p, _ := r.Get(ctx, k.StoreID, k.ProductID)
		out[k] = p
	}
	return out, nil
}

func (r positionRepo) Save(_ context.Context, positions []*entity.StockPosition) error {
	for _, p := range positions {
		r.st.positions[p.Key()] = *p
	}
	return nil
}

func (r positionRepo) ListByStore(_ context.Context, storeID string) ([]*entity.StockPosition, error) {
	var list []*entity.StockPosition
	for k, p := range r.st.positions {
		if k.StoreID == storeID {
			p := p
			list = append(list, &p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProductID < list[j].ProductID })
	return list, nil
}

func (r positionRepo) CountNonZero(_ context.Context, storeID string) (int, error) {
	n := 0
	for k, p := range r.st.positions {
		if k.StoreID == storeID && p.OnHand != 0 {
			n++
		}
	}
	return n, nil
}

// ── Movements ───────────────────────────────────────────────────────────────

type movementRepo struct{ st *state }

func (r movementRepo) Append(_ context.Context, m *entity.Movement) error {
	r.st.nextSeq++
	m.Seq = r.st.nextSeq
	r.st.movements = append(r.st.movements, *m)
	return nil
}

func (r movementRepo) ListByPosition(_ context.Context, storeID, productID string, from, to *time.Time) ([]*entity.Movement, error) {
	var list []*entity.Movement
	for _, m := range r.st.movements {
		if m.StoreID != storeID || m.ProductID != productID {
			continue
		}
		if from != nil && m.TS.Before(*from) {
			continue
		}
		if to != nil && m.TS.After(*to) {
			continue
		}
		m := m
		list = append(list, &m)
	}
	return list, nil
}

func (r movementRepo) ListByRef(_ context.Context, refID string) ([]*entity.Movement, error) {
	var list []*entity.Movement
	for _, m := range r.st.movements {
		if m.RefID == refID {
			m := m
			list = append(list, &m)
		}
	}
	return list, nil
}

func (r movementRepo) SumByRef(_ context.Context, refID string) (int64, error) {
	var sum int64
	for _, m := range r.st.movements {
		if m.RefID == refID {
			sum += m.Delta
		}
	}
	return sum, nil
}

func (r movementRepo) ExistsByRef(_ context.Context, refID, kind string) (bool, error) {
	for _, m := range r.st.movements {
		if m.RefID == refID && m.Kind == kind {
			return true, nil
		}
	}
	return false, nil
}

// ── Sales ───────────────────────────────────────────────────────────────────

type saleRepo struct{ st *state }

func saleKey(storeID, clientKey string) string { return storeID + "\x00" + clientKey }

func copySale(s entity.Sale) *entity.Sale {
	s.Lines = append([]entity.SaleLine(nil), s.Lines...)
	s.Shortages = append([]domain.Shortage(nil), s.Shortages...)
	return &s
}

func (r saleRepo) InsertPending(_ context.Context, s *entity.Sale) (bool, error) {
	key := saleKey(s.StoreID, s.ClientKey)
	if _, ok := r.st.saleKeys[key]; ok {
		return false, nil
	}
	if _, ok := r.st.sales[s.ID]; ok {
		return false, fmt.Errorf("%w: venta %s", domain.ErrDuplicate, s.ID)
	}
	r.st.sales[s.ID] = *copySale(*s)
	r.st.saleKeys[key] = s.ID
	return true, nil
}

func (r saleRepo) GetByID(_ context.Context, id string) (*entity.Sale, error) {
	s, ok := r.st.sales[id]
	if !ok {
		return nil, nil
	}
	return copySale(s), nil
}

func (r saleRepo) GetByClientKey(ctx context.Context, storeID, clientKey string) (*entity.Sale, error) {
	id, ok := r.st.saleKeys[saleKey(storeID, clientKey)]
	if !ok {
		return nil, nil
	}
	return r.GetByID(ctx, id)
}

func (r saleRepo) GetForUpdate(ctx context.Context, id string) (*entity.Sale, error) {
	return r.GetByID(ctx, id)
}

func (r saleRepo) UpdateState(_ context.Context, s *entity.Sale) error {
	old, ok := r.st.sales[s.ID]
	if !ok {
		return domain.ErrNotFound
	}
	old.State = s.State
	old.AppliedAt = s.AppliedAt
	old.VoidedAt = s.VoidedAt
	old.Shortages = append([]domain.Shortage(nil), s.Shortages...)
	r.st.sales[s.ID] = old
	return nil
}

// ── Transfers ───────────────────────────────────────────────────────────────

type transferRepo struct{ st *state }

func copyTransfer(t entity.Transfer) *entity.Transfer {
	t.Lines = append([]entity.TransferLine(nil), t.Lines...)
	return &t
}

func (r transferRepo) Create(_ context.Context, t *entity.Transfer) (bool, error) {
	if _, ok := r.st.transfers[t.ID]; ok {
		return false, nil
	}
	r.st.transfers[t.ID] = *copyTransfer(*t)
	return true, nil
}

func (r transferRepo) GetByID(_ context.Context, id string) (*entity.Transfer, error) {
	t, ok := r.st.transfers[id]
	if !ok {
		return nil, nil
	}
	return copyTransfer(t), nil
}

func (r transferRepo) GetForUpdate(ctx context.Context, id string) (*entity.Transfer, error) {
	return r.GetByID(ctx, id)
}

func (r transferRepo) UpdateState(_ context.Context, t *entity.Transfer) error {
	old, ok := r.st.transfers[t.ID]
	if !ok {
		return domain.ErrNotFound
	}
	old.State = t.State
	old.DispatchedAt = t.DispatchedAt
	old.ReceivedAt = t.ReceivedAt
	old.CanceledAt = t.CanceledAt
	r.st.transfers[t.ID] = old
	return nil
}

func (r transferRepo) CountOpenByStore(_ context.Context, storeID string) (int, error) {
	n := 0
	for _, t := range r.st.transfers {
		if t.IsTerminal() {
			continue
		}
		if t.SourceStoreID == storeID || t.DestStoreID == storeID {
			n++
		}
	}
	return n, nil
}

// ── Sync ────────────────────────────────────────────────────────────────────

type syncRepo struct{ st *state }

func envelopeKey(edge string, seq int64) string { return fmt.Sprintf("%s\x00%020d", edge, seq) }

// LockEdge no hace nada: el mutex del Store ya serializa las transacciones.
func (r syncRepo) LockEdge(context.Context, string) error { return nil }

func (r syncRepo) GetCursor(_ context.Context, edgeStoreID string) (*entity.SyncCursor, error) {
	if c, ok := r.st.cursors[edgeStoreID]; ok {
		return &c, nil
	}
	return &entity.SyncCursor{EdgeStoreID: edgeStoreID}, nil
}

func (r syncRepo) SaveCursor(_ context.Context, c *entity.SyncCursor) error {
	r.st.cursors[c.EdgeStoreID] = *c
	return nil
}

func (r syncRepo) SaveEnvelope(_ context.Context, e *entity.SyncEnvelope) error {
	key := envelopeKey(e.EdgeStoreID, e.Sequence)
	if _, ok := r.st.envelopes[key]; ok {
		return domain.ErrDuplicate
	}
	r.st.envelopes[key] = *e
	return nil
}

func (r syncRepo) SaveConflicts(_ context.Context, conflicts []*entity.ConflictRecord) error {
	for _, c := range conflicts {
		r.st.conflicts = append(r.st.conflicts, *c)
	}
	return nil
}

// ListConflicts del más reciente al más antiguo.
func (r syncRepo) ListConflicts(_ context.Context, edgeStoreID string, limit, offset int) ([]*entity.ConflictRecord, error) {
	var list []*entity.ConflictRecord
	for i := len(r.st.conflicts) - 1; i >= 0; i-- {
		c := r.st.conflicts[i]
		if c.EdgeStoreID == edgeStoreID {
			list = append(list, &c)
		}
	}
	return page(list, limit, offset), nil
}

// Envelopes devuelve los sobres aceptados de una tienda EDGE en orden de secuencia.
func (s *Store) Envelopes(edgeStoreID string) []entity.SyncEnvelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []entity.SyncEnvelope
	for _, k := range sortedKeys(s.st.envelopes) {
		if e := s.st.envelopes[k]; e.EdgeStoreID == edgeStoreID {
			list = append(list, e)
		}
	}
	return list
}
