package syncer_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/memory"
	"github.com/jhoicas/pos-multitienda/internal/testutil"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	E = testutil.EdgeE
	P = testutil.ProductP
)

// node servicios de un nodo (central o edge) sobre su propia memoria.
type node struct {
	env         *testutil.Env
	sales       *sale.Service
	transfers   *transfer.Service
	adjustments *inventory.AdjustmentUseCase
}

func newNode(t *testing.T, journal *memory.Journal) *node {
	env := testutil.NewEnv(t)
	l := ledger.New(env.Store, env.Clock, logger.Nop())
	g := access.NewGuard()
	var saleOpts []sale.Option
	var transferOpts []transfer.Option
	var adjOpts []inventory.Option
	if journal != nil {
		saleOpts = append(saleOpts, sale.WithJournal(journal))
		transferOpts = append(transferOpts, transfer.WithJournal(journal))
		adjOpts = append(adjOpts, inventory.WithJournal(journal))
	}
	return &node{
		env:         env,
		sales:       sale.NewService(env.Store, l, g, env.Clock, logger.Nop(), saleOpts...),
		transfers:   transfer.NewService(env.Store, l, g, env.Clock, logger.Nop(), transferOpts...),
		adjustments: inventory.NewAdjustmentUseCase(env.Store, l, g, env.Clock, logger.Nop(), adjOpts...),
	}
}

func (n *node) coordinator(opts ...syncer.Option) *syncer.Coordinator {
	return syncer.NewCoordinator(n.env.Store, n.sales, n.transfers, n.adjustments, access.NewGuard(), n.env.Clock, logger.Nop(),
		syncer.Config{MaxOps: 10, BackoffBase: 2 * time.Second}, opts...)
}

func envelope(t *testing.T, seq int64, ops ...entity.Operation) *entity.SyncEnvelope {
	t.Helper()
	hash, err := entity.HashOperations(ops)
	require.NoError(t, err)
	return &entity.SyncEnvelope{
		ID:          fmt.Sprintf("env-%d", seq),
		EdgeStoreID: E,
		Sequence:    seq,
		Operations:  ops,
		Hash:        hash,
		ProducedAt:  testutil.Start,
	}
}

func saleOp(key string, qty int64) entity.Operation {
	return entity.Operation{
		ID:         "op-" + key,
		Type:       entity.OpSale,
		StoreID:    E,
		ActorID:    "cajero-e",
		ClientKey:  key,
		SaleID:     "sale-" + key,
		Lines:      []entity.OperationLine{{ProductID: P, Quantity: qty, UnitPrice: "5.00"}},
		RecordedAt: testutil.Start,
	}
}

func syncActor() entity.Actor {
	return entity.Actor{ID: "edge-E", Roles: []entity.Role{{Name: "sync", Scope: entity.ScopeCentral}}}
}

// S4: la central recibe 1, 3, 2 y reenvío de 3; termina igual que el ledger local de la edge.
func TestIngest_EdgeReplayAfterPartition(t *testing.T) {
	journal := memory.NewJournal(clock.NewStepper(testutil.Start, time.Millisecond))
	edge := newNode(t, journal)
	central := newNode(t, nil)
	edge.env.SetStock(t, E, P, 10)
	central.env.SetStock(t, E, P, 10)
	cashier := testutil.StoreActor("cajero-e", E)

	for i, qty := range []int64{1, 2, 3} {
		_, err := edge.sales.ApplySale(context.Background(), cashier, sale.ApplyInput{
			StoreID: E, ClientKey: fmt.Sprintf("k%d", i+1), Lines: []entity.SaleLine{{ProductID: P, Quantity: qty}},
		})
		require.NoError(t, err)
	}
	var envs []*entity.SyncEnvelope
	for {
		env, err := journal.Seal(context.Background(), E, 1)
		require.NoError(t, err)
		if env == nil {
			break
		}
		envs = append(envs, env)
	}
	require.Len(t, envs, 3)

	coord := central.coordinator()
	ctx := context.Background()

	res, err := coord.Ingest(ctx, syncActor(), envs[0])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(1), res.LastAcceptedSequence)

	res, err = coord.Ingest(ctx, syncActor(), envs[2])
	assert.ErrorIs(t, err, domain.ErrOutOfOrder)
	require.NotNil(t, res)
	assert.False(t, res.Accepted)
	assert.Equal(t, int64(1), res.LastAcceptedSequence)

	res, err = coord.Ingest(ctx, syncActor(), envs[1])
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.LastAcceptedSequence)

	res, err = coord.Ingest(ctx, syncActor(), envs[2])
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Empty(t, res.Conflicts)

	assert.Equal(t, edge.env.OnHand(t, E, P), central.env.OnHand(t, E, P))
	assert.Equal(t, int64(4), central.env.OnHand(t, E, P))

	cursor, err := coord.LastAccepted(ctx, E)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cursor.LastSequence)
	assert.Len(t, central.env.Store.Envelopes(E), 3)
}

// S5: la central solo tiene 3 unidades; la venta queda VOID y se registra STOCK_SHORT.
func TestIngest_StockShortConflict(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 3)
	coord := central.coordinator()

	res, err := coord.Ingest(context.Background(), syncActor(), envelope(t, 1, saleOp("k5", 5)))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, int64(1), res.LastAcceptedSequence)
	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, entity.ConflictStockShort, c.Reason)
	assert.Equal(t, entity.ResolutionRejected, c.Resolution)
	assert.Equal(t, 0, c.OperationIndex)
	assert.Equal(t, "op-k5", c.OperationID)
	assert.Contains(t, c.Detail, "disponible=3")

	stored, err := central.sales.GetByClientKey(context.Background(), testutil.CentralActor(), E, "k5")
	require.NoError(t, err)
	assert.Equal(t, entity.SaleStateVoid, stored.State)
	assert.Equal(t, "sale-k5", stored.ID)
	assert.Equal(t, int64(3), central.env.OnHand(t, E, P))

	listed, err := coord.Conflicts(context.Background(), testutil.CentralActor(), E, 10, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "env-1", listed[0].EnvelopeID)
}

func TestIngest_DuplicateAndGaps(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	coord := central.coordinator()
	ctx := context.Background()

	first := envelope(t, 1, saleOp("a", 1))
	_, err := coord.Ingest(ctx, syncActor(), first)
	require.NoError(t, err)

	res, err := coord.Ingest(ctx, syncActor(), envelope(t, 1, saleOp("a", 1)))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.True(t, res.Duplicate)
	assert.Equal(t, int64(9), central.env.OnHand(t, E, P))

	res, err = coord.Ingest(ctx, syncActor(), envelope(t, 3, saleOp("c", 1)))
	assert.Equal(t, domain.KindOutOfOrder, domain.KindOf(err))
	assert.Equal(t, int64(1), res.LastAcceptedSequence)
}

func TestIngest_CorruptEnvelopeDoesNotAdvance(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	coord := central.coordinator()

	env := envelope(t, 1, saleOp("a", 2))
	env.Operations[0].Lines[0].Quantity = 9

	res, err := coord.Ingest(context.Background(), syncActor(), env)
	assert.ErrorIs(t, err, domain.ErrCorruptEnvelope)
	require.NotNil(t, res)
	assert.False(t, res.Accepted)
	assert.Zero(t, res.LastAcceptedSequence)
	assert.Equal(t, int64(10), central.env.OnHand(t, E, P))

	cursor, err := coord.LastAccepted(context.Background(), E)
	require.NoError(t, err)
	assert.Zero(t, cursor.LastSequence)
}

func TestIngest_ConflictKinds(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	ctx := context.Background()

	_, err := central.sales.ApplySale(ctx, testutil.CentralActor(), sale.ApplyInput{
		StoreID: E, ClientKey: "dup", Lines: []entity.SaleLine{{ProductID: P, Quantity: 1}},
	})
	require.NoError(t, err)
	stale := int64(0)

	ops := []entity.Operation{
		saleOp("dup", 4), // misma llave, otras líneas
		{ID: "op-unknown", Type: entity.OpSale, StoreID: E, ActorID: "x", ClientKey: "u",
			Lines: []entity.OperationLine{{ProductID: "ghost", Quantity: 1, UnitPrice: "1"}}, RecordedAt: testutil.Start},
		{ID: "op-adj", Type: entity.OpAdjustment, StoreID: E, ActorID: "x", ClientKey: "adj-1", ProductID: P,
			Delta: 2, ExpectedVersion: &stale, RecordedAt: testutil.Start},
		{ID: "op-recv", Type: entity.OpTransferReceive, StoreID: E, ActorID: "x", TransferID: "missing", RecordedAt: testutil.Start},
		saleOp("ok", 1),
	}
	res, err := central.coordinator().Ingest(ctx, syncActor(), envelope(t, 1, ops...))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	reasons := make(map[int]string)
	for _, c := range res.Conflicts {
		reasons[c.OperationIndex] = c.Reason + "/" + c.Resolution
	}
	assert.Equal(t, map[int]string{
		0: entity.ConflictDupKey + "/" + entity.ResolutionSuperseded,
		1: entity.ConflictUnknownProduct + "/" + entity.ResolutionRejected,
		3: entity.ConflictIllegalTransition + "/" + entity.ResolutionRejected,
	}, reasons)

	// ajuste con versión vieja: se reintenta con la versión actual y aplica
	assert.Equal(t, int64(10-1+2-1), central.env.OnHand(t, E, P))
	movs := central.env.MovementsByRef(t, inventory.AdjustmentRef(E, "adj-1"))
	require.Len(t, movs, 1)
	assert.Equal(t, entity.MovementKindSyncApply, movs[0].Kind)
}

func TestIngest_IdenticalSaleReplayIsAbsorbed(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	ctx := context.Background()
	coord := central.coordinator()

	_, err := coord.Ingest(ctx, syncActor(), envelope(t, 1, saleOp("same", 2)))
	require.NoError(t, err)
	res, err := coord.Ingest(ctx, syncActor(), envelope(t, 2, saleOp("same", 2)))
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, int64(8), central.env.OnHand(t, E, P))
}

func TestIngest_TransferLifecycleFromEdge(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 6)
	ctx := context.Background()

	op := func(id, typ string) entity.Operation {
		return entity.Operation{ID: id, Type: typ, StoreID: E, ActorID: "x", TransferID: "T9", RecordedAt: testutil.Start}
	}
	create := op("o1", entity.OpTransferCreate)
	create.SourceStoreID, create.DestStoreID = E, testutil.StoreA
	create.Lines = []entity.OperationLine{{ProductID: P, Quantity: 4}}

	res, err := central.coordinator().Ingest(ctx, syncActor(), envelope(t, 1,
		create, op("o2", entity.OpTransferDispatch), op("o3", entity.OpTransferReceive), op("o4", entity.OpTransferCancel)))
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, 3, res.Conflicts[0].OperationIndex)
	assert.Equal(t, entity.ConflictIllegalTransition, res.Conflicts[0].Reason)

	assert.Equal(t, int64(2), central.env.OnHand(t, E, P))
	assert.Equal(t, int64(4), central.env.OnHand(t, testutil.StoreA, P))
	assert.Zero(t, central.env.OnHand(t, entity.TransitStoreID("T9"), P))
}

func TestIngest_Validation(t *testing.T) {
	central := newNode(t, nil)
	coord := central.coordinator()
	ctx := context.Background()

	_, err := coord.Ingest(ctx, testutil.StoreActor("c", E), envelope(t, 1, saleOp("a", 1)))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	ops := make([]entity.Operation, 11)
	for i := range ops {
		ops[i] = saleOp(fmt.Sprintf("k%d", i), 1)
	}
	_, err = coord.Ingest(ctx, syncActor(), envelope(t, 1, ops...))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	notEdge := envelope(t, 1, saleOp("a", 1))
	notEdge.EdgeStoreID = testutil.Central
	_, err = coord.Ingest(ctx, syncActor(), notEdge)
	assert.ErrorIs(t, err, domain.ErrUnknownStore)
}

type gauge struct{ inFlight, capacity int64 }

func (g gauge) InFlight() int64 { return g.inFlight }
func (g gauge) Capacity() int64 { return g.capacity }

type busyLocker struct{}

func (busyLocker) Lock(context.Context, string) (func(), error) { return nil, domain.ErrOverloaded }

func TestIngest_BackoffHint(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 1)
	ctx := context.Background()

	res, err := central.coordinator(syncer.WithLoadGauge(gauge{inFlight: 9, capacity: 10})).
		Ingest(ctx, syncActor(), envelope(t, 1, saleOp("a", 5), saleOp("b", 5)))
	require.NoError(t, err)
	assert.Equal(t, 2*2+2, res.BackoffHint)

	res, err = central.coordinator(syncer.WithEdgeLocker(busyLocker{})).Ingest(ctx, syncActor(), envelope(t, 2, saleOp("c", 1)))
	assert.ErrorIs(t, err, domain.ErrOverloaded)
	assert.Equal(t, 2, res.BackoffHint)
}

func TestIngest_RejectsOperationsOutsideEdgeStore(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	central.env.SetStock(t, testutil.StoreA, P, 10)
	ctx := context.Background()

	// traslado entre A y B creado en la central: E no participa
	_, err := central.transfers.Create(ctx, testutil.CentralActor(), transfer.CreateInput{
		TransferID: "T-AB", SourceStoreID: testutil.StoreA, DestStoreID: testutil.StoreB,
		Lines: []entity.TransferLine{{ProductID: P, Quantity: 3}},
	})
	require.NoError(t, err)

	foreignSale := saleOp("ajena", 4)
	foreignSale.StoreID = testutil.StoreA
	foreignAdj := entity.Operation{ID: "op-adj-a", Type: entity.OpAdjustment, StoreID: testutil.StoreA, ActorID: "x",
		ClientKey: "adj-a", ProductID: P, Delta: -5, RecordedAt: testutil.Start}
	foreignCreate := entity.Operation{ID: "op-t-cb", Type: entity.OpTransferCreate, StoreID: E, ActorID: "x",
		TransferID: "T-CB", SourceStoreID: testutil.Central, DestStoreID: testutil.StoreB,
		Lines: []entity.OperationLine{{ProductID: P, Quantity: 1}}, RecordedAt: testutil.Start}
	foreignDispatch := entity.Operation{ID: "op-d-ab", Type: entity.OpTransferDispatch, StoreID: E, ActorID: "x",
		TransferID: "T-AB", RecordedAt: testutil.Start}

	res, err := central.coordinator().Ingest(ctx, syncActor(), envelope(t, 1,
		foreignSale, foreignAdj, foreignCreate, foreignDispatch, saleOp("propia", 1)))
	require.NoError(t, err)
	assert.True(t, res.Accepted)

	reasons := make(map[int]string)
	for _, c := range res.Conflicts {
		reasons[c.OperationIndex] = c.Reason + "/" + c.Resolution
	}
	rejected := entity.ConflictIllegalTransition + "/" + entity.ResolutionRejected
	assert.Equal(t, map[int]string{0: rejected, 1: rejected, 2: rejected, 3: rejected}, reasons)

	assert.Equal(t, int64(10), central.env.OnHand(t, testutil.StoreA, P))
	assert.Equal(t, int64(9), central.env.OnHand(t, E, P))
	_, err = central.sales.GetByClientKey(ctx, testutil.CentralActor(), testutil.StoreA, "ajena")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	tr, err := central.transfers.Get(ctx, testutil.CentralActor(), "T-AB")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStateDraft, tr.State)
}

// staleAdjustments siempre encuentra la versión vencida.
type staleAdjustments struct{ calls int }

func (a *staleAdjustments) RegisterAdjustmentInTx(context.Context, repository.Tx, string, inventory.AdjustmentInput, string) (*inventory.AdjustmentResult, error) {
	a.calls++
	return nil, fmt.Errorf("%w: versión cambió", domain.ErrVersionConflict)
}

func TestIngest_AdjustmentStillStaleKeepsCentralValues(t *testing.T) {
	central := newNode(t, nil)
	central.env.SetStock(t, E, P, 10)
	ctx := context.Background()
	adjustments := &staleAdjustments{}
	coord := syncer.NewCoordinator(central.env.Store, central.sales, central.transfers, adjustments, access.NewGuard(),
		central.env.Clock, logger.Nop(), syncer.Config{MaxOps: 10, BackoffBase: 2 * time.Second})

	stale := int64(0)
	adj := entity.Operation{ID: "op-adj", Type: entity.OpAdjustment, StoreID: E, ActorID: "x", ClientKey: "adj-1",
		ProductID: P, Delta: 3, ExpectedVersion: &stale, RecordedAt: testutil.Start}

	res, err := coord.Ingest(ctx, syncActor(), envelope(t, 1, adj, saleOp("k", 1)))
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.Equal(t, 2, adjustments.calls, "un intento y un reintento con la versión actual")

	require.Len(t, res.Conflicts, 1)
	c := res.Conflicts[0]
	assert.Equal(t, 0, c.OperationIndex)
	assert.Equal(t, entity.ConflictVersionStale, c.Reason)
	assert.Equal(t, entity.ResolutionMerged, c.Resolution)
	assert.Contains(t, c.Detail, "esperaba versión 0")

	assert.Equal(t, int64(9), central.env.OnHand(t, E, P), "solo la venta movió stock")
	assert.Empty(t, central.env.MovementsByRef(t, inventory.AdjustmentRef(E, "adj-1")))
}

// sealingJournal sella justo después de cada Record, como un push concurrente.
type sealingJournal struct {
	*memory.Journal
	t *testing.T
}

func (j sealingJournal) Record(ctx context.Context, op entity.Operation) error {
	if err := j.Journal.Record(ctx, op); err != nil {
		return err
	}
	_, err := j.Journal.Seal(ctx, E, 0)
	require.NoError(j.t, err)
	return nil
}

func TestIngest_EdgeNeverShipsOperationsItRejected(t *testing.T) {
	inner := memory.NewJournal(clock.NewStepper(testutil.Start, time.Millisecond))
	journal := sealingJournal{Journal: inner, t: t}
	edge := newNode(t, nil)
	l := ledger.New(edge.env.Store, edge.env.Clock, logger.Nop())
	edge.sales = sale.NewService(edge.env.Store, l, access.NewGuard(), edge.env.Clock, logger.Nop(), sale.WithJournal(journal))
	central := newNode(t, nil)
	edge.env.SetStock(t, E, P, 2)
	central.env.SetStock(t, E, P, 10)
	cashier := testutil.StoreActor("cajero-e", E)
	ctx := context.Background()

	_, err := edge.sales.ApplySale(ctx, cashier, sale.ApplyInput{
		StoreID: E, ClientKey: "grande", Lines: []entity.SaleLine{{ProductID: P, Quantity: 5}},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, int64(2), edge.env.OnHand(t, E, P))

	envs, err := inner.Unacknowledged(ctx)
	require.NoError(t, err)
	assert.Empty(t, envs, "la venta rechazada no puede quedar sellada")

	_, err = edge.sales.ApplySale(ctx, cashier, sale.ApplyInput{
		StoreID: E, ClientKey: "chica", Lines: []entity.SaleLine{{ProductID: P, Quantity: 1}},
	})
	require.NoError(t, err)
	env, err := inner.Seal(ctx, E, 0)
	require.NoError(t, err)
	require.NotNil(t, env)
	require.Len(t, env.Operations, 1)
	assert.Equal(t, "chica", env.Operations[0].ClientKey)

	res, err := central.coordinator().Ingest(ctx, syncActor(), env)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, int64(9), central.env.OnHand(t, E, P))
}
