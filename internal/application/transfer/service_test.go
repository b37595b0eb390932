package transfer_test

import (
	"context"
	"testing"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/testutil"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	A = testutil.StoreA
	B = testutil.StoreB
	P = testutil.ProductP
	Q = testutil.ProductQ
)

func newService(env *testutil.Env) *transfer.Service {
	l := ledger.New(env.Store, env.Clock, logger.Nop())
	return transfer.NewService(env.Store, l, access.NewGuard(), env.Clock, logger.Nop())
}

func create(t *testing.T, svc *transfer.Service, id string, lines ...entity.TransferLine) *entity.Transfer {
	t.Helper()
	res, err := svc.Create(context.Background(), testutil.CentralActor(), transfer.CreateInput{
		TransferID: id, SourceStoreID: A, DestStoreID: B, Lines: lines,
	})
	require.NoError(t, err)
	return res.Transfer
}

func TestTransfer_HappyPath(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 10)
	svc := newService(env)
	ctx := context.Background()
	admin := testutil.CentralActor()

	tr := create(t, svc, "T", entity.TransferLine{ProductID: P, Quantity: 4})
	assert.Equal(t, entity.TransferStateDraft, tr.State)
	assert.Empty(t, env.MovementsByRef(t, "T"))

	res, err := svc.Dispatch(ctx, admin, "T")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStateDispatched, res.Transfer.State)
	require.NotNil(t, res.Transfer.DispatchedAt)
	assert.Equal(t, int64(6), env.OnHand(t, A, P))
	assert.Equal(t, int64(4), env.OnHand(t, entity.TransitStoreID("T"), P))
	assert.Equal(t, int64(0), env.OnHand(t, B, P))

	inTransit, err := svc.InTransit(ctx, admin, "T")
	require.NoError(t, err)
	require.Len(t, inTransit, 1)
	assert.Equal(t, int64(4), inTransit[0].OnHand)

	res, err = svc.Receive(ctx, admin, "T")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStateReceived, res.Transfer.State)
	assert.Equal(t, int64(6), env.OnHand(t, A, P))
	assert.Equal(t, int64(4), env.OnHand(t, B, P))
	assert.Equal(t, int64(0), env.OnHand(t, entity.TransitStoreID("T"), P))

	movs := env.MovementsByRef(t, "T")
	require.Len(t, movs, 4)
	var sum int64
	for _, m := range movs {
		sum += m.Delta
	}
	assert.Equal(t, int64(0), sum)
}

func TestTransfer_DispatchShortLeavesDraft(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 3)
	svc := newService(env)
	ctx := context.Background()

	create(t, svc, "T1", entity.TransferLine{ProductID: P, Quantity: 4})
	_, err := svc.Dispatch(ctx, testutil.CentralActor(), "T1")
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	tr, err := svc.Get(ctx, testutil.CentralActor(), "T1")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStateDraft, tr.State)
	assert.Equal(t, int64(3), env.OnHand(t, A, P))
	assert.Empty(t, env.MovementsByRef(t, "T1"))
}

func TestTransfer_FullStockDispatchAndIdempotentTransitions(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	env.SetStock(t, A, Q, 2)
	svc := newService(env)
	ctx := context.Background()
	admin := testutil.CentralActor()

	create(t, svc, "T2",
		entity.TransferLine{ProductID: P, Quantity: 3},
		entity.TransferLine{ProductID: Q, Quantity: 2},
		entity.TransferLine{ProductID: P, Quantity: 2},
	)
	res, err := svc.Dispatch(ctx, admin, "T2")
	require.NoError(t, err)
	assert.Equal(t, []entity.TransferLine{{ProductID: P, Quantity: 5}, {ProductID: Q, Quantity: 2}}, res.Transfer.Lines)
	assert.Equal(t, int64(0), env.OnHand(t, A, P))
	assert.Equal(t, int64(0), env.OnHand(t, A, Q))

	again, err := svc.Dispatch(ctx, admin, "T2")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Len(t, env.MovementsByRef(t, "T2"), 4)

	_, err = svc.Receive(ctx, admin, "T2")
	require.NoError(t, err)
	again, err = svc.Receive(ctx, admin, "T2")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, int64(5), env.OnHand(t, B, P))

	_, err = svc.Cancel(ctx, admin, "T2")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	_, err = svc.Dispatch(ctx, admin, "T2")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestTransfer_CancelDraftAndDispatched(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 10)
	svc := newService(env)
	ctx := context.Background()
	admin := testutil.CentralActor()

	create(t, svc, "D", entity.TransferLine{ProductID: P, Quantity: 2})
	res, err := svc.Cancel(ctx, admin, "D")
	require.NoError(t, err)
	assert.Equal(t, entity.TransferStateCanceled, res.Transfer.State)
	assert.Empty(t, env.MovementsByRef(t, "D"))
	_, err = svc.Receive(ctx, admin, "D")
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	create(t, svc, "X", entity.TransferLine{ProductID: P, Quantity: 6})
	_, err = svc.Dispatch(ctx, admin, "X")
	require.NoError(t, err)
	assert.Equal(t, int64(4), env.OnHand(t, A, P))

	res, err = svc.Cancel(ctx, admin, "X")
	require.NoError(t, err)
	require.NotNil(t, res.Transfer.CanceledAt)
	assert.Equal(t, int64(10), env.OnHand(t, A, P))
	assert.Equal(t, int64(0), env.OnHand(t, entity.TransitStoreID("X"), P))

	movs := env.MovementsByRef(t, "X")
	require.Len(t, movs, 4)
	assert.Equal(t, entity.MovementKindTransferCancel, movs[3].Kind)

	again, err := svc.Cancel(ctx, admin, "X")
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
}

func TestTransfer_CreateIdempotentAndValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	svc := newService(env)
	ctx := context.Background()
	admin := testutil.CentralActor()

	first := create(t, svc, "same", entity.TransferLine{ProductID: P, Quantity: 1})
	res, err := svc.Create(ctx, admin, transfer.CreateInput{TransferID: "same", SourceStoreID: A, DestStoreID: B,
		Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Equal(t, first.CreatedAt, res.Transfer.CreatedAt)

	generated, err := svc.Create(ctx, admin, transfer.CreateInput{SourceStoreID: A, DestStoreID: B,
		Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}})
	require.NoError(t, err)
	assert.NotEmpty(t, generated.Transfer.ID)

	bad := map[string]transfer.CreateInput{
		"mismo origen y destino": {SourceStoreID: A, DestStoreID: A, Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}},
		"sin líneas":             {SourceStoreID: A, DestStoreID: B},
		"cantidad cero":          {SourceStoreID: A, DestStoreID: B, Lines: []entity.TransferLine{{ProductID: P}}},
		"producto desconocido":   {SourceStoreID: A, DestStoreID: B, Lines: []entity.TransferLine{{ProductID: "zz", Quantity: 1}}},
		"destino desconocido":    {SourceStoreID: A, DestStoreID: "zz", Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}},
		"hacia tránsito":         {SourceStoreID: A, DestStoreID: entity.TransitStoreID("T"), Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}},
	}
	for name, in := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, admin, in)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestTransfer_GuardsSourceAndDestination(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	svc := newService(env)
	ctx := context.Background()
	clerkA := testutil.StoreActor("a", A)
	clerkB := testutil.StoreActor("b", B)

	_, err := svc.Create(ctx, clerkB, transfer.CreateInput{TransferID: "G", SourceStoreID: A, DestStoreID: B,
		Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Create(ctx, clerkA, transfer.CreateInput{TransferID: "G", SourceStoreID: A, DestStoreID: B,
		Lines: []entity.TransferLine{{ProductID: P, Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.Dispatch(ctx, clerkB, "G")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Dispatch(ctx, clerkA, "G")
	require.NoError(t, err)

	_, err = svc.Receive(ctx, clerkA, "G")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Receive(ctx, clerkB, "G")
	require.NoError(t, err)

	_, err = svc.Get(ctx, clerkB, "G")
	assert.NoError(t, err)
	_, err = svc.Get(ctx, testutil.StoreActor("e", testutil.EdgeE), "G")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = svc.Get(ctx, clerkA, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransfer_ConservationAcrossMany(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 100)
	svc := newService(env)
	ctx := context.Background()
	admin := testutil.CentralActor()

	ids := []string{"m1", "m2", "m3", "m4", "m5", "m6"}
	for i, id := range ids {
		create(t, svc, id, entity.TransferLine{ProductID: P, Quantity: int64(i + 1)})
		_, err := svc.Dispatch(ctx, admin, id)
		require.NoError(t, err)
		if i%2 == 0 {
			_, err = svc.Receive(ctx, admin, id)
		} else {
			_, err = svc.Cancel(ctx, admin, id)
		}
		require.NoError(t, err)
	}

	assert.Equal(t, int64(100), env.OnHand(t, A, P)+env.OnHand(t, B, P))
	assert.Equal(t, int64(1+3+5), env.OnHand(t, B, P))
	for _, id := range ids {
		var sum int64
		for _, m := range env.MovementsByRef(t, id) {
			sum += m.Delta
		}
		assert.Equal(t, int64(0), sum, id)
		assert.Equal(t, int64(0), env.OnHand(t, entity.TransitStoreID(id), P))
	}
}
