package inventory_test

import (
	"context"
	"testing"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/testutil"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQuery(env *testutil.Env) *inventory.QueryUseCase {
	l := ledger.New(env.Store, env.Clock, logger.Nop())
	return inventory.NewQueryUseCase(l, l, access.NewGuard())
}

func TestQuery_PositionAndHistory(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, testutil.StoreA, testutil.ProductP, 4)
	q := newQuery(env)
	actor := testutil.StoreActor("c1", testutil.StoreA)

	pos, err := q.Position(context.Background(), actor, testutil.StoreA, testutil.ProductP)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos.OnHand)
	assert.Equal(t, int64(4), pos.Available)

	list, err := q.History(context.Background(), actor, dto.HistoryQuery{StoreID: testutil.StoreA, ProductID: testutil.ProductP})
	require.NoError(t, err)
	require.NotEmpty(t, list)
	var sum int64
	for _, m := range list {
		sum += m.Delta
	}
	assert.Equal(t, int64(4), sum)
}

func TestQuery_UntouchedPositionIsZero(t *testing.T) {
	env := testutil.NewEnv(t)
	q := newQuery(env)

	pos, err := q.Position(context.Background(), testutil.CentralActor(), testutil.StoreB, testutil.ProductQ)
	require.NoError(t, err)
	assert.Zero(t, pos.OnHand)
	assert.Zero(t, pos.Version)
}

func TestQuery_Rejections(t *testing.T) {
	env := testutil.NewEnv(t)
	q := newQuery(env)

	_, err := q.Position(context.Background(), testutil.StoreActor("c1", testutil.StoreB), testutil.StoreA, testutil.ProductP)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = q.Position(context.Background(), testutil.CentralActor(), "", testutil.ProductP)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = q.History(context.Background(), testutil.CentralActor(), dto.HistoryQuery{
		StoreID: testutil.StoreA, ProductID: testutil.ProductP, From: "ayer",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = q.History(context.Background(), testutil.CentralActor(), dto.HistoryQuery{
		StoreID: testutil.StoreA, ProductID: testutil.ProductP,
		From: "2026-03-02T10:00:00Z", To: "2026-03-01T10:00:00Z",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
