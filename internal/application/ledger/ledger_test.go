package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/infrastructure/memory"
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

func newLedger(env *testutil.Env, opts ...ledger.Option) *ledger.Ledger {
	return ledger.New(env.Store, env.Clock, logger.Nop(), opts...)
}

func line(store, product string, delta int64, ref string) ledger.Line {
	return ledger.Line{StoreID: store, ProductID: product, Delta: delta, Kind: entity.MovementKindAdjustment, RefID: ref, ActorID: "u"}
}

func TestApply_UpdatesPositionsAndAppendsMovements(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 10)
	l := newLedger(env)

	out, err := l.Apply(context.Background(), ledger.Batch{Lines: []ledger.Line{
		line(A, P, -3, "r1"),
		line(B, P, 3, "r1"),
	}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	// orden ascendente (store, product)
	assert.Equal(t, A, out[0].StoreID)
	assert.Equal(t, B, out[1].StoreID)

	assert.Equal(t, int64(7), env.OnHand(t, A, P))
	assert.Equal(t, int64(3), env.OnHand(t, B, P))
	assert.Equal(t, int64(2), env.Position(t, A, P).Version)
	assert.Equal(t, int64(1), env.Position(t, B, P).Version)

	movs := env.MovementsByRef(t, "r1")
	require.Len(t, movs, 2)
	assert.Less(t, movs[0].Seq, movs[1].Seq)
	assert.Equal(t, int64(0), movs[0].Delta+movs[1].Delta)
}

func TestApply_ShortageWritesNothing(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 2)
	env.SetStock(t, A, Q, 1)
	l := newLedger(env)

	_, err := l.Apply(context.Background(), ledger.Batch{Lines: []ledger.Line{
		line(A, P, -1, "r2"),
		line(A, Q, -4, "r2"),
		line(B, P, 1, "r2"),
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStockShort)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, domain.KindInsufficientStock, domain.KindOf(err))

	shortages := domain.ShortagesOf(err)
	require.Len(t, shortages, 1)
	assert.Equal(t, domain.Shortage{StoreID: A, ProductID: Q, Available: 1, Requested: 4}, shortages[0])

	assert.Equal(t, int64(2), env.OnHand(t, A, P))
	assert.Equal(t, int64(1), env.OnHand(t, A, Q))
	assert.Equal(t, int64(0), env.Position(t, B, P).Version)
	assert.Empty(t, env.MovementsByRef(t, "r2"))
}

func TestApply_Boundaries(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	l := newLedger(env)
	ctx := context.Background()

	_, err := l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(A, P, -6, "over")}})
	assert.ErrorIs(t, err, domain.ErrStockShort)

	_, err = l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(A, P, -5, "exact")}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), env.OnHand(t, A, P))
}

func TestApply_RepeatedProductLinesMerge(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 4)
	l := newLedger(env)

	_, err := l.Apply(context.Background(), ledger.Batch{Lines: []ledger.Line{
		line(A, P, -3, "dup"),
		line(A, P, -2, "dup"),
	}})
	assert.ErrorIs(t, err, domain.ErrStockShort)
	assert.Equal(t, int64(4), env.OnHand(t, A, P))

	_, err = l.Apply(context.Background(), ledger.Batch{Lines: []ledger.Line{
		line(A, P, -2, "dup2"),
		line(A, P, -2, "dup2"),
	}})
	require.NoError(t, err)
	pos := env.Position(t, A, P)
	assert.Equal(t, int64(0), pos.OnHand)
	// una sola versión por lote aunque haya dos líneas
	assert.Equal(t, int64(2), pos.Version)
	assert.Len(t, env.MovementsByRef(t, "dup2"), 2)
}

func TestApply_ExpectedVersion(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	l := newLedger(env)
	key := entity.PositionKey{StoreID: A, ProductID: P}

	_, err := l.Apply(context.Background(), ledger.Batch{
		Lines:            []ledger.Line{line(A, P, 1, "v")},
		ExpectedVersions: map[entity.PositionKey]int64{key: 7},
	})
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
	assert.Equal(t, domain.KindVersionConflict, domain.KindOf(err))

	_, err = l.Apply(context.Background(), ledger.Batch{
		Lines:            []ledger.Line{line(A, P, 1, "v")},
		ExpectedVersions: map[entity.PositionKey]int64{key: 1},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), env.OnHand(t, A, P))
}

func TestApply_InvalidInput(t *testing.T) {
	env := testutil.NewEnv(t)
	l := newLedger(env)
	ctx := context.Background()

	cases := map[string]ledger.Batch{
		"vacío":       {},
		"delta cero":  {Lines: []ledger.Line{line(A, P, 0, "x")}},
		"sin ref":     {Lines: []ledger.Line{line(A, P, 1, "")}},
		"sin tienda":  {Lines: []ledger.Line{line("", P, 1, "x")}},
		"tipo errado": {Lines: []ledger.Line{{StoreID: A, ProductID: P, Delta: 1, Kind: "GIFT", RefID: "x"}}},
	}
	for name, batch := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := l.Apply(ctx, batch)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestReadAndHistory(t *testing.T) {
	env := testutil.NewEnv(t)
	l := newLedger(env)
	ctx := context.Background()

	pos, err := l.Read(ctx, B, Q)
	require.NoError(t, err)
	assert.Equal(t, &entity.StockPosition{StoreID: B, ProductID: Q}, pos)

	t0 := env.Clock.Peek()
	for _, d := range []int64{5, -2, 4, -1} {
		_, err := l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(B, Q, d, "h")}})
		require.NoError(t, err)
	}
	t1 := env.Clock.Peek()

	history, err := l.History(ctx, B, Q, &t0, &t1)
	require.NoError(t, err)
	require.Len(t, history, 4)

	// Σ delta en [t0, t1] = on_hand(t1) - on_hand(t0), con on_hand(t0) = 0
	var sum int64
	for i, m := range history {
		sum += m.Delta
		if i > 0 {
			assert.Greater(t, m.Seq, history[i-1].Seq)
		}
	}
	assert.Equal(t, env.OnHand(t, B, Q), sum)

	from := history[2].TS
	partial, err := l.History(ctx, B, Q, &from, nil)
	require.NoError(t, err)
	assert.Len(t, partial, 2)
}

func TestApply_ConcurrentNeverNegative(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 50)
	l := newLedger(env)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 80; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Apply(context.Background(), ledger.Batch{Lines: []ledger.Line{line(A, P, -1, "c")}})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, domain.ErrStockShort)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, ok)
	assert.Equal(t, int64(0), env.OnHand(t, A, P))
}

func TestApply_CanceledContextDoesNotCommit(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	l := newLedger(env)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(A, P, -1, "late")}})
	assert.Error(t, err)
	assert.Equal(t, int64(5), env.OnHand(t, A, P))
}

func TestCachedReader_InvalidatedOnCommit(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	cache := memory.NewPositionCache(nil)
	reader := ledger.NewCachedReader(nil, cache, time.Minute, logger.Nop())
	l := newLedger(env, ledger.WithCommitListener(reader))
	reader.SetSource(l)
	ctx := context.Background()

	pos, err := reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos.OnHand)
	assert.Equal(t, 1, cache.Len())

	// lote fallido: no invalida ni cambia nada
	_, err = l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(A, P, -9, "x")}})
	require.Error(t, err)
	assert.Equal(t, 1, cache.Len())

	_, err = l.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(A, P, -2, "y")}})
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Len())

	pos, err = reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos.OnHand)
}

// commitDuringRead lee la posición y antes de devolverla confirma un lote sobre la misma clave.
type commitDuringRead struct {
	ledger *ledger.Ledger
	once   sync.Once
}

func (r *commitDuringRead) Read(ctx context.Context, storeID, productID string) (*entity.StockPosition, error) {
	pos, err := r.ledger.Read(ctx, storeID, productID)
	if err != nil {
		return nil, err
	}
	r.once.Do(func() {
		_, err = r.ledger.Apply(ctx, ledger.Batch{Lines: []ledger.Line{line(storeID, productID, -2, "en-vuelo")}})
	})
	return pos, err
}

func TestCachedReader_SkipsFillWhenCommitRacesRead(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	cache := memory.NewPositionCache(nil)
	reader := ledger.NewCachedReader(nil, cache, time.Minute, logger.Nop())
	l := newLedger(env, ledger.WithCommitListener(reader))
	reader.SetSource(&commitDuringRead{ledger: l})
	ctx := context.Background()

	pos, err := reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos.OnHand, "el lector ve lo que había al leer")
	assert.Equal(t, 0, cache.Len(), "el valor previo al commit no se guarda")

	pos, err = reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos.OnHand)
	assert.Equal(t, 1, cache.Len())
}

func TestCachedReader_ExpiresAfterTTL(t *testing.T) {
	env := testutil.NewEnv(t)
	env.SetStock(t, A, P, 5)
	now := testutil.Start
	cache := memory.NewPositionCache(func() time.Time { return now })
	reader := ledger.NewCachedReader(newLedger(env), cache, time.Second, logger.Nop())
	ctx := context.Background()

	_, err := reader.Read(ctx, A, P)
	require.NoError(t, err)

	// escritura por fuera del Ledger: la caché sigue sirviendo el valor viejo hasta expirar
	env.SetStock(t, A, P, 8)
	pos, err := reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pos.OnHand)

	now = now.Add(2 * time.Second)
	pos, err = reader.Read(ctx, A, P)
	require.NoError(t, err)
	assert.Equal(t, int64(8), pos.OnHand)
}
