package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openJournal(t *testing.T, path string) *Journal {
	t.Helper()
	j, err := Open(path, clock.NewStepper(start, time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func op(id string, qty int64) entity.Operation {
	return entity.Operation{
		ID:         id,
		Type:       entity.OpSale,
		StoreID:    "E",
		ActorID:    "cashier",
		ClientKey:  "k-" + id,
		SaleID:     "s-" + id,
		Lines:      []entity.OperationLine{{ProductID: "P", Quantity: qty, UnitPrice: "5.00"}},
		RecordedAt: start.In(time.FixedZone("COT", -5*3600)),
	}
}

// record registra y confirma, como hace un servicio cuando la transacción local salió bien.
func record(t *testing.T, j *Journal, o entity.Operation) {
	t.Helper()
	require.NoError(t, j.Record(context.Background(), o))
	require.NoError(t, j.Commit(context.Background(), o.ID))
}

func TestJournal_SealInOrderWithStableHash(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, filepath.Join(t.TempDir(), "edge.db"))

	for i, id := range []string{"a", "b", "c"} {
		record(t, j, op(id, int64(i+1)))
	}

	env1, err := j.Seal(ctx, "E", 2)
	require.NoError(t, err)
	require.NotNil(t, env1)
	assert.Equal(t, int64(1), env1.Sequence)
	require.Len(t, env1.Operations, 2)
	assert.Equal(t, "a", env1.Operations[0].ID)
	assert.Equal(t, "b", env1.Operations[1].ID)
	assert.Equal(t, time.UTC, env1.Operations[0].RecordedAt.Location())

	env2, err := j.Seal(ctx, "E", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), env2.Sequence)
	require.Len(t, env2.Operations, 1)

	none, err := j.Seal(ctx, "E", 2)
	require.NoError(t, err)
	assert.Nil(t, none)

	pending, err := j.Unacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, env := range pending {
		hash, err := entity.HashOperations(env.Operations)
		require.NoError(t, err)
		assert.Equal(t, env.Hash, hash, "el hash debe sobrevivir la ida y vuelta por SQLite")
	}
}

func TestJournal_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "edge.db")

	j := openJournal(t, path)
	record(t, j, op("a", 1))
	record(t, j, op("b", 1))
	require.NoError(t, j.Record(ctx, op("c", 1)))
	_, err := j.Seal(ctx, "E", 1)
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j2 := openJournal(t, path)
	last, err := j2.LastProduced(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), last)

	n, err := j2.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	staged, err := j2.StagedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, staged)

	envs, err := j2.Unacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "a", envs[0].Operations[0].ID)
}

func TestJournal_AcknowledgeNeverMovesBack(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, filepath.Join(t.TempDir(), "edge.db"))
	for _, id := range []string{"a", "b", "c"} {
		record(t, j, op(id, 1))
		_, err := j.Seal(ctx, "E", 10)
		require.NoError(t, err)
	}

	require.NoError(t, j.Acknowledge(ctx, 2))
	require.NoError(t, j.Acknowledge(ctx, 1))

	acked, err := j.Acknowledged(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acked)

	envs, err := j.Unacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, int64(3), envs[0].Sequence)
}

func TestJournal_DiscardAndDuplicate(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, filepath.Join(t.TempDir(), "edge.db"))

	require.NoError(t, j.Record(ctx, op("a", 1)))
	assert.ErrorIs(t, j.Record(ctx, op("a", 1)), domain.ErrDuplicate)

	record(t, j, op("b", 1))
	require.NoError(t, j.Discard(ctx, "a"))
	require.NoError(t, j.Discard(ctx, "missing"))
	assert.ErrorIs(t, j.Commit(ctx, "a"), domain.ErrNotFound, "descartada no se puede liberar")

	require.NoError(t, j.Record(ctx, op("b", 1)))
	assert.ErrorIs(t, j.Commit(ctx, "b"), domain.ErrDuplicate)

	env, err := j.Seal(ctx, "E", 0)
	require.NoError(t, err)
	require.Len(t, env.Operations, 1)
	assert.Equal(t, "b", env.Operations[0].ID)
}

func TestJournal_SealSkipsStagedOperations(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, filepath.Join(t.TempDir(), "edge.db"))

	// "a" sigue en vuelo cuando corre Seal.
	require.NoError(t, j.Record(ctx, op("a", 1)))
	none, err := j.Seal(ctx, "E", 0)
	require.NoError(t, err)
	assert.Nil(t, none)

	record(t, j, op("b", 1))
	require.NoError(t, j.Commit(ctx, "a"))

	env, err := j.Seal(ctx, "E", 0)
	require.NoError(t, err)
	require.Len(t, env.Operations, 2)
	assert.Equal(t, "b", env.Operations[0].ID, "se sella en orden de Commit")
	assert.Equal(t, "a", env.Operations[1].ID)

	// Una operación que falla localmente después de un Seal nunca sale del nodo.
	require.NoError(t, j.Record(ctx, op("c", 1)))
	none, err = j.Seal(ctx, "E", 0)
	require.NoError(t, err)
	assert.Nil(t, none)
	require.NoError(t, j.Discard(ctx, "c"))

	envs, err := j.Unacknowledged(ctx)
	require.NoError(t, err)
	require.Len(t, envs, 1)
	staged, err := j.StagedCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, staged)
}
