package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
)

// Journal journal de una tienda EDGE en memoria. Se pierde al reiniciar; en producción se usa SQLite.
type Journal struct {
	mu           sync.Mutex
	clock        clock.Clock
	staged       map[string]entity.Operation
	pending      []entity.Operation
	envelopes    []entity.SyncEnvelope
	lastProduced int64
	acknowledged int64
}

// NewJournal crea un journal vacío.
func NewJournal(clk clock.Clock) *Journal {
	return &Journal{clock: clk, staged: make(map[string]entity.Operation)}
}

func (j *Journal) Record(_ context.Context, op entity.Operation) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.staged[op.ID]; ok {
		return fmt.Errorf("%w: operación %s ya registrada", domain.ErrDuplicate, op.ID)
	}
	op.RecordedAt = op.RecordedAt.UTC()
	j.staged[op.ID] = op
	return nil
}

func (j *Journal) Commit(_ context.Context, opID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	op, ok := j.staged[opID]
	if !ok {
		return fmt.Errorf("%w: operación %s no está en espera", domain.ErrNotFound, opID)
	}
	delete(j.staged, opID)
	j.pending = append(j.pending, op)
	return nil
}

// Discard solo toca operaciones en espera.
func (j *Journal) Discard(_ context.Context, opID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.staged, opID)
	return nil
}

func (j *Journal) Seal(_ context.Context, edgeStoreID string, maxOps int) (*entity.SyncEnvelope, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.pending) == 0 {
		return nil, nil
	}
	n := len(j.pending)
	if maxOps > 0 && n > maxOps {
		n = maxOps
	}
	ops := append([]entity.Operation(nil), j.pending[:n]...)
	hash, err := entity.HashOperations(ops)
	if err != nil {
		return nil, err
	}
	env := entity.SyncEnvelope{
		ID:          j.clock.NewID(),
		EdgeStoreID: edgeStoreID,
		Sequence:    j.lastProduced + 1,
		Operations:  ops,
		Hash:        hash,
		ProducedAt:  j.clock.Now(),
	}
	j.envelopes = append(j.envelopes, env)
	j.pending = j.pending[n:]
	j.lastProduced = env.Sequence
	out := env
	return &out, nil
}

func (j *Journal) Unacknowledged(context.Context) ([]*entity.SyncEnvelope, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []*entity.SyncEnvelope
	for i := range j.envelopes {
		if j.envelopes[i].Sequence > j.acknowledged {
			env := j.envelopes[i]
			out = append(out, &env)
		}
	}
	return out, nil
}

func (j *Journal) Acknowledge(_ context.Context, upTo int64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if upTo > j.acknowledged {
		j.acknowledged = upTo
	}
	return nil
}

func (j *Journal) LastProduced(context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastProduced, nil
}

func (j *Journal) PendingCount(context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending), nil
}
