// Package ledger es la única vía para modificar stock: posiciones por (tienda, producto)
// más el log de movimientos append-only.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// Line un delta sobre una posición.
type Line struct {
	StoreID   string
	ProductID string
	Delta     int64
	Kind      string
	RefID     string
	ActorID   string
}

// Batch conjunto de líneas que se aplican todas o ninguna.
// ExpectedVersions (opcional) exige que la posición esté en esa versión antes de aplicar.
type Batch struct {
	Lines            []Line
	ExpectedVersions map[entity.PositionKey]int64
}

// CommitListener recibe las posiciones tocadas después de un Commit exitoso.
type CommitListener interface {
	PositionsCommitted(keys []entity.PositionKey)
}

// Option configura el Ledger.
type Option func(*Ledger)

// WithCommitListener registra un listener (p. ej. invalidación de caché).
func WithCommitListener(listener CommitListener) Option {
	return func(l *Ledger) { l.listener = listener }
}

// Ledger aplica lotes de deltas con bloqueo de filas y validación previa a la escritura.
type Ledger struct {
	runner   repository.TxRunner
	clock    clock.Clock
	log      *logger.Logger
	listener CommitListener
}

// New construye el Ledger.
func New(runner repository.TxRunner, clk clock.Clock, log *logger.Logger, opts ...Option) *Ledger {
	l := &Ledger{runner: runner, clock: clk, log: log.Named("ledger")}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply abre su propia transacción y aplica el lote.
func (l *Ledger) Apply(ctx context.Context, batch Batch) ([]*entity.StockPosition, error) {
	var out []*entity.StockPosition
	err := l.runner.Run(ctx, func(tx repository.Tx) error {
		var err error
		out, err = l.ApplyInTx(ctx, tx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyInTx aplica el lote dentro de la transacción del caller.
// Bloquea las posiciones en orden ascendente (store_id, product_id), calcula y valida
// todos los saldos antes de escribir y deja cada posición tocada con version+1.
// Si falla no queda nada escrito: el trabajo corre en un savepoint.
func (l *Ledger) ApplyInTx(ctx context.Context, tx repository.Tx, batch Batch) ([]*entity.StockPosition, error) {
	net, keys, err := aggregate(batch.Lines)
	if err != nil {
		return nil, err
	}

	var out []*entity.StockPosition
	err = tx.Savepoint(ctx, func(sp repository.Tx) error {
		locked, err := sp.Positions().LockForUpdate(ctx, keys)
		if err != nil {
			return fmt.Errorf("bloquear posiciones: %w", err)
		}

		for key, expected := range batch.ExpectedVersions {
			pos, ok := locked[key]
			if !ok {
				continue
			}
			if pos.Version != expected {
				return fmt.Errorf("%w: %s/%s versión %d, esperada %d",
					domain.ErrVersionConflict, key.StoreID, key.ProductID, pos.Version, expected)
			}
		}

		var shortages []domain.Shortage
		for _, key := range keys {
			pos := locked[key]
			after := pos.OnHand + net[key]
			if after < 0 || after < pos.Reserved {
				shortages = append(shortages, domain.Shortage{
					StoreID:   key.StoreID,
					ProductID: key.ProductID,
					Available: pos.Available(),
					Requested: -net[key],
				})
			}
		}
		if len(shortages) > 0 {
			return &domain.StockShortError{Shortages: shortages}
		}

		now := l.clock.Now()
		updated := make([]*entity.StockPosition, 0, len(keys))
		for _, key := range keys {
			pos := locked[key]
			pos.OnHand += net[key]
			pos.Version++
			pos.UpdatedAt = now
			updated = append(updated, pos)
		}
		if err := sp.Positions().Save(ctx, updated); err != nil {
			return fmt.Errorf("guardar posiciones: %w", err)
		}
		for _, line := range batch.Lines {
			mov := &entity.Movement{
				ID:        l.clock.NewID(),
				TS:        now,
				StoreID:   line.StoreID,
				ProductID: line.ProductID,
				Delta:     line.Delta,
				Kind:      line.Kind,
				RefID:     line.RefID,
				ActorID:   line.ActorID,
			}
			if err := sp.Movements().Append(ctx, mov); err != nil {
				return fmt.Errorf("registrar movimiento: %w", err)
			}
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.listener != nil {
		tx.OnCommit(func() { l.listener.PositionsCommitted(keys) })
	}
	return out, nil
}

// aggregate valida las líneas y devuelve el delta neto por posición y las claves ordenadas.
func aggregate(lines []Line) (map[entity.PositionKey]int64, []entity.PositionKey, error) {
	if len(lines) == 0 {
		return nil, nil, domain.Invalid("lote vacío")
	}
	net := make(map[entity.PositionKey]int64, len(lines))
	for i, line := range lines {
		switch {
		case line.StoreID == "" || line.ProductID == "":
			return nil, nil, domain.Invalid("línea %d: tienda y producto son obligatorios", i)
		case line.Delta == 0:
			return nil, nil, domain.Invalid("línea %d: delta en cero", i)
		case !entity.ValidMovementKind(line.Kind):
			return nil, nil, domain.Invalid("línea %d: tipo de movimiento %q", i, line.Kind)
		case line.RefID == "":
			return nil, nil, domain.Invalid("línea %d: ref_id obligatorio", i)
		}
		net[entity.PositionKey{StoreID: line.StoreID, ProductID: line.ProductID}] += line.Delta
	}
	keys := make([]entity.PositionKey, 0, len(net))
	for k := range net {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return net, keys, nil
}

// Read devuelve una copia de la posición; en cero con versión 0 si nunca se tocó.
func (l *Ledger) Read(ctx context.Context, storeID, productID string) (*entity.StockPosition, error) {
	var pos *entity.StockPosition
	err := l.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		pos, err = tx.Positions().Get(ctx, storeID, productID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer posición: %w", err)
	}
	return pos, nil
}

// History movimientos de la posición en [from, to], ordenados por Seq.
func (l *Ledger) History(ctx context.Context, storeID, productID string, from, to *time.Time) ([]*entity.Movement, error) {
	var list []*entity.Movement
	err := l.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Movements().ListByPosition(ctx, storeID, productID, from, to)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("historial de movimientos: %w", err)
	}
	return list, nil
}

// SumByRef suma de deltas de un ref_id dentro de la transacción.
func (l *Ledger) SumByRef(ctx context.Context, tx repository.Tx, refID string) (int64, error) {
	return tx.Movements().SumByRef(ctx, refID)
}
