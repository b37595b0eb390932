package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

const maxConflictBackoff = 30

// IngestResult respuesta de la central a un sobre.
type IngestResult struct {
	Accepted             bool
	Duplicate            bool
	LastAcceptedSequence int64
	Conflicts            []*entity.ConflictRecord
	BackoffHint          int // segundos
}

// Config límites del coordinador.
type Config struct {
	MaxOps      int
	BackoffBase time.Duration
}

// Coordinator ingesta central de sobres.
type Coordinator struct {
	runner      repository.TxRunner
	sales       SaleReplayer
	transfers   TransferReplayer
	adjustments AdjustmentReplayer
	guard       Guard
	clock       clock.Clock
	log         *logger.Logger
	cfg         Config
	locker      EdgeLocker
	load        LoadGauge
}

// Option configura el Coordinator.
type Option func(*Coordinator)

// WithEdgeLocker agrega el candado entre instancias (Redis).
func WithEdgeLocker(l EdgeLocker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithLoadGauge usa la ocupación del limitador para calcular el backoff.
func WithLoadGauge(g LoadGauge) Option {
	return func(c *Coordinator) { c.load = g }
}

// NewCoordinator construye el coordinador central.
func NewCoordinator(
	runner repository.TxRunner,
	sales SaleReplayer,
	transfers TransferReplayer,
	adjustments AdjustmentReplayer,
	guard Guard,
	clk clock.Clock,
	log *logger.Logger,
	cfg Config,
	opts ...Option,
) *Coordinator {
	if cfg.MaxOps <= 0 {
		cfg.MaxOps = 500
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	c := &Coordinator{
		runner:      runner,
		sales:       sales,
		transfers:   transfers,
		adjustments: adjustments,
		guard:       guard,
		clock:       clk,
		log:         log.Named("sync"),
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest valida y reproduce un sobre de una EDGE. Todo el sobre se confirma o se descarta como unidad.
// Con OUT_OF_ORDER y CORRUPT_ENVELOPE devuelve también el resultado con la última secuencia aceptada.
func (c *Coordinator) Ingest(ctx context.Context, actor entity.Actor, env *entity.SyncEnvelope) (*IngestResult, error) {
	if env == nil {
		return nil, domain.Invalid("sobre vacío")
	}
	if err := c.guard.Check(actor, env.EdgeStoreID, access.ActionSyncIngest); err != nil {
		return nil, err
	}
	switch {
	case env.EdgeStoreID == "":
		return nil, domain.Invalid("edge_store_id es obligatorio")
	case env.Sequence <= 0:
		return nil, domain.Invalid("sequence debe ser mayor que cero")
	case len(env.Operations) == 0:
		return nil, domain.Invalid("el sobre no tiene operaciones")
	case len(env.Operations) > c.cfg.MaxOps:
		return nil, domain.Invalid("el sobre supera %d operaciones", c.cfg.MaxOps)
	}

	if c.locker != nil {
		release, err := c.locker.Lock(ctx, env.EdgeStoreID)
		if err != nil {
			if errors.Is(err, domain.ErrOverloaded) {
				return &IngestResult{BackoffHint: c.backoff(0)}, err
			}
			return nil, domain.Internal("no se pudo tomar el candado de la tienda "+env.EdgeStoreID, err)
		}
		defer release()
	}

	res := &IngestResult{}
	var rejected error
	err := c.runner.Run(ctx, func(tx repository.Tx) error {
		if err := tx.Sync().LockEdge(ctx, env.EdgeStoreID); err != nil {
			return fmt.Errorf("bloquear tienda edge: %w", err)
		}
		store, err := tx.Stores().GetByID(ctx, env.EdgeStoreID)
		if err != nil {
			return fmt.Errorf("buscar tienda: %w", err)
		}
		if store == nil || store.Kind != entity.StoreKindEdge {
			return fmt.Errorf("%w: %s no es una tienda EDGE", domain.ErrUnknownStore, env.EdgeStoreID)
		}

		cursor, err := tx.Sync().GetCursor(ctx, env.EdgeStoreID)
		if err != nil {
			return fmt.Errorf("leer cursor: %w", err)
		}
		res.LastAcceptedSequence = cursor.LastSequence
		switch {
		case env.Sequence <= cursor.LastSequence:
			res.Accepted, res.Duplicate = true, true
			return nil
		case env.Sequence != cursor.LastSequence+1:
			rejected = fmt.Errorf("%w: recibido %d, se esperaba %d", domain.ErrOutOfOrder, env.Sequence, cursor.LastSequence+1)
			return nil
		}
		hash, err := entity.HashOperations(env.Operations)
		if err != nil {
			return domain.Internal("no se pudo calcular el hash del sobre", err)
		}
		if hash != env.Hash {
			rejected = fmt.Errorf("%w: sobre %s secuencia %d", domain.ErrCorruptEnvelope, env.ID, env.Sequence)
			return nil
		}

		conflicts := make([]*entity.ConflictRecord, 0)
		for i, op := range env.Operations {
			found, err := c.replay(ctx, tx, env.EdgeStoreID, op)
			if err != nil {
				return fmt.Errorf("operación %d (%s): %w", i, op.ID, err)
			}
			if found == nil {
				continue
			}
			found.ID = c.clock.NewID()
			found.EnvelopeID = env.ID
			found.EdgeStoreID = env.EdgeStoreID
			found.Sequence = env.Sequence
			found.OperationIndex = i
			found.OperationID = op.ID
			found.CreatedAt = c.clock.Now()
			conflicts = append(conflicts, found)
		}

		accepted := c.clock.Now()
		env.AcceptedAt = &accepted
		env.ConflictCount = len(conflicts)
		if err := tx.Sync().SaveEnvelope(ctx, env); err != nil {
			return fmt.Errorf("guardar sobre: %w", err)
		}
		if len(conflicts) > 0 {
			if err := tx.Sync().SaveConflicts(ctx, conflicts); err != nil {
				return fmt.Errorf("guardar conflictos: %w", err)
			}
		}
		cursor.LastSequence = env.Sequence
		cursor.UpdatedAt = accepted
		if err := tx.Sync().SaveCursor(ctx, cursor); err != nil {
			return fmt.Errorf("avanzar cursor: %w", err)
		}
		res.Accepted = true
		res.LastAcceptedSequence = env.Sequence
		res.Conflicts = conflicts
		return nil
	})
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			c.log.Error().Err(err).Str("envelope_id", env.ID).Str("edge", env.EdgeStoreID).Int64("sequence", env.Sequence).Msg("ingesta fallida")
		}
		return nil, err
	}
	res.BackoffHint = c.backoff(len(res.Conflicts))
	if rejected != nil {
		c.log.Warn().Err(rejected).Str("envelope_id", env.ID).Str("edge", env.EdgeStoreID).Int64("last_accepted", res.LastAcceptedSequence).Msg("sobre rechazado")
		return res, rejected
	}

	evt := c.log.Info()
	if len(res.Conflicts) > 0 {
		evt = c.log.Warn()
	}
	evt.Str("envelope_id", env.ID).
		Str("edge", env.EdgeStoreID).
		Int64("sequence", env.Sequence).
		Bool("duplicate", res.Duplicate).
		Int("conflicts", len(res.Conflicts)).
		Msg("sobre procesado")
	return res, nil
}

// backoff segundos sugeridos a la EDGE antes del próximo envío.
func (c *Coordinator) backoff(conflicts int) int {
	hint := int(c.cfg.BackoffBase / time.Second)
	if hint < 1 {
		hint = 1
	}
	if c.load != nil && c.load.Capacity() > 0 && c.load.InFlight()*2 > c.load.Capacity() {
		hint *= 2
	}
	if conflicts > maxConflictBackoff {
		conflicts = maxConflictBackoff
	}
	return hint + conflicts
}

// LastAccepted cursor de la EDGE; LastSequence 0 si nunca sincronizó.
func (c *Coordinator) LastAccepted(ctx context.Context, edgeStoreID string) (*entity.SyncCursor, error) {
	var cursor *entity.SyncCursor
	err := c.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		cursor, err = tx.Sync().GetCursor(ctx, edgeStoreID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer cursor: %w", err)
	}
	return cursor, nil
}

// Conflicts conflictos de una EDGE, los más recientes primero. Requiere READ sobre la tienda.
func (c *Coordinator) Conflicts(ctx context.Context, actor entity.Actor, edgeStoreID string, limit, offset int) ([]*entity.ConflictRecord, error) {
	if err := c.guard.Check(actor, edgeStoreID, access.ActionRead); err != nil {
		return nil, err
	}
	var list []*entity.ConflictRecord
	err := c.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Sync().ListConflicts(ctx, edgeStoreID, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listar conflictos: %w", err)
	}
	return list, nil
}
