// Package transfer mueve unidades entre tiendas en dos fases pasando por una tienda de tránsito.
package transfer

import (
	"context"
	"fmt"
	"sort"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// Guard autoriza acciones sobre tiendas.
type Guard interface {
	Check(actor entity.Actor, storeID string, action access.Action) error
}

// LedgerWriter entrada transaccional del Ledger.
type LedgerWriter interface {
	ApplyInTx(ctx context.Context, tx repository.Tx, batch ledger.Batch) ([]*entity.StockPosition, error)
}

// CreateInput traslado nuevo. TransferID opcional: si viene, es la llave de idempotencia.
type CreateInput struct {
	TransferID    string
	SourceStoreID string
	DestStoreID   string
	Lines         []entity.TransferLine
}

// Result traslado resultante; Duplicate indica que la operación ya estaba hecha.
type Result struct {
	Transfer  *entity.Transfer
	Duplicate bool
}

// Service Transfer Engine.
type Service struct {
	runner  repository.TxRunner
	ledger  LedgerWriter
	guard   Guard
	clock   clock.Clock
	log     *logger.Logger
	journal repository.OperationJournal
}

// Option configura el Service.
type Option func(*Service)

// WithJournal registra cada operación en el journal local antes de aplicarla (nodos EDGE).
func WithJournal(j repository.OperationJournal) Option {
	return func(s *Service) { s.journal = j }
}

// NewService construye el Transfer Engine.
func NewService(runner repository.TxRunner, l LedgerWriter, guard Guard, clk clock.Clock, log *logger.Logger, opts ...Option) *Service {
	s := &Service{runner: runner, ledger: l, guard: guard, clock: clk, log: log.Named("transfer")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registra el traslado en DRAFT. No toca el Ledger.
func (s *Service) Create(ctx context.Context, actor entity.Actor, in CreateInput) (*Result, error) {
	if err := s.guard.Check(actor, in.SourceStoreID, access.ActionWrite); err != nil {
		return nil, err
	}
	lines, err := validateCreate(in)
	if err != nil {
		return nil, err
	}
	if in.TransferID == "" {
		in.TransferID = s.clock.NewID()
	}
	in.Lines = lines

	opLines := make([]entity.OperationLine, 0, len(lines))
	for _, l := range lines {
		opLines = append(opLines, entity.OperationLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	op := s.operation(actor.ID, entity.OpTransferCreate, in.SourceStoreID, in.TransferID)
	op.SourceStoreID, op.DestStoreID, op.Lines = in.SourceStoreID, in.DestStoreID, opLines

	var res *Result
	err = s.journaled(ctx, op, func() (bool, error) {
		err := s.runner.Run(ctx, func(tx repository.Tx) error {
			var err error
			res, err = s.CreateInTx(ctx, tx, actor.ID, in)
			return err
		})
		if err != nil {
			return false, err
		}
		return res.Duplicate, nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CreateInTx crea el traslado dentro de la transacción del caller.
func (s *Service) CreateInTx(ctx context.Context, tx repository.Tx, actorID string, in CreateInput) (*Result, error) {
	lines, err := validateCreate(in)
	if err != nil {
		return nil, err
	}
	if in.TransferID != "" {
		existing, err := tx.Transfers().GetByID(ctx, in.TransferID)
		if err != nil {
			return nil, fmt.Errorf("buscar traslado: %w", err)
		}
		if existing != nil {
			return &Result{Transfer: existing, Duplicate: true}, nil
		}
	} else {
		in.TransferID = s.clock.NewID()
	}

	for _, id := range []string{in.SourceStoreID, in.DestStoreID} {
		store, err := tx.Stores().GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("buscar tienda: %w", err)
		}
		if store == nil || !store.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStore, id)
		}
	}
	for _, l := range lines {
		p, err := tx.Products().GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, fmt.Errorf("buscar producto: %w", err)
		}
		if p == nil || !p.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, l.ProductID)
		}
	}

	t := &entity.Transfer{
		ID:            in.TransferID,
		SourceStoreID: in.SourceStoreID,
		DestStoreID:   in.DestStoreID,
		Lines:         lines,
		State:         entity.TransferStateDraft,
		CreatedBy:     actorID,
		CreatedAt:     s.clock.Now(),
	}
	inserted, err := tx.Transfers().Create(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("crear traslado: %w", err)
	}
	if !inserted {
		existing, err := tx.Transfers().GetByID(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("buscar traslado: %w", err)
		}
		return &Result{Transfer: existing, Duplicate: true}, nil
	}
	return &Result{Transfer: t}, nil
}

// Dispatch DRAFT → DISPATCHED: descuenta del origen y suma en tránsito.
func (s *Service) Dispatch(ctx context.Context, actor entity.Actor, transferID string) (*Result, error) {
	return s.transition(ctx, actor, transferID, entity.OpTransferDispatch, s.DispatchInTx)
}

// Receive DISPATCHED → RECEIVED: descuenta de tránsito y suma en destino.
func (s *Service) Receive(ctx context.Context, actor entity.Actor, transferID string) (*Result, error) {
	return s.transition(ctx, actor, transferID, entity.OpTransferReceive, s.ReceiveInTx)
}

// Cancel DRAFT → CANCELED sin movimientos; DISPATCHED → CANCELED devolviendo al origen.
func (s *Service) Cancel(ctx context.Context, actor entity.Actor, transferID string) (*Result, error) {
	return s.transition(ctx, actor, transferID, entity.OpTransferCancel, s.CancelInTx)
}

type inTxFunc func(ctx context.Context, tx repository.Tx, actorID, transferID string) (*Result, error)

func (s *Service) transition(ctx context.Context, actor entity.Actor, transferID, opType string, fn inTxFunc) (*Result, error) {
	current, err := s.read(ctx, transferID)
	if err != nil {
		return nil, err
	}
	guarded := current.SourceStoreID
	if opType == entity.OpTransferReceive {
		guarded = current.DestStoreID
	}
	if err := s.guard.Check(actor, guarded, access.ActionWrite); err != nil {
		return nil, err
	}

	var res *Result
	op := s.operation(actor.ID, opType, guarded, transferID)
	err = s.journaled(ctx, op, func() (bool, error) {
		err := s.runner.Run(ctx, func(tx repository.Tx) error {
			var err error
			res, err = fn(ctx, tx, actor.ID, transferID)
			return err
		})
		if err != nil {
			return false, err
		}
		return res.Duplicate, nil
	})
	if err != nil {
		return nil, err
	}
	if !res.Duplicate {
		s.log.Info().Str("transfer_id", transferID).Str("state", res.Transfer.State).Msg("traslado actualizado")
	}
	return res, nil
}

// DispatchInTx ejecuta el despacho con la fila del traslado bloqueada.
// Si falta stock en el origen devuelve INSUFFICIENT_STOCK y el estado no cambia.
func (s *Service) DispatchInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*Result, error) {
	t, err := s.lock(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}
	switch t.State {
	case entity.TransferStateDispatched:
		return &Result{Transfer: t, Duplicate: true}, nil
	case entity.TransferStateDraft:
	default:
		return nil, illegal(t, entity.TransferStateDispatched)
	}

	transit := entity.TransitStoreID(t.ID)
	if _, err := s.ledger.ApplyInTx(ctx, tx, moveBatch(t, t.SourceStoreID, transit, entity.MovementKindTransferOut, actorID)); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	t.State = entity.TransferStateDispatched
	t.DispatchedAt = &now
	if err := tx.Transfers().UpdateState(ctx, t); err != nil {
		return nil, fmt.Errorf("actualizar traslado: %w", err)
	}
	return &Result{Transfer: t}, nil
}

// ReceiveInTx ejecuta la recepción completa; la posición de destino se crea si no existía.
func (s *Service) ReceiveInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*Result, error) {
	t, err := s.lock(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}
	switch t.State {
	case entity.TransferStateReceived:
		return &Result{Transfer: t, Duplicate: true}, nil
	case entity.TransferStateDispatched:
	default:
		return nil, illegal(t, entity.TransferStateReceived)
	}

	transit := entity.TransitStoreID(t.ID)
	if _, err := s.ledger.ApplyInTx(ctx, tx, moveBatch(t, transit, t.DestStoreID, entity.MovementKindTransferIn, actorID)); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	t.State = entity.TransferStateReceived
	t.ReceivedAt = &now
	if err := tx.Transfers().UpdateState(ctx, t); err != nil {
		return nil, fmt.Errorf("actualizar traslado: %w", err)
	}
	if err := s.checkClosed(ctx, tx, t); err != nil {
		return nil, err
	}
	return &Result{Transfer: t}, nil
}

// CancelInTx cancela el traslado; RECEIVED no se puede cancelar.
func (s *Service) CancelInTx(ctx context.Context, tx repository.Tx, actorID, transferID string) (*Result, error) {
	t, err := s.lock(ctx, tx, transferID)
	if err != nil {
		return nil, err
	}
	switch t.State {
	case entity.TransferStateCanceled:
		return &Result{Transfer: t, Duplicate: true}, nil
	case entity.TransferStateDraft:
	case entity.TransferStateDispatched:
		transit := entity.TransitStoreID(t.ID)
		if _, err := s.ledger.ApplyInTx(ctx, tx, moveBatch(t, transit, t.SourceStoreID, entity.MovementKindTransferCancel, actorID)); err != nil {
			return nil, err
		}
	default:
		return nil, illegal(t, entity.TransferStateCanceled)
	}

	dispatched := t.State == entity.TransferStateDispatched
	now := s.clock.Now()
	t.State = entity.TransferStateCanceled
	t.CanceledAt = &now
	if err := tx.Transfers().UpdateState(ctx, t); err != nil {
		return nil, fmt.Errorf("actualizar traslado: %w", err)
	}
	if dispatched {
		if err := s.checkClosed(ctx, tx, t); err != nil {
			return nil, err
		}
	}
	return &Result{Transfer: t}, nil
}

// Get lee un traslado; basta READ sobre el origen o el destino.
func (s *Service) Get(ctx context.Context, actor entity.Actor, transferID string) (*entity.Transfer, error) {
	t, err := s.read(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(actor, t.SourceStoreID, access.ActionRead); err != nil {
		if derr := s.guard.Check(actor, t.DestStoreID, access.ActionRead); derr != nil {
			return nil, err
		}
	}
	return t, nil
}

// InTransit posiciones de la tienda de tránsito del traslado.
func (s *Service) InTransit(ctx context.Context, actor entity.Actor, transferID string) ([]*entity.StockPosition, error) {
	if _, err := s.Get(ctx, actor, transferID); err != nil {
		return nil, err
	}
	var list []*entity.StockPosition
	err := s.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Positions().ListByStore(ctx, entity.TransitStoreID(transferID))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("posiciones en tránsito: %w", err)
	}
	return list, nil
}

func (s *Service) read(ctx context.Context, transferID string) (*entity.Transfer, error) {
	var t *entity.Transfer
	err := s.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		t, err = tx.Transfers().GetByID(ctx, transferID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer traslado: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: traslado %s", domain.ErrNotFound, transferID)
	}
	return t, nil
}

func (s *Service) lock(ctx context.Context, tx repository.Tx, transferID string) (*entity.Transfer, error) {
	t, err := tx.Transfers().GetForUpdate(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("bloquear traslado: %w", err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: traslado %s", domain.ErrNotFound, transferID)
	}
	return t, nil
}

// checkClosed verifica que los movimientos del traslado sumen cero.
func (s *Service) checkClosed(ctx context.Context, tx repository.Tx, t *entity.Transfer) error {
	sum, err := tx.Movements().SumByRef(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("sumar movimientos del traslado: %w", err)
	}
	if sum != 0 {
		s.log.Error().Str("transfer_id", t.ID).Int64("sum", sum).Msg("traslado cerrado no conserva unidades")
		return domain.Internal(fmt.Sprintf("traslado %s cerrado con suma %d", t.ID, sum), nil)
	}
	return nil
}

func (s *Service) operation(actorID, opType, storeID, transferID string) entity.Operation {
	return entity.Operation{
		ID:         s.clock.NewID(),
		Type:       opType,
		StoreID:    storeID,
		ActorID:    actorID,
		TransferID: transferID,
		RecordedAt: s.clock.Now(),
	}
}

func (s *Service) journaled(ctx context.Context, op entity.Operation, apply func() (noop bool, err error)) error {
	if s.journal == nil {
		_, err := apply()
		return err
	}
	if err := s.journal.Record(ctx, op); err != nil {
		return err
	}
	noop, err := apply()
	if err != nil || noop {
		if derr := s.journal.Discard(context.WithoutCancel(ctx), op.ID); derr != nil {
			s.log.Error().Err(derr).Str("op_id", op.ID).Msg("no se pudo descartar la operación del journal")
		}
		return err
	}
	// Ya confirmada localmente: si Commit falla la operación queda en espera y se ve en edge-sync status.
	if cerr := s.journal.Commit(context.WithoutCancel(ctx), op.ID); cerr != nil {
		s.log.Error().Err(cerr).Str("op_id", op.ID).Msg("no se pudo liberar la operación del journal")
	}
	return nil
}

func moveBatch(t *entity.Transfer, from, to, kind, actorID string) ledger.Batch {
	b := ledger.Batch{Lines: make([]ledger.Line, 0, 2*len(t.Lines))}
	for _, l := range t.Lines {
		b.Lines = append(b.Lines,
			ledger.Line{StoreID: from, ProductID: l.ProductID, Delta: -l.Quantity, Kind: kind, RefID: t.ID, ActorID: actorID},
			ledger.Line{StoreID: to, ProductID: l.ProductID, Delta: l.Quantity, Kind: kind, RefID: t.ID, ActorID: actorID},
		)
	}
	return b
}

func illegal(t *entity.Transfer, target string) error {
	return fmt.Errorf("%w: traslado %s de %s a %s", domain.ErrIllegalTransition, t.ID, t.State, target)
}

// validateCreate valida y une líneas repetidas del mismo producto (orden por product_id).
func validateCreate(in CreateInput) ([]entity.TransferLine, error) {
	switch {
	case in.SourceStoreID == "" || in.DestStoreID == "":
		return nil, domain.Invalid("origen y destino son obligatorios")
	case in.SourceStoreID == in.DestStoreID:
		return nil, domain.Invalid("origen y destino deben ser distintos")
	case entity.IsTransitStore(in.SourceStoreID) || entity.IsTransitStore(in.DestStoreID):
		return nil, domain.Invalid("no se puede trasladar desde o hacia tránsito")
	case len(in.Lines) == 0:
		return nil, domain.Invalid("el traslado no tiene líneas")
	}
	merged := make(map[string]int64, len(in.Lines))
	for i, l := range in.Lines {
		if l.ProductID == "" {
			return nil, domain.Invalid("línea %d: product_id es obligatorio", i)
		}
		if l.Quantity <= 0 {
			return nil, domain.Invalid("línea %d: cantidad debe ser mayor que cero", i)
		}
		merged[l.ProductID] += l.Quantity
	}
	lines := make([]entity.TransferLine, 0, len(merged))
	for id, q := range merged {
		lines = append(lines, entity.TransferLine{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}
