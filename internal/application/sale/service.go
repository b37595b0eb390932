// Package sale convierte una venta en decrementos atómicos del Ledger, idempotente por client_key.
package sale

import (
	"context"
	"errors"
	"fmt"

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

// ApplyInput venta a aplicar. SaleID es opcional (lo fija la réplica de una EDGE).
type ApplyInput struct {
	StoreID   string
	ClientKey string
	Lines     []entity.SaleLine
	SaleID    string
}

// Result venta resultante; Duplicate indica que (store, client_key) ya existía y no se aplicó nada.
type Result struct {
	Sale      *entity.Sale
	Duplicate bool
}

// Service Sale Applier.
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

// WithJournal registra cada venta en el journal local antes de aplicarla (nodos EDGE).
func WithJournal(j repository.OperationJournal) Option {
	return func(s *Service) { s.journal = j }
}

// NewService construye el Sale Applier.
func NewService(runner repository.TxRunner, l LedgerWriter, guard Guard, clk clock.Clock, log *logger.Logger, opts ...Option) *Service {
	s := &Service{runner: runner, ledger: l, guard: guard, clock: clk, log: log.Named("sale")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ApplySale registra y aplica la venta en una sola transacción.
// Si falta stock la venta queda VOID (confirmada, sin movimientos) y se devuelve
// el Result con la venta VOID junto con un error INSUFFICIENT_STOCK con los faltantes.
func (s *Service) ApplySale(ctx context.Context, actor entity.Actor, in ApplyInput) (*Result, error) {
	if err := s.guard.Check(actor, in.StoreID, access.ActionWrite); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	if in.SaleID == "" {
		in.SaleID = s.clock.NewID()
	}

	var res *Result
	var shortErr error
	apply := func() (bool, error) {
		err := s.runner.Run(ctx, func(tx repository.Tx) error {
			r, err := s.ApplyInTx(ctx, tx, actor.ID, in)
			if errors.Is(err, domain.ErrStockShort) {
				res, shortErr = r, err
				return nil
			}
			if err != nil {
				return err
			}
			res = r
			return nil
		})
		if err != nil {
			return false, err
		}
		return res.Duplicate || shortErr != nil, nil
	}

	if err := s.journaled(ctx, s.saleOperation(actor.ID, in), apply); err != nil {
		return nil, err
	}
	if shortErr != nil {
		s.log.Info().Str("sale_id", res.Sale.ID).Str("store_id", in.StoreID).Msg("venta anulada por falta de stock")
		return res, shortErr
	}
	return res, nil
}

// ApplyInTx aplica la venta dentro de la transacción del caller (réplica de sync).
// Valida existencia de tienda y productos; una venta con la misma llave se devuelve como Duplicate.
func (s *Service) ApplyInTx(ctx context.Context, tx repository.Tx, actorID string, in ApplyInput) (*Result, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	existing, err := tx.Sales().GetByClientKey(ctx, in.StoreID, in.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("buscar venta: %w", err)
	}
	if existing != nil {
		return &Result{Sale: existing, Duplicate: true}, nil
	}

	if err := s.checkCatalog(ctx, tx, in); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	id := in.SaleID
	if id == "" {
		id = s.clock.NewID()
	}
	sale := &entity.Sale{
		ID:        id,
		StoreID:   in.StoreID,
		ClientKey: in.ClientKey,
		Lines:     append([]entity.SaleLine(nil), in.Lines...),
		Total:     entity.ComputeTotal(in.Lines),
		State:     entity.SaleStatePending,
		ActorID:   actorID,
		CreatedAt: now,
	}
	inserted, err := tx.Sales().InsertPending(ctx, sale)
	if err != nil {
		return nil, fmt.Errorf("insertar venta: %w", err)
	}
	if !inserted {
		// otra transacción ganó la carrera por la misma llave
		winner, err := tx.Sales().GetByClientKey(ctx, in.StoreID, in.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("buscar venta: %w", err)
		}
		if winner == nil {
			return nil, domain.Internal("venta duplicada sin registro visible", nil)
		}
		return &Result{Sale: winner, Duplicate: true}, nil
	}

	batch := ledger.Batch{Lines: make([]ledger.Line, 0, len(in.Lines))}
	for _, l := range in.Lines {
		batch.Lines = append(batch.Lines, ledger.Line{
			StoreID:   in.StoreID,
			ProductID: l.ProductID,
			Delta:     -l.Quantity,
			Kind:      entity.MovementKindSale,
			RefID:     sale.ID,
			ActorID:   actorID,
		})
	}
	_, err = s.ledger.ApplyInTx(ctx, tx, batch)
	switch {
	case errors.Is(err, domain.ErrStockShort):
		voided := s.clock.Now()
		sale.State = entity.SaleStateVoid
		sale.VoidedAt = &voided
		sale.Shortages = domain.ShortagesOf(err)
		if uerr := tx.Sales().UpdateState(ctx, sale); uerr != nil {
			return nil, fmt.Errorf("anular venta: %w", uerr)
		}
		return &Result{Sale: sale}, err
	case err != nil:
		return nil, err
	}

	applied := s.clock.Now()
	sale.State = entity.SaleStateApplied
	sale.AppliedAt = &applied
	if err := tx.Sales().UpdateState(ctx, sale); err != nil {
		return nil, fmt.Errorf("marcar venta aplicada: %w", err)
	}
	return &Result{Sale: sale}, nil
}

// VoidSale revierte una venta APPLIED con movimientos SALE_REVERSAL del mismo ref_id.
// Una venta ya VOID es un no-op (Duplicate); una PENDING no se puede anular.
func (s *Service) VoidSale(ctx context.Context, actor entity.Actor, saleID string) (*Result, error) {
	current, err := s.GetSale(ctx, actor, saleID)
	if err != nil {
		return nil, err
	}
	if err := s.guard.Check(actor, current.StoreID, access.ActionWrite); err != nil {
		return nil, err
	}

	var res *Result
	op := entity.Operation{
		ID:         s.clock.NewID(),
		Type:       entity.OpSaleVoid,
		StoreID:    current.StoreID,
		ActorID:    actor.ID,
		ClientKey:  current.ClientKey,
		SaleID:     current.ID,
		RecordedAt: s.clock.Now(),
	}
	err = s.journaled(ctx, op, func() (bool, error) {
		err := s.runner.Run(ctx, func(tx repository.Tx) error {
			sale, err := tx.Sales().GetForUpdate(ctx, saleID)
			if err != nil {
				return fmt.Errorf("bloquear venta: %w", err)
			}
			if sale == nil {
				return fmt.Errorf("%w: venta %s", domain.ErrNotFound, saleID)
			}
			res, err = s.voidLocked(ctx, tx, actor.ID, sale)
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

// VoidByClientKeyInTx anula la venta identificada por (store, client_key) dentro de la transacción del caller.
func (s *Service) VoidByClientKeyInTx(ctx context.Context, tx repository.Tx, actorID, storeID, clientKey string) (*Result, error) {
	found, err := tx.Sales().GetByClientKey(ctx, storeID, clientKey)
	if err != nil {
		return nil, fmt.Errorf("buscar venta: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("%w: venta %s/%s", domain.ErrNotFound, storeID, clientKey)
	}
	sale, err := tx.Sales().GetForUpdate(ctx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("bloquear venta: %w", err)
	}
	return s.voidLocked(ctx, tx, actorID, sale)
}

func (s *Service) voidLocked(ctx context.Context, tx repository.Tx, actorID string, sale *entity.Sale) (*Result, error) {
	switch sale.State {
	case entity.SaleStateVoid:
		return &Result{Sale: sale, Duplicate: true}, nil
	case entity.SaleStatePending:
		return nil, fmt.Errorf("%w: venta %s está PENDING", domain.ErrIllegalTransition, sale.ID)
	}

	batch := ledger.Batch{Lines: make([]ledger.Line, 0, len(sale.Lines))}
	for _, l := range sale.Lines {
		batch.Lines = append(batch.Lines, ledger.Line{
			StoreID:   sale.StoreID,
			ProductID: l.ProductID,
			Delta:     l.Quantity,
			Kind:      entity.MovementKindSaleReversal,
			RefID:     sale.ID,
			ActorID:   actorID,
		})
	}
	if _, err := s.ledger.ApplyInTx(ctx, tx, batch); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	sale.State = entity.SaleStateVoid
	sale.VoidedAt = &now
	if err := tx.Sales().UpdateState(ctx, sale); err != nil {
		return nil, fmt.Errorf("anular venta: %w", err)
	}
	return &Result{Sale: sale}, nil
}

// GetSale lee una venta; requiere READ sobre su tienda.
func (s *Service) GetSale(ctx context.Context, actor entity.Actor, saleID string) (*entity.Sale, error) {
	var sale *entity.Sale
	err := s.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		sale, err = tx.Sales().GetByID(ctx, saleID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer venta: %w", err)
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: venta %s", domain.ErrNotFound, saleID)
	}
	if err := s.guard.Check(actor, sale.StoreID, access.ActionRead); err != nil {
		return nil, err
	}
	return sale, nil
}

// GetByClientKey busca la venta por su llave de idempotencia.
func (s *Service) GetByClientKey(ctx context.Context, actor entity.Actor, storeID, clientKey string) (*entity.Sale, error) {
	if err := s.guard.Check(actor, storeID, access.ActionRead); err != nil {
		return nil, err
	}
	var sale *entity.Sale
	err := s.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		sale, err = tx.Sales().GetByClientKey(ctx, storeID, clientKey)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("leer venta: %w", err)
	}
	if sale == nil {
		return nil, fmt.Errorf("%w: venta %s/%s", domain.ErrNotFound, storeID, clientKey)
	}
	return sale, nil
}

func validate(in ApplyInput) error {
	if in.StoreID == "" {
		return domain.Invalid("store_id es obligatorio")
	}
	if in.ClientKey == "" {
		return domain.Invalid("client_key es obligatorio")
	}
	if len(in.Lines) == 0 {
		return domain.Invalid("la venta no tiene líneas")
	}
	for i, l := range in.Lines {
		if l.ProductID == "" {
			return domain.Invalid("línea %d: product_id es obligatorio", i)
		}
		if l.Quantity <= 0 {
			return domain.Invalid("línea %d: cantidad debe ser mayor que cero", i)
		}
		if l.UnitPrice.IsNegative() {
			return domain.Invalid("línea %d: precio unitario negativo", i)
		}
	}
	return nil
}

func (s *Service) checkCatalog(ctx context.Context, tx repository.Tx, in ApplyInput) error {
	store, err := tx.Stores().GetByID(ctx, in.StoreID)
	if err != nil {
		return fmt.Errorf("buscar tienda: %w", err)
	}
	if store == nil || !store.Active {
		return fmt.Errorf("%w: %s", domain.ErrUnknownStore, in.StoreID)
	}
	for _, l := range in.Lines {
		p, err := tx.Products().GetByID(ctx, l.ProductID)
		if err != nil {
			return fmt.Errorf("buscar producto: %w", err)
		}
		if p == nil || !p.Active {
			return fmt.Errorf("%w: %s", domain.ErrUnknownProduct, l.ProductID)
		}
	}
	return nil
}
