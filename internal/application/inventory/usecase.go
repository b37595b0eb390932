package inventory

import (
	"context"
	"fmt"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/ledger"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// AdjustmentUseCase registra ajustes de inventario (conteos, recepción de proveedor, mermas)
// como movimientos ADJUSTMENT del Ledger, idempotentes por client_key.
type AdjustmentUseCase struct {
	txRunner repository.TxRunner
	ledger   LedgerWriter
	guard    Guard
	clock    clock.Clock
	log      *logger.Logger
	journal  repository.OperationJournal
}

// Option configura el caso de uso.
type Option func(*AdjustmentUseCase)

// WithJournal registra cada ajuste en el journal local antes de aplicarlo (nodos EDGE).
func WithJournal(j repository.OperationJournal) Option {
	return func(uc *AdjustmentUseCase) { uc.journal = j }
}

// NewAdjustmentUseCase construye el caso de uso.
func NewAdjustmentUseCase(
	txRunner repository.TxRunner,
	l LedgerWriter,
	guard Guard,
	clk clock.Clock,
	log *logger.Logger,
	opts ...Option,
) *AdjustmentUseCase {
	uc := &AdjustmentUseCase{
		txRunner: txRunner,
		ledger:   l,
		guard:    guard,
		clock:    clk,
		log:      log.Named("inventory"),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// AdjustmentInput ajuste sobre una posición. Delta positivo entra, negativo sale.
// ExpectedVersion (opcional) exige que la posición no haya cambiado desde que se leyó.
type AdjustmentInput struct {
	StoreID         string
	ProductID       string
	ClientKey       string
	Delta           int64
	ExpectedVersion *int64
}

// AdjustmentResult posición resultante; Duplicate si la llave ya se había aplicado.
type AdjustmentResult struct {
	Position  *entity.StockPosition
	Duplicate bool
}

// AdjustmentRef ref_id de los movimientos de un ajuste.
func AdjustmentRef(storeID, clientKey string) string {
	return "adj:" + storeID + ":" + clientKey
}

// RegisterAdjustment valida, registra en el journal (si hay) y aplica el ajuste en su propia transacción.
func (uc *AdjustmentUseCase) RegisterAdjustment(ctx context.Context, actor entity.Actor, in AdjustmentInput) (*AdjustmentResult, error) {
	if err := uc.guard.Check(actor, in.StoreID, access.ActionWrite); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}

	op := entity.Operation{
		ID:              uc.clock.NewID(),
		Type:            entity.OpAdjustment,
		StoreID:         in.StoreID,
		ActorID:         actor.ID,
		ClientKey:       in.ClientKey,
		ProductID:       in.ProductID,
		Delta:           in.Delta,
		ExpectedVersion: in.ExpectedVersion,
		RecordedAt:      uc.clock.Now(),
	}
	if uc.journal != nil {
		if err := uc.journal.Record(ctx, op); err != nil {
			return nil, err
		}
	}

	var res *AdjustmentResult
	err := uc.txRunner.Run(ctx, func(tx repository.Tx) error {
		var err error
		res, err = uc.RegisterAdjustmentInTx(ctx, tx, actor.ID, in, entity.MovementKindAdjustment)
		return err
	})
	if uc.journal != nil {
		if err != nil || res.Duplicate {
			if derr := uc.journal.Discard(context.WithoutCancel(ctx), op.ID); derr != nil {
				uc.log.Error().Err(derr).Str("op_id", op.ID).Msg("no se pudo descartar la operación del journal")
			}
		} else if cerr := uc.journal.Commit(context.WithoutCancel(ctx), op.ID); cerr != nil {
			uc.log.Error().Err(cerr).Str("op_id", op.ID).Msg("no se pudo liberar la operación del journal")
		}
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// RegisterAdjustmentInTx aplica el ajuste dentro de la transacción del caller.
// kind es ADJUSTMENT en operación normal y SYNC_APPLY cuando lo reproduce la central.
func (uc *AdjustmentUseCase) RegisterAdjustmentInTx(
	ctx context.Context,
	tx repository.Tx,
	actorID string,
	in AdjustmentInput,
	kind string,
) (*AdjustmentResult, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	ref := AdjustmentRef(in.StoreID, in.ClientKey)
	for _, k := range []string{entity.MovementKindAdjustment, entity.MovementKindSyncApply} {
		done, err := tx.Movements().ExistsByRef(ctx, ref, k)
		if err != nil {
			return nil, fmt.Errorf("buscar ajuste: %w", err)
		}
		if done {
			pos, err := tx.Positions().Get(ctx, in.StoreID, in.ProductID)
			if err != nil {
				return nil, fmt.Errorf("leer posición: %w", err)
			}
			return &AdjustmentResult{Position: pos, Duplicate: true}, nil
		}
	}

	store, err := tx.Stores().GetByID(ctx, in.StoreID)
	if err != nil {
		return nil, fmt.Errorf("buscar tienda: %w", err)
	}
	if store == nil || !store.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStore, in.StoreID)
	}
	product, err := tx.Products().GetByID(ctx, in.ProductID)
	if err != nil {
		return nil, fmt.Errorf("buscar producto: %w", err)
	}
	if product == nil || !product.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, in.ProductID)
	}

	batch := ledger.Batch{Lines: []ledger.Line{{
		StoreID:   in.StoreID,
		ProductID: in.ProductID,
		Delta:     in.Delta,
		Kind:      kind,
		RefID:     ref,
		ActorID:   actorID,
	}}}
	if in.ExpectedVersion != nil {
		batch.ExpectedVersions = map[entity.PositionKey]int64{
			{StoreID: in.StoreID, ProductID: in.ProductID}: *in.ExpectedVersion,
		}
	}
	positions, err := uc.ledger.ApplyInTx(ctx, tx, batch)
	if err != nil {
		return nil, err
	}
	return &AdjustmentResult{Position: positions[0]}, nil
}

func validate(in AdjustmentInput) error {
	switch {
	case in.StoreID == "" || in.ProductID == "":
		return domain.Invalid("store_id y product_id son obligatorios")
	case entity.IsTransitStore(in.StoreID):
		return domain.Invalid("no se ajusta stock en tránsito")
	case in.ClientKey == "":
		return domain.Invalid("client_key es obligatorio")
	case in.Delta == 0:
		return domain.Invalid("delta no puede ser cero")
	}
	return nil
}
