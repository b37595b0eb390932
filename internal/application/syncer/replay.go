package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/shopspring/decimal"
)

// replay aplica una operación de la tienda edgeStoreID dentro de un savepoint.
// Devuelve el conflicto encontrado (o nil). Solo los errores INTERNAL abortan la ingesta completa.
func (c *Coordinator) replay(ctx context.Context, tx repository.Tx, edgeStoreID string, op entity.Operation) (*entity.ConflictRecord, error) {
	var found *entity.ConflictRecord
	var opErr error
	err := tx.Savepoint(ctx, func(sp repository.Tx) error {
		if opErr = checkOwnership(ctx, sp, edgeStoreID, op); opErr != nil {
			return opErr
		}
		found, opErr = c.apply(ctx, sp, op)
		if opErr != nil && !keepOnError(op, opErr) {
			return opErr
		}
		return nil
	})
	if err != nil && opErr == nil {
		return nil, err
	}
	if opErr == nil {
		return found, nil
	}
	if domain.KindOf(opErr) == domain.KindInternal {
		return nil, opErr
	}
	if found == nil {
		found = &entity.ConflictRecord{Reason: reasonFor(opErr), Resolution: entity.ResolutionRejected, Detail: opErr.Error()}
	}
	c.log.Warn().Err(opErr).Str("op_id", op.ID).Str("type", op.Type).Str("reason", found.Reason).Msg("operación rechazada al reproducir")
	return found, nil
}

// checkOwnership una tienda EDGE solo reproduce movimientos propios: ventas y ajustes
// de su tienda y traslados donde es origen o destino.
func checkOwnership(ctx context.Context, tx repository.Tx, edgeStoreID string, op entity.Operation) error {
	switch op.Type {
	case entity.OpSale, entity.OpSaleVoid, entity.OpAdjustment:
		if op.StoreID != edgeStoreID {
			return fmt.Errorf("%w: operación %s sobre la tienda %s enviada por %s", domain.ErrForbidden, op.ID, op.StoreID, edgeStoreID)
		}
	case entity.OpTransferCreate:
		if op.SourceStoreID != edgeStoreID && op.DestStoreID != edgeStoreID {
			return fmt.Errorf("%w: traslado %s ajeno a %s", domain.ErrForbidden, op.TransferID, edgeStoreID)
		}
	case entity.OpTransferDispatch, entity.OpTransferReceive, entity.OpTransferCancel:
		t, err := tx.Transfers().GetByID(ctx, op.TransferID)
		if err != nil {
			return domain.Internal("buscar traslado", err)
		}
		// inexistente: lo rechaza la transición misma
		if t != nil && t.SourceStoreID != edgeStoreID && t.DestStoreID != edgeStoreID {
			return fmt.Errorf("%w: traslado %s ajeno a %s", domain.ErrForbidden, op.TransferID, edgeStoreID)
		}
	}
	return nil
}

// keepOnError una venta sin stock queda VOID en la central: su savepoint se confirma.
func keepOnError(op entity.Operation, err error) bool {
	return op.Type == entity.OpSale && errors.Is(err, domain.ErrStockShort)
}

func (c *Coordinator) apply(ctx context.Context, tx repository.Tx, op entity.Operation) (*entity.ConflictRecord, error) {
	switch op.Type {
	case entity.OpSale:
		return c.replaySale(ctx, tx, op)
	case entity.OpSaleVoid:
		_, err := c.sales.VoidByClientKeyInTx(ctx, tx, op.ActorID, op.StoreID, op.ClientKey)
		return nil, err
	case entity.OpTransferCreate:
		lines := make([]entity.TransferLine, 0, len(op.Lines))
		for _, l := range op.Lines {
			lines = append(lines, entity.TransferLine{ProductID: l.ProductID, Quantity: l.Quantity})
		}
		_, err := c.transfers.CreateInTx(ctx, tx, op.ActorID, transfer.CreateInput{
			TransferID:    op.TransferID,
			SourceStoreID: op.SourceStoreID,
			DestStoreID:   op.DestStoreID,
			Lines:         lines,
		})
		return nil, err
	case entity.OpTransferDispatch:
		_, err := c.transfers.DispatchInTx(ctx, tx, op.ActorID, op.TransferID)
		return nil, err
	case entity.OpTransferReceive:
		_, err := c.transfers.ReceiveInTx(ctx, tx, op.ActorID, op.TransferID)
		return nil, err
	case entity.OpTransferCancel:
		_, err := c.transfers.CancelInTx(ctx, tx, op.ActorID, op.TransferID)
		return nil, err
	case entity.OpAdjustment:
		return c.replayAdjustment(ctx, tx, op)
	default:
		return nil, domain.Invalid("tipo de operación desconocido %q", op.Type)
	}
}

func (c *Coordinator) replaySale(ctx context.Context, tx repository.Tx, op entity.Operation) (*entity.ConflictRecord, error) {
	lines := make([]entity.SaleLine, 0, len(op.Lines))
	for i, l := range op.Lines {
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, domain.Invalid("línea %d: precio %q", i, l.UnitPrice)
		}
		lines = append(lines, entity.SaleLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: price})
	}
	res, err := c.sales.ApplyInTx(ctx, tx, op.ActorID, sale.ApplyInput{
		StoreID:   op.StoreID,
		ClientKey: op.ClientKey,
		Lines:     lines,
		SaleID:    op.SaleID,
	})
	if errors.Is(err, domain.ErrStockShort) {
		return &entity.ConflictRecord{
			Reason:     entity.ConflictStockShort,
			Resolution: entity.ResolutionRejected,
			Detail:     shortageDetail(op.ClientKey, domain.ShortagesOf(err)),
		}, err
	}
	if err != nil {
		return nil, err
	}
	if res.Duplicate && !res.Sale.SameLines(lines) {
		return &entity.ConflictRecord{
			Reason:     entity.ConflictDupKey,
			Resolution: entity.ResolutionSuperseded,
			Detail:     fmt.Sprintf("venta %s con llave %s ya existía con otras líneas; prevalece el registro central", res.Sale.ID, op.ClientKey),
		}, nil
	}
	return nil, nil
}

// replayAdjustment con versión vencida reintenta una vez con la versión actual;
// si sigue vencida prevalecen los valores centrales.
func (c *Coordinator) replayAdjustment(ctx context.Context, tx repository.Tx, op entity.Operation) (*entity.ConflictRecord, error) {
	in := inventory.AdjustmentInput{
		StoreID:         op.StoreID,
		ProductID:       op.ProductID,
		ClientKey:       op.ClientKey,
		Delta:           op.Delta,
		ExpectedVersion: op.ExpectedVersion,
	}
	_, err := c.adjustments.RegisterAdjustmentInTx(ctx, tx, op.ActorID, in, entity.MovementKindSyncApply)
	if !errors.Is(err, domain.ErrVersionConflict) {
		return nil, err
	}

	pos, rerr := tx.Positions().Get(ctx, op.StoreID, op.ProductID)
	if rerr != nil {
		return nil, domain.Internal("releer posición", rerr)
	}
	stale := *op.ExpectedVersion
	in.ExpectedVersion = &pos.Version
	_, err = c.adjustments.RegisterAdjustmentInTx(ctx, tx, op.ActorID, in, entity.MovementKindSyncApply)
	if errors.Is(err, domain.ErrVersionConflict) {
		return &entity.ConflictRecord{
			Reason:     entity.ConflictVersionStale,
			Resolution: entity.ResolutionMerged,
			Detail:     fmt.Sprintf("ajuste %s esperaba versión %d, la central tiene %d; se conservan los valores centrales", op.ClientKey, stale, pos.Version),
		}, nil
	}
	return nil, err
}

// reasonFor traduce el error de una operación a la razón del conflicto.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrStockShort):
		return entity.ConflictStockShort
	case errors.Is(err, domain.ErrVersionConflict):
		return entity.ConflictVersionStale
	case errors.Is(err, domain.ErrDuplicate):
		return entity.ConflictDupKey
	case errors.Is(err, domain.ErrUnknownProduct), errors.Is(err, domain.ErrUnknownStore):
		return entity.ConflictUnknownProduct
	default:
		return entity.ConflictIllegalTransition
	}
}

func shortageDetail(clientKey string, shortages []domain.Shortage) string {
	parts := make([]string, 0, len(shortages))
	for _, s := range shortages {
		parts = append(parts, fmt.Sprintf("%s/%s disponible=%d solicitado=%d", s.StoreID, s.ProductID, s.Available, s.Requested))
	}
	return fmt.Sprintf("venta %s anulada por falta de stock: %s", clientKey, strings.Join(parts, ", "))
}
