package sale

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// journaled deja op en espera antes de apply, la libera para sellar si apply confirmó
// y la descarta si apply falló o no cambió nada.
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

func (s *Service) saleOperation(actorID string, in ApplyInput) entity.Operation {
	lines := make([]entity.OperationLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		lines = append(lines, entity.OperationLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice.String()})
	}
	return entity.Operation{
		ID:         s.clock.NewID(),
		Type:       entity.OpSale,
		StoreID:    in.StoreID,
		ActorID:    actorID,
		ClientKey:  in.ClientKey,
		SaleID:     in.SaleID,
		Lines:      lines,
		RecordedAt: s.clock.Now(),
	}
}
