package inventory

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// RegisterAdjustmentFromRequest adapta el request HTTP al caso de uso RegisterAdjustment.
func (uc *AdjustmentUseCase) RegisterAdjustmentFromRequest(ctx context.Context, actor entity.Actor, in dto.AdjustmentRequest) (*dto.PositionResponse, error) {
	res, err := uc.RegisterAdjustment(ctx, actor, AdjustmentInput{
		StoreID:         in.StoreID,
		ProductID:       in.ProductID,
		ClientKey:       in.ClientKey,
		Delta:           in.Delta,
		ExpectedVersion: in.ExpectedVersion,
	})
	if err != nil {
		return nil, err
	}
	out := dto.NewPositionResponse(res.Position)
	out.Duplicate = res.Duplicate
	return &out, nil
}
