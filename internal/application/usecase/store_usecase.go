package usecase

import (
	"context"
	"fmt"

	"github.com/jhoicas/pos-multitienda/internal/application/access"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
	"github.com/jhoicas/pos-multitienda/internal/domain/repository"
	"github.com/jhoicas/pos-multitienda/pkg/clock"
)

// Guard autoriza acciones sobre tiendas.
type Guard interface {
	Check(actor entity.Actor, storeID string, action access.Action) error
}

// StoreUseCase alta y mantenimiento de tiendas. Las tiendas no se borran: se desactivan.
type StoreUseCase struct {
	runner repository.TxRunner
	guard  Guard
	clock  clock.Clock
}

// NewStoreUseCase construye el caso de uso.
func NewStoreUseCase(runner repository.TxRunner, guard Guard, clk clock.Clock) *StoreUseCase {
	return &StoreUseCase{runner: runner, guard: guard, clock: clk}
}

// Create crea una tienda. Solo puede existir una CENTRAL; el código es único.
func (uc *StoreUseCase) Create(ctx context.Context, actor entity.Actor, in dto.CreateStoreRequest) (*dto.StoreResponse, error) {
	if err := uc.guard.Check(actor, "", access.ActionAdmin); err != nil {
		return nil, err
	}
	if in.Kind != entity.StoreKindCentral && in.Kind != entity.StoreKindEdge {
		return nil, domain.Invalid("tipo de tienda %q", in.Kind)
	}
	now := uc.clock.Now()
	store := &entity.Store{
		ID:        uc.clock.NewID(),
		Code:      in.Code,
		Name:      in.Name,
		Kind:      in.Kind,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := uc.runner.Run(ctx, func(tx repository.Tx) error {
		if store.IsCentral() {
			central, err := tx.Stores().GetCentral(ctx)
			if err != nil {
				return err
			}
			if central != nil {
				return fmt.Errorf("%w: ya existe la tienda central %s", domain.ErrDuplicate, central.ID)
			}
		}
		return tx.Stores().Create(ctx, store)
	})
	if err != nil {
		return nil, err
	}
	return toStoreResponse(store), nil
}

// GetByID obtiene una tienda; requiere READ sobre ella.
func (uc *StoreUseCase) GetByID(ctx context.Context, actor entity.Actor, id string) (*dto.StoreResponse, error) {
	if err := uc.guard.Check(actor, id, access.ActionRead); err != nil {
		return nil, err
	}
	var store *entity.Store
	err := uc.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		store, err = tx.Stores().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: tienda %s", domain.ErrNotFound, id)
	}
	return toStoreResponse(store), nil
}

// Update actualiza el nombre de una tienda.
func (uc *StoreUseCase) Update(ctx context.Context, actor entity.Actor, id string, in dto.UpdateStoreRequest) (*dto.StoreResponse, error) {
	if err := uc.guard.Check(actor, id, access.ActionAdmin); err != nil {
		return nil, err
	}
	var store *entity.Store
	err := uc.runner.Run(ctx, func(tx repository.Tx) error {
		var err error
		store, err = tx.Stores().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("%w: tienda %s", domain.ErrNotFound, id)
		}
		if in.Name != nil {
			store.Name = *in.Name
		}
		store.UpdatedAt = uc.clock.Now()
		return tx.Stores().Update(ctx, store)
	})
	if err != nil {
		return nil, err
	}
	return toStoreResponse(store), nil
}

// Deactivate desactiva la tienda. Se rechaza si es la central, tiene stock o traslados abiertos.
func (uc *StoreUseCase) Deactivate(ctx context.Context, actor entity.Actor, id string) (*dto.StoreResponse, error) {
	if err := uc.guard.Check(actor, id, access.ActionAdmin); err != nil {
		return nil, err
	}
	var store *entity.Store
	err := uc.runner.Run(ctx, func(tx repository.Tx) error {
		var err error
		store, err = tx.Stores().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if store == nil {
			return fmt.Errorf("%w: tienda %s", domain.ErrNotFound, id)
		}
		if !store.Active {
			return nil
		}
		if store.IsCentral() {
			return fmt.Errorf("%w: la tienda central no se desactiva", domain.ErrIllegalTransition)
		}
		stocked, err := tx.Positions().CountNonZero(ctx, id)
		if err != nil {
			return err
		}
		open, err := tx.Transfers().CountOpenByStore(ctx, id)
		if err != nil {
			return err
		}
		if stocked > 0 || open > 0 {
			return fmt.Errorf("%w: tienda %s con %d posiciones con stock y %d traslados abiertos",
				domain.ErrIllegalTransition, id, stocked, open)
		}
		store.Active = false
		store.UpdatedAt = uc.clock.Now()
		return tx.Stores().Update(ctx, store)
	})
	if err != nil {
		return nil, err
	}
	return toStoreResponse(store), nil
}

// List lista tiendas con paginación.
func (uc *StoreUseCase) List(ctx context.Context, actor entity.Actor, limit, offset int) (*dto.StoreListResponse, error) {
	if err := uc.guard.Check(actor, "", access.ActionAdmin); err != nil {
		return nil, err
	}
	var list []*entity.Store
	err := uc.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Stores().List(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]dto.StoreResponse, 0, len(list))
	for _, s := range list {
		items = append(items, *toStoreResponse(s))
	}
	return &dto.StoreListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset},
	}, nil
}

func toStoreResponse(s *entity.Store) *dto.StoreResponse {
	if s == nil {
		return nil
	}
	return &dto.StoreResponse{
		ID:        s.ID,
		Code:      s.Code,
		Name:      s.Name,
		Kind:      s.Kind,
		Active:    s.Active,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
