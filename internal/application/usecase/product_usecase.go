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

// ProductUseCase casos de uso del catálogo. El stock se maneja vía Ledger, nunca aquí.
type ProductUseCase struct {
	runner repository.TxRunner
	guard  Guard
	clock  clock.Clock
}

// NewProductUseCase construye el caso de uso.
func NewProductUseCase(runner repository.TxRunner, guard Guard, clk clock.Clock) *ProductUseCase {
	return &ProductUseCase{runner: runner, guard: guard, clock: clk}
}

// Create crea un nuevo producto activo. El SKU es único global.
func (uc *ProductUseCase) Create(ctx context.Context, actor entity.Actor, in dto.CreateProductRequest) (*dto.ProductResponse, error) {
	if err := uc.guard.Check(actor, "", access.ActionAdmin); err != nil {
		return nil, err
	}
	if in.UnitPrice.IsNegative() {
		return nil, domain.Invalid("precio unitario negativo")
	}
	now := uc.clock.Now()
	product := &entity.Product{
		ID:                uc.clock.NewID(),
		SKU:               in.SKU,
		Name:              in.Name,
		UnitPrice:         in.UnitPrice,
		Active:            true,
		LowStockThreshold: in.LowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := uc.runner.Run(ctx, func(tx repository.Tx) error {
		existing, err := tx.Products().GetBySKU(ctx, in.SKU)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: sku %s", domain.ErrDuplicate, in.SKU)
		}
		return tx.Products().Create(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

// GetByID obtiene un producto por ID.
func (uc *ProductUseCase) GetByID(ctx context.Context, id string) (*dto.ProductResponse, error) {
	var product *entity.Product
	err := uc.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, fmt.Errorf("%w: producto %s", domain.ErrNotFound, id)
	}
	return toProductResponse(product), nil
}

// Update actualiza nombre, precio, umbral o estado. El SKU no cambia.
func (uc *ProductUseCase) Update(ctx context.Context, actor entity.Actor, id string, in dto.UpdateProductRequest) (*dto.ProductResponse, error) {
	if err := uc.guard.Check(actor, "", access.ActionAdmin); err != nil {
		return nil, err
	}
	if in.UnitPrice != nil && in.UnitPrice.IsNegative() {
		return nil, domain.Invalid("precio unitario negativo")
	}
	var product *entity.Product
	err := uc.runner.Run(ctx, func(tx repository.Tx) error {
		var err error
		product, err = tx.Products().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if product == nil {
			return fmt.Errorf("%w: producto %s", domain.ErrNotFound, id)
		}
		if in.Name != nil {
			product.Name = *in.Name
		}
		if in.UnitPrice != nil {
			product.UnitPrice = *in.UnitPrice
		}
		if in.LowStockThreshold != nil {
			product.LowStockThreshold = in.LowStockThreshold
		}
		if in.Active != nil {
			product.Active = *in.Active
		}
		product.UpdatedAt = uc.clock.Now()
		return tx.Products().Update(ctx, product)
	})
	if err != nil {
		return nil, err
	}
	return toProductResponse(product), nil
}

// List lista productos con paginación.
func (uc *ProductUseCase) List(ctx context.Context, limit, offset int) (*dto.ProductListResponse, error) {
	var list []*entity.Product
	err := uc.runner.ReadOnly(ctx, func(tx repository.Tx) error {
		var err error
		list, err = tx.Products().List(ctx, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	items := make([]dto.ProductResponse, 0, len(list))
	for _, p := range list {
		items = append(items, *toProductResponse(p))
	}
	return &dto.ProductListResponse{
		Items: items,
		Page:  dto.PageResponse{Limit: limit, Offset: offset},
	}, nil
}

func toProductResponse(p *entity.Product) *dto.ProductResponse {
	if p == nil {
		return nil
	}
	return &dto.ProductResponse{
		ID:                p.ID,
		SKU:               p.SKU,
		Name:              p.Name,
		UnitPrice:         p.UnitPrice,
		Active:            p.Active,
		LowStockThreshold: p.LowStockThreshold,
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}
