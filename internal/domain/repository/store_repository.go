package repository

import (
	"context"

	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// StoreRepository define el puerto de persistencia para Store.
// GetByID devuelve (nil, nil) si no existe.
type StoreRepository interface {
	Create(ctx context.Context, store *entity.Store) error
	GetByID(ctx context.Context, id string) (*entity.Store, error)
	GetCentral(ctx context.Context) (*entity.Store, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Store, error)
	Update(ctx context.Context, store *entity.Store) error
}
