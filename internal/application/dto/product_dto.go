package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreateProductRequest entrada para crear un producto.
type CreateProductRequest struct {
	SKU               string          `json:"sku" validate:"required,min=1,max=100"`
	Name              string          `json:"name" validate:"required,min=1,max=200"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	LowStockThreshold *int64          `json:"low_stock_threshold,omitempty" validate:"omitempty,min=0"`
}

// UpdateProductRequest entrada para actualizar un producto. El SKU no se modifica.
type UpdateProductRequest struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=200"`
	UnitPrice         *decimal.Decimal `json:"unit_price"`
	LowStockThreshold *int64           `json:"low_stock_threshold" validate:"omitempty,min=0"`
	Active            *bool            `json:"active"`
}

// ProductResponse salida de un producto.
type ProductResponse struct {
	ID                string          `json:"id"`
	SKU               string          `json:"sku"`
	Name              string          `json:"name"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	Active            bool            `json:"active"`
	LowStockThreshold *int64          `json:"low_stock_threshold,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ProductListResponse lista paginada de productos.
type ProductListResponse struct {
	Items []ProductResponse `json:"items"`
	Page  PageResponse      `json:"page"`
}
