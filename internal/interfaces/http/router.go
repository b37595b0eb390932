package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
	"github.com/jhoicas/pos-multitienda/internal/application/report"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/application/usecase"
)

// RouterDeps dependencias para el router. Coordinator y Reporter son nil en nodos EDGE.
type RouterDeps struct {
	StoreUC         *usecase.StoreUseCase
	ProductUC       *usecase.ProductUseCase
	Sales           *sale.Service
	Transfers       *transfer.Service
	Adjustments     *inventory.AdjustmentUseCase
	InventoryQuery  *inventory.QueryUseCase
	Reporter        *report.Reporter
	Coordinator     *syncer.Coordinator
	Admission       *Admission
	RequestDeadline time.Duration
	JWTSecret       string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")
	if deps.Admission != nil {
		api.Use(deps.Admission.Middleware())
	}
	api.Use(Deadline(deps.RequestDeadline))

	// Todas las rutas requieren Bearer Token
	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	stores := protected.Group("/stores")
	storeHandler := NewStoreHandler(deps.StoreUC)
	stores.Post("/", storeHandler.Create)
	stores.Get("/", storeHandler.List)
	stores.Get("/:id", storeHandler.GetByID)
	stores.Put("/:id", storeHandler.Update)
	stores.Post("/:id/deactivate", storeHandler.Deactivate)

	products := protected.Group("/products")
	productHandler := NewProductHandler(deps.ProductUC)
	products.Post("/", productHandler.Create)
	products.Get("/", productHandler.List)
	products.Get("/:id", productHandler.GetByID)
	products.Put("/:id", productHandler.Update)

	sales := protected.Group("/sales")
	saleHandler := NewSaleHandler(deps.Sales)
	sales.Post("/", saleHandler.Apply)
	sales.Get("/:id", saleHandler.GetByID)
	sales.Post("/:id/void", saleHandler.Void)

	transfers := protected.Group("/transfers")
	transferHandler := NewTransferHandler(deps.Transfers)
	transfers.Post("/", transferHandler.Create)
	transfers.Get("/:id", transferHandler.GetByID)
	transfers.Get("/:id/in-transit", transferHandler.InTransit)
	transfers.Post("/:id/dispatch", transferHandler.Dispatch)
	transfers.Post("/:id/receive", transferHandler.Receive)
	transfers.Post("/:id/cancel", transferHandler.Cancel)

	invGroup := protected.Group("/inventory")
	inventoryHandler := NewInventoryHandler(deps.Adjustments, deps.InventoryQuery)
	invGroup.Get("/", inventoryHandler.GetPosition)
	invGroup.Get("/history", inventoryHandler.History)
	invGroup.Post("/adjustments", inventoryHandler.RegisterAdjustment)

	// Solo en la central
	if deps.Reporter != nil {
		reports := protected.Group("/reports")
		reportHandler := NewReportHandler(deps.Reporter)
		reports.Get("/sales", reportHandler.Sales)
		reports.Get("/valuation", reportHandler.Valuation)
		reports.Get("/top-products", reportHandler.TopProducts)
		reports.Get("/low-stock", reportHandler.LowStock)
		reports.Get("/transfers", reportHandler.Transfers)
	}
	if deps.Coordinator != nil {
		syncGroup := protected.Group("/sync")
		syncHandler := NewSyncHandler(deps.Coordinator)
		syncGroup.Post("/envelopes", syncHandler.Ingest)
		syncGroup.Get("/edges/:id", syncHandler.EdgeStatus)
	}
}
