package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/inventory"
)

// InventoryHandler posiciones, historial y ajustes de stock.
type InventoryHandler struct {
	adjustments *inventory.AdjustmentUseCase
	query       *inventory.QueryUseCase
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(adjustments *inventory.AdjustmentUseCase, query *inventory.QueryUseCase) *InventoryHandler {
	return &InventoryHandler{adjustments: adjustments, query: query}
}

// GetPosition godoc
// @Summary      Posición de stock
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        store_id    query  string  true  "Tienda"
// @Param        product_id  query  string  true  "Producto"
// @Success      200  {object}  dto.PositionResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/inventory [get]
func (h *InventoryHandler) GetPosition(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var q dto.PositionQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	out, err := h.query.Position(c.UserContext(), actor, q.StoreID, q.ProductID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// History godoc
// @Summary      Historial de movimientos de una posición
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        store_id    query  string  true   "Tienda"
// @Param        product_id  query  string  true   "Producto"
// @Param        from        query  string  false  "Desde (RFC3339)"
// @Param        to          query  string  false  "Hasta (RFC3339)"
// @Success      200  {array}   dto.MovementResponse
// @Router       /api/inventory/history [get]
func (h *InventoryHandler) History(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var q dto.HistoryQuery
	if err := parseQuery(c, &q); err != nil {
		return err
	}
	list, err := h.query.History(c.UserContext(), actor, q)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// RegisterAdjustment godoc
// @Summary      Registrar ajuste de inventario
// @Description  Idempotente por (store_id, client_key). expected_version opcional rechaza con VERSION_CONFLICT si la posición cambió.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustmentRequest  true  "Tienda, producto, llave y delta"
// @Success      201   {object}  dto.PositionResponse
// @Success      200   {object}  dto.PositionResponse  "duplicado"
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/inventory/adjustments [post]
func (h *InventoryHandler) RegisterAdjustment(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in dto.AdjustmentRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	out, err := h.adjustments.RegisterAdjustmentFromRequest(c.UserContext(), actor, in)
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if out.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(out)
}
