package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/sale"
	"github.com/jhoicas/pos-multitienda/internal/domain"
)

// SaleHandler ventas de caja.
type SaleHandler struct {
	svc *sale.Service
}

// NewSaleHandler construye el handler.
func NewSaleHandler(svc *sale.Service) *SaleHandler {
	return &SaleHandler{svc: svc}
}

// Apply godoc
// @Summary      Aplicar venta
// @Description  Idempotente por (store_id, client_key): un reintento devuelve la misma venta con duplicate=true.
// @Tags         sales
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.ApplySaleRequest  true  "Tienda, llave del cliente y líneas"
// @Success      200   {object}  dto.SaleResponse
// @Failure      403   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse  "INSUFFICIENT_STOCK con shortages"
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/sales [post]
func (h *SaleHandler) Apply(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in dto.ApplySaleRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.svc.ApplySale(c.UserContext(), actor, sale.ApplyInput{
		StoreID:   in.StoreID,
		ClientKey: in.ClientKey,
		Lines:     in.ToSaleLines(),
	})
	if err != nil {
		if res != nil && res.Sale != nil {
			return withDetails(err, fiber.Map{
				"shortages": domain.ShortagesOf(err),
				"sale":      dto.NewSaleResponse(res.Sale, res.Duplicate),
			})
		}
		return err
	}
	return c.JSON(dto.NewSaleResponse(res.Sale, res.Duplicate))
}

// GetByID godoc
// @Summary      Obtener venta
// @Tags         sales
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la venta"
// @Success      200  {object}  dto.SaleResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sales/{id} [get]
func (h *SaleHandler) GetByID(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	s, err := h.svc.GetSale(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSaleResponse(s, false))
}

// Void godoc
// @Summary      Anular venta
// @Description  Devuelve el stock de una venta APPLIED. Anular una venta VOID es idempotente.
// @Tags         sales
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID de la venta"
// @Success      200  {object}  dto.SaleResponse
// @Failure      409  {object}  dto.ErrorResponse  "ILLEGAL_TRANSITION"
// @Router       /api/sales/{id}/void [post]
func (h *SaleHandler) Void(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	res, err := h.svc.VoidSale(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewSaleResponse(res.Sale, res.Duplicate))
}
