package http

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/transfer"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

// TransferHandler traslados entre tiendas.
type TransferHandler struct {
	svc *transfer.Service
}

// NewTransferHandler construye el handler.
func NewTransferHandler(svc *transfer.Service) *TransferHandler {
	return &TransferHandler{svc: svc}
}

// Create godoc
// @Summary      Crear traslado (DRAFT)
// @Description  transfer_id opcional; repetirlo devuelve el traslado existente con duplicate=true.
// @Tags         transfers
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreateTransferRequest  true  "Origen, destino y líneas"
// @Success      201   {object}  dto.TransferResponse
// @Success      200   {object}  dto.TransferResponse  "duplicado"
// @Failure      422   {object}  dto.ErrorResponse
// @Router       /api/transfers [post]
func (h *TransferHandler) Create(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in dto.CreateTransferRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.svc.Create(c.UserContext(), actor, transfer.CreateInput{
		TransferID:    in.TransferID,
		SourceStoreID: in.SourceStoreID,
		DestStoreID:   in.DestStoreID,
		Lines:         in.ToTransferLines(),
	})
	if err != nil {
		return err
	}
	status := fiber.StatusCreated
	if res.Duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(dto.NewTransferResponse(res.Transfer, res.Duplicate))
}

// GetByID godoc
// @Summary      Obtener traslado
// @Tags         transfers
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del traslado"
// @Success      200  {object}  dto.TransferResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/transfers/{id} [get]
func (h *TransferHandler) GetByID(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	t, err := h.svc.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTransferResponse(t, false))
}

// InTransit godoc
// @Summary      Unidades en tránsito del traslado
// @Tags         transfers
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del traslado"
// @Success      200  {array}   dto.PositionResponse
// @Router       /api/transfers/{id}/in-transit [get]
func (h *TransferHandler) InTransit(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	list, err := h.svc.InTransit(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]dto.PositionResponse, 0, len(list))
	for _, p := range list {
		out = append(out, dto.NewPositionResponse(p))
	}
	return c.JSON(out)
}

type transitionFunc func(ctx context.Context, actor entity.Actor, transferID string) (*transfer.Result, error)

func (h *TransferHandler) transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := actorOf(c)
		if err != nil {
			return err
		}
		res, err := fn(c.UserContext(), actor, c.Params("id"))
		if err != nil {
			return err
		}
		return c.JSON(dto.NewTransferResponse(res.Transfer, res.Duplicate))
	}
}

// Dispatch godoc
// @Summary      Despachar traslado
// @Description  Mueve las unidades del origen a la tienda de tránsito. Repetirlo es un no-op.
// @Tags         transfers
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del traslado"
// @Success      200  {object}  dto.TransferResponse
// @Failure      409  {object}  dto.ErrorResponse  "ILLEGAL_TRANSITION o INSUFFICIENT_STOCK"
// @Router       /api/transfers/{id}/dispatch [post]
func (h *TransferHandler) Dispatch(c *fiber.Ctx) error {
	return h.transition(h.svc.Dispatch)(c)
}

// Receive godoc
// @Summary      Recibir traslado
// @Tags         transfers
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del traslado"
// @Success      200  {object}  dto.TransferResponse
// @Failure      409  {object}  dto.ErrorResponse  "ILLEGAL_TRANSITION"
// @Router       /api/transfers/{id}/receive [post]
func (h *TransferHandler) Receive(c *fiber.Ctx) error {
	return h.transition(h.svc.Receive)(c)
}

// Cancel godoc
// @Summary      Cancelar traslado
// @Description  Desde DRAFT no mueve stock; desde DISPATCHED devuelve las unidades al origen.
// @Tags         transfers
// @Security     Bearer
// @Produce      json
// @Param        id   path  string  true  "ID del traslado"
// @Success      200  {object}  dto.TransferResponse
// @Failure      409  {object}  dto.ErrorResponse  "ILLEGAL_TRANSITION"
// @Router       /api/transfers/{id}/cancel [post]
func (h *TransferHandler) Cancel(c *fiber.Ctx) error {
	return h.transition(h.svc.Cancel)(c)
}
