package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
)

// SyncHandler ingesta de sobres de las tiendas EDGE (nodo central).
type SyncHandler struct {
	coordinator *syncer.Coordinator
}

// NewSyncHandler construye el handler.
func NewSyncHandler(coordinator *syncer.Coordinator) *SyncHandler {
	return &SyncHandler{coordinator: coordinator}
}

func ingestResponse(res *syncer.IngestResult) dto.IngestResponse {
	return dto.IngestResponse{
		Accepted:             res.Accepted,
		Duplicate:            res.Duplicate,
		LastAcceptedSequence: res.LastAcceptedSequence,
		Conflicts:            dto.NewConflictDTOs(res.Conflicts),
		BackoffHint:          res.BackoffHint,
	}
}

// Ingest godoc
// @Summary      Ingerir sobre de sincronización
// @Description  Reproduce en orden las operaciones del sobre. OUT_OF_ORDER y CORRUPT_ENVELOPE devuelven en details el último sequence aceptado.
// @Tags         sync
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.EnvelopeRequest  true  "Sobre sellado por la EDGE"
// @Success      200   {object}  dto.IngestResponse
// @Failure      400   {object}  dto.ErrorResponse  "CORRUPT_ENVELOPE"
// @Failure      409   {object}  dto.ErrorResponse  "OUT_OF_ORDER"
// @Failure      503   {object}  dto.ErrorResponse  "OVERLOADED"
// @Router       /api/sync/envelopes [post]
func (h *SyncHandler) Ingest(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var in dto.EnvelopeRequest
	if err := parseBody(c, &in); err != nil {
		return err
	}
	res, err := h.coordinator.Ingest(c.UserContext(), actor, in.ToEnvelope())
	if err != nil {
		if res == nil {
			return err
		}
		if errors.Is(err, domain.ErrOverloaded) && res.BackoffHint > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(res.BackoffHint))
		}
		return withDetails(err, ingestResponse(res))
	}
	return c.JSON(ingestResponse(res))
}

// EdgeStatus godoc
// @Summary      Cursor y conflictos de una EDGE
// @Tags         sync
// @Security     Bearer
// @Produce      json
// @Param        id      path   string  true   "ID de la tienda EDGE"
// @Param        limit   query  int     false  "Límite"  default(20)
// @Param        offset  query  int     false  "Offset"  default(0)
// @Success      200  {object}  dto.EdgeStatusResponse
// @Router       /api/sync/edges/{id} [get]
func (h *SyncHandler) EdgeStatus(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	var page dto.PageRequest
	if err := parseQuery(c, &page); err != nil {
		return err
	}
	page.DefaultPage()
	edgeID := c.Params("id")

	conflicts, err := h.coordinator.Conflicts(c.UserContext(), actor, edgeID, page.Limit, page.Offset)
	if err != nil {
		return err
	}
	cursor, err := h.coordinator.LastAccepted(c.UserContext(), edgeID)
	if err != nil {
		return err
	}
	return c.JSON(dto.EdgeStatusResponse{
		EdgeStoreID:          edgeID,
		LastAcceptedSequence: cursor.LastSequence,
		UpdatedAt:            cursor.UpdatedAt,
		Conflicts:            dto.NewConflictDTOs(conflicts),
		Page:                 dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	})
}
