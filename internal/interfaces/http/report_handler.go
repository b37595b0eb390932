package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/report"
	"github.com/jhoicas/pos-multitienda/internal/domain"
)

// ReportHandler reportes consolidados (solo roles CENTRAL).
type ReportHandler struct {
	reporter *report.Reporter
}

// NewReportHandler construye el handler.
func NewReportHandler(reporter *report.Reporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

func parseReportQuery(c *fiber.Ctx) (dto.ReportQuery, report.Range, report.Page, error) {
	var q dto.ReportQuery
	if err := parseQuery(c, &q); err != nil {
		return q, report.Range{}, report.Page{}, err
	}
	var rng report.Range
	var err error
	if q.From != "" {
		if rng.From, err = time.Parse(time.RFC3339, q.From); err != nil {
			return q, rng, report.Page{}, domain.Invalid("from debe ser RFC3339")
		}
	}
	if q.To != "" {
		if rng.To, err = time.Parse(time.RFC3339, q.To); err != nil {
			return q, rng, report.Page{}, domain.Invalid("to debe ser RFC3339")
		}
	}
	return q, rng, report.Page{Limit: q.Limit, Token: q.Token}, nil
}

// Sales godoc
// @Summary      Ventas por tienda y total global
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        from   query  string  false  "Desde (RFC3339)"
// @Param        to     query  string  false  "Hasta (RFC3339)"
// @Param        limit  query  int     false  "Tamaño de página"
// @Param        token  query  string  false  "Continuación"
// @Success      200  {object}  dto.SalesTotalsResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Router       /api/reports/sales [get]
func (h *ReportHandler) Sales(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	_, rng, page, err := parseReportQuery(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.SalesTotals(c.UserContext(), actor, rng, page)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Valuation godoc
// @Summary      Valorización del inventario por tienda
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        limit  query  int     false  "Tamaño de página"
// @Param        token  query  string  false  "Continuación"
// @Success      200  {object}  dto.ValuationResponse
// @Router       /api/reports/valuation [get]
func (h *ReportHandler) Valuation(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	_, _, page, err := parseReportQuery(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.InventoryValuation(c.UserContext(), actor, page)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// TopProducts godoc
// @Summary      Productos más vendidos
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        from   query  string  false  "Desde (RFC3339)"
// @Param        to     query  string  false  "Hasta (RFC3339)"
// @Param        n      query  int     false  "Cantidad de productos"  default(10)
// @Param        limit  query  int     false  "Tamaño de página"
// @Param        token  query  string  false  "Continuación"
// @Success      200  {object}  dto.TopProductsResponse
// @Router       /api/reports/top-products [get]
func (h *ReportHandler) TopProducts(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	q, rng, page, err := parseReportQuery(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.TopProducts(c.UserContext(), actor, rng, q.N, page)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// LowStock godoc
// @Summary      Posiciones bajo el umbral
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        store_id  query  string  false  "Tienda; vacío = todas"
// @Param        limit     query  int     false  "Tamaño de página"
// @Param        token     query  string  false  "Continuación"
// @Success      200  {object}  dto.LowStockResponse
// @Router       /api/reports/low-stock [get]
func (h *ReportHandler) LowStock(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	q, _, page, err := parseReportQuery(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.LowStock(c.UserContext(), actor, q.StoreID, page)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// Transfers godoc
// @Summary      Traslados recibidos y en tránsito por par de tiendas
// @Tags         reports
// @Security     Bearer
// @Produce      json
// @Param        from   query  string  false  "Desde (RFC3339)"
// @Param        to     query  string  false  "Hasta (RFC3339)"
// @Param        limit  query  int     false  "Tamaño de página"
// @Param        token  query  string  false  "Continuación"
// @Success      200  {object}  dto.TransferThroughputResponse
// @Router       /api/reports/transfers [get]
func (h *ReportHandler) Transfers(c *fiber.Ctx) error {
	actor, err := actorOf(c)
	if err != nil {
		return err
	}
	_, rng, page, err := parseReportQuery(c)
	if err != nil {
		return err
	}
	out, err := h.reporter.TransferThroughput(c.UserContext(), actor, rng, page)
	if err != nil {
		return err
	}
	return c.JSON(out)
}
