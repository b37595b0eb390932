package http

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// detailedError agrega un cuerpo de detalles a la respuesta de error.
type detailedError struct {
	err     error
	details any
}

func (e *detailedError) Error() string { return e.err.Error() }
func (e *detailedError) Unwrap() error { return e.err }

func withDetails(err error, details any) error {
	return &detailedError{err: err, details: details}
}

// statusFor código HTTP de cada Kind.
func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindInsufficientStock, domain.KindIllegalTransition, domain.KindDuplicate,
		domain.KindOutOfOrder, domain.KindVersionConflict:
		return fiber.StatusConflict
	case domain.KindCorruptEnvelope:
		return fiber.StatusBadRequest
	case domain.KindInvalidInput:
		return fiber.StatusUnprocessableEntity
	case domain.KindUnauthorized:
		return fiber.StatusUnauthorized
	case domain.KindForbidden:
		return fiber.StatusForbidden
	case domain.KindNotFound:
		return fiber.StatusNotFound
	case domain.KindOverloaded:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// ErrorHandler traduce los errores de los handlers a ErrorResponse.
// Los INTERNAL se registran con el request id y no exponen la causa.
func ErrorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(dto.ErrorResponse{Code: fiberCode(fe.Code), Message: fe.Message})
		}

		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: plazo de la solicitud agotado", domain.ErrOverloaded)
		}
		kind := domain.KindOf(err)
		status := statusFor(kind)
		resp := dto.ErrorResponse{Code: string(kind), Message: err.Error()}

		var de *detailedError
		if errors.As(err, &de) {
			resp.Details = de.details
		} else if shortages := domain.ShortagesOf(err); len(shortages) > 0 {
			resp.Details = fiber.Map{"shortages": shortages}
		}

		switch kind {
		case domain.KindInternal:
			log.Error().Err(err).
				Str("request_id", requestID(c)).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Msg("error interno")
			resp.Message = domain.ErrInternal.Error()
		case domain.KindOverloaded:
			if len(c.Response().Header.Peek(fiber.HeaderRetryAfter)) == 0 {
				c.Set(fiber.HeaderRetryAfter, "1")
			}
		}
		return c.Status(status).JSON(resp)
	}
}

func fiberCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return string(domain.KindNotFound)
	case fiber.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case fiber.StatusRequestEntityTooLarge:
		return "BODY_TOO_LARGE"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return string(domain.KindInvalidInput)
	case fiber.StatusRequestTimeout:
		return "TIMEOUT"
	default:
		return string(domain.KindInternal)
	}
}

func requestID(c *fiber.Ctx) string {
	if v, ok := c.Locals("requestid").(string); ok {
		return v
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
