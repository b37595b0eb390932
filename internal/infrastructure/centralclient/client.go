// Package centralclient envía sobres de la tienda EDGE a la central por HTTP.
package centralclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/application/dto"
	"github.com/jhoicas/pos-multitienda/internal/application/syncer"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/internal/domain/entity"
)

const (
	envelopesPath  = "/api/sync/envelopes"
	defaultTimeout = 30 * time.Second
)

var _ syncer.Transport = (*Client)(nil)

// Client implementa syncer.Transport con el cliente HTTP de fiber (fasthttp).
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// New construye el cliente. token es el JWT con que la tienda EDGE publica sus sobres:
// SYNC_INGEST exige un rol de alcance CENTRAL, un token de alcance STORE recibe 403.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), token: token, timeout: timeout}
}

// Send publica el sobre. Los errores de la central vuelven como errores de dominio
// (OUT_OF_ORDER, CORRUPT_ENVELOPE, OVERLOADED...) junto con el resultado cuando la central lo manda.
func (c *Client) Send(ctx context.Context, env *entity.SyncEnvelope) (*syncer.IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	resp := fiber.AcquireResponse()
	defer fiber.ReleaseResponse(resp)

	agent := fiber.Post(c.baseURL + envelopesPath)
	agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	agent.JSON(dto.NewEnvelopeRequest(env))
	agent.Timeout(timeout)
	agent.SetResponse(resp)

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return nil, fmt.Errorf("enviar sobre %d: %w", env.Sequence, errs[0])
	}
	retryAfter := string(resp.Header.Peek(fiber.HeaderRetryAfter))

	if status == http.StatusOK {
		var out dto.IngestResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("decodificar respuesta de ingesta: %w", err)
		}
		return toResult(out), nil
	}
	return decodeError(status, body, retryAfter)
}

func decodeError(status int, body []byte, retryAfter string) (*syncer.IngestResult, error) {
	var errBody struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Details *dto.IngestResponse `json:"details"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil {
		return nil, fmt.Errorf("central respondió %d: %s", status, strings.TrimSpace(string(body)))
	}

	var res *syncer.IngestResult
	if errBody.Details != nil {
		res = toResult(*errBody.Details)
	}
	if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
		if res == nil {
			res = &syncer.IngestResult{}
		}
		if res.BackoffHint == 0 {
			res.BackoffHint = secs
		}
	}

	var sentinel error
	switch domain.Kind(errBody.Code) {
	case domain.KindOutOfOrder:
		sentinel = domain.ErrOutOfOrder
	case domain.KindCorruptEnvelope:
		sentinel = domain.ErrCorruptEnvelope
	case domain.KindOverloaded:
		sentinel = domain.ErrOverloaded
	case domain.KindUnauthorized:
		sentinel = domain.ErrUnauthorized
	case domain.KindForbidden:
		sentinel = domain.ErrForbidden
	case domain.KindInvalidInput:
		sentinel = domain.ErrInvalidInput
	default:
		if status == http.StatusServiceUnavailable {
			sentinel = domain.ErrOverloaded
		} else {
			return res, fmt.Errorf("central respondió %d %s: %s", status, errBody.Code, errBody.Message)
		}
	}
	return res, fmt.Errorf("%w: %s", sentinel, errBody.Message)
}

func toResult(r dto.IngestResponse) *syncer.IngestResult {
	out := &syncer.IngestResult{
		Accepted:             r.Accepted,
		Duplicate:            r.Duplicate,
		LastAcceptedSequence: r.LastAcceptedSequence,
		BackoffHint:          r.BackoffHint,
	}
	for _, c := range r.Conflicts {
		out.Conflicts = append(out.Conflicts, &entity.ConflictRecord{
			OperationIndex: c.OperationIndex,
			OperationID:    c.OperationID,
			Reason:         c.Reason,
			Resolution:     c.Resolution,
			Detail:         c.Detail,
			Sequence:       c.Sequence,
			CreatedAt:      c.CreatedAt,
		})
	}
	return out
}
