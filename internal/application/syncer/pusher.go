package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jhoicas/pos-multitienda/internal/domain"
	"github.com/jhoicas/pos-multitienda/pkg/logger"
)

// PushReport resumen de un PushOnce.
type PushReport struct {
	Sealed       int
	Sent         int
	Acknowledged int64 // última secuencia confirmada por la central
	Conflicts    int
	BackoffHint  time.Duration
}

// Pusher lado EDGE: sella el journal y envía los sobres pendientes a la central en orden.
type Pusher struct {
	journal     Journal
	transport   Transport
	edgeStoreID string
	maxOps      int
	backoffBase time.Duration
	log         *logger.Logger
}

// NewPusher construye el pusher de una tienda EDGE.
func NewPusher(j Journal, t Transport, edgeStoreID string, maxOps int, backoffBase time.Duration, log *logger.Logger) *Pusher {
	if maxOps <= 0 {
		maxOps = 500
	}
	if backoffBase <= 0 {
		backoffBase = 2 * time.Second
	}
	return &Pusher{
		journal:     j,
		transport:   t,
		edgeStoreID: edgeStoreID,
		maxOps:      maxOps,
		backoffBase: backoffBase,
		log:         log.Named("pusher"),
	}
}

// SealPending sella todas las operaciones pendientes en sobres de hasta maxOps operaciones.
func (p *Pusher) SealPending(ctx context.Context) (int, error) {
	sealed := 0
	for {
		env, err := p.journal.Seal(ctx, p.edgeStoreID, p.maxOps)
		if err != nil {
			return sealed, fmt.Errorf("sellar sobre: %w", err)
		}
		if env == nil {
			return sealed, nil
		}
		sealed++
		p.log.Debug().Int64("sequence", env.Sequence).Int("ops", len(env.Operations)).Msg("sobre sellado")
	}
}

// PushOnce sella y envía los sobres sin confirmar. Con OUT_OF_ORDER confirma hasta la
// secuencia que reporta la central y reintenta desde ahí una vez. Con OVERLOADED o un
// error de transporte se detiene y devuelve el backoff sugerido junto con el error.
func (p *Pusher) PushOnce(ctx context.Context) (*PushReport, error) {
	report := &PushReport{BackoffHint: p.backoffBase}
	sealed, err := p.SealPending(ctx)
	report.Sealed = sealed
	if err != nil {
		return report, err
	}

	restarted := false
	for {
		pending, err := p.journal.Unacknowledged(ctx)
		if err != nil {
			return report, fmt.Errorf("listar sobres: %w", err)
		}
		restart := false
		for _, env := range pending {
			res, err := p.transport.Send(ctx, env)
			if res != nil && res.BackoffHint > 0 {
				report.BackoffHint = time.Duration(res.BackoffHint) * time.Second
			}
			if errors.Is(err, domain.ErrOutOfOrder) && res != nil && !restarted {
				p.log.Warn().Int64("sequence", env.Sequence).Int64("last_accepted", res.LastAcceptedSequence).Msg("la central espera otra secuencia")
				if err := p.ack(ctx, report, res.LastAcceptedSequence); err != nil {
					return report, err
				}
				restart, restarted = true, true
				break
			}
			if err != nil {
				return report, err
			}
			report.Sent++
			report.Conflicts += len(res.Conflicts)
			if err := p.ack(ctx, report, env.Sequence); err != nil {
				return report, err
			}
		}
		if !restart {
			return report, nil
		}
	}
}

func (p *Pusher) ack(ctx context.Context, report *PushReport, upTo int64) error {
	if upTo <= 0 {
		return nil
	}
	if err := p.journal.Acknowledge(ctx, upTo); err != nil {
		return fmt.Errorf("confirmar sobres: %w", err)
	}
	if upTo > report.Acknowledged {
		report.Acknowledged = upTo
	}
	return nil
}

// Loop llama PushOnce hasta que ctx termine, esperando el backoff entre vueltas.
func (p *Pusher) Loop(ctx context.Context) error {
	for {
		report, err := p.PushOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn().Err(err).Dur("backoff", report.BackoffHint).Msg("envío interrumpido")
		} else if report.Sent > 0 {
			p.log.Info().Int("sent", report.Sent).Int64("acknowledged", report.Acknowledged).Int("conflicts", report.Conflicts).Msg("sobres enviados")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(report.BackoffHint):
		}
	}
}
