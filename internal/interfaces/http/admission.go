package http

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jhoicas/pos-multitienda/internal/domain"
	"golang.org/x/sync/semaphore"
)

// Admission limita las solicitudes en curso. Al llegar a la capacidad rechaza con
// OVERLOADED y Retry-After en lugar de encolar.
type Admission struct {
	sem        *semaphore.Weighted
	capacity   int64
	inFlight   atomic.Int64
	retryAfter string
}

// NewAdmission capacity <= 0 desactiva el límite.
func NewAdmission(capacity int64, retryAfter time.Duration) *Admission {
	secs := int(retryAfter / time.Second)
	if secs < 1 {
		secs = 1
	}
	a := &Admission{capacity: capacity, retryAfter: strconv.Itoa(secs)}
	if capacity > 0 {
		a.sem = semaphore.NewWeighted(capacity)
	}
	return a
}

func (a *Admission) InFlight() int64 { return a.inFlight.Load() }
func (a *Admission) Capacity() int64 { return a.capacity }

// Middleware aplica el límite.
func (a *Admission) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.sem != nil {
			if !a.sem.TryAcquire(1) {
				c.Set(fiber.HeaderRetryAfter, a.retryAfter)
				return fmt.Errorf("%w: %d solicitudes en curso", domain.ErrOverloaded, a.capacity)
			}
			defer a.sem.Release(1)
		}
		a.inFlight.Add(1)
		defer a.inFlight.Add(-1)
		return c.Next()
	}
}

// Deadline fija un plazo al contexto de la solicitud; los casos de uso lo reciben por c.UserContext().
func Deadline(d time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if d <= 0 {
			return c.Next()
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), d)
		defer cancel()
		c.SetUserContext(ctx)
		return c.Next()
	}
}
