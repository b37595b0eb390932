// Package clock entrega marcas de tiempo monótonas e identificadores únicos.
package clock

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock fuente de tiempo e ids del núcleo.
type Clock interface {
	// Now es estrictamente creciente dentro del proceso, en UTC.
	Now() time.Time
	// NewID devuelve un UUIDv7 (ordenado por tiempo).
	NewID() string
}

// System reloj del sistema con desempate de un nanosegundo.
type System struct {
	mu   sync.Mutex
	last time.Time
}

// NewSystem construye el reloj del sistema.
func NewSystem() *System {
	return &System{}
}

// Now devuelve la hora actual; si no avanzó respecto a la última lectura suma 1ns.
func (c *System) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}

// NewID UUIDv7; si el generador falla (entropía) usa v4.
func (c *System) NewID() string {
	return newID()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Stepper reloj de pruebas: arranca en start y avanza step en cada Now.
type Stepper struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepper construye un Stepper. step <= 0 usa un milisegundo.
func NewStepper(start time.Time, step time.Duration) *Stepper {
	if step <= 0 {
		step = time.Millisecond
	}
	return &Stepper{next: start.UTC(), step: step}
}

// Now devuelve el instante actual y avanza.
func (s *Stepper) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.next
	s.next = s.next.Add(s.step)
	return now
}

// Advance mueve el reloj hacia adelante sin leerlo.
func (s *Stepper) Advance(d time.Duration) {
	s.mu.Lock()
	s.next = s.next.Add(d)
	s.mu.Unlock()
}

// Peek devuelve el próximo instante sin avanzar.
func (s *Stepper) Peek() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

func (s *Stepper) NewID() string { return newID() }
