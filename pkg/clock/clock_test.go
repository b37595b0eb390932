package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystem_NowStrictlyIncreasing(t *testing.T) {
	c := NewSystem()
	prev := c.Now()
	for i := 0; i < 10000; i++ {
		now := c.Now()
		require.True(t, now.After(prev), "iteración %d: %v <= %v", i, now, prev)
		prev = now
	}
	assert.Equal(t, time.UTC, prev.Location())
}

func TestSystem_NowConcurrentUnique(t *testing.T) {
	c := NewSystem()
	const workers, each = 8, 500
	out := make(chan time.Time, workers*each)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				out <- c.Now()
			}
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[int64]bool, workers*each)
	for ts := range out {
		require.False(t, seen[ts.UnixNano()], "marca repetida")
		seen[ts.UnixNano()] = true
	}
}

func TestNewID_IsV7AndUnique(t *testing.T) {
	c := NewSystem()
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := c.NewID()
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(7), parsed.Version())
		require.False(t, ids[id])
		ids[id] = true
	}
}

func TestStepper(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := NewStepper(start, time.Second)

	assert.Equal(t, start, s.Now())
	assert.Equal(t, start.Add(time.Second), s.Now())
	s.Advance(time.Hour)
	assert.Equal(t, start.Add(2*time.Second+time.Hour), s.Peek())
}
