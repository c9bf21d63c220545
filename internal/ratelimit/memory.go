package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/storefront/internal/clock"
)

type window struct {
	start time.Time
	count int
}

// MemoryLimiter is a fixed-window counter local to one process.
type MemoryLimiter struct {
	mu        sync.Mutex
	clock     clock.Clock
	windows   map[string]*window
	lastSweep time.Time
}

func NewMemoryLimiter(c clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		clock:   c,
		windows: map[string]*window{},
	}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int, size time.Duration) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("rate limiter key is empty")
	}
	if limit <= 0 || size <= 0 {
		return Decision{}, errors.New("rate limiter limit and window must be positive")
	}

	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) >= size {
		for k, w := range m.windows {
			if now.Sub(w.start) >= size {
				delete(m.windows, k)
			}
		}
		m.lastSweep = now
	}

	w, ok := m.windows[key]
	if !ok || now.Sub(w.start) >= size {
		w = &window{start: now}
		m.windows[key] = w
	}

	if w.count >= limit {
		return Decision{
			Allowed:    false,
			Limit:      limit,
			RetryAfter: w.start.Add(size).Sub(now),
		}, nil
	}
	w.count++
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
	}, nil
}
