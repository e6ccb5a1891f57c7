package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter answers whether one more event for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) bool
}

type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) bool { return true }

type windowEntry struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window counter kept in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	entries map[string]windowEntry
	now     func() time.Time
}

func NewMemoryLimiter(limit int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		entries: make(map[string]windowEntry),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) bool {
	if l.limit <= 0 || l.window <= 0 || key == "" {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || !now.Before(e.resetAt) {
		e = windowEntry{resetAt: now.Add(l.window)}
	}
	e.count++
	l.entries[key] = e
	if len(l.entries) > 10000 {
		l.sweep(now)
	}
	return e.count <= l.limit
}

func (l *MemoryLimiter) sweep(now time.Time) {
	for k, e := range l.entries {
		if !now.Before(e.resetAt) {
			delete(l.entries, k)
		}
	}
}
