// Package ratelimit throttles typed client input. Local keeps limiters in
// process memory, Redis shares one window across bot instances.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter reports whether the client may send another message now.
type Limiter interface {
	Allow(ctx context.Context, clientID int64) (bool, error)
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Local allows one message per interval per client.
type Local struct {
	interval time.Duration
	mu       sync.Mutex
	visitors map[int64]*visitor
	now      func() time.Time
}

// NewLocal creates a Local limiter. A non-positive interval disables throttling.
func NewLocal(interval time.Duration) *Local {
	return &Local{
		interval: interval,
		visitors: make(map[int64]*visitor),
		now:      time.Now,
	}
}

func (l *Local) Allow(_ context.Context, clientID int64) (bool, error) {
	if l.interval <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[clientID]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Every(l.interval), 1)}
		l.visitors[clientID] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1), nil
}

// Sweep forgets clients idle for longer than maxIdle and returns how many.
func (l *Local) Sweep(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	n := 0
	for id, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, id)
			n++
		}
	}
	return n
}
