package api

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// advisoryThrottle delays calls once a per-client request budget is spent
// within a rolling window. It is a UX affordance only: it resets with the
// process, provides no admission control, and must never be treated as a
// security boundary. Real limits are enforced server-side and surface as
// KindRateLimited errors.
type advisoryThrottle struct {
	limit  int
	window time.Duration
	log    *slog.Logger
	onWait func(domain string, wait time.Duration)

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

func newAdvisoryThrottle(limit int, window time.Duration, log *slog.Logger, onWait func(string, time.Duration)) *advisoryThrottle {
	if limit <= 0 {
		limit = 5
	}
	if window <= 0 {
		window = time.Minute
	}
	return &advisoryThrottle{limit: limit, window: window, log: log, onWait: onWait}
}

// acquire blocks until the call may proceed. Calls beyond the budget wait
// for the window to roll over rather than being rejected.
func (t *advisoryThrottle) acquire(ctx context.Context, domain string) error {
	t.mu.Lock()
	now := time.Now()
	if t.windowStart.IsZero() || now.Sub(t.windowStart) >= t.window {
		t.windowStart = now
		t.count = 0
	}
	if t.count < t.limit {
		t.count++
		t.mu.Unlock()
		return nil
	}
	wait := t.window - now.Sub(t.windowStart)
	t.mu.Unlock()

	if t.log != nil {
		t.log.Warn("client throttle engaged, please slow down",
			slog.String("domain", domain),
			slog.Duration("wait", wait))
	}
	if t.onWait != nil {
		t.onWait(domain, wait)
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	t.mu.Lock()
	t.windowStart = time.Now()
	t.count = 1
	t.mu.Unlock()
	return nil
}
