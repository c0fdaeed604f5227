// Package limiter enforces the global and per-host fetch concurrency budgets.
package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/reader-engine/internal/metrics"
)

// Config holds the concurrency budgets.
type Config struct {
	// Global is the maximum number of in-flight fetches across all hosts.
	Global int64
	// PerHost is the maximum number of in-flight fetches per hostname.
	PerHost int64
	// PerHostRPS optionally smooths request rate per host on top of the
	// concurrency cap. Zero disables pacing.
	PerHostRPS float64
}

// Limiter hands out fetch slots. A fetch must hold one global slot and one
// slot for its destination host for its entire duration.
type Limiter struct {
	global     *semaphore.Weighted
	perHost    int64
	perHostRPS rate.Limit
	hosts      sync.Map // hostname -> *hostLimiter
}

type hostLimiter struct {
	sem   *semaphore.Weighted
	pacer *rate.Limiter
}

// New creates a Limiter from the configured budgets.
func New(cfg Config) *Limiter {
	global := cfg.Global
	if global <= 0 {
		global = 1
	}
	perHost := cfg.PerHost
	if perHost <= 0 {
		perHost = 1
	}
	rps := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		rps = rate.Inf
	}
	return &Limiter{
		global:     semaphore.NewWeighted(global),
		perHost:    perHost,
		perHostRPS: rps,
	}
}

// Acquire blocks until one global slot and one slot for host are held, or
// the context finishes. On success it returns a release closure that must be
// called exactly once on every exit path; calling it more than once is a
// no-op. Global is acquired first and released last, so the host semaphores
// stay independent leaf resources and no lock-ordering cycle can form.
func (l *Limiter) Acquire(ctx context.Context, host string) (func(), error) {
	hl := l.hostLimiter(host)

	start := time.Now()
	if err := l.global.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire global slot: %w", err)
	}
	metrics.ObserveLimiterWait("global", time.Since(start))

	start = time.Now()
	if err := hl.sem.Acquire(ctx, 1); err != nil {
		l.global.Release(1)
		return nil, fmt.Errorf("acquire host slot for %q: %w", host, err)
	}
	metrics.ObserveLimiterWait("host", time.Since(start))

	if hl.pacer != nil {
		if err := hl.pacer.Wait(ctx); err != nil {
			hl.sem.Release(1)
			l.global.Release(1)
			return nil, fmt.Errorf("host pacing wait for %q: %w", host, err)
		}
	}

	metrics.IncActiveFetches()
	var once sync.Once
	release := func() {
		once.Do(func() {
			hl.sem.Release(1)
			l.global.Release(1)
			metrics.DecActiveFetches()
		})
	}
	return release, nil
}

// hostLimiter returns the limiter for host, creating it on first sight.
// Entries are kept for the process lifetime; the key space is bounded by
// the number of distinct feed hosts.
func (l *Limiter) hostLimiter(host string) *hostLimiter {
	key := strings.ToLower(host)
	if v, ok := l.hosts.Load(key); ok {
		return v.(*hostLimiter)
	}
	hl := &hostLimiter{sem: semaphore.NewWeighted(l.perHost)}
	if l.perHostRPS != rate.Inf {
		hl.pacer = rate.NewLimiter(l.perHostRPS, 1)
	}
	actual, _ := l.hosts.LoadOrStore(key, hl)
	return actual.(*hostLimiter)
}
