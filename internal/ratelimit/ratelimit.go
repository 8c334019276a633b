// Package ratelimit keeps outbound provider traffic under quota.
//
// Two mechanisms compose. The Pacer spaces calls within one process from a
// requests-per-minute figure. The Window additionally counts calls across
// processes through a shared, advisory-locked log file, so several CLI
// invocations on one machine share a single budget.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/smartedupay/aicore/internal/log"
)

// Pacer enforces a minimum interval between calls in this process.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer spaces calls at least interval apart. A zero or negative interval
// disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// NewPacerRPM derives the interval from a requests-per-minute budget.
func NewPacerRPM(rpm int) *Pacer {
	if rpm <= 0 {
		return NewPacer(0)
	}
	return NewPacer(time.Minute / time.Duration(rpm))
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// Window counts recent calls across process boundaries.
type Window interface {
	// Acquire records one call, blocking while the shared budget is
	// exhausted. It returns when the call may proceed.
	Acquire(ctx context.Context) error
}

// Governor composes local pacing with a shared sliding window. Either part
// may be nil.
type Governor struct {
	pacer  *Pacer
	window Window
	logger log.Logger
}

// NewGovernor builds a Governor; pass nil for parts that are disabled.
func NewGovernor(pacer *Pacer, window Window, logger log.Logger) *Governor {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Governor{pacer: pacer, window: window, logger: logger}
}

// Wait blocks until both the local pacer and the shared window admit a call.
func (g *Governor) Wait(ctx context.Context) error {
	if g.pacer != nil {
		if err := g.pacer.Wait(ctx); err != nil {
			return fmt.Errorf("pacer: %w", err)
		}
	}
	if g.window != nil {
		if err := g.window.Acquire(ctx); err != nil {
			return fmt.Errorf("rate window: %w", err)
		}
	}
	return nil
}

// sleepJitter is the random pad added to window back-off sleeps so competing
// processes do not wake in lockstep.
func sleepJitter() time.Duration {
	return time.Duration(rand.Int63n(int64(time.Second)))
}

// capSleep bounds a computed back-off to keep callers responsive.
func capSleep(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	if d < 0 {
		return 0
	}
	return d
}
