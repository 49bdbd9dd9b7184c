// Package ratelimit provides per-identity fixed-window admission control
// for the synthesis pipeline.
package ratelimit

import (
	"sync"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Defaults applied when the corresponding option is zero.
const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 100
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// windowState tracks one identity's current window. Created lazily, owned
// exclusively by the governor, mutated only under the governor lock.
type windowState struct {
	windowStart  time.Time
	requestCount int
	blockedUntil time.Time
}

// Governor admits or denies requests per identity over a fixed window.
// Increment-and-compare happens under a single lock, so concurrent requests
// from one identity can never jointly exceed the window maximum.
type Governor struct {
	window      time.Duration
	maxRequests int

	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// New creates a governor with the given window width and per-window request
// maximum. Zero values fall back to the defaults.
func New(window time.Duration, maxRequests int) *Governor {
	if window <= 0 {
		window = DefaultWindow
	}

	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}

	return &Governor{
		window:      window,
		maxRequests: maxRequests,
		windows:     make(map[string]*windowState),
		now:         time.Now,
	}
}

// Allow performs the admission check for identity and counts the request
// when admitted. Denials report when the identity may retry.
func (g *Governor) Allow(identity string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	state, exists := g.windows[identity]
	if !exists || now.Sub(state.windowStart) >= g.window {
		g.windows[identity] = &windowState{
			windowStart:  now,
			requestCount: 1,
		}

		return Decision{
			Allowed:   true,
			Remaining: g.maxRequests - 1,
			ResetAt:   now.Add(g.window),
		}
	}

	resetAt := state.windowStart.Add(g.window)

	// Inside the block period requests are rejected without further
	// counting.
	if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: state.blockedUntil.Sub(now),
		}
	}

	state.requestCount++
	if state.requestCount > g.maxRequests {
		state.blockedUntil = resetAt

		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	return Decision{
		Allowed:   true,
		Remaining: g.maxRequests - state.requestCount,
		ResetAt:   resetAt,
	}
}

// Status reports the identity's admission state without counting a request.
func (g *Governor) Status(identity string) core.RateLimitStatus {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()

	state, exists := g.windows[identity]
	if !exists || now.Sub(state.windowStart) >= g.window {
		return core.RateLimitStatus{
			Remaining: g.maxRequests,
			ResetAt:   now.Add(g.window),
		}
	}

	remaining := g.maxRequests - state.requestCount
	if remaining < 0 {
		remaining = 0
	}

	return core.RateLimitStatus{
		Remaining: remaining,
		ResetAt:   state.windowStart.Add(g.window),
	}
}

// Reset forgets the identity's window. Administrative operation.
func (g *Governor) Reset(identity string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.windows, identity)
}

// Sweep drops windows that elapsed without being blocked, bounding memory
// for long-running processes. Returns the number of identities removed.
func (g *Governor) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	swept := 0

	for identity, state := range g.windows {
		expired := now.Sub(state.windowStart) >= g.window
		unblocked := state.blockedUntil.IsZero() || now.After(state.blockedUntil)

		if expired && unblocked {
			delete(g.windows, identity)

			swept++
		}
	}

	return swept
}
