// Package router selects synthesis engines per request and provides
// ordered fallback across them, tracking rolling per-engine statistics.
package router

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/tts-gateway/internal/core"
)

// Descriptor holds one engine's static facts and its mutable runtime stats.
// The router owns descriptors exclusively; stats are updated after every
// synthesis attempt and reset only by explicit admin action.
type Descriptor struct {
	name         string
	languages    map[string]struct{}
	capabilities core.EngineCapabilities
	priority     int
	provider     core.Provider

	successCount atomic.Uint64
	failureCount atomic.Uint64
	latencyTotal atomic.Int64 // nanoseconds across successful attempts

	probeMu  sync.Mutex
	probedAt time.Time
	probeErr error
}

// NewDescriptor creates a descriptor for the provider. The priority breaks
// ordering ties; lower values rank earlier.
func NewDescriptor(
	provider core.Provider,
	languages []string,
	capabilities core.EngineCapabilities,
	priority int,
) *Descriptor {
	languageSet := make(map[string]struct{}, len(languages))
	for _, language := range languages {
		languageSet[language] = struct{}{}
	}

	return &Descriptor{
		name:         provider.Name(),
		languages:    languageSet,
		capabilities: capabilities,
		priority:     priority,
		provider:     provider,
	}
}

// Name returns the engine name.
func (d *Descriptor) Name() string {
	return d.name
}

// SupportsLanguage reports whether the engine can speak the language.
// An empty language set means the engine accepts any language.
func (d *Descriptor) SupportsLanguage(language string) bool {
	if len(d.languages) == 0 {
		return true
	}

	_, supported := d.languages[language]

	return supported
}

// Capabilities returns the engine's static capability facts.
func (d *Descriptor) Capabilities() core.EngineCapabilities {
	return d.capabilities
}

// available checks the engine lazily via the provider probe, caching the
// result for probeTTL so hot paths do not hammer the backend.
func (d *Descriptor) available(ctx context.Context, probeTTL time.Duration) bool {
	d.probeMu.Lock()
	defer d.probeMu.Unlock()

	if time.Since(d.probedAt) < probeTTL {
		return d.probeErr == nil
	}

	d.probeErr = d.provider.Probe(ctx)
	d.probedAt = time.Now()

	return d.probeErr == nil
}

func (d *Descriptor) recordSuccess(latency time.Duration) {
	d.successCount.Add(1)
	d.latencyTotal.Add(int64(latency))
}

func (d *Descriptor) recordFailure() {
	d.failureCount.Add(1)
}

func (d *Descriptor) resetStats() {
	d.successCount.Store(0)
	d.failureCount.Store(0)
	d.latencyTotal.Store(0)
}

// avgLatency returns the rolling average latency across successful attempts,
// or zero when no attempt succeeded yet.
func (d *Descriptor) avgLatency() time.Duration {
	successes := d.successCount.Load()
	if successes == 0 {
		return 0
	}

	return time.Duration(d.latencyTotal.Load() / int64(successes))
}
