package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/tts-gateway/internal/core"
)

const (
	probeTimeout = 2 * time.Second

	// DefaultEngineTimeout bounds a synthesis attempt when no timeout is
	// configured.
	DefaultEngineTimeout = 10 * time.Second
)

// ErrNoEngineForLanguage indicates no registered engine supports the
// requested language.
var ErrNoEngineForLanguage = errors.New("no engine supports language")

// Policy is the ordered mapping from language to ranked engine names, with
// a default chain for languages without an entry. Policies are immutable;
// reloads replace the snapshot atomically.
type Policy struct {
	Languages map[string][]string
	Default   []string
}

// Result is a successful routed synthesis: the raw audio plus the engine
// that produced it.
type Result struct {
	Audio        []byte
	Engine       string
	NativeFormat core.AudioFormat
}

// Router resolves each request to an ordered candidate list and walks it
// until one engine succeeds.
type Router struct {
	engines       map[string]*Descriptor
	ranked        []*Descriptor // by configured priority
	policy        atomic.Pointer[Policy]
	engineTimeout time.Duration
	probeTTL      time.Duration
	log           *logger.Logger
}

// New creates a router over the given descriptors. Every synthesis attempt
// is bounded by engineTimeout, falling back to DefaultEngineTimeout when
// unset; availability probes are cached for probeTTL.
func New(
	descriptors []*Descriptor,
	policy Policy,
	engineTimeout time.Duration,
	probeTTL time.Duration,
	log *logger.Logger,
) *Router {
	if engineTimeout <= 0 {
		engineTimeout = DefaultEngineTimeout
	}

	engines := make(map[string]*Descriptor, len(descriptors))
	ranked := make([]*Descriptor, len(descriptors))

	for i, descriptor := range descriptors {
		engines[descriptor.name] = descriptor
		ranked[i] = descriptor
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].priority < ranked[j].priority
	})

	router := &Router{
		engines:       engines,
		ranked:        ranked,
		engineTimeout: engineTimeout,
		probeTTL:      probeTTL,
		log:           log,
	}
	router.policy.Store(&policy)

	return router
}

// Reload atomically replaces the routing policy. In-flight selections keep
// the snapshot they started with.
func (r *Router) Reload(policy Policy) {
	r.policy.Store(&policy)
}

// Select resolves the ordered candidate list for a language and optional
// engine override. A known, available override is honored strictly as the
// sole candidate unless the request opts into fallback. Engines drawn from
// the policy keep their configured rank; when neither a language entry nor
// a default chain applies, the full registry is consulted, ordered by
// ascending rolling average latency and then configured priority.
func (r *Router) Select(
	ctx context.Context,
	language, override string,
	allowFallback bool,
) ([]*Descriptor, error) {
	if override != "" {
		sole, err := r.resolveOverride(ctx, language, override)
		if err == nil {
			return sole, nil
		}

		if !allowFallback {
			return nil, err
		}

		r.log.Warn(
			"Engine override %q not usable, falling back to policy: %v",
			override, err,
		)
	}

	candidates := r.policyCandidates(ctx, language)
	if len(candidates) == 0 {
		return nil, &core.AllEnginesUnavailableError{
			Language: language,
			Attempts: 0,
			LastErr:  fmt.Errorf("%w: %s", ErrNoEngineForLanguage, language),
		}
	}

	return candidates, nil
}

// Synthesize walks the candidate list in order, invoking each engine at
// most once, and returns the first success. Every attempt updates the
// engine's rolling stats. When every candidate fails, the last underlying
// error is preserved in the terminal failure.
func (r *Router) Synthesize(ctx context.Context, req core.SynthRequest) (*Result, error) {
	candidates, err := r.Select(ctx, req.Language, req.Engine, req.AllowFallback)
	if err != nil {
		return nil, err
	}

	var lastErr error

	attempts := 0

	for _, candidate := range candidates {
		attempts++

		maxLength := candidate.capabilities.MaxTextLength
		if maxLength > 0 && len(req.Text) > maxLength {
			candidate.recordFailure()

			lastErr = fmt.Errorf(
				"%w: engine %s accepts at most %d characters",
				core.ErrTextTooLong, candidate.name, maxLength,
			)

			continue
		}

		audio, latency, synthErr := r.attempt(ctx, candidate, req)
		if synthErr != nil {
			candidate.recordFailure()

			lastErr = synthErr

			r.log.Warn("Engine %s failed: %v", candidate.name, synthErr)

			continue
		}

		candidate.recordSuccess(latency)

		return &Result{
			Audio:        audio,
			Engine:       candidate.name,
			NativeFormat: candidate.provider.NativeFormat(),
		}, nil
	}

	return nil, &core.AllEnginesUnavailableError{
		Language: req.Language,
		Attempts: attempts,
		LastErr:  lastErr,
	}
}

// Stats returns a snapshot of every engine's rolling stats in configured
// priority order.
func (r *Router) Stats(ctx context.Context) []core.EngineStat {
	stats := make([]core.EngineStat, 0, len(r.ranked))

	for _, descriptor := range r.ranked {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		available := descriptor.available(probeCtx, r.probeTTL)

		cancel()

		stats = append(stats, core.EngineStat{
			Name:         descriptor.name,
			SuccessCount: descriptor.successCount.Load(),
			FailureCount: descriptor.failureCount.Load(),
			AvgLatency:   descriptor.avgLatency(),
			Available:    available,
		})
	}

	return stats
}

// ResetStats zeroes every engine's rolling counters. Administrative
// operation.
func (r *Router) ResetStats() {
	for _, descriptor := range r.ranked {
		descriptor.resetStats()
	}
}

func (r *Router) attempt(
	ctx context.Context,
	candidate *Descriptor,
	req core.SynthRequest,
) ([]byte, time.Duration, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.engineTimeout)
	defer cancel()

	start := time.Now()

	audio, err := candidate.provider.Synthesize(
		attemptCtx,
		req.Text,
		req.Language,
		req.Voice,
		req.Rate,
		req.Pitch,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("engine %s: %w", candidate.name, err)
	}

	return audio, time.Since(start), nil
}

func (r *Router) resolveOverride(
	ctx context.Context,
	language, override string,
) ([]*Descriptor, error) {
	descriptor, known := r.engines[override]
	if !known {
		return nil, &core.ValidationError{
			Reason: fmt.Sprintf("unknown engine %q", override),
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if !descriptor.available(probeCtx, r.probeTTL) {
		return nil, &core.AllEnginesUnavailableError{
			Language: language,
			Attempts: 0,
			LastErr: fmt.Errorf(
				"%w: engine %s", core.ErrProviderUnavailable, override,
			),
		}
	}

	return []*Descriptor{descriptor}, nil
}

func (r *Router) policyCandidates(ctx context.Context, language string) []*Descriptor {
	policy := r.policy.Load()

	chain, hasEntry := policy.Languages[language]
	if !hasEntry {
		chain = policy.Default
	}

	if len(chain) > 0 {
		return r.filterChain(ctx, chain, language)
	}

	return r.registryCandidates(ctx, language)
}

func (r *Router) filterChain(
	ctx context.Context,
	chain []string,
	language string,
) []*Descriptor {
	candidates := make([]*Descriptor, 0, len(chain))

	for _, name := range chain {
		descriptor, known := r.engines[name]
		if !known {
			r.log.Warn("Routing policy names unknown engine %q", name)

			continue
		}

		if r.eligible(ctx, descriptor, language) {
			candidates = append(candidates, descriptor)
		}
	}

	return candidates
}

func (r *Router) registryCandidates(ctx context.Context, language string) []*Descriptor {
	candidates := make([]*Descriptor, 0, len(r.ranked))

	for _, descriptor := range r.ranked {
		if r.eligible(ctx, descriptor, language) {
			candidates = append(candidates, descriptor)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		left, right := candidates[i].avgLatency(), candidates[j].avgLatency()
		if left != right {
			return left < right
		}

		return candidates[i].priority < candidates[j].priority
	})

	return candidates
}

func (r *Router) eligible(
	ctx context.Context,
	descriptor *Descriptor,
	language string,
) bool {
	if !descriptor.SupportsLanguage(language) {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	return descriptor.available(probeCtx, r.probeTTL)
}
