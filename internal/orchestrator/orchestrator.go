// Package orchestrator wires the synthesis pipeline together: admission,
// cache lookup, engine routing, transcoding, and cache population.
package orchestrator

import (
	"context"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/fingerprint"
	"github.com/book-expert/tts-gateway/internal/ratelimit"
	"github.com/book-expert/tts-gateway/internal/router"
	"github.com/book-expert/tts-gateway/internal/transcode"
)

// Defaults applied when the pipeline configuration leaves a knob unset.
const (
	DefaultCacheTTL   = 24 * time.Hour
	DefaultSampleRate = 22050
	DefaultChannels   = 1
)

// Config carries the pipeline knobs that are not owned by a component.
type Config struct {
	// CacheTTL bounds how long synthesized audio stays cached.
	CacheTTL time.Duration

	// SampleRate and Channels describe the output audio delivered to
	// callers after transcoding.
	SampleRate int
	Channels   int
}

// Service runs the synthesis pipeline. It implements core.Synthesizer.
type Service struct {
	cache      *cache.ResponseCache
	governor   *ratelimit.Governor
	router     *router.Router
	transcoder core.Transcoder
	cacheTTL   time.Duration
	sampleRate int
	channels   int
	log        *logger.Logger
}

// New creates the pipeline service over its components. Zero-valued config
// fields fall back to the package defaults.
func New(
	responseCache *cache.ResponseCache,
	governor *ratelimit.Governor,
	engineRouter *router.Router,
	transcoder core.Transcoder,
	cfg Config,
	log *logger.Logger,
) *Service {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	if cfg.SampleRate <= 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	if cfg.Channels <= 0 {
		cfg.Channels = DefaultChannels
	}

	return &Service{
		cache:      responseCache,
		governor:   governor,
		router:     engineRouter,
		transcoder: transcoder,
		cacheTTL:   cfg.CacheTTL,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		log:        log,
	}
}

// Synthesize runs one request through the full pipeline. The stages run in
// a fixed order: validation, admission, cache lookup, routed synthesis,
// transcoding, cache population. A cache hit skips every engine entirely
// and still counts against the identity's rate limit.
func (s *Service) Synthesize(
	ctx context.Context,
	req core.SynthRequest,
	identity string,
) (*core.AudioOut, error) {
	requestID := uuid.NewString()

	normalized := req.Normalized()

	err := normalized.Validate()
	if err != nil {
		s.log.Warn("Request %s rejected: %v", requestID, err)

		return nil, err
	}

	decision := s.governor.Allow(identity)
	if !decision.Allowed {
		s.log.Warn(
			"Request %s from %s rate limited, retry in %s",
			requestID, identity, decision.RetryAfter,
		)

		return nil, &core.RateLimitedError{
			RetryAfter: decision.RetryAfter,
			ResetAt:    decision.ResetAt,
		}
	}

	key := fingerprint.Fingerprint(normalized)

	entry, found := s.cache.Get(ctx, key)
	if found {
		s.log.Info(
			"Request %s served from cache (%d bytes)",
			requestID, len(entry.Payload),
		)

		return s.cachedOut(normalized, entry), nil
	}

	result, err := s.router.Synthesize(ctx, normalized)
	if err != nil {
		s.log.Error("Request %s synthesis failed: %v", requestID, err)

		return nil, err
	}

	out := s.finalize(ctx, requestID, normalized, result)

	if !out.Degraded {
		s.cache.Put(ctx, key, out.Data, out.ContentType, s.cacheTTL)
	}

	s.log.Info(
		"Request %s synthesized by %s (%d bytes, %s)",
		requestID, out.Engine, out.Size, out.Format,
	)

	return out, nil
}

// finalize transcodes routed audio into the requested format. A transcode
// failure degrades the response to the engine's native format instead of
// failing the request.
func (s *Service) finalize(
	ctx context.Context,
	requestID string,
	req core.SynthRequest,
	result *router.Result,
) *core.AudioOut {
	out := &core.AudioOut{
		Format:     req.Format,
		Engine:     result.Engine,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	}

	data, err := s.transcoder.Transcode(
		ctx, result.Audio, result.NativeFormat, req.Format,
		s.sampleRate, s.channels,
	)
	if err != nil {
		s.log.Warn(
			"Request %s transcode to %s failed, returning %s audio: %v",
			requestID, req.Format, result.NativeFormat, err,
		)

		out.Data = result.Audio
		out.Format = result.NativeFormat
		out.Degraded = true
		out.SampleRate = 0
		out.Channels = 0
	} else {
		out.Data = data
	}

	out.ContentType = out.Format.ContentType()
	out.Size = len(out.Data)
	out.Duration = transcode.Duration(out.Data, out.Format)

	return out
}

// cachedOut shapes a cache entry into the caller-facing audio result.
func (s *Service) cachedOut(req core.SynthRequest, entry cache.Entry) *core.AudioOut {
	return &core.AudioOut{
		Data:        entry.Payload,
		Format:      req.Format,
		ContentType: entry.ContentType,
		Duration:    transcode.Duration(entry.Payload, req.Format),
		SampleRate:  s.sampleRate,
		Channels:    s.channels,
		Size:        len(entry.Payload),
		FromCache:   true,
	}
}

// CacheStats reports response cache accounting.
func (s *Service) CacheStats() core.CacheStats {
	return s.cache.Stats()
}

// CacheClear empties both cache tiers and resets hit/miss accounting.
func (s *Service) CacheClear(ctx context.Context) error {
	err := s.cache.Clear(ctx)
	if err != nil {
		return err
	}

	s.cache.ResetStats()

	return nil
}

// RateLimitStatus reports the admission state for identity without
// counting a request.
func (s *Service) RateLimitStatus(identity string) core.RateLimitStatus {
	return s.governor.Status(identity)
}

// EngineStats reports per-engine success, failure, latency, and current
// availability.
func (s *Service) EngineStats(ctx context.Context) []core.EngineStat {
	return s.router.Stats(ctx)
}

// ResetEngineStats zeroes every engine's rolling counters.
func (s *Service) ResetEngineStats() {
	s.router.ResetStats()
}
