// Package core defines the domain types, capability interfaces, and error
// taxonomy for the TTS gateway.
package core

import (
	"math"
	"strings"
	"time"
)

// AudioFormat identifies a supported output container format.
type AudioFormat string

// Supported output formats.
const (
	FormatOGG AudioFormat = "ogg"
	FormatMP3 AudioFormat = "mp3"
	FormatWAV AudioFormat = "wav"
)

// Request validation bounds.
const (
	MaxTextLength = 5000
	MinRate       = 0.25
	MaxRate       = 4.0
	MaxPitchShift = 12.0
)

// Defaults applied during request normalization.
const (
	DefaultLanguage = "en"
	DefaultRate     = 1.0
	DefaultFormat   = FormatOGG

	// AutoSelect is the placeholder used when no explicit engine or
	// voice was requested.
	AutoSelect = "auto"
)

// normalizedPrecision is the number of decimal places rate and pitch are
// rounded to, so that float representation noise does not change request
// identity.
const normalizedPrecision = 2

// ContentType returns the MIME type for the format.
func (f AudioFormat) ContentType() string {
	switch f {
	case FormatOGG:
		return "audio/ogg"
	case FormatMP3:
		return "audio/mpeg"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Valid reports whether the format is one of the supported output formats.
func (f AudioFormat) Valid() bool {
	switch f {
	case FormatOGG, FormatMP3, FormatWAV:
		return true
	default:
		return false
	}
}

// SynthRequest describes a single synthesis request. It is treated as an
// immutable value once normalized.
type SynthRequest struct {
	// Text is the text to synthesize. Required, bounded by MaxTextLength.
	Text string

	// Language is an ISO language code such as "en" or "fa".
	Language string

	// Engine optionally pins the request to a named engine. When set and
	// AllowFallback is false, the engine is honored strictly.
	Engine string

	// Voice optionally names an engine-specific voice.
	Voice string

	// Rate is a speed multiplier. 1.0 is normal speed.
	Rate float64

	// Pitch is a semitone offset. 0.0 is the natural pitch.
	Pitch float64

	// Format is the requested output container format.
	Format AudioFormat

	// AllowFallback permits routing to other engines when the pinned
	// engine is unknown or unavailable.
	AllowFallback bool
}

// Normalized returns a copy of the request with whitespace trimmed, the
// language lowercased, defaults applied, and numeric fields rounded to a
// fixed precision. Two requests that differ only in non-semantic whitespace
// or float noise normalize to the same value.
func (r SynthRequest) Normalized() SynthRequest {
	normalized := r
	normalized.Text = strings.TrimSpace(r.Text)
	normalized.Language = strings.ToLower(strings.TrimSpace(r.Language))
	normalized.Engine = strings.TrimSpace(r.Engine)
	normalized.Voice = strings.TrimSpace(r.Voice)

	if normalized.Language == "" {
		normalized.Language = DefaultLanguage
	}

	if normalized.Rate == 0 {
		normalized.Rate = DefaultRate
	}

	if normalized.Format == "" {
		normalized.Format = DefaultFormat
	}

	normalized.Rate = roundTo(normalized.Rate, normalizedPrecision)
	normalized.Pitch = roundTo(normalized.Pitch, normalizedPrecision)

	return normalized
}

// Validate checks the normalized request against the synthesis bounds.
// It returns a *ValidationError describing the first violation found.
func (r SynthRequest) Validate() error {
	if r.Text == "" {
		return &ValidationError{Reason: "text cannot be empty"}
	}

	if len(r.Text) > MaxTextLength {
		return &ValidationError{Reason: "text exceeds maximum length"}
	}

	if r.Rate < MinRate || r.Rate > MaxRate {
		return &ValidationError{Reason: "rate out of range"}
	}

	if r.Pitch < -MaxPitchShift || r.Pitch > MaxPitchShift {
		return &ValidationError{Reason: "pitch out of range"}
	}

	if !r.Format.Valid() {
		return &ValidationError{Reason: "unsupported output format"}
	}

	return nil
}

func roundTo(value float64, places int) float64 {
	factor := math.Pow(10, float64(places))

	return math.Round(value*factor) / factor
}

// AudioOut is the result of a synthesis request: the encoded payload plus
// the metadata callers need to serve or store it.
type AudioOut struct {
	Data        []byte
	Format      AudioFormat
	ContentType string
	Duration    float64
	SampleRate  int
	Channels    int
	Size        int
	Engine      string
	FromCache   bool

	// Degraded is set when transcoding failed and the audio is returned
	// in the engine's native format instead of the requested one.
	Degraded bool
}

// EngineCapabilities holds the static facts about what an engine can do.
type EngineCapabilities struct {
	Offline       bool
	SSML          bool
	RateControl   bool
	PitchControl  bool
	MaxTextLength int
}

// EngineStat is a read-only snapshot of an engine's rolling runtime stats.
type EngineStat struct {
	Name         string
	SuccessCount uint64
	FailureCount uint64
	AvgLatency   time.Duration
	Available    bool
}

// CacheStats reports response cache accounting since process start or the
// last explicit reset.
type CacheStats struct {
	Hits       uint64
	Misses     uint64
	HitRate    float64
	EntryCount int
}

// RateLimitStatus reports the admission state for one identity.
type RateLimitStatus struct {
	Remaining int
	ResetAt   time.Time
}
