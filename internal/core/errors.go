package core

import (
	"errors"
	"fmt"
	"time"
)

// Provider error kinds. Providers must return one of these (wrapped) so the
// router can distinguish hard rejections from transient faults.
var (
	// ErrUnsupportedLanguage indicates the engine cannot speak the
	// requested language.
	ErrUnsupportedLanguage = errors.New("language not supported by engine")
	// ErrUnsupportedVoice indicates the engine does not know the
	// requested voice.
	ErrUnsupportedVoice = errors.New("voice not supported by engine")
	// ErrTextTooLong indicates the text exceeds the engine's limit.
	ErrTextTooLong = errors.New("text exceeds engine limit")
	// ErrProviderTransient indicates a retryable backend failure.
	ErrProviderTransient = errors.New("transient provider failure")
	// ErrProviderUnavailable indicates the backend is down or unreachable.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// ValidationError reports a malformed or oversized request. It is surfaced
// immediately and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// RateLimitedError reports a denied admission, carrying the retry hint the
// caller should surface.
type RateLimitedError struct {
	RetryAfter time.Duration
	ResetAt    time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}

// AllEnginesUnavailableError is the terminal routing failure: every candidate
// engine for the request failed. The last underlying cause is preserved.
type AllEnginesUnavailableError struct {
	Language string
	Attempts int
	LastErr  error
}

func (e *AllEnginesUnavailableError) Error() string {
	return fmt.Sprintf(
		"all engines unavailable for language %q after %d attempts: %v",
		e.Language, e.Attempts, e.LastErr,
	)
}

func (e *AllEnginesUnavailableError) Unwrap() error {
	return e.LastErr
}

// TranscodeError reports a failed format conversion. The pipeline degrades
// by returning the raw audio; this error is terminal only when no raw audio
// exists at all.
type TranscodeError struct {
	Target AudioFormat
	Err    error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode to %s failed: %v", e.Target, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
