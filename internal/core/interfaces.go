package core

import "context"

// Provider is the capability exposed by an external synthesis backend.
// Implementations must map backend failures onto the provider error kinds
// so the router can distinguish transient faults from hard rejections.
type Provider interface {
	// Name returns the engine name the provider is registered under.
	Name() string

	// NativeFormat returns the container format of the raw audio the
	// provider produces.
	NativeFormat() AudioFormat

	// Synthesize converts text to raw audio in the provider's native
	// format.
	Synthesize(ctx context.Context, text, lang, voice string, rate, pitch float64) ([]byte, error)

	// Probe checks whether the backend is currently able to serve
	// requests.
	Probe(ctx context.Context) error
}

// Transcoder converts raw audio into a target container format, sample rate,
// and channel count.
type Transcoder interface {
	Transcode(ctx context.Context, raw []byte, source, target AudioFormat, sampleRate, channels int) ([]byte, error)
}

// ArtifactStore persists synthesized audio artifacts under opaque keys so
// transports can hand out references instead of payloads.
type ArtifactStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// Synthesizer is the exposed surface of the synthesis pipeline, consumed by
// transports such as the NATS worker.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest, identity string) (*AudioOut, error)
}
