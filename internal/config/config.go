// Package config provides the configuration structure for the tts-gateway.
package config

import (
	"fmt"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	SynthesizeSubject      string `toml:"synthesize_subject"`
	CacheBucket            string `toml:"cache_bucket"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// CacheConfig holds the response cache tuning knobs.
type CacheConfig struct {
	TTLSeconds          int    `toml:"ttl_seconds"`
	FastCapacity        uint64 `toml:"fast_capacity"`
	SharedEnabled       bool   `toml:"shared_enabled"`
	SharedTimeoutMillis int    `toml:"shared_timeout_millis"`
	ArtifactTTLSeconds  int    `toml:"artifact_ttl_seconds"`
}

// RateLimitConfig holds the fixed-window admission knobs.
type RateLimitConfig struct {
	WindowSeconds int `toml:"window_seconds"`
	MaxRequests   int `toml:"max_requests"`
}

// TranscodeConfig holds the audio output parameters.
type TranscodeConfig struct {
	FFmpegBinary string `toml:"ffmpeg_binary"`
	SampleRate   int    `toml:"sample_rate"`
	Channels     int    `toml:"channels"`
}

// ProviderConfig describes one synthesis engine backend.
type ProviderConfig struct {
	BaseURL        string   `toml:"base_url"`
	NativeFormat   string   `toml:"native_format"`
	Languages      []string `toml:"languages"`
	Priority       int      `toml:"priority"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// RoutingConfig holds the language-to-engine routing policy.
type RoutingConfig struct {
	Languages            map[string][]string `toml:"languages"`
	Default              []string            `toml:"default"`
	EngineTimeoutSeconds int                 `toml:"engine_timeout_seconds"`
	ProbeTTLSeconds      int                 `toml:"probe_ttl_seconds"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS      NATSConfig                `toml:"nats"`
	Cache     CacheConfig               `toml:"cache"`
	RateLimit RateLimitConfig           `toml:"rate_limit"`
	Transcode TranscodeConfig           `toml:"transcode"`
	Routing   RoutingConfig             `toml:"routing"`
	Providers map[string]ProviderConfig `toml:"providers"`
	Paths     PathsConfig               `toml:"paths"`
}

// Load loads the configuration for the tts-gateway.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return &cfg, nil
}
