// main package for the tts-gateway
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-gateway/internal/cache"
	"github.com/book-expert/tts-gateway/internal/config"
	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/engine"
	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/book-expert/tts-gateway/internal/orchestrator"
	"github.com/book-expert/tts-gateway/internal/ratelimit"
	"github.com/book-expert/tts-gateway/internal/router"
	"github.com/book-expert/tts-gateway/internal/transcode"
	"github.com/book-expert/tts-gateway/internal/worker"
)

const (
	defaultProviderTimeout = 10 * time.Second
	natsRequestTimeout     = 5 * time.Second
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "tts-gateway.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildDescriptors(cfg *config.Config) []*router.Descriptor {
	descriptors := make([]*router.Descriptor, 0, len(cfg.Providers))

	for name, providerCfg := range cfg.Providers {
		timeout := time.Duration(providerCfg.TimeoutSeconds) * time.Second
		if timeout <= 0 {
			timeout = defaultProviderTimeout
		}

		provider := engine.NewHTTPProvider(
			name,
			providerCfg.BaseURL,
			core.AudioFormat(providerCfg.NativeFormat),
			timeout,
		)

		descriptors = append(descriptors, router.NewDescriptor(
			provider,
			providerCfg.Languages,
			core.EngineCapabilities{
				RateControl:   true,
				PitchControl:  true,
				MaxTextLength: core.MaxTextLength,
			},
			providerCfg.Priority,
		))
	}

	return descriptors
}

func buildCache(
	cfg *config.Config,
	natsConnection *nats.Conn,
	log *logger.Logger,
) (*cache.ResponseCache, func(), error) {
	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = orchestrator.DefaultCacheTTL
	}

	sharedTimeout := time.Duration(cfg.Cache.SharedTimeoutMillis) * time.Millisecond

	fast := cache.NewFastTier(cacheTTL, cfg.Cache.FastCapacity)

	var shared cache.SharedTier

	if cfg.Cache.SharedEnabled {
		natsTier, err := cache.NewNatsTier(
			natsConnection, cfg.NATS.CacheBucket, cacheTTL, sharedTimeout,
		)
		if err != nil {
			fast.Stop()

			return nil, nil, fmt.Errorf(
				"failed to create shared cache tier: %w", err,
			)
		}

		shared = natsTier
	}

	if sharedTimeout <= 0 {
		sharedTimeout = cache.DefaultRequestTimeout
	}

	return cache.New(fast, shared, sharedTimeout, log), fast.Stop, nil
}

func run() error {
	// A temporary logger carries the bootstrap until the configured log
	// directory is known.
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream(nats.MaxWait(natsRequestTimeout))
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	responseCache, stopCache, err := buildCache(cfg, natsConnection, finalLog)
	if err != nil {
		return err
	}
	defer stopCache()

	artifactTTL := time.Duration(cfg.Cache.ArtifactTTLSeconds) * time.Second

	artifactStore, err := objectstore.New(
		jetstreamContext, cfg.NATS.AudioObjectStoreBucket, artifactTTL,
	)
	if err != nil {
		return fmt.Errorf("failed to create artifact store: %w", err)
	}

	governor := ratelimit.New(
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second,
		cfg.RateLimit.MaxRequests,
	)

	engineRouter := router.New(
		buildDescriptors(cfg),
		router.Policy{
			Languages: cfg.Routing.Languages,
			Default:   cfg.Routing.Default,
		},
		time.Duration(cfg.Routing.EngineTimeoutSeconds)*time.Second,
		time.Duration(cfg.Routing.ProbeTTLSeconds)*time.Second,
		finalLog,
	)

	transcoder := transcode.NewFFmpeg(cfg.Transcode.FFmpegBinary, finalLog)

	pipeline := orchestrator.New(
		responseCache,
		governor,
		engineRouter,
		transcoder,
		orchestrator.Config{
			CacheTTL:   time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			SampleRate: cfg.Transcode.SampleRate,
			Channels:   cfg.Transcode.Channels,
		},
		finalLog,
	)

	natsWorker := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesizeSubject,
		artifactStore,
		pipeline,
		finalLog,
	)

	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	finalLog.System(
		"TTS gateway initialized. Listening for jobs on subject: %s",
		cfg.NATS.SynthesizeSubject,
	)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker exited with error: %w", err)
	}

	finalLog.System("TTS gateway shut down cleanly.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
