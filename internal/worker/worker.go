// Package worker provides a NATS worker that serves synthesis jobs over
// request/reply.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/tts-gateway/internal/core"
)

const handleMessageTimeout = 30 * time.Second

// Error kinds carried in failure replies so callers can branch without
// string matching.
const (
	ErrKindValidation  = "validation"
	ErrKindRateLimited = "rate_limited"
	ErrKindUnavailable = "all_engines_unavailable"
	ErrKindInternal    = "internal"
)

// ErrEmptyIdentity indicates a job arrived without a caller identity.
var ErrEmptyIdentity = errors.New("identity cannot be empty")

// Job is the wire shape of a synthesis request.
type Job struct {
	JobID         string  `json:"job_id"`
	Identity      string  `json:"identity"`
	Text          string  `json:"text"`
	Language      string  `json:"language"`
	Engine        string  `json:"engine,omitempty"`
	Voice         string  `json:"voice,omitempty"`
	Rate          float64 `json:"rate,omitempty"`
	Pitch         float64 `json:"pitch,omitempty"`
	Format        string  `json:"format,omitempty"`
	AllowFallback bool    `json:"allow_fallback,omitempty"`
}

// Reply is the wire shape of a job outcome. Exactly one of AudioKey and
// Error is populated.
type Reply struct {
	JobID       string      `json:"job_id"`
	AudioKey    string      `json:"audio_key,omitempty"`
	Engine      string      `json:"engine,omitempty"`
	Format      string      `json:"format,omitempty"`
	ContentType string      `json:"content_type,omitempty"`
	Duration    float64     `json:"duration_seconds,omitempty"`
	SizeBytes   int         `json:"size_bytes,omitempty"`
	FromCache   bool        `json:"from_cache,omitempty"`
	Degraded    bool        `json:"degraded,omitempty"`
	Error       *ReplyError `json:"error,omitempty"`
}

// ReplyError describes a failed job.
type ReplyError struct {
	Kind       string  `json:"kind"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after_seconds,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and replies with
// references to stored audio artifacts.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ArtifactStore
	synthesizer    core.Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ArtifactStore,
	synthesizer core.Synthesizer,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), handleMessageTimeout)
	defer cancel()

	job, err := w.parseJob(msg)
	if err != nil {
		w.log.Error("Failed to parse job: %v", err)
		w.respond(msg, &Reply{
			Error: &ReplyError{Kind: ErrKindValidation, Message: err.Error()},
		})

		return
	}

	reply := w.processJob(ctx, job)

	w.respond(msg, reply)
}

// processJob runs one job through the synthesizer and uploads the audio.
func (w *NatsWorker) processJob(ctx context.Context, job *Job) *Reply {
	req := core.SynthRequest{
		Text:          job.Text,
		Language:      job.Language,
		Engine:        job.Engine,
		Voice:         job.Voice,
		Rate:          job.Rate,
		Pitch:         job.Pitch,
		Format:        core.AudioFormat(job.Format),
		AllowFallback: job.AllowFallback,
	}

	out, err := w.synthesizer.Synthesize(ctx, req, job.Identity)
	if err != nil {
		w.log.Error("Job %s failed: %v", job.JobID, err)

		return &Reply{JobID: job.JobID, Error: classifyError(err)}
	}

	audioKey := uuid.NewString() + "." + string(out.Format)

	err = w.store.Upload(ctx, audioKey, out.Data)
	if err != nil {
		w.log.Error(
			"Failed to upload audio for job %s key '%s': %v",
			job.JobID, audioKey, err,
		)

		return &Reply{
			JobID: job.JobID,
			Error: &ReplyError{
				Kind:    ErrKindInternal,
				Message: "failed to store audio artifact",
			},
		}
	}

	return &Reply{
		JobID:       job.JobID,
		AudioKey:    audioKey,
		Engine:      out.Engine,
		Format:      string(out.Format),
		ContentType: out.ContentType,
		Duration:    out.Duration,
		SizeBytes:   out.Size,
		FromCache:   out.FromCache,
		Degraded:    out.Degraded,
	}
}

func (w *NatsWorker) respond(msg *nats.Msg, reply *Reply) {
	data, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply: %v", err)

		return
	}

	err = msg.Respond(data)
	if err != nil {
		w.log.Error("Failed to publish reply: %v", err)
	}
}

func (w *NatsWorker) parseJob(msg *nats.Msg) (*Job, error) {
	var job Job

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	if job.Identity == "" {
		return nil, ErrEmptyIdentity
	}

	return &job, nil
}

// classifyError maps pipeline errors onto wire error kinds.
func classifyError(err error) *ReplyError {
	var validationErr *core.ValidationError
	if errors.As(err, &validationErr) {
		return &ReplyError{Kind: ErrKindValidation, Message: validationErr.Error()}
	}

	var limitedErr *core.RateLimitedError
	if errors.As(err, &limitedErr) {
		return &ReplyError{
			Kind:       ErrKindRateLimited,
			Message:    limitedErr.Error(),
			RetryAfter: limitedErr.RetryAfter.Seconds(),
		}
	}

	var unavailableErr *core.AllEnginesUnavailableError
	if errors.As(err, &unavailableErr) {
		return &ReplyError{Kind: ErrKindUnavailable, Message: unavailableErr.Error()}
	}

	return &ReplyError{Kind: ErrKindInternal, Message: err.Error()}
}
