// Package worker_test tests the NATS worker for the synthesis gateway.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-gateway/internal/core"
	"github.com/book-expert/tts-gateway/internal/worker"
)

var errMockUpload = errors.New("mock upload error")

// mockArtifactStore is a mock implementation of the ArtifactStore interface.
type mockArtifactStore struct {
	uploadShouldFail bool
	uploadedKey      string
	uploadedData     []byte
}

func (m *mockArtifactStore) Download(_ context.Context, _ string) ([]byte, error) {
	return nil, nats.ErrObjectNotFound
}

func (m *mockArtifactStore) Upload(_ context.Context, key string, data []byte) error {
	if m.uploadShouldFail {
		return errMockUpload
	}

	m.uploadedKey = key
	m.uploadedData = data

	return nil
}

// mockSynthesizer is a scriptable Synthesizer implementation.
type mockSynthesizer struct {
	err      error
	lastReq  core.SynthRequest
	identity string
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context,
	req core.SynthRequest,
	identity string,
) (*core.AudioOut, error) {
	m.lastReq = req
	m.identity = identity

	if m.err != nil {
		return nil, m.err
	}

	return &core.AudioOut{
		Data:        []byte("sample audio"),
		Format:      core.FormatOGG,
		ContentType: "audio/ogg",
		Duration:    1.5,
		Size:        12,
		Engine:      "piper",
	}, nil
}

func createTestNatsClient(t *testing.T) *nats.Conn {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	server := test.RunServer(&opts)

	natsConnection, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)

	t.Cleanup(func() {
		natsConnection.Close()
		server.Shutdown()
	})

	return natsConnection
}

func setupTest(t *testing.T) (*mockArtifactStore, *mockSynthesizer, *nats.Conn) {
	t.Helper()

	mockStore := &mockArtifactStore{}
	mockSynth := &mockSynthesizer{}

	natsConnection := createTestNatsClient(t)

	testLogger, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	workerInstance := worker.NewNatsWorker(
		natsConnection, "tts.synthesize", mockStore, mockSynth, testLogger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errChan := make(chan error, 1)

	go func() {
		errChan <- workerInstance.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()

		select {
		case runErr := <-errChan:
			assert.NoError(t, runErr)
		case <-time.After(5 * time.Second):
			t.Error("worker did not shut down")
		}
	})

	require.Eventually(t, func() bool {
		return natsConnection.NumSubscriptions() > 0
	}, 5*time.Second, 10*time.Millisecond, "worker did not subscribe")

	return mockStore, mockSynth, natsConnection
}

func requestReply(t *testing.T, natsConnection *nats.Conn, job worker.Job) worker.Reply {
	t.Helper()

	jobData, err := json.Marshal(job)
	require.NoError(t, err)

	replyMsg, err := natsConnection.Request("tts.synthesize", jobData, 5*time.Second)
	require.NoError(t, err, "request should receive a reply")

	var reply worker.Reply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))

	return reply
}

func TestJobSuccessUploadsAudioAndReplies(t *testing.T) {
	t.Parallel()

	mockStore, mockSynth, natsConnection := setupTest(t)

	reply := requestReply(t, natsConnection, worker.Job{
		JobID:    "job-1",
		Identity: "client-a",
		Text:     "hello",
		Language: "en",
		Format:   "ogg",
	})

	require.Nil(t, reply.Error)
	assert.Equal(t, "job-1", reply.JobID)
	assert.Equal(t, mockStore.uploadedKey, reply.AudioKey)
	assert.True(t, strings.HasSuffix(reply.AudioKey, ".ogg"))
	assert.Equal(t, "piper", reply.Engine)
	assert.Equal(t, "audio/ogg", reply.ContentType)
	assert.InEpsilon(t, 1.5, reply.Duration, 0.001)
	assert.Equal(t, []byte("sample audio"), mockStore.uploadedData)
	assert.Equal(t, "client-a", mockSynth.identity)
	assert.Equal(t, "hello", mockSynth.lastReq.Text)
}

func TestJobValidationFailureReply(t *testing.T) {
	t.Parallel()

	mockStore, mockSynth, natsConnection := setupTest(t)
	mockSynth.err = &core.ValidationError{Reason: "text cannot be empty"}

	reply := requestReply(t, natsConnection, worker.Job{
		JobID:    "job-2",
		Identity: "client-a",
	})

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindValidation, reply.Error.Kind)
	assert.Empty(t, reply.AudioKey)
	assert.Empty(t, mockStore.uploadedKey)
}

func TestJobRateLimitedReplyCarriesRetryAfter(t *testing.T) {
	t.Parallel()

	_, mockSynth, natsConnection := setupTest(t)
	mockSynth.err = &core.RateLimitedError{
		RetryAfter: 30 * time.Second,
		ResetAt:    time.Now().Add(30 * time.Second),
	}

	reply := requestReply(t, natsConnection, worker.Job{
		JobID:    "job-3",
		Identity: "client-a",
		Text:     "hello",
	})

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindRateLimited, reply.Error.Kind)
	assert.InEpsilon(t, 30.0, reply.Error.RetryAfter, 0.001)
}

func TestJobAllEnginesUnavailableReply(t *testing.T) {
	t.Parallel()

	_, mockSynth, natsConnection := setupTest(t)
	mockSynth.err = &core.AllEnginesUnavailableError{
		Language: "en",
		Attempts: 2,
		LastErr:  core.ErrProviderTransient,
	}

	reply := requestReply(t, natsConnection, worker.Job{
		JobID:    "job-4",
		Identity: "client-a",
		Text:     "hello",
	})

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindUnavailable, reply.Error.Kind)
}

func TestJobUploadFailureReply(t *testing.T) {
	t.Parallel()

	mockStore, _, natsConnection := setupTest(t)
	mockStore.uploadShouldFail = true

	reply := requestReply(t, natsConnection, worker.Job{
		JobID:    "job-5",
		Identity: "client-a",
		Text:     "hello",
	})

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindInternal, reply.Error.Kind)
	assert.Empty(t, reply.AudioKey)
}

func TestJobWithoutIdentityRejected(t *testing.T) {
	t.Parallel()

	_, mockSynth, natsConnection := setupTest(t)

	reply := requestReply(t, natsConnection, worker.Job{
		JobID: "job-6",
		Text:  "hello",
	})

	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindValidation, reply.Error.Kind)
	assert.Empty(t, mockSynth.identity)
}

func TestMalformedJobRejected(t *testing.T) {
	t.Parallel()

	_, _, natsConnection := setupTest(t)

	replyMsg, err := natsConnection.Request(
		"tts.synthesize", []byte("not json"), 5*time.Second,
	)
	require.NoError(t, err)

	var reply worker.Reply

	require.NoError(t, json.Unmarshal(replyMsg.Data, &reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, worker.ErrKindValidation, reply.Error.Kind)
}
