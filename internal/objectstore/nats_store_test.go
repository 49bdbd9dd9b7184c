// Package objectstore_test tests the NATS audio artifact store.
package objectstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/tts-gateway/internal/objectstore"
)

func newTestStore(t *testing.T, bucket string) *objectstore.AudioStore {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream(nats.MaxWait(2 * time.Second))
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket, time.Hour)
	require.NoError(t, err)

	return store
}

func TestAudioStoreUploadDownload(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "audio-artifacts")
	ctx := context.Background()

	audio := []byte("ogg audio bytes")
	require.NoError(t, store.Upload(ctx, "job-abc.ogg", audio))

	downloaded, err := store.Download(ctx, "job-abc.ogg")
	require.NoError(t, err)
	require.Equal(t, audio, downloaded)
}

func TestAudioStoreDownloadMissingKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "audio-missing")

	_, err := store.Download(context.Background(), "no-such-key")
	require.Error(t, err)
}

func TestAudioStoreUploadOverwritesExistingKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, "audio-overwrite")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "same-key.ogg", []byte("first")))
	require.NoError(t, store.Upload(ctx, "same-key.ogg", []byte("second")))

	downloaded, err := store.Download(ctx, "same-key.ogg")
	require.NoError(t, err)
	require.Equal(t, []byte("second"), downloaded)
}
