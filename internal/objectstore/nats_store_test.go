// Package objectstore_test tests the JetStream artifact store.
package objectstore_test

import (
	"context"
	"testing"

	"github.com/book-expert/voiceover-service/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-memory NATS server for testing purposes.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newStore(t *testing.T, bucket string) *objectstore.VoiceoverStore {
	t.Helper()

	natsServer, natsConnection := StartTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, bucket)
	require.NoError(t, err)

	return store
}

func TestVoiceoverStoreUploadDownload(t *testing.T) {
	t.Parallel()

	store := newStore(t, "voiceover-test")
	ctx := context.Background()

	uploadData := []byte("mp3-or-wav-bytes")

	require.NoError(t, store.Upload(ctx, "completed/intro_01.wav", uploadData))

	downloadData, err := store.Download(ctx, "completed/intro_01.wav")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestVoiceoverStoreDownloadMissingKey(t *testing.T) {
	t.Parallel()

	store := newStore(t, "voiceover-missing")

	_, err := store.Download(context.Background(), "completed/nope.wav")
	require.Error(t, err)
}

func TestVoiceoverStoreListByDispositionPrefix(t *testing.T) {
	t.Parallel()

	store := newStore(t, "voiceover-list")
	ctx := context.Background()

	require.NoError(t, store.Upload(ctx, "completed/intro_01.wav", []byte("a")))
	require.NoError(t, store.Upload(ctx, "completed/outro_02.wav", []byte("b")))
	require.NoError(t, store.Upload(ctx, "needs_review/scene_03.wav", []byte("c")))

	completed, err := store.List(ctx, "completed/")
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{"completed/intro_01.wav", "completed/outro_02.wav"}, completed)

	review, err := store.List(ctx, "needs_review/")
	require.NoError(t, err)
	assert.Equal(t, []string{"needs_review/scene_03.wav"}, review)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestVoiceoverStoreListEmptyBucket(t *testing.T) {
	t.Parallel()

	store := newStore(t, "voiceover-empty")

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
