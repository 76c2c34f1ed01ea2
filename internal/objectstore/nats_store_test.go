package objectstore_test

import (
	"context"
	"testing"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/objectstore"
)

func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
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

func TestUploadDownloadRoundTrip(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "generated-speech")
	require.NoError(t, err)

	ctx := context.Background()
	key := "archived-audio.wav"
	uploadData := []byte("RIFF fake wav payload")

	require.NoError(t, store.Upload(ctx, key, uploadData))

	downloadData, downloadErr := store.Download(ctx, key)
	require.NoError(t, downloadErr)
	assert.Equal(t, uploadData, downloadData)
}

func TestNewBindsToExistingBucket(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	first, err := objectstore.New(jetstreamContext, "shared-bucket")
	require.NoError(t, err)
	require.NoError(t, first.Upload(context.Background(), "seed", []byte("payload")))

	// A second instance must bind to the same bucket, not fail on the
	// existing one.
	second, err := objectstore.New(jetstreamContext, "shared-bucket")
	require.NoError(t, err)

	data, downloadErr := second.Download(context.Background(), "seed")
	require.NoError(t, downloadErr)
	assert.Equal(t, []byte("payload"), data)
}

func TestDownloadMissingObject(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := startTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := objectstore.New(jetstreamContext, "empty-bucket")
	require.NoError(t, err)

	_, downloadErr := store.Download(context.Background(), "no-such-key")
	require.Error(t, downloadErr)
}
