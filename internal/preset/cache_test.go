package preset_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/preset"
)

func mkdir(path string) error {
	return os.MkdirAll(path, 0o750)
}

// dirLocator maps every profile name to a fixed directory tree rooted at
// base, mirroring the store's layout without pulling in the full store.
type dirLocator struct {
	base     string
	withRefs map[string]string
}

func (l *dirLocator) Dir(name string) string {
	return filepath.Join(l.base, name)
}

func (l *dirLocator) LocateReferenceAudio(name string) (string, bool) {
	path, ok := l.withRefs[name]

	return path, ok
}

func TestGetOrDeriveLazyMaterialization(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	profileDir := filepath.Join(base, "alice")
	require.NoError(t, mkdir(profileDir))

	wavPath := writeReferenceClip(t, profileDir, 2)
	codec := &mockCodecEngine{}
	pipeline := preset.NewPipeline(codec, newTestLogger(t))
	cache := preset.NewCache(&dirLocator{
		base:     base,
		withRefs: map[string]string{"alice": wavPath},
	}, pipeline, newTestLogger(t))

	derived, ok := cache.GetOrDerive(context.Background(), "alice")
	require.True(t, ok)
	require.NotNil(t, derived)
	assert.Equal(t, 1, codec.encodeCalls)

	// The artifact must now persist on disk for re-derivability.
	loaded, loadErr := preset.LoadArtifact(profileDir)
	require.NoError(t, loadErr)
	assert.Equal(t, derived, loaded)

	// Second lookup is a memory hit; the codec is not consulted again.
	again, ok := cache.GetOrDerive(context.Background(), "alice")
	require.True(t, ok)
	assert.Equal(t, derived, again)
	assert.Equal(t, 1, codec.encodeCalls)
}

func TestGetOrDeriveLoadsPersistedArtifact(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	profileDir := filepath.Join(base, "bob")
	require.NoError(t, mkdir(profileDir))

	wavPath := writeReferenceClip(t, profileDir, 2)
	codec := &mockCodecEngine{}
	pipeline := preset.NewPipeline(codec, newTestLogger(t))

	_, err := pipeline.DeriveAndPersist(context.Background(), wavPath, profileDir)
	require.NoError(t, err)
	require.Equal(t, 1, codec.encodeCalls)

	// A fresh cache finds the artifact on disk without re-encoding.
	cache := preset.NewCache(&dirLocator{
		base:     base,
		withRefs: map[string]string{"bob": wavPath},
	}, pipeline, newTestLogger(t))

	_, ok := cache.GetOrDerive(context.Background(), "bob")
	require.True(t, ok)
	assert.Equal(t, 1, codec.encodeCalls)
}

func TestGetOrDeriveAbsentProfile(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	pipeline := preset.NewPipeline(&mockCodecEngine{}, newTestLogger(t))
	cache := preset.NewCache(&dirLocator{base: base, withRefs: map[string]string{}}, pipeline, newTestLogger(t))

	derived, ok := cache.GetOrDerive(context.Background(), "nobody")
	assert.False(t, ok)
	assert.Nil(t, derived)
}

func TestGetOrDeriveFailureIsAbsence(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	profileDir := filepath.Join(base, "carol")
	require.NoError(t, mkdir(profileDir))

	wavPath := writeReferenceClip(t, profileDir, 2)
	pipeline := preset.NewPipeline(&mockCodecEngine{shouldFail: true}, newTestLogger(t))
	cache := preset.NewCache(&dirLocator{
		base:     base,
		withRefs: map[string]string{"carol": wavPath},
	}, pipeline, newTestLogger(t))

	derived, ok := cache.GetOrDerive(context.Background(), "carol")
	assert.False(t, ok)
	assert.Nil(t, derived)
}

func TestInvalidateForcesDiskLookup(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	profileDir := filepath.Join(base, "dave")
	require.NoError(t, mkdir(profileDir))

	wavPath := writeReferenceClip(t, profileDir, 2)
	codec := &mockCodecEngine{}
	pipeline := preset.NewPipeline(codec, newTestLogger(t))
	cache := preset.NewCache(&dirLocator{
		base:     base,
		withRefs: map[string]string{"dave": wavPath},
	}, pipeline, newTestLogger(t))

	_, ok := cache.GetOrDerive(context.Background(), "dave")
	require.True(t, ok)

	cache.Invalidate("dave")

	// Artifact still on disk, so no re-encode happens.
	_, ok = cache.GetOrDerive(context.Background(), "dave")
	require.True(t, ok)
	assert.Equal(t, 1, codec.encodeCalls)
}
