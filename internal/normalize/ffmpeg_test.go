package normalize_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/normalize"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "normalize-test.log")
	require.NoError(t, err)

	t.Cleanup(func() {
		closeErr := log.Close()
		if closeErr != nil {
			t.Logf("failed to close logger: %v", closeErr)
		}
	})

	return log
}

// writeFakeConverter installs a shell script that records its arguments and
// creates the requested output file, standing in for ffmpeg.
func writeFakeConverter(t *testing.T, dir string) (binPath, argsPath string) {
	t.Helper()

	binPath = filepath.Join(dir, "fake-ffmpeg")
	argsPath = filepath.Join(dir, "args.txt")

	script := "#!/bin/sh\n" +
		"printf '%s\\n' \"$@\" > \"" + argsPath + "\"\n" +
		"for last; do :; done\n" +
		"touch \"$last\"\n"

	require.NoError(t, os.WriteFile(binPath, []byte(script), 0o700))

	return binPath, argsPath
}

func TestNormalizeBuildsCanonicalInvocation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	binPath, argsPath := writeFakeConverter(t, dir)

	inputPath := filepath.Join(dir, "upload.mp3")
	require.NoError(t, os.WriteFile(inputPath, []byte("media"), 0o600))

	outputPath := filepath.Join(dir, "reference.wav")
	normalizer := normalize.New(binPath, 24000, 10*time.Second, newTestLogger(t))

	err := normalizer.Normalize(context.Background(), inputPath, outputPath, 0, 0)
	require.NoError(t, err)
	require.FileExists(t, outputPath)

	recorded, readErr := os.ReadFile(argsPath)
	require.NoError(t, readErr)

	args := strings.Split(strings.TrimSpace(string(recorded)), "\n")
	assert.Equal(t, []string{
		"-y", "-i", inputPath,
		"-ar", "24000", "-ac", "1", "-vn",
		outputPath,
	}, args)
}

func TestNormalizeAddsSegmentExtraction(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	binPath, argsPath := writeFakeConverter(t, dir)

	inputPath := filepath.Join(dir, "long.mp4")
	require.NoError(t, os.WriteFile(inputPath, []byte("media"), 0o600))

	outputPath := filepath.Join(dir, "segment.wav")
	normalizer := normalize.New(binPath, 24000, 10*time.Second, newTestLogger(t))

	err := normalizer.Normalize(context.Background(), inputPath, outputPath, 12.5, 8)
	require.NoError(t, err)

	recorded, readErr := os.ReadFile(argsPath)
	require.NoError(t, readErr)

	joined := strings.Join(strings.Split(strings.TrimSpace(string(recorded)), "\n"), " ")
	assert.Contains(t, joined, "-ss 12.5")
	assert.Contains(t, joined, "-t 8")
}

func TestNormalizeWrapsFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	normalizer := normalize.New(
		filepath.Join(dir, "missing-binary"), 24000, time.Second, newTestLogger(t))

	err := normalizer.Normalize(context.Background(),
		filepath.Join(dir, "input.wav"), filepath.Join(dir, "output.wav"), 0, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTranscode)
}
