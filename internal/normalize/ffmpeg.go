// Package normalize converts arbitrary uploaded media into the canonical
// reference format: mono WAV at the codec sample rate, with optional
// segment extraction.
package normalize

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/core"
)

const stderrTail = 500

// Normalizer shells out to ffmpeg. It is the only subprocess in the
// service that runs under a deadline; a hung conversion must not pin a
// request forever.
type Normalizer struct {
	ffmpegPath string
	sampleRate int
	timeout    time.Duration
	log        *logger.Logger
}

// New creates a Normalizer targeting the given sample rate.
func New(ffmpegPath string, sampleRate int, timeout time.Duration, log *logger.Logger) *Normalizer {
	return &Normalizer{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
		timeout:    timeout,
		log:        log,
	}
}

// Normalize transcodes inputPath into a mono WAV at the target sample rate
// at outputPath. A positive duration extracts a segment starting at start
// seconds; start alone skips the head of the file. Failures wrap
// core.ErrTranscode and include the tail of ffmpeg's diagnostics.
func (n *Normalizer) Normalize(ctx context.Context, inputPath, outputPath string, start, duration float64) error {
	runCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	args := []string{"-y", "-i", inputPath}

	if start > 0 {
		args = append(args, "-ss", formatSeconds(start))
	}

	if duration > 0 {
		args = append(args, "-t", formatSeconds(duration))
	}

	args = append(args,
		"-ar", strconv.Itoa(n.sampleRate),
		"-ac", "1",
		"-vn",
		outputPath,
	)

	// #nosec G204 -- ffmpeg path comes from validated service configuration
	cmd := exec.CommandContext(runCtx, n.ffmpegPath, args...)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		return fmt.Errorf("%w: ffmpeg failed for '%s': %w - output: %s",
			core.ErrTranscode, inputPath, runErr, tail(stderr.Bytes()))
	}

	return nil
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func tail(output []byte) string {
	if len(output) > stderrTail {
		output = output[len(output)-stderrTail:]
	}

	return string(output)
}
