package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
)

const (
	codecInputFileName = "input.wav"
	codecCodesFileName = "codes.json"
)

// EncodecRunner implements core.CodecEngine by invoking the encodec runner
// binary, which encodes a waveform into a codebooks x frames token grid at
// a fixed target bandwidth.
type EncodecRunner struct {
	binaryPath string
	sampleRate int
	bandwidth  float64
	log        *logger.Logger
}

// NewEncodecRunner creates a codec runner from configuration.
func NewEncodecRunner(cfg config.CodecConfig, log *logger.Logger) *EncodecRunner {
	return &EncodecRunner{
		binaryPath: cfg.BinaryPath,
		sampleRate: cfg.SampleRate,
		bandwidth:  cfg.Bandwidth,
		log:        log,
	}
}

// SampleRate returns the codec's native sample rate.
func (r *EncodecRunner) SampleRate() int {
	return r.sampleRate
}

// EncodeFrames writes the waveform to a temp WAV, runs the codec runner,
// and parses the resulting token grid.
func (r *EncodecRunner) EncodeFrames(ctx context.Context, samples []float32, sampleRate int) ([][]int64, error) {
	workDir, tempErr := os.MkdirTemp("", "encodec-encode-*")
	if tempErr != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", tempErr)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			r.log.Warn("Failed to remove work directory '%s': %v", workDir, removeErr)
		}
	}()

	inputPath := filepath.Join(workDir, codecInputFileName)

	writeErr := audio.WriteFile(inputPath, samples, sampleRate)
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write codec input: %w", writeErr)
	}

	codesPath := filepath.Join(workDir, codecCodesFileName)
	args := []string{
		"--input", inputPath,
		"--bandwidth", fmt.Sprintf("%.1f", r.bandwidth),
		"--codes", codesPath,
	}

	// #nosec G204 -- binary path comes from validated service configuration
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, fmt.Errorf("%w: codec encoding failed: %w - output: %s",
			core.ErrEngine, runErr, truncateOutput(output))
	}

	data, readErr := os.ReadFile(codesPath)
	if readErr != nil {
		return nil, fmt.Errorf("%w: failed to read codec output: %w", core.ErrEngine, readErr)
	}

	var grid [][]int64

	unmarshalErr := json.Unmarshal(data, &grid)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("%w: failed to parse codec output: %w", core.ErrEngine, unmarshalErr)
	}

	return grid, nil
}
