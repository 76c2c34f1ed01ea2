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
	presetFileName  = "prompt.json"
	outputFileName  = "generated.wav"
	filePermissions = 0o600
	outputTruncate  = 500
)

// BarkRunner implements core.GenerativeEngine by invoking the bark runner
// binary. The runner holds both sub-models (text processor and generator)
// and produces a WAV file per call.
type BarkRunner struct {
	binaryPath string
	modelDir   string
	device     string
	useFP16    bool
	cpuOffload bool
	log        *logger.Logger
}

// NewBarkRunner creates a runner for the given device. Half precision and
// CPU offload are enabled on the accelerated path only.
func NewBarkRunner(cfg config.EngineConfig, device string, log *logger.Logger) *BarkRunner {
	return &BarkRunner{
		binaryPath: cfg.BinaryPath,
		modelDir:   cfg.ModelDir,
		device:     device,
		useFP16:    device == DeviceCUDA,
		cpuOffload: device == DeviceCUDA,
		log:        log,
	}
}

// Warmup loads the runner's models once so later generation calls do not
// pay the load cost. Called by the loader factory.
func (r *BarkRunner) Warmup(ctx context.Context) error {
	args := append(r.deviceArgs(), "--warmup")

	// #nosec G204 -- binary path and model dir come from validated service configuration
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return fmt.Errorf("%w: warmup failed: %w - output: %s",
			core.ErrEngine, runErr, truncateOutput(output))
	}

	return nil
}

// Generate synthesizes a waveform for the request. The produced WAV is read
// back as mono float32 samples together with its sample rate.
func (r *BarkRunner) Generate(ctx context.Context, req core.GenerateRequest) ([]float32, int, error) {
	workDir, tempErr := os.MkdirTemp("", "bark-generate-*")
	if tempErr != nil {
		return nil, 0, fmt.Errorf("failed to create work directory: %w", tempErr)
	}

	defer func() {
		removeErr := os.RemoveAll(workDir)
		if removeErr != nil {
			r.log.Warn("Failed to remove work directory '%s': %v", workDir, removeErr)
		}
	}()

	outputPath := filepath.Join(workDir, outputFileName)

	args, argsErr := r.generateArgs(req, workDir, outputPath)
	if argsErr != nil {
		return nil, 0, argsErr
	}

	// #nosec G204 -- arguments are assembled from validated configuration and sanitized request fields
	cmd := exec.CommandContext(ctx, r.binaryPath, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return nil, 0, fmt.Errorf("%w: generation failed: %w - output: %s",
			core.ErrEngine, runErr, truncateOutput(output))
	}

	samples, sampleRate, channels, readErr := audio.ReadFile(outputPath)
	if readErr != nil {
		return nil, 0, fmt.Errorf("%w: failed to read generated audio: %w", core.ErrEngine, readErr)
	}

	return audio.ToMono(samples, channels), sampleRate, nil
}

// generateArgs assembles the runner invocation for one request, writing the
// cloned prompt to a temp file when one is supplied.
func (r *BarkRunner) generateArgs(req core.GenerateRequest, workDir, outputPath string) ([]string, error) {
	args := append(r.deviceArgs(),
		"--text", req.Text,
		"--output", outputPath,
		"--semantic-temp", fmt.Sprintf("%.2f", req.Sampling.SemanticTemperature),
		"--coarse-temp", fmt.Sprintf("%.2f", req.Sampling.CoarseTemperature),
		"--fine-temp", fmt.Sprintf("%.2f", req.Sampling.FineTemperature),
	)

	if req.Language != "" {
		args = append(args, "--language", req.Language)
	}

	switch {
	case req.BuiltinPreset != "":
		args = append(args, "--history-prompt", req.BuiltinPreset)
	case req.Preset != nil:
		presetPath := filepath.Join(workDir, presetFileName)

		data, marshalErr := json.Marshal(req.Preset)
		if marshalErr != nil {
			return nil, fmt.Errorf("failed to marshal prompt: %w", marshalErr)
		}

		writeErr := os.WriteFile(presetPath, data, filePermissions)
		if writeErr != nil {
			return nil, fmt.Errorf("failed to write prompt file: %w", writeErr)
		}

		args = append(args, "--preset-file", presetPath)
	}

	return args, nil
}

func (r *BarkRunner) deviceArgs() []string {
	args := []string{
		"--model-dir", r.modelDir,
		"--device", r.device,
	}

	if r.useFP16 {
		args = append(args, "--fp16")
	}

	if r.cpuOffload {
		args = append(args, "--cpu-offload")
	}

	return args
}

func truncateOutput(output []byte) string {
	if len(output) > outputTruncate {
		output = output[:outputTruncate]
	}

	return string(output)
}
