// Package synth orchestrates a synthesis request end to end: voice
// resolution, text preparation, single-slot inference, loudness
// normalization, and output persistence.
package synth

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/text"
)

// BuiltinPresetPrefix tags a voice selector as one of the engine's bundled
// speaker presets rather than a stored profile name.
const BuiltinPresetPrefix = "v2/"

// Fixed sampling temperatures and loudness target. These are service
// policy, not request parameters.
const (
	semanticTemperature = 0.7
	coarseTemperature   = 0.7
	fineTemperature     = 0.5
	peakTarget          = 0.95
)

const (
	defaultVoiceTag = "default"
	dirPermissions  = 0o750
	archiveSuffix   = ".wav"
)

// EngineProvider yields the generative engine, loading it on first use.
type EngineProvider interface {
	Engine(ctx context.Context) (core.GenerativeEngine, error)
}

// PresetSource resolves a profile name to its acoustic prompt, deriving it
// lazily when possible. Absence is reported via the boolean.
type PresetSource interface {
	GetOrDerive(ctx context.Context, name string) (*core.VoicePreset, bool)
}

// ProfileResolver is the view of the profile store the orchestrator needs.
type ProfileResolver interface {
	Exists(name string) bool
	Active() string
}

// Request is one synthesis job.
type Request struct {
	Text     string
	Voice    string
	Language string
}

// Result is the outcome of a completed synthesis.
type Result struct {
	Audio      []float32
	SampleRate int
	Elapsed    time.Duration
	OutputPath string
}

// Orchestrator runs synthesis jobs. Inference is serialized through a
// single slot; concurrent requests queue on the mutex.
type Orchestrator struct {
	provider EngineProvider
	presets  PresetSource
	profiles ProfileResolver
	preparer *text.Preparer
	archive  core.ObjectStore
	log      *logger.Logger

	outputDir       string
	defaultLanguage string

	inferenceMu sync.Mutex
}

// New creates an orchestrator. The archive store is optional; nil disables
// archival of generated audio.
func New(
	provider EngineProvider,
	presets PresetSource,
	profiles ProfileResolver,
	archive core.ObjectStore,
	outputDir string,
	defaultLanguage string,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		provider:        provider,
		presets:         presets,
		profiles:        profiles,
		preparer:        text.NewPreparer(),
		archive:         archive,
		log:             log,
		outputDir:       outputDir,
		defaultLanguage: defaultLanguage,
	}
}

// Synthesize runs one job to completion. Generation time covers inference
// only; a first-request model load is excluded from the measurement.
func (o *Orchestrator) Synthesize(ctx context.Context, req Request) (*Result, error) {
	prepared := o.preparer.Prepare(req.Text)
	if prepared == "" {
		return nil, fmt.Errorf("%w: text is required", core.ErrValidation)
	}

	genReq, voiceTag, resolveErr := o.resolveVoice(ctx, req.Voice)
	if resolveErr != nil {
		return nil, resolveErr
	}

	genReq.Text = prepared
	genReq.Language = req.Language

	if genReq.Language == "" {
		genReq.Language = o.defaultLanguage
	}

	genReq.Sampling = core.SamplingParams{
		SemanticTemperature: semanticTemperature,
		CoarseTemperature:   coarseTemperature,
		FineTemperature:     fineTemperature,
	}

	engine, engineErr := o.provider.Engine(ctx)
	if engineErr != nil {
		return nil, engineErr
	}

	o.inferenceMu.Lock()
	defer o.inferenceMu.Unlock()

	start := time.Now()

	samples, sampleRate, genErr := engine.Generate(ctx, genReq)
	if genErr != nil {
		return nil, fmt.Errorf("generation for voice '%s' failed: %w", voiceTag, genErr)
	}

	elapsed := time.Since(start)

	audio.PeakNormalize(samples, peakTarget)

	outputPath, writeErr := o.persist(samples, sampleRate, voiceTag)
	if writeErr != nil {
		return nil, writeErr
	}

	o.archiveResult(ctx, outputPath)

	o.log.Info("Synthesized %d samples for voice '%s' in %.2fs",
		len(samples), voiceTag, elapsed.Seconds())

	return &Result{
		Audio:      samples,
		SampleRate: sampleRate,
		Elapsed:    elapsed,
		OutputPath: outputPath,
	}, nil
}

// resolveVoice applies the selection order: builtin tag, explicit profile
// name, active profile, none. A stored profile without a derivable prompt
// degrades to unconditioned generation rather than failing.
func (o *Orchestrator) resolveVoice(ctx context.Context, voice string) (core.GenerateRequest, string, error) {
	var genReq core.GenerateRequest

	if strings.HasPrefix(voice, BuiltinPresetPrefix) {
		genReq.BuiltinPreset = voice

		return genReq, voice, nil
	}

	name := voice
	if name == "" {
		name = o.profiles.Active()
	}

	if name == "" {
		return genReq, defaultVoiceTag, nil
	}

	if !o.profiles.Exists(name) {
		return genReq, "", fmt.Errorf("%w: '%s'", core.ErrProfileNotFound, name)
	}

	preset, ok := o.presets.GetOrDerive(ctx, name)
	if ok {
		genReq.Preset = preset
	} else {
		o.log.Warn("Profile '%s' has no usable acoustic prompt; generating unconditioned", name)
	}

	return genReq, name, nil
}

// persist writes the finished waveform as 16-bit mono WAV under the output
// directory, named by voice tag and wall-clock milliseconds.
func (o *Orchestrator) persist(samples []float32, sampleRate int, voiceTag string) (string, error) {
	mkdirErr := os.MkdirAll(o.outputDir, dirPermissions)
	if mkdirErr != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", o.outputDir, mkdirErr)
	}

	safeTag := strings.ReplaceAll(voiceTag, "/", "_")
	fileName := fmt.Sprintf("tts_%s_%d.wav", safeTag, time.Now().UnixMilli())
	outputPath := filepath.Join(o.outputDir, fileName)

	writeErr := audio.WriteFile(outputPath, samples, sampleRate)
	if writeErr != nil {
		return "", fmt.Errorf("failed to write output %s: %w", outputPath, writeErr)
	}

	return outputPath, nil
}

// archiveResult uploads the output WAV to the object store under a fresh
// key. Archival is best effort; failures are logged and never surfaced.
func (o *Orchestrator) archiveResult(ctx context.Context, outputPath string) {
	if o.archive == nil {
		return
	}

	data, readErr := os.ReadFile(outputPath)
	if readErr != nil {
		o.log.Warn("Failed to read output for archival: %v", readErr)

		return
	}

	key := uuid.NewString() + archiveSuffix

	uploadErr := o.archive.Upload(ctx, key, data)
	if uploadErr != nil {
		o.log.Warn("Failed to archive generated audio under '%s': %v", key, uploadErr)

		return
	}

	o.log.Info("Archived generated audio as object '%s'", key)
}
