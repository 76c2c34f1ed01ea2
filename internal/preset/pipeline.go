// Package preset implements the codec encoding pipeline that derives a
// tiered acoustic prompt from reference audio, its on-disk artifact, and an
// in-memory cache of decoded prompts keyed by profile name.
package preset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-clone-service/internal/audio"
	"github.com/book-expert/voice-clone-service/internal/core"
)

// MaxPromptSeconds is the hard cap on reference audio used for prompt
// derivation. Longer input is silently cut, not rejected.
const MaxPromptSeconds = 10

const (
	coarseCodebookRows = 2
	filePermissions    = 0o600
)

// Static errors.
var (
	// ErrPresetDerivation wraps any failure while deriving a prompt.
	ErrPresetDerivation = errors.New("preset derivation failed")
	// ErrEmptyGrid indicates the codec produced no token rows.
	ErrEmptyGrid = errors.New("codec returned an empty token grid")
)

// Pipeline derives acoustic prompts through the codec engine. The transform
// is a pure function of the canonical reference waveform, the truncation
// policy, and the codec engine version.
type Pipeline struct {
	codec core.CodecEngine
	log   *logger.Logger
}

// NewPipeline creates a Pipeline around a codec engine.
func NewPipeline(codec core.CodecEngine, log *logger.Logger) *Pipeline {
	return &Pipeline{
		codec: codec,
		log:   log,
	}
}

// Derive loads reference audio, remixes it to mono at the codec's native
// rate, truncates it to MaxPromptSeconds, and slices the encoded token grid
// into the three prompt tiers.
func (p *Pipeline) Derive(ctx context.Context, wavPath string) (*core.VoicePreset, error) {
	samples, sampleRate, channels, readErr := audio.ReadFile(wavPath)
	if readErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetDerivation, readErr)
	}

	samples = audio.ToMono(samples, channels)

	nativeRate := p.codec.SampleRate()
	if sampleRate != nativeRate {
		samples = audio.Resample(samples, sampleRate, nativeRate)
	}

	maxSamples := nativeRate * MaxPromptSeconds
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	grid, encodeErr := p.codec.EncodeFrames(ctx, samples, nativeRate)
	if encodeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetDerivation, encodeErr)
	}

	if len(grid) == 0 || len(grid[0]) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrPresetDerivation, ErrEmptyGrid)
	}

	coarseRows := coarseCodebookRows
	if coarseRows > len(grid) {
		coarseRows = len(grid)
	}

	preset := &core.VoicePreset{
		Semantic: grid[0],
		Coarse:   grid[:coarseRows],
		Fine:     grid,
	}

	p.log.Info("Derived voice preset from %s (%d codebooks x %d frames)",
		filepath.Base(wavPath), len(grid), len(grid[0]))

	return preset, nil
}

// DeriveAndPersist derives a prompt and writes it as the profile's single
// cache artifact.
func (p *Pipeline) DeriveAndPersist(ctx context.Context, wavPath, profileDir string) (*core.VoicePreset, error) {
	preset, deriveErr := p.Derive(ctx, wavPath)
	if deriveErr != nil {
		return nil, deriveErr
	}

	writeErr := WriteArtifact(profileDir, preset)
	if writeErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrPresetDerivation, writeErr)
	}

	return preset, nil
}

// WriteArtifact persists the three prompt tiers as one JSON artifact in the
// profile directory. The write is all-or-nothing per file.
func WriteArtifact(profileDir string, preset *core.VoicePreset) error {
	data, marshalErr := json.Marshal(preset)
	if marshalErr != nil {
		return fmt.Errorf("failed to marshal preset artifact: %w", marshalErr)
	}

	artifactPath := filepath.Join(profileDir, core.PresetArtifactName)

	writeErr := os.WriteFile(artifactPath, data, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write preset artifact %s: %w", artifactPath, writeErr)
	}

	return nil
}

// LoadArtifact reads a persisted prompt artifact from a profile directory.
func LoadArtifact(profileDir string) (*core.VoicePreset, error) {
	artifactPath := filepath.Join(profileDir, core.PresetArtifactName)

	data, readErr := os.ReadFile(artifactPath)
	if readErr != nil {
		return nil, fmt.Errorf("failed to read preset artifact %s: %w", artifactPath, readErr)
	}

	var preset core.VoicePreset

	unmarshalErr := json.Unmarshal(data, &preset)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to parse preset artifact %s: %w", artifactPath, unmarshalErr)
	}

	return &preset, nil
}
