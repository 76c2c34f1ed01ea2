// Package core defines the domain contracts shared across the voice-clone
// service: the narrow interfaces behind which the neural inference engines
// live, the tiered acoustic prompt value, and the sentinel errors the HTTP
// layer maps to response codes.
package core

import (
	"context"
	"errors"
)

// PresetArtifactName is the filename of the persisted acoustic prompt
// inside a profile directory. Its presence defines "has preset".
const PresetArtifactName = "voice_preset.json"

// Sentinel errors shared across packages. Handlers classify failures with
// errors.Is against these.
var (
	// ErrValidation indicates a request was rejected before any side effect.
	ErrValidation = errors.New("validation error")
	// ErrProfileNotFound indicates a voice profile name that does not exist.
	ErrProfileNotFound = errors.New("voice profile not found")
	// ErrTranscode indicates the external media conversion tool failed.
	ErrTranscode = errors.New("transcode error")
	// ErrEngine indicates a failure inside an inference engine invocation.
	ErrEngine = errors.New("engine error")
)

// VoicePreset is the tiered acoustic prompt conditioning the generative
// engine to imitate a reference voice. The three tiers are derived from a
// single codec token grid: Fine is the full grid (codebooks x frames),
// Coarse the first two codebook rows, and Semantic the first row used as an
// approximation of a true semantic encoding.
type VoicePreset struct {
	Semantic []int64   `json:"semantic_prompt"`
	Coarse   [][]int64 `json:"coarse_prompt"`
	Fine     [][]int64 `json:"fine_prompt"`
}

// SamplingParams holds the stochastic sampling temperatures applied
// independently per prompt tier during generation.
type SamplingParams struct {
	SemanticTemperature float64
	CoarseTemperature   float64
	FineTemperature     float64
}

// GenerateRequest describes a single generative inference call. At most one
// of BuiltinPreset or Preset may be set; both empty selects the engine's
// default voice.
type GenerateRequest struct {
	Text          string
	Language      string
	BuiltinPreset string
	Preset        *VoicePreset
	Sampling      SamplingParams
}

// CodecEngine encodes a mono waveform at its native sample rate into a
// discrete token grid of shape codebooks x frames. Encoding is
// deterministic for a fixed waveform and engine version.
type CodecEngine interface {
	EncodeFrames(ctx context.Context, samples []float32, sampleRate int) ([][]int64, error)
	SampleRate() int
}

// GenerativeEngine turns text plus an optional acoustic prompt into a
// float32 waveform. Generation is non-deterministic by design. The returned
// int is the waveform's sample rate.
type GenerativeEngine interface {
	Generate(ctx context.Context, req GenerateRequest) ([]float32, int, error)
}

// ObjectStore defines the interface for interacting with a key-value blob
// store used to archive generated audio.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
