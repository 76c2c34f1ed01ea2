// Package audio provides waveform loading, remixing, resampling, and peak
// normalization for the voice-clone service. Waveforms are float32 sample
// slices in [-1, 1]; files on disk are 16-bit PCM WAV.
package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	outputBitDepth = 16
	monoChannels   = 1
	pcmFormat      = 1
	int16Max       = 32767
)

// Static errors.
var (
	ErrEmptyWaveform  = errors.New("waveform contains no samples")
	ErrInvalidWAV     = errors.New("invalid WAV data")
	ErrInvalidRate    = errors.New("sample rate must be positive")
	ErrInvalidChannel = errors.New("channel count must be positive")
)

// ReadFile decodes a WAV file into interleaved float32 samples. It returns
// the samples, the sample rate, and the channel count.
func ReadFile(path string) ([]float32, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open WAV file: %w", err)
	}

	defer func() {
		_ = file.Close()
	}()

	decoder := wav.NewDecoder(file)

	buf, decodeErr := decoder.FullPCMBuffer()
	if decodeErr != nil {
		return nil, 0, 0, fmt.Errorf("%w: %s: %v", ErrInvalidWAV, path, decodeErr)
	}

	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("%w: %s", ErrEmptyWaveform, path)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 {
		bitDepth = outputBitDepth
	}

	scale := float32(int64(1) << (bitDepth - 1))
	samples := make([]float32, len(buf.Data))

	for i, v := range buf.Data {
		samples[i] = float32(v) / scale
	}

	return samples, buf.Format.SampleRate, buf.Format.NumChannels, nil
}

// WriteFile encodes mono float32 samples as a 16-bit PCM WAV file. Samples
// are clamped to [-1, 1] before conversion.
func WriteFile(path string, samples []float32, sampleRate int) error {
	if len(samples) == 0 {
		return ErrEmptyWaveform
	}

	if sampleRate <= 0 {
		return ErrInvalidRate
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}

	intData := make([]int, len(samples))

	for i, sample := range samples {
		clamped := math.Max(-1.0, math.Min(1.0, float64(sample)))
		intData[i] = int(clamped * int16Max)
	}

	encoder := wav.NewEncoder(file, sampleRate, outputBitDepth, monoChannels, pcmFormat)
	buf := &goaudio.IntBuffer{
		Data:           intData,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: monoChannels},
		SourceBitDepth: outputBitDepth,
	}

	writeErr := encoder.Write(buf)
	if writeErr != nil {
		_ = encoder.Close()
		_ = file.Close()

		return fmt.Errorf("failed to write WAV data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		_ = file.Close()

		return fmt.Errorf("failed to finalize WAV file: %w", closeErr)
	}

	fileCloseErr := file.Close()
	if fileCloseErr != nil {
		return fmt.Errorf("failed to close WAV file: %w", fileCloseErr)
	}

	return nil
}

// ToMono averages interleaved multi-channel samples down to a single
// channel. Mono input is returned unchanged.
func ToMono(samples []float32, channels int) []float32 {
	if channels <= monoChannels {
		return samples
	}

	frames := len(samples) / channels
	mono := make([]float32, frames)

	for frame := range frames {
		var sum float32

		for ch := range channels {
			sum += samples[frame*channels+ch]
		}

		mono[frame] = sum / float32(channels)
	}

	return mono
}

// Resample converts samples from one rate to another using linear
// interpolation. Equal rates return the input unchanged.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || fromRate <= 0 || toRate <= 0 || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(float64(len(samples)) / ratio)

	if outLen == 0 {
		outLen = 1
	}

	out := make([]float32, outLen)

	for i := range outLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		if idx+1 < len(samples) {
			out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
		} else {
			out[i] = samples[len(samples)-1]
		}
	}

	return out
}

// PeakNormalize scales samples in place so the maximum absolute value
// equals target. A silent buffer is returned unchanged to avoid division
// by zero.
func PeakNormalize(samples []float32, target float32) []float32 {
	var peak float32

	for _, sample := range samples {
		abs := float32(math.Abs(float64(sample)))
		if abs > peak {
			peak = abs
		}
	}

	if peak == 0 {
		return samples
	}

	gain := target / peak

	for i := range samples {
		samples[i] *= gain
	}

	return samples
}
