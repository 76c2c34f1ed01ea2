// Package audio_test tests waveform loading and processing.
package audio_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/audio"
)

const testSampleRate = 24000

// sineWave produces a mono sine waveform with the given peak amplitude.
func sineWave(seconds float64, rate int, peak float32) []float32 {
	samples := make([]float32, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = peak * float32(math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
	}

	return samples
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "tone.wav")
	original := sineWave(0.5, testSampleRate, 0.8)

	err := audio.WriteFile(path, original, testSampleRate)
	require.NoError(t, err)

	samples, rate, channels, err := audio.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, testSampleRate, rate)
	assert.Equal(t, 1, channels)
	assert.Len(t, samples, len(original))

	// 16-bit quantization bounds the round-trip error.
	for i := 0; i < len(samples); i += 1000 {
		assert.InDelta(t, original[i], samples[i], 0.001)
	}
}

func TestWriteFileRejectsEmptyWaveform(t *testing.T) {
	t.Parallel()

	err := audio.WriteFile(filepath.Join(t.TempDir(), "empty.wav"), nil, testSampleRate)
	require.ErrorIs(t, err, audio.ErrEmptyWaveform)
}

func TestToMonoAveragesChannels(t *testing.T) {
	t.Parallel()

	stereo := []float32{1.0, 0.0, 0.5, 0.5, -1.0, 1.0}
	mono := audio.ToMono(stereo, 2)

	require.Len(t, mono, 3)
	assert.InDelta(t, 0.5, mono[0], 1e-6)
	assert.InDelta(t, 0.5, mono[1], 1e-6)
	assert.InDelta(t, 0.0, mono[2], 1e-6)
}

func TestToMonoPassesThroughMono(t *testing.T) {
	t.Parallel()

	mono := []float32{0.1, 0.2}
	assert.Equal(t, mono, audio.ToMono(mono, 1))
}

func TestResampleHalvesLength(t *testing.T) {
	t.Parallel()

	samples := sineWave(1.0, testSampleRate, 0.5)
	out := audio.Resample(samples, testSampleRate, testSampleRate/2)

	assert.Len(t, out, len(samples)/2)
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	t.Parallel()

	samples := []float32{0.1, 0.2, 0.3}
	assert.Equal(t, samples, audio.Resample(samples, testSampleRate, testSampleRate))
}

func TestPeakNormalizeHitsTarget(t *testing.T) {
	t.Parallel()

	samples := []float32{0.1, -0.4, 0.2}
	out := audio.PeakNormalize(samples, 0.95)

	var peak float32
	for _, s := range out {
		abs := float32(math.Abs(float64(s)))
		if abs > peak {
			peak = abs
		}
	}

	assert.InDelta(t, 0.95, peak, 1e-6)
}

func TestPeakNormalizeSkipsSilence(t *testing.T) {
	t.Parallel()

	silent := []float32{0, 0, 0}
	out := audio.PeakNormalize(silent, 0.95)

	assert.Equal(t, []float32{0, 0, 0}, out)
}
