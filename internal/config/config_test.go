// Package config_test tests the configuration loading for the
// voice-clone-service.
package config_test

import (
	"testing"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/voice-clone-service/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[http]
port = 8080
allowed_origins = ["http://localhost:5173"]

[paths]
voices_dir = "/var/lib/voice-clone/voices"
output_dir = "/var/lib/voice-clone/output"
base_logs_dir = "/var/log/voice-clone"

[engine]
binary_path = "/usr/local/bin/bark-runner"
model_dir = "/opt/models/bark"
sample_rate = 24000

[codec]
binary_path = "/usr/local/bin/encodec-runner"
sample_rate = 24000
bandwidth = 6.0

[transcode]
ffmpeg_path = "/usr/bin/ffmpeg"
timeout_seconds = 60

[nats]
enabled = true
url = "nats://127.0.0.1:4222"
synthesis_subject = "voice.synthesize"
audio_object_store_bucket = "GENERATED_SPEECH"

[tts]
default_language = "en"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "/var/lib/voice-clone/voices", cfg.Paths.VoicesDir)
	assert.Equal(t, "/var/lib/voice-clone/output", cfg.Paths.OutputDir)
	assert.Equal(t, "/var/log/voice-clone", cfg.Paths.BaseLogsDir)
	assert.Equal(t, "/usr/local/bin/bark-runner", cfg.Engine.BinaryPath)
	assert.Equal(t, "/opt/models/bark", cfg.Engine.ModelDir)
	assert.Equal(t, 24000, cfg.Engine.SampleRate)
	assert.Equal(t, "/usr/local/bin/encodec-runner", cfg.Codec.BinaryPath)
	assert.InEpsilon(t, 6.0, cfg.Codec.Bandwidth, 0.001)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Transcode.FFmpegPath)
	assert.Equal(t, 60, cfg.Transcode.TimeoutSeconds)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "voice.synthesize", cfg.NATS.SynthesisSubject)
	assert.Equal(t, "GENERATED_SPEECH", cfg.NATS.AudioObjectStoreBucket)
	assert.Equal(t, "en", cfg.TTS.DefaultLanguage)
}

func TestApplyDefaultsFillsOmittedFields(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, 3300, cfg.HTTP.Port)
	assert.Equal(t, 24000, cfg.Engine.SampleRate)
	assert.Equal(t, 24000, cfg.Codec.SampleRate)
	assert.InEpsilon(t, 6.0, cfg.Codec.Bandwidth, 0.001)
	assert.Equal(t, "ffmpeg", cfg.Transcode.FFmpegPath)
	assert.Equal(t, 120, cfg.Transcode.TimeoutSeconds)
	assert.Equal(t, "fr", cfg.TTS.DefaultLanguage)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		HTTP:      config.HTTPConfig{Port: 9000, AllowedOrigins: nil},
		Paths:     config.PathsConfig{VoicesDir: "", OutputDir: "", BaseLogsDir: ""},
		Engine:    config.EngineConfig{BinaryPath: "", ModelDir: "", SampleRate: 48000},
		Codec:     config.CodecConfig{BinaryPath: "", SampleRate: 48000, Bandwidth: 12.0},
		Transcode: config.TranscodeConfig{FFmpegPath: "/opt/ffmpeg", TimeoutSeconds: 30},
		NATS:      config.NATSConfig{Enabled: false, URL: "", SynthesisSubject: "", AudioObjectStoreBucket: ""},
		TTS:       config.TTSConfig{DefaultLanguage: "de"},
	}

	cfg.ApplyDefaults()

	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, 48000, cfg.Engine.SampleRate)
	assert.Equal(t, 48000, cfg.Codec.SampleRate)
	assert.InEpsilon(t, 12.0, cfg.Codec.Bandwidth, 0.001)
	assert.Equal(t, "/opt/ffmpeg", cfg.Transcode.FFmpegPath)
	assert.Equal(t, 30, cfg.Transcode.TimeoutSeconds)
	assert.Equal(t, "de", cfg.TTS.DefaultLanguage)
}

func TestPortEnvironmentOverride(t *testing.T) {
	t.Setenv("PORT", "4444")

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, 4444, cfg.HTTP.Port)
}
