// Package config provides the configuration structure for the
// voice-clone-service.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
)

// Default values applied after loading when the TOML omits a field.
const (
	defaultPort             = 3300
	defaultEngineSampleRate = 24000
	defaultCodecSampleRate  = 24000
	defaultCodecBandwidth   = 6.0
	defaultFFmpegTimeoutSec = 120
	defaultFFmpegPath       = "ffmpeg"
	defaultLanguage         = "fr"
	envPortOverride         = "PORT"
)

// HTTPConfig holds the HTTP server configuration.
type HTTPConfig struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	VoicesDir   string `toml:"voices_dir"`
	OutputDir   string `toml:"output_dir"`
	BaseLogsDir string `toml:"base_logs_dir"`
}

// EngineConfig holds the configuration for the generative engine runner.
// Inference carries no timeout; a stuck call blocks its request.
type EngineConfig struct {
	BinaryPath string `toml:"binary_path"`
	ModelDir   string `toml:"model_dir"`
	SampleRate int    `toml:"sample_rate"`
}

// CodecConfig holds the configuration for the codec engine runner.
type CodecConfig struct {
	BinaryPath string  `toml:"binary_path"`
	SampleRate int     `toml:"sample_rate"`
	Bandwidth  float64 `toml:"bandwidth"`
}

// TranscodeConfig holds the configuration for the external media converter.
type TranscodeConfig struct {
	FFmpegPath     string `toml:"ffmpeg_path"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for the optional NATS worker.
type NATSConfig struct {
	Enabled                bool   `toml:"enabled"`
	URL                    string `toml:"url"`
	SynthesisSubject       string `toml:"synthesis_subject"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// TTSConfig holds synthesis defaults.
type TTSConfig struct {
	DefaultLanguage string `toml:"default_language"`
}

// Config is the root configuration structure.
type Config struct {
	HTTP      HTTPConfig      `toml:"http"`
	Paths     PathsConfig     `toml:"paths"`
	Engine    EngineConfig    `toml:"engine"`
	Codec     CodecConfig     `toml:"codec"`
	Transcode TranscodeConfig `toml:"transcode"`
	NATS      NATSConfig      `toml:"nats"`
	TTS       TTSConfig       `toml:"tts"`
}

// Load loads the configuration for the voice-clone-service and applies
// defaults for omitted fields. A PORT environment variable overrides the
// configured HTTP port.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults fills unset fields with service defaults and honors the
// PORT environment override.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = defaultPort
	}

	if portEnv := os.Getenv(envPortOverride); portEnv != "" {
		port, parseErr := strconv.Atoi(portEnv)
		if parseErr == nil && port > 0 {
			c.HTTP.Port = port
		}
	}

	if c.Engine.SampleRate == 0 {
		c.Engine.SampleRate = defaultEngineSampleRate
	}

	if c.Codec.SampleRate == 0 {
		c.Codec.SampleRate = defaultCodecSampleRate
	}

	if c.Codec.Bandwidth == 0 {
		c.Codec.Bandwidth = defaultCodecBandwidth
	}

	if c.Transcode.FFmpegPath == "" {
		c.Transcode.FFmpegPath = defaultFFmpegPath
	}

	if c.Transcode.TimeoutSeconds == 0 {
		c.Transcode.TimeoutSeconds = defaultFFmpegTimeoutSec
	}

	if c.TTS.DefaultLanguage == "" {
		c.TTS.DefaultLanguage = defaultLanguage
	}
}
