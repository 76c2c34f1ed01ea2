// Command-line client for the voice-clone service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/voice-clone-service/internal/client"
)

// Flag descriptions.
const (
	flagURLDesc      = "Base URL of the voice-clone service"
	flagTextDesc     = "Text to convert to speech"
	flagVoiceDesc    = "Voice to use: a stored profile name or a builtin v2/ tag"
	flagLanguageDesc = "Language code for synthesis (e.g. fr, en)"
	flagOutputDesc   = "Output file path (.wav)"
	flagCloneDesc    = "Audio file to clone a voice from (requires -name)"
	flagExtractDesc  = "Media file to extract reference audio from (requires -name)"
	flagNameDesc     = "Profile name for -clone or -extract"
	flagStartDesc    = "Extraction start offset in seconds"
	flagDurationDesc = "Extraction duration in seconds"
	flagUseDesc      = "Switch the active voice and exit"
	flagDeleteDesc   = "Delete a stored voice profile and exit"
	flagVoicesDesc   = "List stored voices and exit"
	flagHealthDesc   = "Check service health and exit"
)

const (
	defaultServiceURL = "http://localhost:3300"
	defaultOutputFile = "output.wav"
	shortTimeout      = 10 * time.Second
	// Synthesis on CPU can take minutes for long passages.
	synthesisTimeout = 15 * time.Minute
	filePermissions  = 0o600
)

var errNoAction = errors.New(
	"one of -text, -clone, -extract, -use, -delete, -voices or -health must be provided")

type appFlags struct {
	url      string
	text     string
	voice    string
	language string
	output   string
	clone    string
	extract  string
	name     string
	start    float64
	duration float64
	use      string
	remove   string
	voices   bool
	health   bool
}

func main() {
	err := run()
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	flags := parseFlags()
	svc := client.New(flags.url, synthesisTimeout)

	switch {
	case flags.health:
		return handleHealth(svc)
	case flags.voices:
		return handleVoices(svc)
	case flags.use != "":
		return handleUse(svc, flags.use)
	case flags.remove != "":
		return handleDelete(svc, flags.remove)
	case flags.clone != "":
		return handleClone(svc, flags)
	case flags.extract != "":
		return handleExtract(svc, flags)
	case flags.text != "":
		return handleSynthesize(svc, flags)
	default:
		flag.Usage()

		return errNoAction
	}
}

func parseFlags() appFlags {
	var flags appFlags

	flag.StringVar(&flags.url, "url", defaultServiceURL, flagURLDesc)
	flag.StringVar(&flags.text, "text", "", flagTextDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.StringVar(&flags.language, "language", "", flagLanguageDesc)
	flag.StringVar(&flags.output, "output", "", flagOutputDesc)
	flag.StringVar(&flags.clone, "clone", "", flagCloneDesc)
	flag.StringVar(&flags.extract, "extract", "", flagExtractDesc)
	flag.StringVar(&flags.name, "name", "", flagNameDesc)
	flag.Float64Var(&flags.start, "start", 0, flagStartDesc)
	flag.Float64Var(&flags.duration, "duration", 0, flagDurationDesc)
	flag.StringVar(&flags.use, "use", "", flagUseDesc)
	flag.StringVar(&flags.remove, "delete", "", flagDeleteDesc)
	flag.BoolVar(&flags.voices, "voices", false, flagVoicesDesc)
	flag.BoolVar(&flags.health, "health", false, flagHealthDesc)
	flag.Parse()

	return flags
}

func handleHealth(svc *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()

	health, err := svc.Health(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("status: %s\n", health.Status)
	fmt.Printf("model loaded: %t (device: %s, vram: %.1f GB)\n",
		health.ModelLoaded, health.Device, health.VRAMUsedGB)
	fmt.Printf("voices: %d (active: %s)\n", health.Voices, health.ActiveVoice)

	return nil
}

func handleVoices(svc *client.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()

	voices, err := svc.Voices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	for _, voice := range voices.Voices {
		marker := " "
		if voice.Name == voices.Active {
			marker = "*"
		}

		fmt.Printf("%s %s [%s] preset=%t %s\n",
			marker, voice.Name, voice.Language, voice.HasPreset, voice.Description)
	}

	return nil
}

func handleUse(svc *client.Client, voice string) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()

	err := svc.Use(ctx, voice)
	if err != nil {
		return fmt.Errorf("failed to switch voice: %w", err)
	}

	fmt.Printf("Active voice: %s\n", voice)

	return nil
}

func handleDelete(svc *client.Client, voice string) error {
	ctx, cancel := context.WithTimeout(context.Background(), shortTimeout)
	defer cancel()

	err := svc.DeleteVoice(ctx, voice)
	if err != nil {
		return fmt.Errorf("failed to delete voice: %w", err)
	}

	fmt.Printf("Deleted voice: %s\n", voice)

	return nil
}

func handleClone(svc *client.Client, flags appFlags) error {
	if flags.name == "" {
		return errors.New("-clone requires -name")
	}

	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()

	err := svc.Clone(ctx, client.CloneRequest{
		Name:        flags.name,
		Description: "",
		Language:    flags.language,
		AudioPath:   flags.clone,
	})
	if err != nil {
		return fmt.Errorf("failed to clone voice: %w", err)
	}

	fmt.Printf("Cloned voice: %s\n", flags.name)

	return nil
}

func handleExtract(svc *client.Client, flags appFlags) error {
	if flags.name == "" {
		return errors.New("-extract requires -name")
	}

	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()

	err := svc.ExtractAudio(ctx, flags.name, flags.extract, flags.start, flags.duration)
	if err != nil {
		return fmt.Errorf("failed to extract reference audio: %w", err)
	}

	fmt.Printf("Created voice '%s' from %s\n", flags.name, flags.extract)

	return nil
}

func handleSynthesize(svc *client.Client, flags appFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), synthesisTimeout)
	defer cancel()

	audioData, err := svc.Synthesize(ctx, client.SynthesizeRequest{
		Text:     flags.text,
		Voice:    flags.voice,
		Language: flags.language,
	})
	if err != nil {
		return fmt.Errorf("failed to synthesize speech: %w", err)
	}

	outputPath := flags.output
	if outputPath == "" {
		outputPath = defaultOutputFile
	}

	writeErr := os.WriteFile(outputPath, audioData, filePermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write output %s: %w", outputPath, writeErr)
	}

	fmt.Printf("Generated: %s\n", outputPath)

	return nil
}
