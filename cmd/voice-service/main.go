// main package for the voice-clone-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/core"
	"github.com/book-expert/voice-clone-service/internal/engine"
	"github.com/book-expert/voice-clone-service/internal/normalize"
	"github.com/book-expert/voice-clone-service/internal/objectstore"
	"github.com/book-expert/voice-clone-service/internal/preset"
	"github.com/book-expert/voice-clone-service/internal/profile"
	"github.com/book-expert/voice-clone-service/internal/server"
	"github.com/book-expert/voice-clone-service/internal/synth"
	"github.com/book-expert/voice-clone-service/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voice-clone-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, bootstrapErr := setupLogger(os.TempDir())
	if bootstrapErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", bootstrapErr)

		return bootstrapErr
	}

	cfg, cfgErr := config.Load(bootstrapLog)
	if cfgErr != nil {
		bootstrapLog.Error("Failed to load configuration: %v", cfgErr)

		return fmt.Errorf("failed to load configuration: %w", cfgErr)
	}

	finalLog, logErr := setupLogger(cfg.Paths.BaseLogsDir)
	if logErr != nil {
		bootstrapLog.Error("Failed to create final logger: %v", logErr)

		return fmt.Errorf("failed to create final logger: %w", logErr)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

// serve wires the domain services together and runs them until shutdown.
func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	profiles, storeErr := profile.NewStore(cfg.Paths.VoicesDir, log)
	if storeErr != nil {
		return fmt.Errorf("failed to initialize profile store: %w", storeErr)
	}

	codec := engine.NewEncodecRunner(cfg.Codec, log)
	pipeline := preset.NewPipeline(codec, log)
	presets := preset.NewCache(profiles, pipeline, log)

	loader := engine.NewLoader(func(loadCtx context.Context, device string) (core.GenerativeEngine, error) {
		runner := engine.NewBarkRunner(cfg.Engine, device, log)

		warmupErr := runner.Warmup(loadCtx)
		if warmupErr != nil {
			return nil, warmupErr
		}

		return runner, nil
	}, log)

	normalizer := normalize.New(
		cfg.Transcode.FFmpegPath,
		cfg.Codec.SampleRate,
		time.Duration(cfg.Transcode.TimeoutSeconds)*time.Second,
		log,
	)

	archive, natsConn, natsErr := connectArchive(cfg, log)
	if natsErr != nil {
		return natsErr
	}

	if natsConn != nil {
		defer natsConn.Close()
	}

	orchestrator := synth.New(
		loader, presets, profiles, archive,
		cfg.Paths.OutputDir, cfg.TTS.DefaultLanguage, log,
	)

	httpServer := server.New(
		cfg.HTTP, orchestrator, normalizer, loader,
		profiles, pipeline, presets, log,
	)

	if natsConn != nil {
		synthWorker := worker.NewNatsWorker(
			natsConn, cfg.NATS.SynthesisSubject, archive, orchestrator, log)

		go func() {
			runErr := synthWorker.Run(ctx)
			if runErr != nil {
				log.Error("Synthesis worker stopped: %v", runErr)
			}
		}()
	}

	log.System("Voice clone service initialized on port %d (device: %s)",
		cfg.HTTP.Port, loader.Device())

	serveErr := httpServer.Run(ctx)
	if serveErr != nil {
		return fmt.Errorf("http server failed: %w", serveErr)
	}

	return nil
}

// connectArchive dials NATS and binds the audio archive bucket when the
// worker integration is enabled. Disabled NATS yields a nil archive, which
// downstream components treat as "no archival".
func connectArchive(cfg *config.Config, log *logger.Logger) (core.ObjectStore, *nats.Conn, error) {
	if !cfg.NATS.Enabled {
		return nil, nil, nil
	}

	natsConn, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connectErr)
	}

	jetstreamContext, jsErr := natsConn.JetStream()
	if jsErr != nil {
		natsConn.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", jsErr)
	}

	archive, archiveErr := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if archiveErr != nil {
		natsConn.Close()

		return nil, nil, archiveErr
	}

	log.Info("Audio archive bound to bucket '%s'", cfg.NATS.AudioObjectStoreBucket)

	return archive, natsConn, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
