// pipeline: real-time speech server
// Streams microphone audio to the transcription backend and answers every
// finalized utterance with paced synthesized speech over a websocket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chuoibo/full-pipeline/internal/config"
	"github.com/chuoibo/full-pipeline/internal/log"
	"github.com/chuoibo/full-pipeline/internal/providers"
	"github.com/chuoibo/full-pipeline/pkg/asr"
	"github.com/chuoibo/full-pipeline/pkg/audioio"
	"github.com/chuoibo/full-pipeline/pkg/web"
)

var (
	version    = "1.0.0"
	configPath = flag.String("config", "", "Path to YAML config file")
	envFile    = flag.String("env", ".env", "Path to .env file")
	port       = flag.Int("port", 0, "HTTP server port (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Logging.Level = "debug"
		cfg.Server.RequestLogging = true
	}

	log.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := providers.NewGenerator(ctx, cfg.Generation, logger)
	if err != nil {
		return fmt.Errorf("generation: %w", err)
	}
	defer gen.Close()

	synth, err := providers.NewSynth(cfg.TTS, cfg.Pipeline.VoiceID, cfg.Cache, logger)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	defer synth.Close()

	server, err := web.NewServer(web.Config{
		Version:        version,
		RequestLogging: cfg.Server.RequestLogging,
		Pipeline:       cfg.Pipeline,
	}, web.Deps{
		Generator: gen,
		Synth:     synth,
		DialASR: func(ctx context.Context) (asr.Transport, error) {
			t, err := asr.Dial(ctx, cfg.ASR, logger)
			if err != nil {
				return nil, err
			}
			return t, nil
		},
		NewCapture: func() (audioio.Capture, error) {
			return audioio.NewCapture(cfg.Capture, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	logger.Info("pipeline starting",
		"version", version,
		"generation", cfg.Generation.Provider,
		"tts", cfg.TTS.Provider,
		"cached", synth.Cached(),
		"asr", cfg.ASR.URL,
		"capture", cfg.Capture.Backend,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen(cfg.Server.Addr())
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}

	logger.Info("goodbye")
	return nil
}
