// asr-client: stream the microphone to the transcription backend and print
// finalized utterances.
//
// Usage:
//
//	asr-client -url ws://localhost:5000 -mode continuous
//	asr-client -mode single
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chuoibo/full-pipeline/internal/config"
	"github.com/chuoibo/full-pipeline/internal/log"
	"github.com/chuoibo/full-pipeline/pkg/asr"
	"github.com/chuoibo/full-pipeline/pkg/audioio"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	url        = flag.String("url", "", "Transcription websocket URL (overrides config)")
	mode       = flag.String("mode", "continuous", "continuous or single")
	backend    = flag.String("backend", "", "Capture backend: malgo or mock (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	if err := run(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "asr-client: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *mode != "continuous" && *mode != "single" {
		return fmt.Errorf("unknown mode %q", *mode)
	}
	if err := config.LoadDotEnv(); err != nil {
		return err
	}

	// Only the asr and capture sections matter here; skip full validation
	// so no provider keys are needed.
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.ApplyEnv()
	}
	if *url != "" {
		cfg.ASR.URL = *url
	}
	if *backend != "" {
		cfg.Capture.Backend = audioio.Backend(*backend)
	}

	level := cfg.Logging.Level
	if *debug {
		level = "debug"
	}
	log.Init(level, cfg.Logging.Format)
	logger := log.Component("asr-client")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := asr.Dial(ctx, cfg.ASR, logger)
	if err != nil {
		return err
	}
	defer transport.Close()

	capture, err := audioio.NewCapture(cfg.Capture, logger)
	if err != nil {
		return err
	}

	queue := audioio.NewFrameQueue(cfg.Capture.QueueCapacity)
	sender := asr.NewCaptureSender(capture, queue, transport, cfg.Capture.PopTimeout, logger)
	if err := sender.Start(); err != nil {
		return err
	}
	defer sender.Stop()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sendErr := make(chan error, 1)
	go func() {
		err := sender.Run(ctx)
		if err != nil {
			cancel()
		}
		sendErr <- err
	}()

	// Unblock the reader when we are interrupted.
	stopRead := context.AfterFunc(ctx, func() { transport.Close() })
	defer stopRead()

	listener := asr.NewListener(transport, logger, asr.WithPartialHook(func(text string) {
		logger.Debug("partial", "text", text)
	}))

	fmt.Println("Listening... press Ctrl+C to stop")

	if *mode == "single" {
		text, err := listener.Next(ctx)
		cancel()
		if err != nil {
			return err
		}
		fmt.Println(text)
		return <-sendErr
	}

	err = listener.Listen(ctx, func(ctx context.Context, text string) {
		fmt.Println(text)
	})
	interrupted := ctx.Err() != nil
	cancel()
	if serr := <-sendErr; serr != nil {
		return serr
	}
	if interrupted {
		return nil
	}
	return err
}
