// Package web serves the speech pipeline over HTTP and websocket.
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chuoibo/full-pipeline/pkg/asr"
	"github.com/chuoibo/full-pipeline/pkg/audioio"
	"github.com/chuoibo/full-pipeline/pkg/generation"
	"github.com/chuoibo/full-pipeline/pkg/hub"
	"github.com/chuoibo/full-pipeline/pkg/protocol"
	"github.com/chuoibo/full-pipeline/pkg/speech"
	"github.com/chuoibo/full-pipeline/pkg/tts"
	"github.com/chuoibo/full-pipeline/pkg/voice"
)

// SessionPath is the websocket route of the full pipeline.
const SessionPath = "/asr-tts-full-pipeline"

// Config configures a Server.
type Config struct {
	Version        string
	RequestLogging bool
	Pipeline       voice.Config

	// CloseTimeout bounds how long a disconnecting client may take to
	// flush queued events.
	CloseTimeout time.Duration
}

// Deps are the backends shared by every session of a Server.
type Deps struct {
	Generator generation.Provider
	Synth     tts.Provider

	// DialASR connects a new transcription stream for one session.
	DialASR func(ctx context.Context) (asr.Transport, error)

	// NewCapture opens the microphone for one session.
	NewCapture func() (audioio.Capture, error)

	// Registry receives the pipeline metrics and is served at /metrics.
	// nil creates a private registry.
	Registry *prometheus.Registry

	Logger         *slog.Logger
	EmitterOptions []speech.Option
}

func (d *Deps) validate() error {
	switch {
	case d.Generator == nil:
		return errors.New("web: generator is required")
	case d.Synth == nil:
		return errors.New("web: synthesizer is required")
	case d.DialASR == nil:
		return errors.New("web: asr dialer is required")
	case d.NewCapture == nil:
		return errors.New("web: capture factory is required")
	}
	return nil
}

// Server is the pipeline HTTP server
type Server struct {
	app    *fiber.App
	cfg    Config
	deps   Deps
	logger *slog.Logger

	hub        *hub.Hub
	collectors *voice.Collectors
	pre        *voice.Preprocessor

	// base is cancelled on shutdown and parents every stream
	base    context.Context
	stop    context.CancelFunc
	streams sync.WaitGroup
}

// NewServer creates the fiber app and registers all routes.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, err
	}
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Registry == nil {
		deps.Registry = prometheus.NewRegistry()
		deps.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 5 * time.Second
	}

	base, stop := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		deps:       deps,
		logger:     deps.Logger.With("component", "web"),
		hub:        hub.New("sessions", deps.Logger),
		collectors: voice.NewCollectors(deps.Registry),
		pre:        voice.NewPreprocessor(cfg.Pipeline),
		base:       base,
		stop:       stop,
	}

	app := fiber.New(fiber.Config{
		AppName:               "full-pipeline",
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if cfg.RequestLogging {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	app.Get("/response", s.handleResponse)
	app.Get("/tts/stream", s.handleStream)
	app.Get("/sessions", s.handleSessions)

	// WebSocket upgrade middleware
	app.Use(SessionPath, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get(SessionPath, websocket.New(s.handleSession))

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Hub returns the registry of live sessions.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("starting server",
		"addr", addr,
		"websocket", SessionPath,
	)
	return s.app.Listen(addr)
}

// Shutdown tells connected clients the server is closing, cancels every
// session and stream, waits for them within ctx, then stops fiber.
func (s *Server) Shutdown(ctx context.Context) error {
	if m, err := hub.Encode(protocol.NewStatusMessage(protocol.StatusClosing)); err == nil {
		s.hub.Broadcast(m)
	}

	s.hub.CancelAll()
	s.stop()

	waitErr := s.hub.Wait(ctx)

	streams := make(chan struct{})
	go func() {
		s.streams.Wait()
		close(streams)
	}()
	select {
	case <-streams:
	case <-ctx.Done():
		waitErr = errors.Join(waitErr, ctx.Err())
	}

	return errors.Join(waitErr, s.app.ShutdownWithContext(ctx))
}
