package web

import (
	"bufio"
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp"

	"github.com/chuoibo/full-pipeline/pkg/hub"
	"github.com/chuoibo/full-pipeline/pkg/protocol"
	"github.com/chuoibo/full-pipeline/pkg/voice"
)

// handleHealth reports liveness and the number of live sessions
func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.cfg.Version,
		"sessions": s.hub.Count(),
	})
}

// handleSessions lists live sessions
func (s *Server) handleSessions(c *fiber.Ctx) error {
	return c.JSON(s.hub.Sessions())
}

// handleResponse returns the preprocessed query as a JSON string
func (s *Server) handleResponse(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}
	s.logger.Info("received query", "query", query)
	return c.JSON(s.pre.Preprocess(query))
}

// handleStream answers one query as server-sent events: a ttsUpdate per
// chunk, then ttsComplete or error.
func (s *Server) handleStream(c *fiber.Ctx) error {
	query := s.pre.Preprocess(c.Query("query"))
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	logger := s.logger.With("stream", "sse")
	ctx, cancel := context.WithCancel(s.base)
	s.streams.Add(1)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer s.streams.Done()
		defer cancel()

		r := voice.NewResponder(s.cfg.Pipeline, s.deps.Generator, s.deps.Synth, logger, s.deps.EmitterOptions...)
		r.Begin()

		for chunk, err := range r.Respond(ctx, query) {
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("stream failed", "error", err)
					writeEvent(w, protocol.EventError, err.Error())
				}
				return
			}
			if err := writeEvent(w, protocol.EventTTSUpdate, protocol.NewTTSUpdate(chunk)); err != nil {
				logger.Debug("stream client gone", "error", err)
				return
			}
		}
		writeEvent(w, protocol.EventTTSComplete, "TTS audio stream complete")
	}))
	return nil
}

// writeEvent writes one frame and flushes it to the client
func writeEvent(w *bufio.Writer, event string, data interface{}) error {
	frame, err := protocol.SSEFrame(event, data)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return w.Flush()
}

// handleSession runs one pipeline session for the lifetime of the socket
func (s *Server) handleSession(conn *websocket.Conn) {
	client := hub.NewClient(conn, s.deps.Logger)
	client.Start()
	defer func() {
		client.Close(s.cfg.CloseTimeout)
		<-client.Disconnected()
	}()

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	session, err := s.newSession(ctx, client)
	if err != nil {
		s.logger.Error("session setup failed", "error", err)
		client.Send(ctx, protocol.NewErrorMessage(err))
		return
	}

	if err := s.hub.Register(session, client); err != nil {
		session.Close()
		client.Send(ctx, protocol.NewErrorMessage(err))
		return
	}
	defer s.hub.Remove(session.ID())

	go func() {
		select {
		case <-client.Disconnected():
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := session.Run(ctx); err != nil {
		s.logger.Info("session ended", "session_id", session.ID(), "error", err)
	}
}

// newSession dials the transcription backend and opens capture
func (s *Server) newSession(ctx context.Context, client *hub.Client) (*voice.Session, error) {
	transport, err := s.deps.DialASR(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR server: %w", err)
	}

	capture, err := s.deps.NewCapture()
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}

	session, err := voice.NewSession(s.cfg.Pipeline, voice.Deps{
		Capture:        capture,
		Transport:      transport,
		Generator:      s.deps.Generator,
		Synth:          s.deps.Synth,
		Out:            client,
		Logger:         s.deps.Logger,
		Collectors:     s.collectors,
		EmitterOptions: s.deps.EmitterOptions,
	})
	if err != nil {
		transport.Close()
		return nil, err
	}
	return session, nil
}
