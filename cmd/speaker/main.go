// speaker: connect to the pipeline websocket and play the answers.
//
// Every event is printed; tts_update audio is decoded and played through
// the default output device.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chuoibo/full-pipeline/internal/log"
	"github.com/chuoibo/full-pipeline/pkg/protocol"
)

var (
	server = flag.String("url", "ws://localhost:8000/asr-tts-full-pipeline", "Pipeline websocket URL")
	mute   = flag.Bool("mute", false, "Print events without playing audio")
	debug  = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	log.Init(level, "")

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "speaker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := log.Component("speaker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, *server, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", *server, err)
	}
	defer conn.Close()

	// Unblock the reader on Ctrl+C.
	stopRead := context.AfterFunc(ctx, func() {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stopRead()

	out := newPlayer()
	defer out.Close()

	fmt.Printf("Connected to %s\n", *server)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				drain(out)
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			logger.Warn("malformed event", "error", err)
			continue
		}

		if msg.Type != protocol.TypeTTSUpdate {
			text, _ := msg.GetText()
			fmt.Printf("[%s] %s\n", msg.Type, text)
			continue
		}

		u, err := msg.GetTTSUpdate()
		if err != nil {
			logger.Warn("bad tts update", "error", err)
			continue
		}
		fmt.Printf("[tts_update #%d] %s (%.2fs)\n", u.Sequence, u.Text, u.PlaybackDuration)
		if u.Metrics.FirstVoiceTime != nil {
			fmt.Printf("    first voice after %.3fs\n", *u.Metrics.FirstVoiceTime)
		}
		if *mute {
			continue
		}

		pcm, format, err := decodeUpdate(u)
		if err != nil {
			logger.Warn("skipping chunk", "sequence", u.Sequence, "error", err)
			continue
		}
		if err := out.Write(pcm, format); err != nil {
			logger.Warn("playback failed", "sequence", u.Sequence, "error", err)
		}
	}
}

// drain waits briefly for queued audio to reach the device.
func drain(p *player) {
	deadline := time.Now().Add(5 * time.Second)
	for p.Pending() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}
