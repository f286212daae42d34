package main

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"

	"github.com/chuoibo/full-pipeline/pkg/protocol"
	"github.com/chuoibo/full-pipeline/pkg/tts"
)

// pcmFormat is the layout of decoded audio.
type pcmFormat struct {
	sampleRate int
	channels   int
}

// decodeUpdate turns the hex audio of a tts_update into PCM16LE.
// go-mp3 always decodes to stereo.
func decodeUpdate(u *protocol.TTSUpdate) ([]byte, pcmFormat, error) {
	audio, err := u.DecodeAudio()
	if err != nil {
		return nil, pcmFormat{}, fmt.Errorf("decode hex: %w", err)
	}

	enc := tts.Encoding(u.Format)
	switch {
	case enc.IsPCM():
		return audio, pcmFormat{sampleRate: tts.SampleRateFromEncoding(enc), channels: 1}, nil
	case enc == tts.EncodingMP3 || enc == "":
		d, err := mp3.NewDecoder(bytes.NewReader(audio))
		if err != nil {
			return nil, pcmFormat{}, fmt.Errorf("decode mp3: %w", err)
		}
		pcm, err := io.ReadAll(d)
		if err != nil {
			return nil, pcmFormat{}, fmt.Errorf("decode mp3: %w", err)
		}
		return pcm, pcmFormat{sampleRate: d.SampleRate(), channels: 2}, nil
	default:
		return nil, pcmFormat{}, fmt.Errorf("unsupported format %q", u.Format)
	}
}

// player plays PCM16LE through oto. The device format is fixed by the
// first chunk; oto allows one context per process.
type player struct {
	mu     sync.Mutex
	cond   *sync.Cond
	format pcmFormat
	ctx    *oto.Context
	out    *oto.Player
	buf    []byte
	closed bool
}

func newPlayer() *player {
	p := &player{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write queues pcm for playback.
func (p *player) Write(pcm []byte, f pcmFormat) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx == nil {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   f.sampleRate,
			ChannelCount: f.channels,
			Format:       oto.FormatSignedInt16LE,
		})
		if err != nil {
			return fmt.Errorf("init speaker: %w", err)
		}
		<-ready
		p.ctx, p.format = ctx, f
		p.out = ctx.NewPlayer(p)
		p.out.Play()
	}
	if f != p.format {
		return fmt.Errorf("format changed from %+v to %+v", p.format, f)
	}

	p.buf = append(p.buf, pcm...)
	p.cond.Signal()
	return nil
}

// Read implements io.Reader for oto.
func (p *player) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

// Pending returns the bytes not yet handed to the device.
func (p *player) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buf)
}

// Close stops playback. Use Pending to wait for the buffer to drain.
func (p *player) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	out := p.out
	p.mu.Unlock()

	if out != nil {
		return out.Close()
	}
	return nil
}
