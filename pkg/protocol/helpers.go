package protocol

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chuoibo/full-pipeline/pkg/speech"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// Text events carry a plain JSON string, which always marshals.
func newTextMessage(t MessageType, text string) *Message {
	raw, _ := json.Marshal(text)
	return &Message{Type: t, Data: raw}
}

// NewTranscriptionMessage announces a finalized utterance
func NewTranscriptionMessage(text string) *Message {
	return newTextMessage(TypeTranscription, text)
}

// NewResponseMessage carries the preprocessed query
func NewResponseMessage(text string) *Message {
	return newTextMessage(TypeResponse, text)
}

// NewTTSStartingMessage precedes the first tts_update of a response
func NewTTSStartingMessage() *Message {
	return newTextMessage(TypeTTSStarting, "Starting TTS audio stream")
}

// NewTTSCompleteMessage follows the last tts_update of a response
func NewTTSCompleteMessage() *Message {
	return newTextMessage(TypeTTSComplete, "TTS audio stream complete")
}

// NewErrorMessage reports a failure as a plain string
func NewErrorMessage(err error) *Message {
	return newTextMessage(TypeError, err.Error())
}

// NewStatusMessage reports a session status value
func NewStatusMessage(status string) *Message {
	return newTextMessage(TypeStatus, status)
}

// NewTTSUpdate converts an emitted chunk into its wire form
func NewTTSUpdate(c speech.AudioChunk) TTSUpdate {
	u := TTSUpdate{
		Text:             c.Text,
		Audio:            hex.EncodeToString(c.Audio),
		Duration:         c.PaceDelay.Seconds(),
		PlaybackDuration: c.PlaybackDuration.Seconds(),
		Sequence:         c.Sequence,
		Format:           string(c.Format.Encoding),
	}
	if c.Metrics != nil {
		u.Metrics.GenerationTime = seconds(c.Metrics.GenerationLatency)
		u.Metrics.FirstVoiceTime = seconds(c.Metrics.FirstAudioLatency)
	}
	return u
}

// NewTTSUpdateMessage wraps an emitted chunk as a tts_update event
func NewTTSUpdateMessage(c speech.AudioChunk) *Message {
	raw, _ := json.Marshal(NewTTSUpdate(c))
	return &Message{Type: TypeTTSUpdate, Data: raw}
}

func seconds(d *time.Duration) *float64 {
	if d == nil {
		return nil
	}
	s := d.Seconds()
	return &s
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetText extracts the string data of transcription, response, error and status events
func (m *Message) GetText() (string, error) {
	var s string
	if err := m.ParseData(&s); err != nil {
		return "", err
	}
	return s, nil
}

// GetTTSUpdate extracts tts_update data from a message
func (m *Message) GetTTSUpdate() (*TTSUpdate, error) {
	if m.Type != TypeTTSUpdate {
		return nil, fmt.Errorf("message type %q is not %q", m.Type, TypeTTSUpdate)
	}
	var data TTSUpdate
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// DecodeAudio decodes the hex audio data
func (u *TTSUpdate) DecodeAudio() ([]byte, error) {
	return hex.DecodeString(u.Audio)
}

// =============================================================================
// Server-sent events
// =============================================================================

// SSE event names used by the streaming endpoint.
const (
	EventTTSUpdate   = "ttsUpdate"
	EventTTSComplete = "ttsComplete"
	EventError       = "error"
)

// SSEFrame formats one server-sent event. data is marshalled to a single
// line of JSON.
func SSEFrame(event string, data interface{}) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(event) + len(payload) + 16)
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
