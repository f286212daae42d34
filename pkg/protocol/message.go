// Package protocol defines the JSON events the pipeline sends to its clients
// over the websocket and SSE endpoints.
package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies the type of outbound event
type MessageType string

const (
	TypeTranscription MessageType = "transcription" // Finalized utterance
	TypeResponse      MessageType = "response"      // Preprocessed query sent to generation
	TypeTTSStarting   MessageType = "tts_starting"  // Audio for a response is about to stream
	TypeTTSUpdate     MessageType = "tts_update"    // One synthesized chunk
	TypeTTSComplete   MessageType = "tts_complete"  // Response fully delivered
	TypeError         MessageType = "error"         // Stage failure, session keeps listening
	TypeStatus        MessageType = "status"        // Session lifecycle ("ready", ...)
)

// Status values carried by TypeStatus events.
const (
	StatusReady       = "ready"
	StatusInterrupted = "interrupted"
	StatusClosing     = "closing"
)

// Message is the envelope for all outbound events
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage creates a message with data marshalled to JSON
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	rawData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message data: %w", err)
	}
	return &Message{Type: msgType, Data: rawData}, nil
}

// ParseData unmarshals the message data into the provided value
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// TTSMetrics are per-turn latencies in seconds. Both are null except on
// the first update of a response.
type TTSMetrics struct {
	GenerationTime *float64 `json:"generation_time"`
	FirstVoiceTime *float64 `json:"first_voice_time"`
}

// TTSUpdate is the data of a tts_update event and of an SSE ttsUpdate frame.
type TTSUpdate struct {
	Text string `json:"text"`

	// Audio is the encoded chunk as lowercase hex.
	Audio string `json:"audio"`

	// Duration is the pacing delay the server applies after this chunk, in seconds.
	Duration float64 `json:"duration"`

	// PlaybackDuration is the decoded audio length in seconds.
	PlaybackDuration float64 `json:"playback_duration"`

	Sequence int        `json:"sequence"`
	Format   string     `json:"format,omitempty"`
	Metrics  TTSMetrics `json:"metrics"`
}
