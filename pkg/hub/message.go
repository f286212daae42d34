// Package hub tracks the live sessions of a server and owns the websocket
// write side of each client connection.
//
// Every connection gets one Client: a single writer goroutine drains a
// buffered send channel, so sessions can emit events from any goroutine
// without locking the socket.
package hub

import "github.com/chuoibo/full-pipeline/pkg/protocol"

// Message is one JSON text frame queued for a client
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded JSON bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// Encode turns a protocol event into a JSON frame
func Encode(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
