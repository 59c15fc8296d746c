package transport

import (
	"encoding/json"
)

// FrameType discriminates protocol frames on the socket.
type FrameType string

const (
	// Client to server
	FrameSubscribe   FrameType = "subscribe"
	FrameUnsubscribe FrameType = "unsubscribe"
	FrameSend        FrameType = "send"

	// Server to client
	FrameMessage FrameType = "message"
	FrameError   FrameType = "error"
)

// CodeUnauthorized is the error-frame code the server sends when it rejects
// the connection's credential.
const CodeUnauthorized = "unauthorized"

// Frame is the JSON wire format exchanged with the realtime gateway. Topic
// names the channel; Body carries the serialized payload for send and
// message frames.
type Frame struct {
	Type  FrameType       `json:"type"`
	ID    string          `json:"id,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	Code  string          `json:"code,omitempty"`
}
