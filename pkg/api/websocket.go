package api

import "encoding/json"

type (
	// PushMessage is published on the realtime hub under a topic such as
	// task/{taskId}/timer
	PushMessage struct {
		Topic     string          `json:"topic"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}

	// WebSocketMessage is a frame sent to WebSocket clients
	WebSocketMessage struct {
		Type      string          `json:"type"`
		Topic     string          `json:"topic,omitempty"`
		Data      json.RawMessage `json:"data,omitempty"`
		Error     string          `json:"error,omitempty"`
		Timestamp int64           `json:"timestamp,omitempty"`
	}

	// SubscribeRequest is sent by clients to subscribe to topics
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription lists the topics a WebSocket client wants
	ClientSubscription struct {
		Topics []string `json:"topics"`
	}
)

// WebSocket frame types
const (
	MessageTypeSubscribe   = "subscribe"
	MessageTypeUnsubscribe = "unsubscribe"
	MessageTypeSubscribed  = "subscribed"
	MessageTypeMessage     = "message"
	MessageTypeError       = "error"
)
