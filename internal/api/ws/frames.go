// Package ws serves the WebSocket transport. A connection carries inbound
// commands to the gateway and delivers messages for the topics it has
// subscribed to.
package ws

import (
	"encoding/json"
	"time"

	"github.com/mcoot/chessrelay/internal/model"
	"github.com/mcoot/chessrelay/internal/pubsub"
)

// Client frame types handled by the transport itself. Every other type
// is passed to the gateway.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Server frame types
const (
	FrameMessage      = "message"
	FrameSubscribed   = "subscribed"
	FrameUnsubscribed = "unsubscribed"
	FrameError        = "error"
)

// ServerFrame is one frame written to the client
type ServerFrame struct {
	Type        string             `json:"type"`
	Topic       string             `json:"topic,omitempty"`
	Kind        string             `json:"kind,omitempty"`
	Payload     json.RawMessage    `json:"payload,omitempty"`
	PublishedAt time.Time          `json:"published_at,omitzero"`
	Error       *model.ErrorNotice `json:"error,omitempty"`
}

// MessageFrame wraps a topic message
func MessageFrame(msg pubsub.Message) ServerFrame {
	return ServerFrame{
		Type:        FrameMessage,
		Topic:       msg.Topic,
		Kind:        msg.Kind,
		Payload:     msg.Payload,
		PublishedAt: msg.PublishedAt,
	}
}

// ErrorFrame reports a transport-level failure, such as a refused
// subscription, directly on the connection
func ErrorFrame(topic string, notice model.ErrorNotice) ServerFrame {
	return ServerFrame{Type: FrameError, Topic: topic, Error: &notice}
}
