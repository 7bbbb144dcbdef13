package network

import (
	"context"

	"blockroom/logging"
)

const (
	// EventIntentRejected is emitted when a client intent is refused.
	EventIntentRejected logging.EventType = "network.intent_rejected"
	// EventMalformedFrame is emitted when an inbound frame cannot be decoded.
	EventMalformedFrame logging.EventType = "network.malformed_frame"
	// EventSlowConsumer is emitted when a session is dropped for a full outbound queue.
	EventSlowConsumer logging.EventType = "network.slow_consumer"
	// EventSessionOpened is emitted after a websocket upgrade.
	EventSessionOpened logging.EventType = "network.session_opened"
	// EventSessionClosed is emitted when a websocket session ends.
	EventSessionClosed logging.EventType = "network.session_closed"
)

type IntentRejectedPayload struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

type MalformedFramePayload struct {
	Error string `json:"error"`
	Size  int    `json:"size"`
}

type SlowConsumerPayload struct {
	QueueDepth int `json:"queueDepth"`
}

type SessionPayload struct {
	Codec  string `json:"codec"`
	Remote string `json:"remote,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryNetwork
	pub.Publish(ctx, event)
}

// IntentRejected publishes a warning for a refused intent.
func IntentRejected(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload IntentRejectedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventIntentRejected,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Payload:  payload,
		Extra:    extra,
	})
}

// MalformedFrame publishes a warning for an undecodable frame.
func MalformedFrame(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload MalformedFramePayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventMalformedFrame,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Payload:  payload,
		Extra:    extra,
	})
}

// SlowConsumer publishes an error when a session is disconnected for backpressure.
func SlowConsumer(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload SlowConsumerPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSlowConsumer,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityError,
		Payload:  payload,
		Extra:    extra,
	})
}

// SessionOpened publishes a debug event for a new session.
func SessionOpened(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionOpened,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

// SessionClosed publishes a debug event for a finished session.
func SessionClosed(ctx context.Context, pub logging.Publisher, room string, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventSessionClosed,
		Room:     room,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}
