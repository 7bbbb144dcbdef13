package gameplay

import (
	"context"

	"blockroom/logging"
)

const (
	// EventRoundStarted is emitted when the owner starts a round.
	EventRoundStarted logging.EventType = "gameplay.round_started"
	// EventRoundEnded is emitted when win evaluation closes a round.
	EventRoundEnded logging.EventType = "gameplay.round_ended"
	// EventLinesCleared is emitted when a lock clears at least one row.
	EventLinesCleared logging.EventType = "gameplay.lines_cleared"
	// EventTopOut is emitted when a piece locks inside the spawn rows.
	EventTopOut logging.EventType = "gameplay.top_out"
	// EventLifeLost is emitted when a heart-mode player spends a life.
	EventLifeLost logging.EventType = "gameplay.life_lost"
)

type RoundStartedPayload struct {
	Mode    string   `json:"mode"`
	Players []string `json:"players"`
}

type RoundEndedPayload struct {
	Mode   string `json:"mode"`
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason"`
}

type LinesClearedPayload struct {
	Lines int `json:"lines"`
	Score int `json:"score"`
	Level int `json:"level"`
}

type TopOutPayload struct {
	Status string `json:"status"`
}

type LifeLostPayload struct {
	Remaining int  `json:"remaining"`
	Voluntary bool `json:"voluntary"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryGameplay
	pub.Publish(ctx, event)
}

// RoundStarted publishes a round start.
func RoundStarted(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload RoundStartedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoundStarted,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// RoundEnded publishes a round result.
func RoundEnded(ctx context.Context, pub logging.Publisher, room string, seq uint64, payload RoundEndedPayload, extra map[string]any) {
	event := logging.Event{
		Type:     EventRoundEnded,
		Room:     room,
		Seq:      seq,
		Actor:    logging.RoomRef(room),
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	}
	if payload.Winner != "" {
		event.Targets = []logging.EntityRef{logging.PlayerRef(payload.Winner)}
	}
	publish(ctx, pub, event)
}

// LinesCleared publishes a debug event for a scoring lock.
func LinesCleared(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload LinesClearedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventLinesCleared,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Payload:  payload,
		Extra:    extra,
	})
}

// TopOut publishes a top-out.
func TopOut(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload TopOutPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventTopOut,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// LifeLost publishes a heart-mode life loss.
func LifeLost(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload LifeLostPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventLifeLost,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}
