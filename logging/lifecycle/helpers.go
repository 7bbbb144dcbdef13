package lifecycle

import (
	"context"

	"blockroom/logging"
)

const (
	// EventRoomCreated is emitted when a room is created by a join or a reservation.
	EventRoomCreated logging.EventType = "lifecycle.room_created"
	// EventRoomDestroyed is emitted when a room is reclaimed.
	EventRoomDestroyed logging.EventType = "lifecycle.room_destroyed"
	// EventPlayerJoined is emitted when a player joins a room.
	EventPlayerJoined logging.EventType = "lifecycle.player_joined"
	// EventPlayerLeft is emitted when a player leaves or disconnects.
	EventPlayerLeft logging.EventType = "lifecycle.player_left"
	// EventOwnerTransferred is emitted when ownership moves to another player.
	EventOwnerTransferred logging.EventType = "lifecycle.owner_transferred"
)

type RoomCreatedPayload struct {
	Reserved bool `json:"reserved"`
}

type RoomDestroyedPayload struct {
	Reason string `json:"reason"`
}

type PlayerJoinedPayload struct {
	Owner   bool `json:"owner"`
	Players int  `json:"players"`
}

type PlayerLeftPayload struct {
	Reason  string `json:"reason"`
	Players int    `json:"players"`
}

type OwnerTransferredPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func publish(ctx context.Context, pub logging.Publisher, event logging.Event) {
	if pub == nil {
		return
	}
	event.Category = logging.CategoryLobby
	pub.Publish(ctx, event)
}

// RoomCreated publishes a room creation event.
func RoomCreated(ctx context.Context, pub logging.Publisher, room string, payload RoomCreatedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomCreated,
		Room:     room,
		Actor:    logging.RoomRef(room),
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// RoomDestroyed publishes a room reclamation event.
func RoomDestroyed(ctx context.Context, pub logging.Publisher, room string, payload RoomDestroyedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventRoomDestroyed,
		Room:     room,
		Actor:    logging.RoomRef(room),
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerJoined publishes a join event.
func PlayerJoined(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload PlayerJoinedPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerJoined,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// PlayerLeft publishes a leave event.
func PlayerLeft(ctx context.Context, pub logging.Publisher, room string, seq uint64, actor logging.EntityRef, payload PlayerLeftPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventPlayerLeft,
		Room:     room,
		Seq:      seq,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}

// OwnerTransferred publishes an ownership change.
func OwnerTransferred(ctx context.Context, pub logging.Publisher, room string, payload OwnerTransferredPayload, extra map[string]any) {
	publish(ctx, pub, logging.Event{
		Type:     EventOwnerTransferred,
		Room:     room,
		Actor:    logging.PlayerRef(payload.To),
		Targets:  []logging.EntityRef{logging.PlayerRef(payload.From)},
		Severity: logging.SeverityInfo,
		Payload:  payload,
		Extra:    extra,
	})
}
