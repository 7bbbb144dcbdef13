// Package mirror rebuilds a room on the client side from the server's
// broadcast stream. It never predicts: every change comes from a message.
package mirror

import (
	"errors"
	"fmt"

	"blockroom/internal/net/proto"
	"blockroom/internal/player"
)

var (
	// ErrSequenceGap means a broadcast was skipped or replayed.
	ErrSequenceGap = errors.New("mirror: broadcast sequence gap")
	// ErrNotSynced means a room broadcast arrived before the join snapshot.
	ErrNotSynced = errors.New("mirror: no room snapshot yet")
)

// ChatHistory bounds the chat lines kept in State.
const ChatHistory = 50

// State is the client's copy of its room.
type State struct {
	Nickname  string
	Seq       uint64
	Room      proto.RoomState
	Chat      []proto.ChatMessage
	LastRound *proto.RoundEnd
	Rejected  *proto.IntentRejected
}

// Synced reports whether a join snapshot has been applied.
func (s State) Synced() bool { return s.Seq > 0 }

// Self returns the local player's view.
func (s State) Self() (proto.PlayerState, bool) {
	return s.Room.Player(s.Nickname)
}

// IsOwner reports whether the local player owns the room.
func (s State) IsOwner() bool {
	return s.Synced() && s.Room.Owner == s.Nickname
}

// Reset drops everything but the nickname. Used when the transport closes
// or the player leaves.
func Reset(s State) State {
	return State{Nickname: s.Nickname}
}

// Apply folds one message into s. Unsequenced replies never move the
// sequence. Before the first snapshot only the local player's join is
// accepted.
func Apply(s State, msg proto.Message) (State, error) {
	if msg.Seq == 0 {
		if rejected, ok := msg.Payload.(proto.IntentRejected); ok {
			s.Rejected = &rejected
		}
		return s, nil
	}

	if !s.Synced() {
		joined, ok := msg.Payload.(proto.Joined)
		if !ok || (s.Nickname != "" && joined.Nickname != s.Nickname) {
			return s, fmt.Errorf("%w: %s seq=%d", ErrNotSynced, msg.Event(), msg.Seq)
		}
		if s.Nickname == "" {
			s.Nickname = joined.Nickname
		}
		s.Room = joined.Room
		s.Seq = msg.Seq
		return s, nil
	}

	if msg.Seq != s.Seq+1 {
		return s, fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, s.Seq, msg.Seq)
	}
	s.Seq = msg.Seq

	switch payload := msg.Payload.(type) {
	case proto.Joined:
		s.Room = payload.Room
	case proto.GameStarted:
		s.Room = payload.Room
		s.LastRound = nil
	case proto.PlayerDelta:
		s.Room = replacePlayer(s.Room, payload.Player)
	case proto.PlayerReady:
		s.Room = updatePlayer(s.Room, payload.Nickname, func(p *proto.PlayerState) {
			p.Status = string(player.StatusReady)
		})
	case proto.PlayerOut:
		s.Room = removePlayer(s.Room, payload.Nickname)
		s.Room.Owner = payload.Owner
	case proto.ModeChanged:
		s.Room.Mode = payload.Mode
	case proto.RoundEnd:
		s.Room = payload.Room
		round := payload
		s.LastRound = &round
	case proto.ChatMessage:
		s.Chat = appendChat(s.Chat, payload)
	}
	return s, nil
}

func replacePlayer(room proto.RoomState, state proto.PlayerState) proto.RoomState {
	return updatePlayer(room, state.Nickname, func(p *proto.PlayerState) { *p = state })
}

func updatePlayer(room proto.RoomState, nickname string, fn func(*proto.PlayerState)) proto.RoomState {
	players := make([]proto.PlayerState, len(room.Players))
	copy(players, room.Players)
	for i := range players {
		if players[i].Nickname == nickname {
			fn(&players[i])
		}
	}
	room.Players = players
	return room
}

func removePlayer(room proto.RoomState, nickname string) proto.RoomState {
	players := make([]proto.PlayerState, 0, len(room.Players))
	for _, p := range room.Players {
		if p.Nickname != nickname {
			players = append(players, p)
		}
	}
	room.Players = players
	return room
}

func appendChat(history []proto.ChatMessage, msg proto.ChatMessage) []proto.ChatMessage {
	next := make([]proto.ChatMessage, 0, len(history)+1)
	next = append(next, history...)
	next = append(next, msg)
	if len(next) > ChatHistory {
		next = next[len(next)-ChatHistory:]
	}
	return next
}
