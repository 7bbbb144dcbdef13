package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/room"
	"blockroom/internal/telemetry"
	"blockroom/logging"
	"blockroom/logging/network"
)

var (
	errNotJoined     = errors.New("ws: session has not joined a room")
	errAlreadyJoined = errors.New("ws: session already joined a room")
	errWrongRoom     = errors.New("ws: message addressed to another room")
)

// session binds one websocket connection to at most one room member.
// Outbound messages go through a bounded queue drained by a single writer
// so the room's broadcast order is kept.
type session struct {
	h     *Handler
	id    string
	conn  *websocket.Conn
	codec proto.Codec
	out   chan proto.Message

	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	room     string
	nickname string
}

func newSession(h *Handler, conn *websocket.Conn, codec proto.Codec, id string) *session {
	return &session{
		h:     h,
		id:    id,
		conn:  conn,
		codec: codec,
		out:   make(chan proto.Message, h.cfg.SendQueue),
		done:  make(chan struct{}),
	}
}

// Deliver implements room.Sink. It never blocks: a full queue closes the
// connection.
func (s *session) Deliver(msg proto.Message) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.out <- msg:
	default:
		s.h.metrics.Add(telemetry.MetricSlowConsumerDisconnects, 1)
		network.SlowConsumer(context.Background(), s.h.pub, s.roomID(), logging.SessionRef(s.id), network.SlowConsumerPayload{
			QueueDepth: cap(s.out),
		}, map[string]any{"nickname": s.member()})
		s.close()
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

func (s *session) mapping() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room, s.nickname
}

func (s *session) roomID() string {
	roomID, _ := s.mapping()
	return roomID
}

func (s *session) member() string {
	_, nickname := s.mapping()
	return nickname
}

func (s *session) bind(roomID, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = roomID
	s.nickname = nickname
}

func (s *session) writeLoop() {
	ticker := time.NewTicker(s.h.cfg.PingInterval)
	defer ticker.Stop()
	frameType := websocket.TextMessage
	if s.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	for {
		select {
		case <-s.done:
			deadline := time.Now().Add(s.h.cfg.WriteWait)
			s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			return
		case msg := <-s.out:
			data, err := proto.EncodeMessage(s.codec, msg)
			if err != nil {
				s.h.logger.Printf("failed to encode %s for session %s: %v", msg.Event(), s.id, err)
				continue
			}
			s.conn.SetWriteDeadline(time.Now().Add(s.h.cfg.WriteWait))
			if err := s.conn.WriteMessage(frameType, data); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(s.h.cfg.WriteWait)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.close()
				return
			}
		}
	}
}

// readLoop dispatches inbound frames until the connection fails, then
// removes the member from its room before returning the close reason.
func (s *session) readLoop(ctx context.Context) string {
	s.conn.SetReadLimit(s.h.cfg.ReadLimit)
	s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.h.cfg.PongWait))
	})

	reason := "closed"
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				reason = err.Error()
			}
			break
		}

		intent, err := proto.DecodeIntent(s.codec, payload)
		if err != nil {
			network.MalformedFrame(ctx, s.h.pub, logging.SessionRef(s.id), network.MalformedFramePayload{
				Error: err.Error(),
				Size:  len(payload),
			}, nil)
			s.reject("", decodeRejectReason(err))
			continue
		}
		if err := s.dispatch(ctx, intent); err != nil {
			s.reject(intent.Event(), rejectReason(err))
		}
	}

	s.close()
	if roomID, nickname := s.mapping(); nickname != "" {
		if err := s.h.rooms.Disconnect(ctx, roomID, nickname); err != nil && !errors.Is(err, room.ErrRoomNotFound) && !errors.Is(err, room.ErrNotMember) {
			s.h.logger.Printf("disconnect %s from %s: %v", nickname, roomID, err)
		}
		s.bind("", "")
	}
	return reason
}

func (s *session) dispatch(ctx context.Context, intent proto.Intent) error {
	roomID, nickname := s.mapping()
	if join, ok := intent.(proto.Join); ok {
		if nickname != "" {
			return errAlreadyJoined
		}
		desc, err := s.h.rooms.Join(ctx, join.RoomName, join.Nickname, s)
		if err != nil {
			return err
		}
		s.bind(desc.ID, strings.TrimSpace(join.Nickname))
		return nil
	}
	if nickname == "" {
		return errNotJoined
	}

	rooms := s.h.rooms
	switch in := intent.(type) {
	case proto.StartGame:
		if desc, ok := rooms.Lookup(roomID); ok && desc.Owner == nickname {
			return rooms.StartGame(ctx, roomID, nickname)
		}
		return rooms.Ready(ctx, roomID, nickname)
	case proto.ChangeMode:
		return rooms.SetMode(ctx, roomID, nickname, in.Mode)
	case proto.Move:
		return s.apply(ctx, player.Intent{Action: player.ActionMove, Dir: in.Dir})
	case proto.Rotate:
		return s.apply(ctx, player.Intent{Action: player.ActionRotate, Dir: in.Dir})
	case proto.Drop:
		return s.apply(ctx, player.Intent{Action: player.ActionDrop})
	case proto.HardDrop:
		return s.apply(ctx, player.Intent{Action: player.ActionHardDrop})
	case proto.Reset:
		return s.apply(ctx, player.Intent{Action: player.ActionReset})
	case proto.SendMessage:
		if in.RoomID != "" && in.RoomID != roomID {
			return errWrongRoom
		}
		return rooms.Chat(ctx, roomID, nickname, in.Data)
	case proto.Leave:
		if err := rooms.Leave(ctx, roomID, nickname); err != nil {
			return err
		}
		s.bind("", "")
		return nil
	default:
		return errors.New("ws: unhandled intent " + intent.Event())
	}
}

func (s *session) apply(ctx context.Context, intent player.Intent) error {
	roomID, nickname := s.mapping()
	_, err := s.h.rooms.ApplyIntent(ctx, roomID, nickname, intent)
	return err
}

// reject answers the originator only; rejections are not part of the room
// stream.
func (s *session) reject(event, reason string) {
	roomID, nickname := s.mapping()
	s.h.metrics.Add(telemetry.MetricIntentsRejectedTotal, 1)
	actor := logging.SessionRef(s.id)
	if nickname != "" {
		actor = logging.PlayerRef(nickname)
	}
	network.IntentRejected(context.Background(), s.h.pub, roomID, actor, network.IntentRejectedPayload{
		Event:  event,
		Reason: reason,
	}, nil)
	s.Deliver(proto.Rejected(event, reason))
}

func decodeRejectReason(err error) string {
	switch {
	case errors.Is(err, proto.ErrUnknownEvent):
		return proto.RejectUnknownEvent
	case errors.Is(err, proto.ErrInvalidDirection):
		return proto.RejectInvalidDirection
	default:
		return proto.RejectMalformed
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errNotJoined):
		return proto.RejectNotJoined
	case errors.Is(err, errAlreadyJoined):
		return proto.RejectAlreadyJoined
	case errors.Is(err, errWrongRoom):
		return proto.RejectWrongRoom
	default:
		return room.RejectReason(err)
	}
}
