package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrMalformed marks a frame that is not a valid envelope.
	ErrMalformed = errors.New("proto: malformed frame")
	// ErrUnknownEvent marks an envelope whose event name is not in the protocol.
	ErrUnknownEvent = errors.New("proto: unknown event")
	// ErrInvalidDirection marks a move or rotation with a direction other than -1 or 1.
	ErrInvalidDirection = errors.New("proto: invalid direction")
)

// Codec serialises envelopes for one websocket frame type.
type Codec interface {
	Name() string
	// Binary reports whether frames are sent as binary rather than text.
	Binary() bool
	marshal(v any) ([]byte, error)
	unmarshal(data []byte, v any) error
	split(data []byte) (frame, error)
}

// frame is an envelope whose payload has not been decoded yet.
type frame struct {
	Event   string
	Seq     uint64
	Payload []byte
}

type jsonCodec struct{}

type jsonFrame struct {
	Event   string          `json:"event"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Binary() bool                       { return false }
func (jsonCodec) marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) split(data []byte) (frame, error) {
	var f jsonFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, err
	}
	payload := []byte(f.Payload)
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = nil
	}
	return frame{Event: f.Event, Seq: f.Seq, Payload: payload}, nil
}

type msgpackCodec struct{}

type msgpackFrame struct {
	Event   string             `json:"event"`
	Seq     uint64             `json:"seq"`
	Payload msgpack.RawMessage `json:"payload,omitempty"`
}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

// Struct fields are keyed by their json tags so both codecs agree on names.
func (msgpackCodec) marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

func (c msgpackCodec) split(data []byte) (frame, error) {
	var f msgpackFrame
	if err := c.unmarshal(data, &f); err != nil {
		return frame{}, err
	}
	payload := []byte(f.Payload)
	if len(payload) == 1 && payload[0] == 0xc0 {
		payload = nil
	}
	return frame{Event: f.Event, Seq: f.Seq, Payload: payload}, nil
}

var (
	// JSON is the default text codec.
	JSON Codec = jsonCodec{}
	// MsgPack is the binary codec.
	MsgPack Codec = msgpackCodec{}
)

// CodecByName resolves a ?codec= query value. An empty name selects JSON.
func CodecByName(name string) (Codec, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, true
	case "msgpack", "messagepack":
		return MsgPack, true
	default:
		return nil, false
	}
}

type envelope struct {
	Event   string `json:"event"`
	Seq     uint64 `json:"seq"`
	Payload any    `json:"payload"`
}

// EncodeMessage renders a server message.
func EncodeMessage(c Codec, msg Message) ([]byte, error) {
	if msg.Payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	return c.marshal(envelope{Event: msg.Payload.Event(), Seq: msg.Seq, Payload: msg.Payload})
}

// EncodeIntent renders a client intent.
func EncodeIntent(c Codec, intent Intent) ([]byte, error) {
	if intent == nil {
		return nil, fmt.Errorf("%w: empty intent", ErrMalformed)
	}
	return c.marshal(envelope{Event: intent.Event(), Payload: intent})
}

func decodePayload[T any](c Codec, f frame) (T, error) {
	var payload T
	if len(f.Payload) == 0 {
		return payload, nil
	}
	if err := c.unmarshal(f.Payload, &payload); err != nil {
		return payload, fmt.Errorf("%w: %s payload: %v", ErrMalformed, f.Event, err)
	}
	return payload, nil
}

// DecodeIntent parses a client frame. Unknown event names wrap
// ErrUnknownEvent; undecodable frames wrap ErrMalformed.
func DecodeIntent(c Codec, data []byte) (Intent, error) {
	f, err := c.split(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch f.Event {
	case EventJoin:
		return decodePayload[Join](c, f)
	case EventStartGame:
		return StartGame{}, nil
	case EventChangeMode:
		return decodePayload[ChangeMode](c, f)
	case EventMove:
		move, err := decodePayload[Move](c, f)
		if err != nil {
			return nil, err
		}
		if move.Dir != -1 && move.Dir != 1 {
			return nil, fmt.Errorf("%w: move %d", ErrInvalidDirection, move.Dir)
		}
		return move, nil
	case EventRotate:
		rotate, err := decodePayload[Rotate](c, f)
		if err != nil {
			return nil, err
		}
		if rotate.Dir == 0 {
			rotate.Dir = 1
		}
		if rotate.Dir != -1 && rotate.Dir != 1 {
			return nil, fmt.Errorf("%w: rotate %d", ErrInvalidDirection, rotate.Dir)
		}
		return rotate, nil
	case EventDrop:
		return Drop{}, nil
	case EventHardDrop:
		return HardDrop{}, nil
	case EventReset:
		return Reset{}, nil
	case EventSendMessage:
		return decodePayload[SendMessage](c, f)
	case EventLeave:
		return Leave{}, nil
	case "":
		return nil, fmt.Errorf("%w: missing event", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

// DecodeMessage parses a server frame.
func DecodeMessage(c Codec, data []byte) (Message, error) {
	f, err := c.split(data)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var payload Broadcast
	switch f.Event {
	case EventChat:
		payload, err = decodePayload[ChatMessage](c, f)
	case EventJoined:
		payload, err = decodePayload[Joined](c, f)
	case EventGameStarted:
		payload, err = decodePayload[GameStarted](c, f)
	case EventMove, EventDrop, EventRotate, EventReset:
		var delta PlayerDelta
		delta, err = decodePayload[PlayerDelta](c, f)
		if delta.Action == "" {
			delta.Action = deltaAction(f.Event)
		}
		payload = delta
	case EventPlayerReady:
		payload, err = decodePayload[PlayerReady](c, f)
	case EventPlayerOut:
		payload, err = decodePayload[PlayerOut](c, f)
	case EventModeChanged:
		payload, err = decodePayload[ModeChanged](c, f)
	case EventRoundEnd:
		payload, err = decodePayload[RoundEnd](c, f)
	case EventIntentRejected:
		payload, err = decodePayload[IntentRejected](c, f)
	case "":
		return Message{}, fmt.Errorf("%w: missing event", ErrMalformed)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	if err != nil {
		return Message{}, err
	}
	return Message{Seq: f.Seq, Payload: payload}, nil
}

func deltaAction(event string) string {
	switch event {
	case EventMove:
		return ActionMove
	case EventRotate:
		return ActionRotate
	case EventReset:
		return ActionReset
	default:
		return ActionDrop
	}
}
