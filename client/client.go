// Package client is a websocket client for block rooms. A Conn keeps a
// mirror of its room that changes only when a broadcast arrives.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"blockroom/internal/mirror"
	"blockroom/internal/net/proto"
)

const (
	defaultBuffer    = 128
	defaultWriteWait = 10 * time.Second
)

var (
	// ErrClosed is returned by senders once the connection is gone.
	ErrClosed = errors.New("client: connection closed")
	// ErrAlreadyJoined is returned by Join while the session is in a room
	// or still waiting for a join answer.
	ErrAlreadyJoined = errors.New("client: already joined")
)

// Options tune Dial. The zero value speaks JSON.
type Options struct {
	Codec     proto.Codec
	Buffer    int
	WriteWait time.Duration
	Dialer    *websocket.Dialer
}

// Conn is one websocket session.
type Conn struct {
	ws        *websocket.Conn
	codec     proto.Codec
	writeWait time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	state   mirror.State
	joining bool
	err     error
	dropped uint64

	updates   chan proto.Message
	done      chan struct{}
	closeOnce sync.Once
}

// Dial opens a session against a /ws endpoint. The codec is negotiated
// with the codec query parameter.
func Dial(ctx context.Context, rawURL string, opts Options) (*Conn, error) {
	codec := opts.Codec
	if codec == nil {
		codec = proto.JSON
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	query := u.Query()
	query.Set("codec", codec.Name())
	u.RawQuery = query.Encode()

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	writeWait := opts.WriteWait
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	c := &Conn{
		ws:        ws,
		codec:     codec,
		writeWait: writeWait,
		updates:   make(chan proto.Message, buffer),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// State returns the current mirror.
func (c *Conn) State() mirror.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Updates delivers every applied message. When the buffer is full new
// messages are counted in Dropped instead; State stays accurate.
func (c *Conn) Updates() <-chan proto.Message { return c.updates }

// Dropped reports updates that did not fit the buffer.
func (c *Conn) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Done is closed when the connection ends.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err reports why the connection ended, if it did so abnormally.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the session.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.writeWait))
	c.writeMu.Unlock()
	return c.shutdown(nil)
}

func (c *Conn) shutdown(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = cause
		c.state = mirror.Reset(c.state)
		c.mu.Unlock()
		err = c.ws.Close()
		close(c.done)
	})
	return err
}

func (c *Conn) readLoop() {
	defer close(c.updates)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			}
			c.shutdown(err)
			return
		}
		msg, err := proto.DecodeMessage(c.codec, data)
		if err != nil {
			c.shutdown(fmt.Errorf("decode: %w", err))
			return
		}

		c.mu.Lock()
		next, err := mirror.Apply(c.state, msg)
		if err == nil {
			c.state = next
			if next.Synced() || joinRefused(msg) {
				c.joining = false
			}
		}
		c.mu.Unlock()
		if errors.Is(err, mirror.ErrNotSynced) {
			// Room traffic still in flight from before a Leave.
			continue
		}
		if err != nil {
			c.shutdown(err)
			return
		}

		select {
		case c.updates <- msg:
		default:
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
		}
	}
}

func (c *Conn) send(intent proto.Intent) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	data, err := proto.EncodeIntent(c.codec, intent)
	if err != nil {
		return err
	}
	frameType := websocket.TextMessage
	if c.codec.Binary() {
		frameType = websocket.BinaryMessage
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
	if err := c.ws.WriteMessage(frameType, data); err != nil {
		return fmt.Errorf("send %s: %w", intent.Event(), err)
	}
	return nil
}

// Join asks to enter roomName as nickname. The mirror seeds itself from
// the matching player-join snapshot. Only one join may be in flight, and
// none while the session is in a room.
func (c *Conn) Join(roomName, nickname string) error {
	// The server trims nicknames and announces the trimmed form.
	nickname = strings.TrimSpace(nickname)
	c.mu.Lock()
	if c.state.Synced() || c.joining {
		c.mu.Unlock()
		return ErrAlreadyJoined
	}
	c.state = mirror.State{Nickname: nickname}
	c.joining = true
	c.mu.Unlock()

	if err := c.send(proto.Join{RoomName: roomName, Nickname: nickname}); err != nil {
		c.mu.Lock()
		c.joining = false
		c.mu.Unlock()
		return err
	}
	return nil
}

func joinRefused(msg proto.Message) bool {
	rejected, ok := msg.Payload.(proto.IntentRejected)
	return ok && rejected.Intent == proto.EventJoin
}

// StartGame starts the round as owner, or marks the player ready otherwise.
func (c *Conn) StartGame() error { return c.send(proto.StartGame{}) }

// ChangeMode sets the room mode. An empty mode cycles to the next one.
func (c *Conn) ChangeMode(mode string) error { return c.send(proto.ChangeMode{Mode: mode}) }

// Move shifts the active piece one column; dir is -1 or 1.
func (c *Conn) Move(dir int) error { return c.send(proto.Move{Dir: dir}) }

// Rotate turns the active piece; dir is -1 or 1.
func (c *Conn) Rotate(dir int) error { return c.send(proto.Rotate{Dir: dir}) }

func (c *Conn) Drop() error     { return c.send(proto.Drop{}) }
func (c *Conn) HardDrop() error { return c.send(proto.HardDrop{}) }

// Reset spends a life to clear the board in heart mode.
func (c *Conn) Reset() error { return c.send(proto.Reset{}) }

// Say posts a chat line to the joined room.
func (c *Conn) Say(text string) error {
	roomID := c.State().Room.ID
	if roomID == "" {
		return fmt.Errorf("send %s: %w", proto.EventSendMessage, mirror.ErrNotSynced)
	}
	return c.send(proto.SendMessage{RoomID: roomID, Data: text})
}

// Leave exits the room and clears the mirror. The connection stays open
// for another Join.
func (c *Conn) Leave() error {
	if err := c.send(proto.Leave{}); err != nil {
		return err
	}
	c.mu.Lock()
	c.state = mirror.Reset(c.state)
	c.joining = false
	c.mu.Unlock()
	return nil
}
