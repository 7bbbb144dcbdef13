// Package room owns the lobby and round lifecycle of every game room. Each
// room runs on its own goroutine; the Manager routes operations to it.
package room

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/google/uuid"

	"blockroom/internal/board"
	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/rules"
	"blockroom/internal/telemetry"
	"blockroom/logging"
	"blockroom/logging/lifecycle"
)

const maxRoomIDLength = 64

// Deps carries the collaborators shared by every room.
type Deps struct {
	Clock     Clock
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger
}

// Stats summarises the manager for diagnostics.
type Stats struct {
	Rooms   int `json:"rooms"`
	Started int `json:"started"`
	Players int `json:"players"`
}

type Manager struct {
	cfg    Config
	deps   Deps
	engine *board.Engine

	mu    sync.Mutex
	rooms map[string]*Room

	seeds   atomic.Int64
	players atomic.Int64
}

func NewManager(cfg Config, deps Deps) *Manager {
	cfg = cfg.normalized()
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Publisher == nil {
		deps.Publisher = logging.NopPublisher()
	}
	if deps.Metrics == nil {
		deps.Metrics = telemetry.WrapMetrics(nil)
	}
	if deps.Logger == nil {
		deps.Logger = telemetry.NopLogger()
	}
	m := &Manager{
		cfg:    cfg,
		deps:   deps,
		engine: board.NewEngine(cfg.Rules.Board),
		rooms:  make(map[string]*Room),
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = deps.Clock.Now().UnixNano()
	}
	m.seeds.Store(seed)
	return m
}

// Config returns the normalized configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// CreateRoom reserves a room. An empty id generates one. A reservation
// nobody joins is reclaimed after the configured TTL.
func (m *Manager) CreateRoom(ctx context.Context, id string) (Descriptor, error) {
	if err := ctx.Err(); err != nil {
		return Descriptor{}, err
	}
	id = strings.TrimSpace(id)
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = m.newRoomIDLocked()
	} else if !validRoomID(id) {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, id)
	}
	if _, exists := m.rooms[id]; exists {
		return Descriptor{}, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}
	r := m.newRoomLocked(id, true)
	return r.Descriptor(), nil
}

func (m *Manager) newRoomIDLocked() string {
	for {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
		if _, exists := m.rooms[id]; !exists {
			return id
		}
	}
}

func (m *Manager) newRoomLocked(id string, reserved bool) *Room {
	r := &Room{
		id:      id,
		cfg:     m.cfg,
		clock:   m.deps.Clock,
		engine:  m.engine,
		pub:     m.deps.Publisher,
		metrics: m.deps.Metrics,
		logger:  m.deps.Logger,
		ctx:     context.Background(),
		mailbox: make(chan func(), m.cfg.MailboxSize),
		done:    make(chan struct{}),
		mode:    rules.ModeStandard,
	}
	r.nextSeed = func() int64 { return m.seeds.Add(1) }
	r.onPlayers = func(delta int) {
		m.deps.Metrics.Store(telemetry.MetricPlayersActive, uint64(m.players.Add(int64(delta))))
	}
	r.onClose = m.remove
	r.reservation = m.deps.Clock.AfterFunc(m.cfg.ReservationTTL, func() {
		r.post(r.expireReservation)
	})
	r.refresh()

	m.rooms[id] = r
	m.deps.Metrics.Store(telemetry.MetricRoomsActive, uint64(len(m.rooms)))
	lifecycle.RoomCreated(context.Background(), m.deps.Publisher, id, lifecycle.RoomCreatedPayload{Reserved: reserved}, nil)

	go r.run()
	return r
}

func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[r.id]; ok && current == r {
		delete(m.rooms, r.id)
	}
	m.deps.Metrics.Store(telemetry.MetricRoomsActive, uint64(len(m.rooms)))
}

func (m *Manager) room(id string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rooms[id]
}

// Join adds nickname to roomID, creating the room when it does not exist
// and CreateOnJoin is set. The first member becomes the owner.
func (m *Manager) Join(ctx context.Context, roomID, nickname string, sink Sink) (Descriptor, error) {
	nickname, err := m.normalizeNickname(nickname)
	if err != nil {
		return Descriptor{}, err
	}
	roomID = strings.TrimSpace(roomID)
	if !validRoomID(roomID) {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}

	// A room may be reclaimed between lookup and join; retry on a fresh one.
	for attempt := 0; attempt < 3; attempt++ {
		r, err := m.roomForJoin(roomID)
		if err != nil {
			return Descriptor{}, err
		}
		var desc Descriptor
		err = r.do(ctx, func() error {
			var err error
			desc, err = r.join(nickname, sink)
			return err
		})
		if errors.Is(err, errRoomClosed) {
			continue
		}
		if err != nil {
			return Descriptor{}, fmt.Errorf("join %s: %w", roomID, err)
		}
		return desc, nil
	}
	return Descriptor{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
}

func (m *Manager) roomForJoin(id string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	if !m.cfg.CreateOnJoin {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return m.newRoomLocked(id, false), nil
}

func (m *Manager) withRoom(ctx context.Context, id string, fn func(r *Room) error) error {
	r := m.room(id)
	if r == nil {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	err := r.do(ctx, func() error { return fn(r) })
	if errors.Is(err, errRoomClosed) {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return err
}

// SetMode changes the room mode. An empty mode cycles to the next one.
func (m *Manager) SetMode(ctx context.Context, roomID, requester, mode string) error {
	return m.withRoom(ctx, roomID, func(r *Room) error {
		return r.setMode(requester, mode)
	})
}

func (m *Manager) Ready(ctx context.Context, roomID, nickname string) error {
	return m.withRoom(ctx, roomID, func(r *Room) error {
		return r.ready(nickname)
	})
}

// StartGame starts a round. The owner may start only once every other
// member is ready.
func (m *Manager) StartGame(ctx context.Context, roomID, requester string) error {
	return m.withRoom(ctx, roomID, func(r *Room) error {
		return r.startGame(requester)
	})
}

// ApplyIntent runs a board intent for nickname and broadcasts the result.
func (m *Manager) ApplyIntent(ctx context.Context, roomID, nickname string, intent player.Intent) (player.Outcome, error) {
	var out player.Outcome
	err := m.withRoom(ctx, roomID, func(r *Room) error {
		var err error
		out, err = r.applyIntent(nickname, intent)
		return err
	})
	return out, err
}

// Leave removes nickname after a player-leave request.
func (m *Manager) Leave(ctx context.Context, roomID, nickname string) error {
	return m.evict(ctx, roomID, nickname, "leave")
}

// Disconnect removes nickname after its transport went away.
func (m *Manager) Disconnect(ctx context.Context, roomID, nickname string) error {
	return m.evict(ctx, roomID, nickname, "disconnect")
}

func (m *Manager) evict(ctx context.Context, roomID, nickname, reason string) error {
	return m.withRoom(ctx, roomID, func(r *Room) error {
		return r.leave(nickname, reason)
	})
}

// Chat relays text to every member, the sender included.
func (m *Manager) Chat(ctx context.Context, roomID, nickname, text string) error {
	return m.withRoom(ctx, roomID, func(r *Room) error {
		return r.chat(nickname, text)
	})
}

func (m *Manager) Lookup(roomID string) (Descriptor, bool) {
	r := m.room(strings.TrimSpace(roomID))
	if r == nil {
		return Descriptor{}, false
	}
	return r.Descriptor(), true
}

// CanJoin reports whether a join of nickname into roomID would currently
// succeed. It reads the published summary and does not reserve a slot.
func (m *Manager) CanJoin(roomID, nickname string) error {
	nickname, err := m.normalizeNickname(nickname)
	if err != nil {
		return err
	}
	desc, ok := m.Lookup(roomID)
	if !ok {
		if m.cfg.CreateOnJoin && validRoomID(strings.TrimSpace(roomID)) {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	switch {
	case desc.Started:
		return ErrRoomStarted
	case desc.Has(nickname):
		return fmt.Errorf("%w: %q", ErrNicknameTaken, nickname)
	case desc.Full():
		return ErrRoomFull
	}
	return nil
}

func (m *Manager) Snapshot(roomID string) (proto.RoomState, bool) {
	r := m.room(strings.TrimSpace(roomID))
	if r == nil {
		return proto.RoomState{}, false
	}
	return r.State(), true
}

// Rooms lists every room summary ordered by id.
func (m *Manager) Rooms() []Descriptor {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	out := make([]Descriptor, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Descriptor())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) Stats() Stats {
	stats := Stats{Players: int(m.players.Load())}
	for _, desc := range m.Rooms() {
		stats.Rooms++
		if desc.Started {
			stats.Started++
		}
	}
	return stats
}

// Close reclaims every room and waits for their goroutines to exit.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	for _, r := range rooms {
		r.post(func() { r.destroy("shutdown") })
	}
	for _, r := range rooms {
		select {
		case <-r.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Manager) normalizeNickname(raw string) (string, error) {
	nickname := strings.TrimSpace(raw)
	if nickname == "" || len([]rune(nickname)) > m.cfg.MaxNicknameLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidNickname, raw)
	}
	for _, r := range nickname {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: %q", ErrInvalidNickname, raw)
		}
	}
	return nickname, nil
}

func validRoomID(id string) bool {
	if id == "" || len(id) > maxRoomIDLength {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '/' {
			return false
		}
	}
	return true
}
