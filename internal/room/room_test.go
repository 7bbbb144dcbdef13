package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"blockroom/internal/board"
	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/rules"
	"blockroom/logging"
	"blockroom/logging/gameplay"
	"blockroom/logging/lifecycle"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []func()
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t.f)
		}
	}
	c.mu.Unlock()
	for _, f := range due {
		f()
	}
}

func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type recorder struct {
	mu       sync.Mutex
	messages []proto.Message
}

func (r *recorder) Deliver(msg proto.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *recorder) all() []proto.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]proto.Message(nil), r.messages...)
}

func (r *recorder) last() proto.Message {
	msgs := r.all()
	if len(msgs) == 0 {
		return proto.Message{}
	}
	return msgs[len(msgs)-1]
}

func (r *recorder) ofEvent(event string) []proto.Message {
	var out []proto.Message
	for _, msg := range r.all() {
		if msg.Event() == event {
			out = append(out, msg)
		}
	}
	return out
}

type harness struct {
	t       *testing.T
	manager *Manager
	clock   *fakeClock
	events  []logging.Event
	mu      sync.Mutex
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{t: t, clock: newFakeClock()}
	pub := logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.events = append(h.events, event)
	})
	h.manager = NewManager(cfg, Deps{Clock: h.clock, Publisher: pub})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = h.manager.Close(ctx)
	})
	return h
}

func (h *harness) logged(t logging.EventType) []logging.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []logging.Event
	for _, event := range h.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}

func (h *harness) join(roomID, nickname string) *recorder {
	h.t.Helper()
	rec := &recorder{}
	if _, err := h.manager.Join(context.Background(), roomID, nickname, rec); err != nil {
		h.t.Fatalf("join %s: %v", nickname, err)
	}
	return rec
}

// settle waits until the room has processed everything queued so far.
func (h *harness) settle(roomID string) {
	h.t.Helper()
	err := h.manager.withRoom(context.Background(), roomID, func(*Room) error { return nil })
	if err != nil && !errors.Is(err, ErrRoomNotFound) {
		h.t.Fatalf("settle: %v", err)
	}
}

func (h *harness) start(roomID, owner string, others ...string) {
	h.t.Helper()
	ctx := context.Background()
	for _, nickname := range others {
		if err := h.manager.Ready(ctx, roomID, nickname); err != nil {
			h.t.Fatalf("ready %s: %v", nickname, err)
		}
	}
	if err := h.manager.StartGame(ctx, roomID, owner); err != nil {
		h.t.Fatalf("start: %v", err)
	}
}

func (h *harness) intent(roomID, nickname string, action player.Action, dir int) player.Outcome {
	h.t.Helper()
	out, err := h.manager.ApplyIntent(context.Background(), roomID, nickname, player.Intent{Action: action, Dir: dir})
	if err != nil {
		h.t.Fatalf("%s %s: %v", nickname, action, err)
	}
	return out
}

func sequenceOf(shapes ...board.Shape) func(int64) board.Randomizer {
	return func(int64) board.Randomizer {
		return &board.Sequence{Shapes: shapes}
	}
}

// tinyRules is a 4-column board with two visible rows: one O piece lands
// on the floor and the next one tops out.
func tinyRules(lives, target int) rules.Config {
	return rules.Config{
		VisibleRows:  2,
		Cols:         4,
		HiddenRows:   2,
		HeartLives:   lives,
		SprintTarget: target,
	}.Normalized()
}

func TestReadyThenStart(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	ana := h.join("r1", "ana")
	bo := h.join("r1", "bo")

	if err := h.manager.StartGame(ctx, "r1", "ana"); !errors.Is(err, ErrPlayersNotReady) {
		t.Fatalf("expected ErrPlayersNotReady, got %v", err)
	}
	if err := h.manager.StartGame(ctx, "r1", "bo"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := h.manager.Ready(ctx, "r1", "bo"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if got := ana.ofEvent(proto.EventPlayerReady); len(got) != 1 {
		t.Fatalf("expected player-ready broadcast, got %d", len(got))
	}
	if err := h.manager.StartGame(ctx, "r1", "ana"); err != nil {
		t.Fatalf("start: %v", err)
	}

	started := bo.last()
	payload, ok := started.Payload.(proto.GameStarted)
	if !ok {
		t.Fatalf("expected game-start-broadcast, got %s", started.Event())
	}
	if !payload.Room.Started || payload.Room.Owner != "ana" {
		t.Fatalf("unexpected snapshot %+v", payload.Room)
	}
	for _, p := range payload.Room.Players {
		if p.Status != string(player.StatusPlaying) || p.Piece == nil {
			t.Fatalf("player %s not playing: %+v", p.Nickname, p)
		}
	}
	if err := h.manager.Ready(ctx, "r1", "bo"); err == nil {
		t.Fatalf("ready during a round should fail")
	}
	if len(h.logged(gameplay.EventRoundStarted)) != 1 {
		t.Fatalf("expected round start to be logged")
	}
}

func TestWallMoveIsEchoedToEveryone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Randomizer = sequenceOf(board.ShapeO)
	h := newHarness(t, cfg)
	ana := h.join("r1", "ana")
	bo := h.join("r1", "bo")
	h.start("r1", "ana", "bo")

	for i := 0; i < 4; i++ {
		if out := h.intent("r1", "ana", player.ActionMove, -1); !out.Accepted {
			t.Fatalf("move %d rejected", i)
		}
	}
	if out := h.intent("r1", "ana", player.ActionMove, -1); out.Accepted {
		t.Fatalf("move into the wall should be rejected")
	}

	for _, rec := range []*recorder{ana, bo} {
		msg := rec.last()
		delta, ok := msg.Payload.(proto.PlayerDelta)
		if !ok || msg.Event() != proto.EventMove {
			t.Fatalf("expected player-move, got %s", msg.Event())
		}
		if delta.Accepted || delta.Player.Piece == nil || delta.Player.Piece.Col != 0 {
			t.Fatalf("unexpected echo %+v", delta)
		}
	}
	if ana.last().Seq != bo.last().Seq {
		t.Fatalf("members saw different sequences")
	}
}

func TestHeartLastLifeEliminatesAndEndsRound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = tinyRules(1, 40)
	cfg.Randomizer = sequenceOf(board.ShapeO)
	h := newHarness(t, cfg)
	ctx := context.Background()
	ana := h.join("r1", "ana")
	h.join("r1", "bo")
	if err := h.manager.SetMode(ctx, "r1", "ana", string(rules.ModeHeart)); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	h.start("r1", "ana", "bo")

	h.intent("r1", "ana", player.ActionHardDrop, 0)
	out := h.intent("r1", "ana", player.ActionHardDrop, 0)
	if !out.ToppedOut || !out.LifeLost {
		t.Fatalf("expected top-out with life loss, got %+v", out)
	}

	drops := ana.ofEvent(proto.EventDrop)
	final := drops[len(drops)-1].Payload.(proto.PlayerDelta)
	if final.Player.Status != string(player.StatusOut) || final.Player.Lives != 0 {
		t.Fatalf("expected ana out, got %+v", final.Player)
	}

	ends := ana.ofEvent(proto.EventRoundEnd)
	if len(ends) != 1 {
		t.Fatalf("expected round-end, got %d", len(ends))
	}
	end := ends[0].Payload.(proto.RoundEnd)
	if end.Winner != "bo" || end.Reason != proto.RoundEndLastStanding || end.Room.Started {
		t.Fatalf("unexpected round end %+v", end)
	}
	for _, p := range end.Room.Players {
		if p.Status != string(player.StatusWaiting) {
			t.Fatalf("%s not re-armed: %s", p.Nickname, p.Status)
		}
	}
	if n := h.clock.Pending(); n != 0 {
		t.Fatalf("expected drop timers canceled, %d pending", n)
	}
	if len(h.logged(gameplay.EventLifeLost)) != 1 {
		t.Fatalf("expected life loss to be logged")
	}
}

func TestSprintTargetWins(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = tinyRules(3, 1)
	cfg.Randomizer = sequenceOf(board.ShapeI)
	h := newHarness(t, cfg)
	ctx := context.Background()
	h.join("r1", "ana")
	bo := h.join("r1", "bo")
	if err := h.manager.SetMode(ctx, "r1", "ana", string(rules.ModeSprint)); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	h.start("r1", "ana", "bo")

	out := h.intent("r1", "bo", player.ActionHardDrop, 0)
	if !out.ReachedTarget || out.LinesCleared != 1 {
		t.Fatalf("expected sprint target, got %+v", out)
	}
	end, ok := bo.last().Payload.(proto.RoundEnd)
	if !ok {
		t.Fatalf("expected round-end, got %s", bo.last().Event())
	}
	if end.Winner != "bo" || end.Reason != proto.RoundEndTarget {
		t.Fatalf("unexpected round end %+v", end)
	}
	if end.Standings[0].Nickname != "bo" || end.Standings[0].Rows != 1 {
		t.Fatalf("winner should lead standings: %+v", end.Standings)
	}
	desc, _ := h.manager.Lookup("r1")
	if desc.Started {
		t.Fatalf("room should no longer be started")
	}
}

func TestDisconnectLeavesLastPlayerWinner(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ana := h.join("r1", "ana")
	h.join("r1", "bo")
	h.start("r1", "ana", "bo")

	if err := h.manager.Disconnect(context.Background(), "r1", "bo"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	out := ana.ofEvent(proto.EventPlayerOut)
	if len(out) != 1 || out[0].Payload.(proto.PlayerOut).Reason != "disconnect" {
		t.Fatalf("expected player-out, got %+v", out)
	}
	end, ok := ana.last().Payload.(proto.RoundEnd)
	if !ok || end.Winner != "ana" {
		t.Fatalf("expected ana to win, got %+v", ana.last())
	}
}

func TestOwnershipPassesInJoinOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	names := []string{"ana", "bo", "cy", "di"}
	for _, name := range names {
		h.join("r1", name)
	}
	for i, name := range names[:3] {
		if err := h.manager.Leave(ctx, "r1", name); err != nil {
			t.Fatalf("leave %s: %v", name, err)
		}
		desc, ok := h.manager.Lookup("r1")
		if !ok || desc.Owner != names[i+1] {
			t.Fatalf("after %s left expected owner %s, got %+v", name, names[i+1], desc)
		}
	}
	if len(h.logged(lifecycle.EventOwnerTransferred)) != 3 {
		t.Fatalf("expected three ownership transfers")
	}
	if err := h.manager.Leave(ctx, "r1", "di"); err != nil {
		t.Fatalf("last leave: %v", err)
	}
	if _, ok := h.manager.Lookup("r1"); ok {
		t.Fatalf("empty room should be reclaimed")
	}
	if stats := h.manager.Stats(); stats.Rooms != 0 || stats.Players != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestJoinRejections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPlayers = 2
	h := newHarness(t, cfg)
	ctx := context.Background()
	h.join("r1", "ana")

	cases := []struct {
		name     string
		room     string
		nickname string
		want     error
	}{
		{"taken", "r1", "ana", ErrNicknameTaken},
		{"blank", "r1", "  ", ErrInvalidNickname},
		{"too long", "r1", "abcdefghijklmnopq", ErrInvalidNickname},
		{"no room", "", "bo", ErrInvalidRoomID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := h.manager.Join(ctx, tc.room, tc.nickname, &recorder{}); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	h.join("r1", "bo")
	if _, err := h.manager.Join(ctx, "r1", "cy", &recorder{}); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("expected ErrRoomFull, got %v", err)
	}
	if err := h.manager.CanJoin("r1", "cy"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("CanJoin: expected ErrRoomFull, got %v", err)
	}
	h.start("r1", "ana", "bo")
	if err := h.manager.Leave(ctx, "r1", "bo"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := h.manager.StartGame(ctx, "r1", "ana"); err != nil {
		t.Fatalf("restart solo: %v", err)
	}
	if _, err := h.manager.Join(ctx, "r1", "cy", &recorder{}); !errors.Is(err, ErrRoomStarted) {
		t.Fatalf("expected ErrRoomStarted, got %v", err)
	}
	if _, ok := h.manager.Lookup("r1"); !ok {
		t.Fatalf("rejected joins must not destroy the room")
	}
}

func TestJoinWithoutCreateOnJoin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CreateOnJoin = false
	h := newHarness(t, cfg)
	ctx := context.Background()
	if _, err := h.manager.Join(ctx, "nowhere", "ana", &recorder{}); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("expected ErrRoomNotFound, got %v", err)
	}
	desc, err := h.manager.CreateRoom(ctx, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if desc.ID == "" {
		t.Fatalf("expected generated id")
	}
	if _, err := h.manager.CreateRoom(ctx, desc.ID); !errors.Is(err, ErrRoomExists) {
		t.Fatalf("expected ErrRoomExists, got %v", err)
	}
	h.join(desc.ID, "ana")
}

func TestReservationExpires(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReservationTTL = time.Minute
	h := newHarness(t, cfg)
	ctx := context.Background()

	idle, err := h.manager.CreateRoom(ctx, "idle")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	used, err := h.manager.CreateRoom(ctx, "used")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h.join(used.ID, "ana")

	h.clock.Advance(time.Minute)
	h.settle(idle.ID)
	h.settle(used.ID)

	if _, ok := h.manager.Lookup(idle.ID); ok {
		t.Fatalf("idle reservation should expire")
	}
	if _, ok := h.manager.Lookup(used.ID); !ok {
		t.Fatalf("joined room must survive")
	}
}

func TestModeChanges(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()
	ana := h.join("r1", "ana")
	h.join("r1", "bo")

	if err := h.manager.SetMode(ctx, "r1", "bo", "heart"); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := h.manager.SetMode(ctx, "r1", "ana", "zen"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
	if err := h.manager.SetMode(ctx, "r1", "ana", ""); err != nil {
		t.Fatalf("cycle mode: %v", err)
	}
	changed := ana.last().Payload.(proto.ModeChanged)
	if changed.Mode != string(rules.ModeHeart) {
		t.Fatalf("expected heart after cycling, got %s", changed.Mode)
	}
	h.start("r1", "ana", "bo")
	if err := h.manager.SetMode(ctx, "r1", "ana", "sprint"); !errors.Is(err, ErrRoomStarted) {
		t.Fatalf("expected ErrRoomStarted, got %v", err)
	}
}

func TestGravityTicksAndStaleTimers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Randomizer = sequenceOf(board.ShapeT)
	h := newHarness(t, cfg)
	ana := h.join("r1", "ana")
	h.start("r1", "ana")

	interval := cfg.Rules.Normalized().DropInterval(rules.ModeStandard, 0)
	h.clock.Advance(interval)
	h.settle("r1")

	drops := ana.ofEvent(proto.EventDrop)
	if len(drops) != 1 {
		t.Fatalf("expected one gravity drop, got %d", len(drops))
	}
	delta := drops[0].Payload.(proto.PlayerDelta)
	if delta.Action != proto.ActionGravity || delta.Player.Piece.Row != 1 {
		t.Fatalf("unexpected gravity delta %+v", delta)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("gravity must re-arm exactly one timer, got %d", h.clock.Pending())
	}

	if err := h.manager.Leave(context.Background(), "r1", "ana"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("leave must cancel the drop timer")
	}
}

func TestLevelUpResetsDropTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = tinyRules(3, 40)
	cfg.Rules.Board.RowsPerLevel = 1
	cfg.Randomizer = sequenceOf(board.ShapeI)
	h := newHarness(t, cfg)
	ana := h.join("r1", "ana")
	h.start("r1", "ana")

	slow := cfg.Rules.DropInterval(rules.ModeStandard, 0)
	fast := cfg.Rules.DropInterval(rules.ModeStandard, 1)
	if fast >= slow {
		t.Fatalf("level 1 should fall faster: %v vs %v", fast, slow)
	}

	out := h.intent("r1", "ana", player.ActionHardDrop, 0)
	if out.LinesCleared != 1 || !out.IntervalChanged {
		t.Fatalf("expected a level-up clear, got %+v", out)
	}
	if h.clock.Pending() != 1 {
		t.Fatalf("interval change must replace the timer, got %d pending", h.clock.Pending())
	}
	delta := ana.last().Payload.(proto.PlayerDelta)
	if delta.Player.Level != 1 || delta.Player.DropIntervalMs != fast.Milliseconds() {
		t.Fatalf("unexpected delta %+v", delta.Player)
	}

	h.clock.Advance(fast - time.Millisecond)
	h.settle("r1")
	if drops := ana.ofEvent(proto.EventDrop); len(drops) != 1 {
		t.Fatalf("no gravity expected before the new interval, got %d drops", len(drops)-1)
	}
	h.clock.Advance(time.Millisecond)
	h.settle("r1")
	drops := ana.ofEvent(proto.EventDrop)
	if len(drops) != 2 || drops[1].Payload.(proto.PlayerDelta).Action != proto.ActionGravity {
		t.Fatalf("expected one gravity drop at the new interval, got %d drops", len(drops)-1)
	}

	h.clock.Advance(slow)
	h.settle("r1")
	if h.clock.Pending() != 1 {
		t.Fatalf("timers must not stack, got %d pending", h.clock.Pending())
	}
}

func TestChatReachesSender(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ana := h.join("r1", "ana")
	bo := h.join("r1", "bo")
	if err := h.manager.Chat(context.Background(), "r1", "ana", "gl hf"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	for _, rec := range []*recorder{ana, bo} {
		msg, ok := rec.last().Payload.(proto.ChatMessage)
		if !ok || msg.Data != "gl hf" || msg.Nickname != "ana" || msg.RoomID != "r1" {
			t.Fatalf("unexpected chat %+v", rec.last())
		}
	}
	if err := h.manager.Chat(context.Background(), "r1", "zed", "hi"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestBroadcastSequenceIsContiguous(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ana := h.join("r1", "ana")
	h.join("r1", "bo")
	h.start("r1", "ana", "bo")
	h.intent("r1", "bo", player.ActionRotate, 1)
	h.intent("r1", "ana", player.ActionDrop, 0)

	msgs := ana.all()
	for i, msg := range msgs {
		if msg.Seq != uint64(i+1) {
			t.Fatalf("message %d (%s) has seq %d", i, msg.Event(), msg.Seq)
		}
	}
}

func TestRejectReason(t *testing.T) {
	cases := map[error]string{
		ErrNotOwner:              proto.RejectNotOwner,
		ErrPlayersNotReady:       proto.RejectPlayersNotReady,
		player.ErrNotPlaying:     proto.RejectNotPlaying,
		player.ErrModeDisallowed: proto.RejectModeDisallowed,
		errors.New("boom"):       proto.RejectInternal,
		errRoomClosed:            proto.RejectRoomNotFound,
		ErrNicknameTaken:         proto.RejectNicknameTaken,
		player.ErrRoundStarted:   proto.RejectRoomStarted,
		ErrNotMember:             proto.RejectNotJoined,
		ErrInvalidMode:           proto.RejectInvalidMode,
		ErrRoomFull:              proto.RejectRoomFull,
		ErrInvalidNickname:       proto.RejectInvalidNickname,
		player.ErrNotWaiting:     proto.RejectNotWaiting,
		ErrRoomStarted:           proto.RejectRoomStarted,
		ErrRoomNotFound:          proto.RejectRoomNotFound,
	}
	for err, want := range cases {
		if got := RejectReason(err); got != want {
			t.Fatalf("%v: got %s want %s", err, got, want)
		}
	}
}
