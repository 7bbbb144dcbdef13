package room

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"blockroom/internal/board"
	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/rules"
	"blockroom/internal/telemetry"
	"blockroom/logging"
	"blockroom/logging/gameplay"
	"blockroom/logging/lifecycle"
)

// Sink receives the messages broadcast to a member. Deliver must not block
// the room; implementations queue or drop.
type Sink interface {
	Deliver(msg proto.Message)
}

type SinkFunc func(msg proto.Message)

func (f SinkFunc) Deliver(msg proto.Message) {
	if f != nil {
		f(msg)
	}
}

type member struct {
	player *player.Player
	sink   Sink
	timer  Timer
	// gen invalidates drop ticks scheduled before the last re-arm.
	gen uint64
}

type published struct {
	desc  Descriptor
	state proto.RoomState
}

// Room is a single-goroutine actor. Every field below the mailbox is owned
// by that goroutine; other goroutines read the published snapshot.
type Room struct {
	id      string
	cfg     Config
	clock   Clock
	engine  *board.Engine
	pub     logging.Publisher
	metrics telemetry.Metrics
	logger  telemetry.Logger
	ctx     context.Context

	nextSeed  func() int64
	onPlayers func(delta int)
	onClose   func(*Room)

	mailbox chan func()
	done    chan struct{}

	owner       string
	mode        rules.Mode
	started     bool
	roundSize   int
	seq         uint64
	members     []*member
	reservation Timer
	closed      bool

	view atomic.Pointer[published]
}

func (r *Room) ID() string { return r.id }

// Descriptor returns the last published summary.
func (r *Room) Descriptor() Descriptor {
	return r.view.Load().desc
}

// State returns the last published full snapshot.
func (r *Room) State() proto.RoomState {
	return r.view.Load().state
}

func (r *Room) run() {
	for {
		select {
		case <-r.done:
			return
		case fn := <-r.mailbox:
			fn()
			if r.closed {
				close(r.done)
				return
			}
		}
	}
}

// do runs fn on the room goroutine and waits for its result.
func (r *Room) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	task := func() {
		err := fn()
		r.refresh()
		result <- err
	}
	select {
	case r.mailbox <- task:
	case <-r.done:
		return errRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-r.done:
		select {
		case err := <-result:
			return err
		default:
			return errRoomClosed
		}
	}
}

// post enqueues fn without waiting. It is used by timer callbacks.
func (r *Room) post(fn func()) {
	task := func() {
		fn()
		r.refresh()
	}
	select {
	case r.mailbox <- task:
	case <-r.done:
	}
}

func (r *Room) refresh() {
	desc := Descriptor{
		ID:         r.id,
		Owner:      r.owner,
		Mode:       r.mode,
		Started:    r.started,
		Players:    make([]string, 0, len(r.members)),
		MaxPlayers: r.cfg.MaxPlayers,
	}
	for _, m := range r.members {
		desc.Players = append(desc.Players, m.player.Nickname())
	}
	r.view.Store(&published{desc: desc, state: r.state()})
}

func (r *Room) state() proto.RoomState {
	state := proto.RoomState{
		ID:      r.id,
		Owner:   r.owner,
		Mode:    string(r.mode),
		Started: r.started,
		Players: make([]proto.PlayerState, 0, len(r.members)),
	}
	for _, m := range r.members {
		state.Players = append(state.Players, PlayerState(m.player.View()))
	}
	return state
}

func (r *Room) member(nickname string) *member {
	for _, m := range r.members {
		if m.player.Nickname() == nickname {
			return m
		}
	}
	return nil
}

func (r *Room) requireMember(nickname string) (*member, error) {
	m := r.member(nickname)
	if m == nil {
		return nil, fmt.Errorf("%w: %q in %s", ErrNotMember, nickname, r.id)
	}
	return m, nil
}

func (r *Room) broadcast(payload proto.Broadcast) uint64 {
	r.seq++
	msg := proto.Message{Seq: r.seq, Payload: payload}
	for _, m := range r.members {
		if m.sink != nil {
			m.sink.Deliver(msg)
		}
	}
	r.metrics.Add(telemetry.MetricBroadcastsTotal, 1)
	return r.seq
}

func (r *Room) join(nickname string, sink Sink) (Descriptor, error) {
	if r.started {
		return Descriptor{}, ErrRoomStarted
	}
	if r.member(nickname) != nil {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNicknameTaken, nickname)
	}
	if len(r.members) >= r.cfg.MaxPlayers {
		return Descriptor{}, fmt.Errorf("%w: %d players", ErrRoomFull, len(r.members))
	}

	p := player.New(nickname, r.cfg.Rules, r.engine, r.cfg.Randomizer(r.nextSeed()))
	r.members = append(r.members, &member{player: p, sink: sink})
	if r.owner == "" {
		r.owner = nickname
	}
	if r.reservation != nil {
		r.reservation.Stop()
		r.reservation = nil
	}
	r.onPlayers(1)

	seq := r.broadcast(proto.Joined{Nickname: nickname, Room: r.state()})
	lifecycle.PlayerJoined(r.ctx, r.pub, r.id, seq, logging.PlayerRef(nickname), lifecycle.PlayerJoinedPayload{
		Owner:   r.owner == nickname,
		Players: len(r.members),
	}, nil)

	r.refresh()
	return r.Descriptor(), nil
}

func (r *Room) setMode(requester, raw string) error {
	if _, err := r.requireMember(requester); err != nil {
		return err
	}
	if requester != r.owner {
		return ErrNotOwner
	}
	if r.started {
		return ErrRoomStarted
	}
	mode := r.mode.Next()
	if raw != "" {
		parsed, ok := rules.ParseMode(raw)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidMode, raw)
		}
		mode = parsed
	}
	r.mode = mode
	r.broadcast(proto.ModeChanged{Mode: string(mode)})
	return nil
}

func (r *Room) ready(nickname string) error {
	m, err := r.requireMember(nickname)
	if err != nil {
		return err
	}
	if err := m.player.MarkReady(r.started); err != nil {
		return err
	}
	r.broadcast(proto.PlayerReady{Nickname: nickname})
	return nil
}

func (r *Room) startGame(requester string) error {
	owner, err := r.requireMember(requester)
	if err != nil {
		return err
	}
	if requester != r.owner {
		return ErrNotOwner
	}
	if r.started {
		return ErrRoomStarted
	}
	for _, m := range r.members {
		if m != owner && m.player.Status() != player.StatusReady {
			return fmt.Errorf("%w: %s is %s", ErrPlayersNotReady, m.player.Nickname(), m.player.Status())
		}
	}
	if owner.player.Status() == player.StatusWaiting {
		if err := owner.player.MarkReady(false); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		if err := m.player.Start(r.mode); err != nil {
			return fmt.Errorf("start %s: %w", m.player.Nickname(), err)
		}
		names = append(names, m.player.Nickname())
	}
	r.started = true
	r.roundSize = len(r.members)

	seq := r.broadcast(proto.GameStarted{Room: r.state()})
	for _, m := range r.members {
		r.arm(m)
	}
	gameplay.RoundStarted(r.ctx, r.pub, r.id, seq, logging.PlayerRef(requester), gameplay.RoundStartedPayload{
		Mode:    string(r.mode),
		Players: names,
	}, nil)
	return nil
}

func (r *Room) applyIntent(nickname string, intent player.Intent) (player.Outcome, error) {
	m, err := r.requireMember(nickname)
	if err != nil {
		return player.Outcome{}, err
	}
	return r.apply(m, intent)
}

func (r *Room) apply(m *member, intent player.Intent) (player.Outcome, error) {
	out, err := m.player.Apply(intent)
	if err != nil {
		return out, err
	}

	nickname := m.player.Nickname()
	view := m.player.View()
	seq := r.broadcast(proto.PlayerDelta{
		Action:       string(intent.Action),
		Accepted:     out.Accepted,
		LinesCleared: out.LinesCleared,
		Player:       PlayerState(view),
	})

	actor := logging.PlayerRef(nickname)
	if out.LinesCleared > 0 {
		gameplay.LinesCleared(r.ctx, r.pub, r.id, seq, actor, gameplay.LinesClearedPayload{
			Lines: out.LinesCleared,
			Score: view.Progress.Score,
			Level: view.Progress.Level,
		}, nil)
	}
	if out.ToppedOut {
		gameplay.TopOut(r.ctx, r.pub, r.id, seq, actor, gameplay.TopOutPayload{Status: string(view.Status)}, nil)
	}
	if out.LifeLost {
		gameplay.LifeLost(r.ctx, r.pub, r.id, seq, actor, gameplay.LifeLostPayload{
			Remaining: view.Lives,
			Voluntary: intent.Action == player.ActionReset,
		}, nil)
	}

	switch {
	case !m.player.Alive():
		r.disarm(m)
	case intent.Action == player.ActionGravity || out.IntervalChanged:
		r.arm(m)
	}

	if out.ReachedTarget {
		r.endRound(nickname, proto.RoundEndTarget)
	} else if out.StatusChanged {
		r.evaluate()
	}
	return out, nil
}

func (r *Room) chat(nickname, text string) error {
	if _, err := r.requireMember(nickname); err != nil {
		return err
	}
	r.broadcast(proto.ChatMessage{RoomID: r.id, Nickname: nickname, Data: text})
	return nil
}

func (r *Room) leave(nickname, reason string) error {
	m, err := r.requireMember(nickname)
	if err != nil {
		return err
	}
	r.disarm(m)
	m.player.Disconnect()
	for i, candidate := range r.members {
		if candidate == m {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	r.onPlayers(-1)

	if len(r.members) == 0 {
		lifecycle.PlayerLeft(r.ctx, r.pub, r.id, r.seq, logging.PlayerRef(nickname), lifecycle.PlayerLeftPayload{Reason: reason}, nil)
		r.destroy("empty")
		return nil
	}
	if r.owner == nickname {
		r.owner = r.members[0].player.Nickname()
		lifecycle.OwnerTransferred(r.ctx, r.pub, r.id, lifecycle.OwnerTransferredPayload{From: nickname, To: r.owner}, nil)
	}
	seq := r.broadcast(proto.PlayerOut{Nickname: nickname, Owner: r.owner, Reason: reason})
	lifecycle.PlayerLeft(r.ctx, r.pub, r.id, seq, logging.PlayerRef(nickname), lifecycle.PlayerLeftPayload{
		Reason:  reason,
		Players: len(r.members),
	}, nil)
	r.evaluate()
	return nil
}

// evaluate ends the round once its outcome is decided. A round that began
// with several players ends when at most one is still playing; a solo
// round ends when its player is out.
func (r *Room) evaluate() {
	if !r.started {
		return
	}
	var alive []string
	for _, m := range r.members {
		if m.player.Alive() {
			alive = append(alive, m.player.Nickname())
		}
	}
	switch {
	case r.roundSize >= 2 && len(alive) == 1:
		r.endRound(alive[0], proto.RoundEndLastStanding)
	case len(alive) == 0:
		r.endRound("", proto.RoundEndNoSurvivors)
	}
}

func (r *Room) endRound(winner, reason string) {
	standings := make([]proto.Standing, 0, len(r.members))
	for _, m := range r.members {
		standings = append(standings, standing(m.player.View()))
	}
	sort.SliceStable(standings, func(i, j int) bool {
		if (standings[i].Nickname == winner) != (standings[j].Nickname == winner) {
			return standings[i].Nickname == winner
		}
		return standings[i].Score > standings[j].Score
	})

	mode := r.mode
	r.started = false
	r.roundSize = 0
	for _, m := range r.members {
		r.disarm(m)
		m.player.Rearm()
	}

	seq := r.broadcast(proto.RoundEnd{
		Winner:    winner,
		Reason:    reason,
		Standings: standings,
		Room:      r.state(),
	})
	gameplay.RoundEnded(r.ctx, r.pub, r.id, seq, gameplay.RoundEndedPayload{
		Mode:   string(mode),
		Winner: winner,
		Reason: reason,
	}, nil)
}

// arm schedules the next gravity drop for m, replacing any pending one.
func (r *Room) arm(m *member) {
	r.disarm(m)
	if !m.player.Alive() {
		return
	}
	interval := m.player.DropInterval()
	if interval <= 0 {
		return
	}
	gen := m.gen
	nickname := m.player.Nickname()
	m.timer = r.clock.AfterFunc(interval, func() {
		r.post(func() { r.tick(nickname, gen) })
	})
}

func (r *Room) disarm(m *member) {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
}

func (r *Room) tick(nickname string, gen uint64) {
	m := r.member(nickname)
	if m == nil || m.gen != gen || !r.started {
		return
	}
	m.timer = nil
	if _, err := r.apply(m, player.Intent{Action: player.ActionGravity}); err != nil {
		r.logger.Printf("room %s: drop for %s: %v", r.id, nickname, err)
	}
}

func (r *Room) expireReservation() {
	r.reservation = nil
	if len(r.members) == 0 {
		r.destroy("reservation_expired")
	}
}

// destroy marks the room closed; the run loop exits after the current task.
func (r *Room) destroy(reason string) {
	if r.closed {
		return
	}
	r.closed = true
	if r.reservation != nil {
		r.reservation.Stop()
		r.reservation = nil
	}
	for _, m := range r.members {
		r.disarm(m)
	}
	if len(r.members) > 0 {
		r.onPlayers(-len(r.members))
	}
	r.onClose(r)
	lifecycle.RoomDestroyed(r.ctx, r.pub, r.id, lifecycle.RoomDestroyedPayload{Reason: reason}, nil)
}
