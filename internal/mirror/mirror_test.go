package mirror_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"blockroom/internal/mirror"
	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/room"
)

type feed struct {
	mu   sync.Mutex
	msgs []proto.Message
}

func (f *feed) Deliver(msg proto.Message) {
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
}

// drain folds every delivered message into state.
func (f *feed) drain(t *testing.T, state mirror.State) mirror.State {
	t.Helper()
	f.mu.Lock()
	msgs := f.msgs
	f.msgs = nil
	f.mu.Unlock()
	for _, msg := range msgs {
		next, err := mirror.Apply(state, msg)
		if err != nil {
			t.Fatalf("apply %s seq=%d: %v", msg.Event(), msg.Seq, err)
		}
		state = next
	}
	return state
}

func newManager() *room.Manager {
	cfg := room.DefaultConfig()
	cfg.Rules.BaseInterval = time.Hour
	cfg.Rules.MinInterval = time.Hour
	cfg.Rules.SprintMinInterval = time.Hour
	return room.NewManager(cfg, room.Deps{})
}

func TestMirrorTracksServerSnapshot(t *testing.T) {
	ctx := context.Background()
	manager := newManager()
	t.Cleanup(func() { manager.Close(ctx) })

	anaFeed, boFeed := &feed{}, &feed{}
	ana := mirror.State{Nickname: "ana"}
	bo := mirror.State{Nickname: "bo"}

	if _, err := manager.Join(ctx, "r1", "ana", anaFeed); err != nil {
		t.Fatalf("join ana: %v", err)
	}
	if _, err := manager.Join(ctx, "r1", "bo", boFeed); err != nil {
		t.Fatalf("join bo: %v", err)
	}

	check := func(step string) {
		t.Helper()
		ana = anaFeed.drain(t, ana)
		bo = boFeed.drain(t, bo)
		want, ok := manager.Snapshot("r1")
		if !ok {
			t.Fatalf("%s: room missing", step)
		}
		if !reflect.DeepEqual(ana.Room, want) {
			t.Fatalf("%s: ana mirror diverged\n got %+v\nwant %+v", step, ana.Room, want)
		}
		if !reflect.DeepEqual(bo.Room, want) {
			t.Fatalf("%s: bo mirror diverged\n got %+v\nwant %+v", step, bo.Room, want)
		}
	}

	check("joined")
	if err := manager.SetMode(ctx, "r1", "ana", "heart"); err != nil {
		t.Fatalf("set mode: %v", err)
	}
	if err := manager.Ready(ctx, "r1", "bo"); err != nil {
		t.Fatalf("ready: %v", err)
	}
	check("lobby")
	if !ana.IsOwner() || bo.IsOwner() {
		t.Fatalf("expected ana to own the room")
	}

	if err := manager.StartGame(ctx, "r1", "ana"); err != nil {
		t.Fatalf("start: %v", err)
	}
	steps := []player.Intent{
		{Action: player.ActionMove, Dir: -1},
		{Action: player.ActionRotate, Dir: 1},
		{Action: player.ActionDrop},
		{Action: player.ActionHardDrop},
		{Action: player.ActionMove, Dir: 1},
	}
	for _, intent := range steps {
		if _, err := manager.ApplyIntent(ctx, "r1", "ana", intent); err != nil {
			t.Fatalf("%s: %v", intent.Action, err)
		}
	}
	if err := manager.Chat(ctx, "r1", "bo", "gl"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	check("playing")
	if len(ana.Chat) != 1 || ana.Chat[0].Data != "gl" {
		t.Fatalf("expected chat line in mirror, got %+v", ana.Chat)
	}

	if err := manager.Leave(ctx, "r1", "ana"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	bo = boFeed.drain(t, bo)
	want, _ := manager.Snapshot("r1")
	if !reflect.DeepEqual(bo.Room, want) {
		t.Fatalf("after leave: got %+v want %+v", bo.Room, want)
	}
	if !bo.IsOwner() {
		t.Fatalf("expected ownership to pass to bo")
	}
	if bo.LastRound == nil || bo.LastRound.Winner != "bo" {
		t.Fatalf("expected bo to win the round, got %+v", bo.LastRound)
	}
}

func TestApplyRejectsGapsAndReplays(t *testing.T) {
	state := mirror.State{Nickname: "ana"}
	joined := proto.Message{Seq: 4, Payload: proto.Joined{
		Nickname: "ana",
		Room:     proto.RoomState{ID: "r1", Owner: "ana", Mode: "standard"},
	}}
	state, err := mirror.Apply(state, joined)
	if err != nil {
		t.Fatalf("baseline: %v", err)
	}
	if state.Seq != 4 || !state.Synced() {
		t.Fatalf("expected baseline at seq 4, got %+v", state)
	}

	if _, err := mirror.Apply(state, proto.Message{Seq: 6, Payload: proto.ModeChanged{Mode: "heart"}}); !errors.Is(err, mirror.ErrSequenceGap) {
		t.Fatalf("expected gap error, got %v", err)
	}
	if _, err := mirror.Apply(state, proto.Message{Seq: 4, Payload: proto.ModeChanged{Mode: "heart"}}); !errors.Is(err, mirror.ErrSequenceGap) {
		t.Fatalf("expected replay error, got %v", err)
	}

	next, err := mirror.Apply(state, proto.Message{Seq: 5, Payload: proto.ModeChanged{Mode: "heart"}})
	if err != nil {
		t.Fatalf("in-order apply: %v", err)
	}
	if next.Room.Mode != "heart" || state.Room.Mode != "standard" {
		t.Fatalf("apply must not mutate its input: before %q after %q", state.Room.Mode, next.Room.Mode)
	}
}

func TestApplyBeforeSnapshot(t *testing.T) {
	state := mirror.State{Nickname: "ana"}
	if _, err := mirror.Apply(state, proto.Message{Seq: 1, Payload: proto.PlayerReady{Nickname: "bo"}}); !errors.Is(err, mirror.ErrNotSynced) {
		t.Fatalf("expected ErrNotSynced, got %v", err)
	}
	if _, err := mirror.Apply(state, proto.Message{Seq: 2, Payload: proto.Joined{Nickname: "bo"}}); !errors.Is(err, mirror.ErrNotSynced) {
		t.Fatalf("another player's join must not seed the mirror, got %v", err)
	}
}

func TestRejectionsLeaveSequenceAlone(t *testing.T) {
	state := mirror.State{Nickname: "ana", Seq: 3}
	next, err := mirror.Apply(state, proto.Rejected(proto.EventStartGame, proto.RejectNotOwner))
	if err != nil {
		t.Fatalf("apply rejection: %v", err)
	}
	if next.Seq != 3 || next.Rejected == nil || next.Rejected.Reason != proto.RejectNotOwner {
		t.Fatalf("unexpected state %+v", next)
	}
}

func TestResetKeepsNickname(t *testing.T) {
	state := mirror.State{Nickname: "ana", Seq: 9, Room: proto.RoomState{ID: "r1"}}
	reset := mirror.Reset(state)
	if reset.Synced() || reset.Room.ID != "" || reset.Nickname != "ana" {
		t.Fatalf("unexpected reset state %+v", reset)
	}
}
