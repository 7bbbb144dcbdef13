package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"blockroom/logging"
	"blockroom/logging/lifecycle"
	"blockroom/logging/sinks"
)

func newTestRouter(t *testing.T, cfg logging.Config, named map[string]logging.Sink) *logging.Router {
	t.Helper()
	clock := logging.ClockFunc(func() time.Time {
		return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	})
	router, err := logging.NewRouter(cfg, clock, log.New(&bytes.Buffer{}, "", 0), named)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func TestRouterFansOutAndFlushesOnClose(t *testing.T) {
	memory := sinks.NewMemory()
	var jsonOut bytes.Buffer
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory", "json"}
	cfg.Fields = map[string]any{"service": "blockroom"}

	router := newTestRouter(t, cfg, map[string]logging.Sink{
		"memory":  memory,
		"json":    sinks.NewJSON(&jsonOut, 0),
		"console": sinks.NewConsole(&bytes.Buffer{}, cfg.Console),
	})

	lifecycle.PlayerJoined(context.Background(), router, "r1", 3, logging.PlayerRef("ana"), lifecycle.PlayerJoinedPayload{Owner: true, Players: 1}, nil)

	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := memory.OfType(lifecycle.EventPlayerJoined)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Room != "r1" || event.Seq != 3 || event.Category != logging.CategoryLobby {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Extra["service"] != "blockroom" {
		t.Fatalf("router fields missing: %+v", event.Extra)
	}
	if event.Time.IsZero() {
		t.Fatalf("expected router to stamp time")
	}

	var decoded map[string]any
	if err := json.Unmarshal(jsonOut.Bytes(), &decoded); err != nil {
		t.Fatalf("json sink output invalid: %v (%q)", err, jsonOut.String())
	}
	if decoded["type"] != string(lifecycle.EventPlayerJoined) || decoded["severity"] != "info" {
		t.Fatalf("unexpected json record %v", decoded)
	}

	stats := router.Stats()
	if stats.EventsTotal != 1 || len(stats.Sinks) != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if router.Sink("console") != nil {
		t.Fatalf("disabled sink should not be registered")
	}
}

func TestRouterFiltersBelowMinimumSeverity(t *testing.T) {
	memory := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	cfg.MinimumSeverity = logging.SeverityWarn
	router := newTestRouter(t, cfg, map[string]logging.Sink{"memory": memory})

	router.Publish(context.Background(), logging.Event{Type: "debug.event", Severity: logging.SeverityDebug})
	router.Publish(context.Background(), logging.Event{Type: "warn.event", Severity: logging.SeverityWarn})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := memory.Events()
	if len(events) != 1 || events[0].Type != "warn.event" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestRouterRequiresEnabledSink(t *testing.T) {
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"json"}
	_, err := logging.NewRouter(cfg, nil, nil, map[string]logging.Sink{"memory": sinks.NewMemory()})
	if !errors.Is(err, logging.ErrNoSinks) {
		t.Fatalf("expected ErrNoSinks, got %v", err)
	}
}

func TestPublishAfterCloseIsIgnored(t *testing.T) {
	memory := sinks.NewMemory()
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"memory"}
	router := newTestRouter(t, cfg, map[string]logging.Sink{"memory": memory})
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	router.Publish(context.Background(), logging.Event{Type: "late"})
	if len(memory.Events()) != 0 {
		t.Fatalf("expected no events after close")
	}
}

func TestConsoleSinkFormatsRoomAndSeq(t *testing.T) {
	var buf bytes.Buffer
	sink := sinks.NewConsole(&buf, logging.ConsoleConfig{})
	err := sink.Write(logging.Event{
		Type:     "gameplay.top_out",
		Room:     "abc",
		Seq:      9,
		Actor:    logging.PlayerRef("bo"),
		Severity: logging.SeverityInfo,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	line := buf.String()
	for _, want := range []string{"[gameplay.top_out]", "room=abc", "seq=9", "actor=player:bo"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestWithFieldsKeepsEventValues(t *testing.T) {
	var got logging.Event
	base := logging.PublisherFunc(func(_ context.Context, event logging.Event) { got = event })
	pub := logging.WithFields(base, map[string]any{"room": "default", "node": "a"})
	pub.Publish(context.Background(), logging.Event{Type: "x", Extra: map[string]any{"room": "explicit"}})
	if got.Extra["room"] != "explicit" || got.Extra["node"] != "a" {
		t.Fatalf("unexpected extra %+v", got.Extra)
	}
}

type flakySink struct {
	failures int
	written  []logging.Event
}

func (s *flakySink) Write(event logging.Event) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("unavailable")
	}
	s.written = append(s.written, event)
	return nil
}

func (s *flakySink) Close(context.Context) error { return nil }

func TestRouterRetriesFailingSink(t *testing.T) {
	recovering := &flakySink{failures: 1}
	broken := &flakySink{failures: 100}
	cfg := logging.DefaultConfig()
	cfg.EnabledSinks = []string{"recovering", "broken"}
	router := newTestRouter(t, cfg, map[string]logging.Sink{
		"recovering": recovering,
		"broken":     broken,
	})

	router.Publish(context.Background(), logging.Event{Type: "round.started", Room: "r1"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		stats := router.Stats()
		if stats.Sinks[0].Failed+stats.Sinks[0].Written == 1 && stats.Sinks[1].Written == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sinks did not settle: %+v", stats.Sinks)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := router.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}

	stats := router.Stats()
	if stats.Sinks[0].Name != "broken" || stats.Sinks[0].Failed != 1 {
		t.Fatalf("expected broken sink to give up once, got %+v", stats.Sinks[0])
	}
	if stats.Sinks[1].Name != "recovering" || stats.Sinks[1].Failed != 0 || len(recovering.written) != 1 {
		t.Fatalf("expected recovering sink to succeed on retry, got %+v", stats.Sinks[1])
	}
	if stats.DroppedTotal != 0 || stats.DroppedByRoom != nil {
		t.Fatalf("nothing should overflow the queue: %+v", stats)
	}
}
