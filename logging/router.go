package logging

import (
	"context"
	"errors"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoSinks is returned when none of the enabled sinks were provided.
var ErrNoSinks = errors.New("logging: no enabled sinks")

const (
	defaultBufferSize    = 512
	defaultDropWarnEvery = 5 * time.Second
	sinkWriteAttempts    = 3
	sinkRetryDelay       = 50 * time.Millisecond
)

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type Sink interface {
	Write(Event) error
	Close(context.Context) error
}

// Router fans published events out to the enabled sinks. Publish never
// blocks: when the queue is full the event is dropped and charged to its
// room, so one noisy room shows up in Stats.
type Router struct {
	cfg      Config
	clock    Clock
	fallback *log.Logger
	fields   map[string]any

	queue   chan Event
	workers []*sinkWorker
	stop    chan struct{}
	closed  atomic.Bool
	wg      sync.WaitGroup

	events atomic.Uint64
	drops  dropLedger
}

// RouterStats is the router's view for diagnostics.
type RouterStats struct {
	EventsTotal   uint64            `json:"eventsTotal"`
	DroppedTotal  uint64            `json:"droppedTotal"`
	DroppedByRoom map[string]uint64 `json:"droppedByRoom,omitempty"`
	Sinks         []SinkStats       `json:"sinks"`
}

// SinkStats counts what one sink did with the events it was handed.
type SinkStats struct {
	Name       string `json:"name"`
	Written    uint64 `json:"written"`
	Failed     uint64 `json:"failed"`
	Backlogged uint64 `json:"backlogged"`
}

// NewRouter starts a router writing to the sinks named in cfg.EnabledSinks.
// Sinks present in the map but not enabled are ignored.
func NewRouter(cfg Config, clock Clock, fallback *log.Logger, sinks map[string]Sink) (*Router, error) {
	if clock == nil {
		clock = SystemClock{}
	}
	if fallback == nil {
		fallback = log.New(os.Stderr, "[logging] ", log.LstdFlags)
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.DropWarnInterval <= 0 {
		cfg.DropWarnInterval = defaultDropWarnEvery
	}

	var names []string
	for name, sink := range sinks {
		if sink != nil && cfg.HasSink(name) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoSinks
	}
	sort.Strings(names)

	r := &Router{
		cfg:      cfg,
		clock:    clock,
		fallback: fallback,
		fields:   cfg.CloneFields(),
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan struct{}),
	}
	backlog := min(max(cfg.BufferSize, 32), 1024)
	for _, name := range names {
		r.workers = append(r.workers, &sinkWorker{
			name:     name,
			sink:     sinks[name],
			events:   make(chan Event, backlog),
			fallback: fallback,
			stop:     r.stop,
		})
	}

	r.wg.Add(1 + len(r.workers))
	go r.dispatch()
	for _, w := range r.workers {
		go func(w *sinkWorker) {
			defer r.wg.Done()
			w.run()
		}(w)
	}
	return r, nil
}

func (r *Router) dispatch() {
	defer r.wg.Done()
	defer func() {
		for _, w := range r.workers {
			close(w.events)
		}
	}()
	for {
		select {
		case <-r.stop:
			for {
				select {
				case event := <-r.queue:
					r.forward(event)
				default:
					return
				}
			}
		case event := <-r.queue:
			r.forward(event)
		}
	}
}

func (r *Router) forward(event Event) {
	if event.Severity < r.cfg.MinimumSeverity {
		return
	}
	event = r.decorate(event)
	r.events.Add(1)
	for _, w := range r.workers {
		w.enqueue(cloneForFields(event))
	}
}

// decorate stamps the time and adds router fields the event does not set.
func (r *Router) decorate(event Event) Event {
	if event.Time.IsZero() {
		event.Time = r.clock.Now()
	}
	if len(r.fields) == 0 {
		return event
	}
	event = cloneForFields(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(r.fields))
	}
	for k, v := range r.fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	return event
}

func (r *Router) Publish(ctx context.Context, event Event) {
	if r == nil || event.Type == "" || r.closed.Load() {
		return
	}
	select {
	case r.queue <- event:
	default:
		if r.drops.record(event.Room, r.clock.Now(), r.cfg.DropWarnInterval) {
			r.fallback.Printf("dropping event type=%s room=%s", event.Type, event.Room)
		}
	}
}

// Close stops the dispatcher, flushes queued events and closes every sink.
func (r *Router) Close(ctx context.Context) error {
	if r == nil || !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(r.stop)
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	var errs []error
	for _, w := range r.workers {
		if err := w.sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Router) Stats() RouterStats {
	if r == nil {
		return RouterStats{}
	}
	total, byRoom := r.drops.snapshot()
	stats := RouterStats{
		EventsTotal:   r.events.Load(),
		DroppedTotal:  total,
		DroppedByRoom: byRoom,
		Sinks:         make([]SinkStats, 0, len(r.workers)),
	}
	for _, w := range r.workers {
		stats.Sinks = append(stats.Sinks, w.stats())
	}
	return stats
}

func (r *Router) Sink(name string) Sink {
	for _, w := range r.workers {
		if w.name == name {
			return w.sink
		}
	}
	return nil
}

// dropLedger counts queue overflows per room and throttles the warning.
type dropLedger struct {
	mu       sync.Mutex
	total    uint64
	byRoom   map[string]uint64
	nextWarn time.Time
}

func (d *dropLedger) record(room string, now time.Time, every time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.total++
	if room != "" {
		if d.byRoom == nil {
			d.byRoom = make(map[string]uint64)
		}
		d.byRoom[room]++
	}
	if now.Before(d.nextWarn) {
		return false
	}
	d.nextWarn = now.Add(every)
	return true
}

func (d *dropLedger) snapshot() (uint64, map[string]uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.byRoom) == 0 {
		return d.total, nil
	}
	byRoom := make(map[string]uint64, len(d.byRoom))
	for room, n := range d.byRoom {
		byRoom[room] = n
	}
	return d.total, byRoom
}

type sinkWorker struct {
	name     string
	sink     Sink
	events   chan Event
	fallback *log.Logger
	stop     <-chan struct{}

	written    atomic.Uint64
	failed     atomic.Uint64
	backlogged atomic.Uint64
}

func (w *sinkWorker) enqueue(event Event) {
	select {
	case w.events <- event:
	default:
		if w.backlogged.Add(1) == 1 {
			w.fallback.Printf("sink %s backlog full dropping event type=%s", w.name, event.Type)
		}
	}
}

func (w *sinkWorker) run() {
	for event := range w.events {
		w.write(event)
	}
}

// write retries a failing sink a few times with a doubling delay. Once the
// router is closing the remaining events get a single attempt each.
func (w *sinkWorker) write(event Event) {
	delay := sinkRetryDelay
	for attempt := 1; ; attempt++ {
		err := w.sink.Write(event)
		if err == nil {
			w.written.Add(1)
			return
		}
		if attempt == sinkWriteAttempts || w.stopping() {
			w.failed.Add(1)
			w.fallback.Printf("sink %s dropped event type=%s room=%s: %v", w.name, event.Type, event.Room, err)
			return
		}
		select {
		case <-w.stop:
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (w *sinkWorker) stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

func (w *sinkWorker) stats() SinkStats {
	return SinkStats{
		Name:       w.name,
		Written:    w.written.Load(),
		Failed:     w.failed.Load(),
		Backlogged: w.backlogged.Load(),
	}
}
