package ws

import (
	"context"
	nethttp "net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"blockroom/internal/net/proto"
	"blockroom/internal/player"
	"blockroom/internal/room"
	"blockroom/internal/telemetry"
	"blockroom/logging"
	"blockroom/logging/network"
)

// Rooms is the slice of the room manager a session drives.
type Rooms interface {
	Join(ctx context.Context, roomID, nickname string, sink room.Sink) (room.Descriptor, error)
	Lookup(roomID string) (room.Descriptor, bool)
	Ready(ctx context.Context, roomID, nickname string) error
	StartGame(ctx context.Context, roomID, requester string) error
	SetMode(ctx context.Context, roomID, requester, mode string) error
	ApplyIntent(ctx context.Context, roomID, nickname string, intent player.Intent) (player.Outcome, error)
	Chat(ctx context.Context, roomID, nickname, text string) error
	Leave(ctx context.Context, roomID, nickname string) error
	Disconnect(ctx context.Context, roomID, nickname string) error
}

const (
	DefaultSendQueue    = 64
	DefaultWriteWait    = 10 * time.Second
	DefaultPongWait     = 60 * time.Second
	DefaultPingInterval = 25 * time.Second
	DefaultReadLimit    = 4096
)

type HandlerConfig struct {
	Logger    telemetry.Logger
	Publisher logging.Publisher
	Metrics   telemetry.Metrics
	// SendQueue bounds the outbound messages buffered per session. A session
	// whose queue overflows is disconnected.
	SendQueue    int
	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	ReadLimit    int64
	CheckOrigin  func(r *nethttp.Request) bool
}

type Handler struct {
	rooms    Rooms
	cfg      HandlerConfig
	logger   telemetry.Logger
	pub      logging.Publisher
	metrics  telemetry.Metrics
	upgrader websocket.Upgrader
	sessions atomic.Int64
}

func NewHandler(rooms Rooms, cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NopLogger()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.WrapMetrics(nil)
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = DefaultSendQueue
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = DefaultWriteWait
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = DefaultPongWait
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = cfg.PongWait * 9 / 10
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = DefaultReadLimit
	}
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*nethttp.Request) bool { return true }
	}

	return &Handler{
		rooms:   rooms,
		cfg:     cfg,
		logger:  cfg.Logger,
		pub:     cfg.Publisher,
		metrics: cfg.Metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
	}
}

// Sessions reports the number of open websocket sessions.
func (h *Handler) Sessions() int {
	return int(h.sessions.Load())
}

// Handle upgrades the request and serves the session until the connection
// closes. ?codec=json|msgpack selects the frame codec.
func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	codec, ok := proto.CodecByName(r.URL.Query().Get("codec"))
	if !ok {
		nethttp.Error(w, "unsupported codec", nethttp.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	s := newSession(h, conn, codec, uuid.NewString())
	h.metrics.Store(telemetry.MetricSessionsActive, uint64(h.sessions.Add(1)))
	network.SessionOpened(r.Context(), h.pub, logging.SessionRef(s.id), network.SessionPayload{
		Codec:  codec.Name(),
		Remote: r.RemoteAddr,
	}, nil)

	go s.writeLoop()
	reason := s.readLoop(context.WithoutCancel(r.Context()))

	h.metrics.Store(telemetry.MetricSessionsActive, uint64(h.sessions.Add(-1)))
	network.SessionClosed(context.Background(), h.pub, s.roomID(), logging.SessionRef(s.id), network.SessionPayload{
		Codec:  codec.Name(),
		Reason: reason,
	}, nil)
}
