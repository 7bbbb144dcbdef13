package net

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blockroom/internal/net/proto"
	"blockroom/internal/room"
	"blockroom/internal/telemetry"
	"blockroom/logging"
)

// Lobby is the read and reservation surface of the room manager.
type Lobby interface {
	CreateRoom(ctx context.Context, id string) (room.Descriptor, error)
	Lookup(roomID string) (room.Descriptor, bool)
	CanJoin(roomID, nickname string) error
	Snapshot(roomID string) (proto.RoomState, bool)
	Rooms() []room.Descriptor
	Stats() room.Stats
}

type HTTPHandlerConfig struct {
	Logger telemetry.Logger
	// Metrics is reported on /diagnostics when set.
	Metrics *logging.Metrics
	// LogStats reports the logging router counters on /diagnostics.
	LogStats func() logging.RouterStats
	// Sessions reports the open websocket count on /diagnostics.
	Sessions func() int
	// StartedAt anchors the uptime reported on /diagnostics.
	StartedAt time.Time
}

type lookupResponse struct {
	Room    room.Descriptor `json:"room"`
	Created bool            `json:"created"`
}

type joinCheckResponse struct {
	OK     bool   `json:"ok"`
	Room   string `json:"room"`
	Reason string `json:"reason,omitempty"`
}

// NewHTTPHandler routes the lobby endpoints and mounts ws on /ws.
func NewHTTPHandler(lobby Lobby, ws nethttp.Handler, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	// GET /room?name= returns the named room, reserving it when it does not
	// exist. An empty name reserves a room with a generated id.
	r.Get("/room", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		name := r.URL.Query().Get("name")
		if name != "" {
			if desc, ok := lobby.Lookup(name); ok {
				writeJSON(w, nethttp.StatusOK, lookupResponse{Room: desc})
				return
			}
		}
		desc, err := lobby.CreateRoom(r.Context(), name)
		switch {
		case errors.Is(err, room.ErrRoomExists):
			// Lost a race with another creator; serve the winner.
			if existing, ok := lobby.Lookup(name); ok {
				writeJSON(w, nethttp.StatusOK, lookupResponse{Room: existing})
				return
			}
			httpError(w, "room unavailable", nethttp.StatusConflict)
		case errors.Is(err, room.ErrInvalidRoomID):
			httpError(w, "invalid room name", nethttp.StatusBadRequest)
		case err != nil:
			logger.Printf("create room %q: %v", name, err)
			httpError(w, "failed to create room", nethttp.StatusInternalServerError)
		default:
			writeJSON(w, nethttp.StatusCreated, lookupResponse{Room: desc, Created: true})
		}
	})

	// GET /api/room?name=&username= checks whether a join would succeed.
	r.Get("/api/room", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		query := r.URL.Query()
		name := query.Get("name")
		err := lobby.CanJoin(name, query.Get("username"))
		if err == nil {
			writeJSON(w, nethttp.StatusOK, joinCheckResponse{OK: true, Room: name})
			return
		}
		status := nethttp.StatusConflict
		switch {
		case errors.Is(err, room.ErrInvalidNickname), errors.Is(err, room.ErrInvalidRoomID):
			status = nethttp.StatusBadRequest
		case errors.Is(err, room.ErrRoomNotFound):
			status = nethttp.StatusNotFound
		}
		writeJSON(w, status, joinCheckResponse{Room: name, Reason: room.RejectReason(err)})
	})

	r.Get("/rooms/{roomID}", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		state, ok := lobby.Snapshot(chi.URLParam(r, "roomID"))
		if !ok {
			httpError(w, "room not found", nethttp.StatusNotFound)
			return
		}
		writeJSON(w, nethttp.StatusOK, state)
	})

	r.Get("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status     string            `json:"status"`
			ServerTime int64             `json:"serverTime"`
			UptimeMs   int64             `json:"uptimeMillis"`
			Stats      room.Stats        `json:"stats"`
			Rooms      []room.Descriptor `json:"rooms"`
			Sessions   int               `json:"sessions"`
			Telemetry  map[string]uint64 `json:"telemetry,omitempty"`
			Logging    any               `json:"logging,omitempty"`
		}{
			Status:     "ok",
			ServerTime: time.Now().UnixMilli(),
			UptimeMs:   time.Since(cfg.StartedAt).Milliseconds(),
			Stats:      lobby.Stats(),
			Rooms:      lobby.Rooms(),
			Telemetry:  cfg.Metrics.Snapshot(),
		}
		if cfg.Sessions != nil {
			payload.Sessions = cfg.Sessions()
		}
		if cfg.LogStats != nil {
			payload.Logging = cfg.LogStats()
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	if ws != nil {
		r.Handle("/ws", ws)
	}

	return r
}

func writeJSON(w nethttp.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, message string, status int) {
	nethttp.Error(w, message, status)
}
