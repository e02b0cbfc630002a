// Package net exposes the arena over HTTP: health and diagnostics
// endpoints, the personality preset catalog, world reset, and the
// websocket upgrade route.
package net

import (
	"encoding/json"
	"io"
	"log"
	nethttp "net/http"
	netpprof "net/http/pprof"
	"time"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/net/ws"
	"serpent-arena/server/internal/observability"
	"serpent-arena/server/internal/sim"
	"serpent-arena/server/internal/telemetry"
	"serpent-arena/server/logging"
)

// Hub is the subset of the arena hub the HTTP surface needs.
type Hub interface {
	Tick() uint64
	TicksPerSecond() int
	LiveSnakes() int
	SpectatorCount() int
	TelemetrySnapshot() telemetry.Snapshot
	AIStats() ai.SchedulerStats
	Presets() []ai.Preset
	CurrentConfig() sim.Config
	ResetWorld(cfg sim.Config) sim.Config
}

type HTTPHandlerConfig struct {
	Logger        *log.Logger
	Observability observability.Config

	// RouterStats, when set, adds logging router throughput to the
	// diagnostics payload.
	RouterStats func() logging.RouterStats
}

// NewHTTPHandler builds the route table. The websocket handler is
// mounted at /ws when provided; pprof routes appear only when enabled.
func NewHTTPHandler(hub Hub, wsHandler *ws.Handler, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		payload := struct {
			Status         string              `json:"status"`
			ServerTime     int64               `json:"serverTime"`
			Tick           uint64              `json:"tick"`
			TicksPerSecond int                 `json:"ticksPerSecond"`
			SnakesAlive    int                 `json:"snakesAlive"`
			Spectators     int                 `json:"spectators"`
			Telemetry      telemetry.Snapshot  `json:"telemetry"`
			AI             ai.SchedulerStats   `json:"ai"`
			Logging        *loggingDiagnostics `json:"logging,omitempty"`
		}{
			Status:         "ok",
			ServerTime:     time.Now().UnixMilli(),
			Tick:           hub.Tick(),
			TicksPerSecond: hub.TicksPerSecond(),
			SnakesAlive:    hub.LiveSnakes(),
			Spectators:     hub.SpectatorCount(),
			Telemetry:      hub.TelemetrySnapshot(),
			AI:             hub.AIStats(),
		}
		if cfg.RouterStats != nil {
			stats := cfg.RouterStats()
			payload.Logging = &loggingDiagnostics{
				EventsTotal:  stats.EventsTotal,
				DroppedTotal: stats.DroppedTotal,
			}
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/presets", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		presets := hub.Presets()
		if presets == nil {
			presets = []ai.Preset{}
		}
		payload := struct {
			Presets []ai.Preset `json:"presets"`
		}{Presets: presets}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.HandleFunc("/world/reset", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}

		cfg := hub.CurrentConfig()

		type resetRequest struct {
			Width           *int   `json:"width"`
			Height          *int   `json:"height"`
			InitialSnakes   *int   `json:"initialSnakes"`
			SnakeLength     *int   `json:"snakeLength"`
			MinFoodPerSnake *int   `json:"minFoodPerSnake"`
			Seed            *int64 `json:"seed"`
		}

		if r.Body != nil {
			defer r.Body.Close()
			var req resetRequest
			decoder := json.NewDecoder(r.Body)
			if err := decoder.Decode(&req); err != nil && err != io.EOF {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
			if req.Width != nil {
				cfg.Bounds.Width = *req.Width
			}
			if req.Height != nil {
				cfg.Bounds.Height = *req.Height
			}
			if req.InitialSnakes != nil {
				cfg.InitialSnakes = *req.InitialSnakes
			}
			if req.SnakeLength != nil {
				cfg.SnakeLength = *req.SnakeLength
			}
			if req.MinFoodPerSnake != nil {
				cfg.MinFoodPerSnake = *req.MinFoodPerSnake
			}
			if req.Seed != nil {
				cfg.Seed = *req.Seed
			}
		}

		applied := hub.ResetWorld(cfg)
		logger.Printf("world reset: %dx%d board, %d snakes",
			applied.Bounds.Width, applied.Bounds.Height, applied.InitialSnakes)

		response := struct {
			Status string     `json:"status"`
			Config sim.Config `json:"config"`
		}{Status: "ok", Config: applied}

		data, err := json.Marshal(response)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	if wsHandler != nil {
		mux.HandleFunc("/ws", wsHandler.Handle)
	}

	if cfg.Observability.EnablePprof {
		mux.HandleFunc("/debug/pprof/", netpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", netpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", netpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", netpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", netpprof.Trace)
	}

	return mux
}

// loggingDiagnostics is the router throughput slice of the diagnostics
// payload.
type loggingDiagnostics struct {
	EventsTotal  uint64 `json:"eventsTotal"`
	DroppedTotal uint64 `json:"droppedTotal"`
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
