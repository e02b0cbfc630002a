package net

import (
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/sim"
	"serpent-arena/server/internal/telemetry"
	"serpent-arena/server/logging"
)

type stubArena struct {
	cfg     sim.Config
	stats   ai.SchedulerStats
	snap    telemetry.Snapshot
	presets []ai.Preset
	resets  []sim.Config
}

func newStubArena() *stubArena {
	cfg := sim.DefaultConfig()
	cfg.AI = ai.DefaultConfig()
	return &stubArena{
		cfg:   cfg,
		stats: ai.SchedulerStats{Tick: 42, PerFrameCap: 2, Config: ai.DefaultConfig()},
		snap:  telemetry.Snapshot{TicksTotal: 42, SnakesAlive: 5},
	}
}

func (s *stubArena) Tick() uint64                          { return 42 }
func (s *stubArena) TicksPerSecond() int                   { return 20 }
func (s *stubArena) LiveSnakes() int                       { return 5 }
func (s *stubArena) SpectatorCount() int                   { return 2 }
func (s *stubArena) TelemetrySnapshot() telemetry.Snapshot { return s.snap }
func (s *stubArena) AIStats() ai.SchedulerStats            { return s.stats }
func (s *stubArena) Presets() []ai.Preset                  { return s.presets }
func (s *stubArena) CurrentConfig() sim.Config             { return s.cfg }

func (s *stubArena) ResetWorld(cfg sim.Config) sim.Config {
	s.resets = append(s.resets, cfg)
	return cfg
}

func serve(t *testing.T, hub Hub, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewHTTPHandler(hub, nil, HTTPHandlerConfig{})
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := serve(t, newStubArena(), nethttp.MethodGet, "/health", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
}

func TestDiagnosticsEndpoint(t *testing.T) {
	rec := serve(t, newStubArena(), nethttp.MethodGet, "/diagnostics", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, float64(42), payload["tick"])
	require.Equal(t, float64(20), payload["ticksPerSecond"])
	require.Equal(t, float64(5), payload["snakesAlive"])
	require.Equal(t, float64(2), payload["spectators"])

	aiStats, ok := payload["ai"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(42), aiStats["tick"])
	aiConfig, ok := aiStats["config"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "up", aiConfig["fallback"])

	tel, ok := payload["telemetry"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(42), tel["ticksTotal"])

	_, ok = payload["logging"]
	require.False(t, ok, "no router stats provider configured")
}

func TestDiagnosticsIncludesRouterStatsWhenProvided(t *testing.T) {
	handler := NewHTTPHandler(newStubArena(), nil, HTTPHandlerConfig{
		RouterStats: func() logging.RouterStats {
			return logging.RouterStats{EventsTotal: 17, DroppedTotal: 2}
		},
	})
	req := httptest.NewRequest(nethttp.MethodGet, "/diagnostics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	stats, ok := payload["logging"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, float64(17), stats["eventsTotal"])
	require.Equal(t, float64(2), stats["droppedTotal"])
}

func TestPresetsEndpoint(t *testing.T) {
	hub := newStubArena()
	hub.presets = []ai.Preset{
		{ID: "balanced", Name: "Balanced", Traits: arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}},
		{ID: "hunter", Name: "Hunter", Traits: arena.Personality{Aggression: 0.9, Intelligence: 0.7, Patience: 0.2}},
	}

	rec := serve(t, hub, nethttp.MethodGet, "/presets", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	var payload struct {
		Presets []ai.Preset `json:"presets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Presets, 2)
	require.Equal(t, "balanced", payload.Presets[0].ID)

	rec = serve(t, hub, nethttp.MethodPost, "/presets", "")
	require.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)
}

func TestPresetsEmptyRendersArray(t *testing.T) {
	rec := serve(t, newStubArena(), nethttp.MethodGet, "/presets", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"presets":[]`)
}

func TestWorldResetAppliesPatch(t *testing.T) {
	hub := newStubArena()

	rec := serve(t, hub, nethttp.MethodPost, "/world/reset",
		`{"initialSnakes":9,"seed":123}`)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Len(t, hub.resets, 1)
	require.Equal(t, 9, hub.resets[0].InitialSnakes)
	require.Equal(t, int64(123), hub.resets[0].Seed)
	require.Equal(t, sim.DefaultWidth, hub.resets[0].Bounds.Width)

	var payload struct {
		Status string     `json:"status"`
		Config sim.Config `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, "ok", payload.Status)
	require.Equal(t, 9, payload.Config.InitialSnakes)
}

func TestWorldResetEmptyBodyKeepsConfig(t *testing.T) {
	hub := newStubArena()

	rec := serve(t, hub, nethttp.MethodPost, "/world/reset", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	require.Len(t, hub.resets, 1)
	require.Equal(t, hub.cfg.InitialSnakes, hub.resets[0].InitialSnakes)
	require.Equal(t, hub.cfg.Bounds, hub.resets[0].Bounds)
}

func TestWorldResetRejectsWrongMethodAndBadBody(t *testing.T) {
	hub := newStubArena()

	rec := serve(t, hub, nethttp.MethodGet, "/world/reset", "")
	require.Equal(t, nethttp.StatusMethodNotAllowed, rec.Code)

	rec = serve(t, hub, nethttp.MethodPost, "/world/reset", "not json")
	require.Equal(t, nethttp.StatusBadRequest, rec.Code)
	require.Empty(t, hub.resets)
}

func TestPprofRoutesAreGated(t *testing.T) {
	hub := newStubArena()

	off := NewHTTPHandler(hub, nil, HTTPHandlerConfig{})
	rec := httptest.NewRecorder()
	off.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, nethttp.StatusNotFound, rec.Code)

	cfg := HTTPHandlerConfig{}
	cfg.Observability.EnablePprof = true
	on := NewHTTPHandler(hub, nil, cfg)
	rec = httptest.NewRecorder()
	on.ServeHTTP(rec, httptest.NewRequest(nethttp.MethodGet, "/debug/pprof/", nil))
	require.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestWebsocketRouteOnlyWhenConfigured(t *testing.T) {
	rec := serve(t, newStubArena(), nethttp.MethodGet, "/ws", "")
	require.Equal(t, nethttp.StatusNotFound, rec.Code)
}
