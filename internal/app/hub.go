package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/net/proto"
	"serpent-arena/server/internal/net/ws"
	"serpent-arena/server/internal/sim"
	"serpent-arena/server/internal/telemetry"
	"serpent-arena/server/logging"
	"serpent-arena/server/logging/frames"
	"serpent-arena/server/logging/network"
)

// TicksPerSecond paces the simulation loop; twenty puts each frame at
// 50ms, well above the decision budget the scheduler works against.
const TicksPerSecond = 20

type HubConfig struct {
	Sim           sim.Config
	MaxSpectators int
	WriteTimeout  time.Duration
	Library       *ai.Library
	Publisher     logging.Publisher
	Counters      *telemetry.Counters
	Logger        *log.Logger
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		Sim:           sim.DefaultConfig(),
		MaxSpectators: 64,
		WriteTimeout:  ws.DefaultWriteTimeout,
	}
}

// Hub owns the world and the spectator registry. Every world access runs
// under the hub mutex; the scheduler underneath is single-goroutine by
// design.
type Hub struct {
	mu          sync.Mutex
	world       *sim.World
	library     *ai.Library
	pub         logging.Publisher
	counters    *telemetry.Counters
	logger      *log.Logger
	maxSpecs    int
	writeWait   time.Duration
	subscribers map[string]*ws.Subscriber
	nextSpec    int
	lastState   arena.State
	lastOverrun uint64
	lastCap     int
}

func NewHub(cfg HubConfig) *Hub {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Counters == nil {
		cfg.Counters = telemetry.NewCounters()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.MaxSpectators <= 0 {
		cfg.MaxSpectators = DefaultHubConfig().MaxSpectators
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = ws.DefaultWriteTimeout
	}

	world := sim.NewWorld(cfg.Sim, cfg.Library, cfg.Publisher, cfg.Counters)
	return &Hub{
		world:       world,
		library:     cfg.Library,
		pub:         cfg.Publisher,
		counters:    cfg.Counters,
		logger:      cfg.Logger,
		maxSpecs:    cfg.MaxSpectators,
		writeWait:   cfg.WriteTimeout,
		subscribers: make(map[string]*ws.Subscriber),
		lastState:   world.State(),
		lastCap:     world.AIStats().PerFrameCap,
	}
}

// RunSimulation drives the world until the context is done.
func (h *Hub) RunSimulation(ctx context.Context) {
	ticker := time.NewTicker(time.Second / TicksPerSecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.StepOnce(ctx)
		}
	}
}

// StepOnce advances the world a single tick and broadcasts the result.
func (h *Hub) StepOnce(ctx context.Context) {
	h.mu.Lock()
	started := time.Now()
	state := h.world.Step(ctx)
	elapsed := time.Since(started)
	h.lastState = state
	h.emitFrameEventsLocked(ctx, state.Tick, elapsed)
	h.mu.Unlock()

	h.counters.RecordTick(elapsed)
	h.broadcast(state)
}

// emitFrameEventsLocked turns scheduler counter movement into events.
func (h *Hub) emitFrameEventsLocked(ctx context.Context, tick uint64, elapsed time.Duration) {
	metrics := h.world.AIMetrics()
	stats := h.world.AIStats()

	if metrics.FrameOverruns > h.lastOverrun {
		budget := h.world.Config().AI.FrameBudget
		frames.BudgetOverrun(ctx, h.pub, tick, frames.BudgetOverrunPayload{
			DurationMillis: float64(elapsed) / float64(time.Millisecond),
			BudgetMillis:   float64(budget) / float64(time.Millisecond),
			Overruns:       metrics.FrameOverruns,
		}, nil)
		h.lastOverrun = metrics.FrameOverruns
	}

	if stats.PerFrameCap != h.lastCap {
		frames.CapAdjusted(ctx, h.pub, tick, frames.CapAdjustedPayload{
			PreviousCap:   h.lastCap,
			NewCap:        stats.PerFrameCap,
			AverageCalcMs: metrics.AverageCalculationMs,
		}, nil)
		h.lastCap = stats.PerFrameCap
	}
}

// broadcast marshals the snapshot once and fans it out. Spectators whose
// connection cannot keep up are dropped rather than allowed to stall the
// loop.
func (h *Hub) broadcast(state arena.State) {
	msg := proto.StateSnapshotFromArena(state, time.Now().UnixMilli())
	data, err := proto.EncodeStateSnapshot(msg)
	if err != nil {
		h.logger.Printf("failed to encode state snapshot: %v", err)
		return
	}

	h.mu.Lock()
	subs := make(map[string]*ws.Subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if err := sub.Send(data); err != nil {
			h.logger.Printf("dropping spectator %s: %v", id, err)
			network.BroadcastFailed(context.Background(), h.pub, state.Tick,
				logging.EntityRef{ID: id, Kind: logging.EntityKindSpectator},
				network.BroadcastFailedPayload{Error: err.Error()}, nil)
			h.Unsubscribe(id, "write_failed")
		}
	}
	h.counters.RecordBroadcast(len(data))
}

// Subscribe registers an upgraded connection and hands back the welcome
// payload. Implements the websocket handler's hub contract.
func (h *Hub) Subscribe(conn ws.Conn, remoteAddr string) (*ws.Subscriber, proto.WelcomeV1, bool) {
	h.mu.Lock()
	if len(h.subscribers) >= h.maxSpecs {
		h.mu.Unlock()
		return nil, proto.WelcomeV1{}, false
	}
	h.nextSpec++
	id := fmt.Sprintf("spectator-%d", h.nextSpec)
	sub := ws.NewSubscriber(id, conn, h.writeWait)
	h.subscribers[id] = sub
	tick := h.lastState.Tick
	bounds := h.world.Config().Bounds
	presets := h.library.IDs()
	h.mu.Unlock()

	h.counters.SpectatorJoined()
	network.SpectatorJoined(context.Background(), h.pub, tick,
		logging.EntityRef{ID: id, Kind: logging.EntityKindSpectator},
		network.SpectatorJoinedPayload{RemoteAddr: remoteAddr}, nil)

	welcome := proto.WelcomeV1{
		ID:             id,
		Tick:           tick,
		Bounds:         bounds,
		TicksPerSecond: TicksPerSecond,
		Presets:        presets,
	}
	return sub, welcome, true
}

// Unsubscribe removes a spectator and closes its connection. Unknown ids
// are a no-op, so the broadcast loop and the read loop can race here
// safely.
func (h *Hub) Unsubscribe(id, reason string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	tick := h.lastState.Tick
	h.mu.Unlock()
	if !ok {
		return
	}

	sub.Close(websocket.CloseNormalClosure, reason)
	h.counters.SpectatorLeft()
	network.SpectatorLeft(context.Background(), h.pub, tick,
		logging.EntityRef{ID: id, Kind: logging.EntityKindSpectator},
		network.SpectatorLeftPayload{Reason: reason}, nil)
}

// Tick reports the last completed tick.
func (h *Hub) Tick() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastState.Tick
}

func (h *Hub) TicksPerSecond() int {
	return TicksPerSecond
}

// LiveSnakes reports how many snakes were alive after the last tick.
func (h *Hub) LiveSnakes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastState.LiveCount()
}

// SpectatorCount reports the current registry size.
func (h *Hub) SpectatorCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// TelemetrySnapshot exposes the counters for the diagnostics endpoint.
func (h *Hub) TelemetrySnapshot() telemetry.Snapshot {
	return h.counters.Snapshot()
}

// AIStats exposes scheduler internals for the diagnostics endpoint.
func (h *Hub) AIStats() ai.SchedulerStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.AIStats()
}

// Presets lists the personality presets available to spawned snakes.
func (h *Hub) Presets() []ai.Preset {
	if h.library == nil {
		return nil
	}
	ids := h.library.IDs()
	presets := make([]ai.Preset, 0, len(ids))
	for _, id := range ids {
		if preset, ok := h.library.Preset(id); ok {
			presets = append(presets, preset)
		}
	}
	return presets
}

// CurrentConfig returns the running world configuration.
func (h *Hub) CurrentConfig() sim.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.world.Config()
}

// ResetWorld replaces the world wholesale and returns the normalized
// configuration that came up. Spectators stay connected and pick up the
// fresh arena on the next broadcast.
func (h *Hub) ResetWorld(cfg sim.Config) sim.Config {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.world = sim.NewWorld(cfg, h.library, h.pub, h.counters)
	h.lastState = h.world.State()
	h.lastOverrun = 0
	h.lastCap = h.world.AIStats().PerFrameCap
	return h.world.Config()
}

// State returns the last broadcast snapshot.
func (h *Hub) State() arena.State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastState.Clone()
}
