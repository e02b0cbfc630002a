package sim

import (
	"context"
	"math/rand"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
	"serpent-arena/server/internal/telemetry"
	"serpent-arena/server/logging"
	"serpent-arena/server/logging/decisions"
	"serpent-arena/server/logging/lifecycle"
)

// Death reasons carried on lifecycle events.
const (
	ReasonWall      = "wall"
	ReasonCollision = "collision"
	ReasonHeadOn    = "head_on"
)

// World owns the authoritative arena state. All mutation happens on the
// driver goroutine through Step; readers get clones.
type World struct {
	cfg       Config
	clock     ai.Clock
	rng       *rand.Rand
	scheduler *ai.Scheduler
	library   *ai.Library
	pub       logging.Publisher
	counters  telemetry.Metrics

	state         arena.State
	presets       map[string]string
	respawnAt     map[string]uint64
	nextID        int
	lastEvictions uint64
}

// NewWorld builds a world, spawns the initial snakes, and seeds the food
// supply. library, pub, and counters may be nil.
func NewWorld(cfg Config, library *ai.Library, pub logging.Publisher, counters telemetry.Metrics) *World {
	cfg = cfg.normalized()
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Clock.Now().UnixNano()
	}
	if pub == nil {
		pub = logging.NopPublisher()
	}
	if counters == nil {
		counters = telemetry.NopMetrics()
	}
	w := &World{
		cfg:       cfg,
		clock:     cfg.Clock,
		rng:       rand.New(rand.NewSource(seed)),
		scheduler: ai.NewScheduler(cfg.AI),
		library:   library,
		pub:       pub,
		counters:  counters,
		state: arena.State{
			Bounds: cfg.Bounds,
		},
		presets:   make(map[string]string),
		respawnAt: make(map[string]uint64),
	}
	// Adopt the scheduler's normalized AI config so Config() reports the
	// values actually in force.
	w.cfg.AI = w.scheduler.Stats().Config
	w.spawnInitial(context.Background())
	w.replenishFood()
	w.mirrorTelemetry()
	return w
}

// Step advances the world one tick and returns a snapshot of the result.
// The sequence is fixed: open the frame window, schedule decision work
// against a coherent snapshot, run as much of it as the budget allows,
// move every snake on its freshest decision, resolve collisions, respawn
// the fallen, and top up the food supply.
func (w *World) Step(ctx context.Context) arena.State {
	now := w.clock.Now()
	tick := w.scheduler.Tick(now)
	w.state.Tick = tick

	snapshot := w.state.Clone()
	for i := range w.state.Snakes {
		if w.state.Snakes[i].Alive && w.state.Snakes[i].AI {
			w.scheduler.Schedule(w.state.Snakes[i], snapshot)
		}
	}
	for w.scheduler.ProcessNext() {
	}
	if stats := w.scheduler.Stats(); stats.Evictions > w.lastEvictions {
		decisions.Evicted(ctx, w.pub, tick, decisions.EvictedPayload{
			Evicted:  stats.Evictions - w.lastEvictions,
			QueueLen: stats.QueueLen,
		}, nil)
		w.lastEvictions = stats.Evictions
	}

	w.advance(ctx, tick)
	w.resolveCollisions(ctx, tick)
	w.respawnDue(ctx, tick)
	w.replenishFood()
	w.mirrorTelemetry()

	return w.state.Clone()
}

// advance moves every live snake one cell along its decided direction,
// growing through food.
func (w *World) advance(ctx context.Context, tick uint64) {
	for i := range w.state.Snakes {
		s := &w.state.Snakes[i]
		if !s.Alive || len(s.Segments) == 0 {
			continue
		}

		// Undecided snakes glide along their heading; the scheduler's
		// fallback is for consumers that must answer with a direction.
		dir := s.Heading
		if decision, ok := w.scheduler.DecisionFor(s.ID); ok {
			dir = decision.Direction
		}
		// A decision left over from a previous life can point straight
		// back into the neck; the engine only guarantees non-reversal
		// against the snapshot it saw.
		if len(s.Segments) > 1 && s.Heading.Valid() && dir == s.Heading.Opposite() {
			dir = s.Heading
		}
		if !dir.Valid() {
			dir = w.scheduler.DirectionFor(s.ID)
		}
		w.logFreshDecision(ctx, tick, s.ID)

		next := dir.Step(s.Segments[0])
		s.Heading = dir
		s.Segments = append([]grid.Position{next}, s.Segments...)
		if w.eatFoodAt(next) {
			lifecycle.FoodConsumed(ctx, w.pub, tick,
				logging.EntityRef{ID: s.ID, Kind: logging.EntityKindSnake},
				lifecycle.FoodConsumedPayload{
					X:      next.X,
					Y:      next.Y,
					Length: len(s.Segments),
				}, nil)
		} else {
			s.Segments = s.Segments[:len(s.Segments)-1]
		}
	}
}

func (w *World) logFreshDecision(ctx context.Context, tick uint64, id string) {
	decision, ok := w.scheduler.DecisionFor(id)
	if !ok || decision.Tick != tick {
		return
	}
	actor := logging.EntityRef{ID: id, Kind: logging.EntityKindSnake}
	if decision.UsedFallback {
		decisions.Fallback(ctx, w.pub, tick, actor, decisions.FallbackPayload{
			Direction: decision.Direction.String(),
			Reason:    "calculation_failed",
		}, nil)
		return
	}
	decisions.Computed(ctx, w.pub, tick, actor, decisions.ComputedPayload{
		Direction:     decision.Direction.String(),
		CalculationMs: decision.CalculationMs,
		QueueSize:     w.scheduler.Metrics().QueueSize,
	}, nil)
}

// resolveCollisions kills snakes that left the board, met another head,
// or ran into a body. All moves land before any death is applied, so the
// outcome does not depend on snake order.
func (w *World) resolveCollisions(ctx context.Context, tick uint64) {
	headCount := make(map[grid.Position]int)
	for i := range w.state.Snakes {
		s := &w.state.Snakes[i]
		if !s.Alive || len(s.Segments) == 0 {
			continue
		}
		headCount[s.Segments[0]]++
	}

	type casualty struct {
		idx    int
		reason string
	}
	var casualties []casualty
	for i := range w.state.Snakes {
		s := &w.state.Snakes[i]
		if !s.Alive || len(s.Segments) == 0 {
			continue
		}
		head := s.Segments[0]
		switch {
		case !w.state.Bounds.Contains(head):
			casualties = append(casualties, casualty{i, ReasonWall})
		case headCount[head] > 1:
			casualties = append(casualties, casualty{i, ReasonHeadOn})
		case w.bodyAt(head):
			casualties = append(casualties, casualty{i, ReasonCollision})
		}
	}

	for _, c := range casualties {
		w.kill(ctx, tick, c.idx, c.reason)
	}
}

// bodyAt reports whether any live snake's body (heads excluded, they are
// the head-on case) covers p.
func (w *World) bodyAt(p grid.Position) bool {
	for i := range w.state.Snakes {
		s := &w.state.Snakes[i]
		if !s.Alive {
			continue
		}
		for _, seg := range s.Segments[1:] {
			if seg == p {
				return true
			}
		}
	}
	return false
}

func (w *World) kill(ctx context.Context, tick uint64, idx int, reason string) {
	s := &w.state.Snakes[idx]
	length := len(s.Segments)
	s.Alive = false
	s.Segments = nil
	w.respawnAt[s.ID] = tick + w.cfg.RespawnDelayTicks

	lifecycle.SnakeDied(ctx, w.pub, tick,
		logging.EntityRef{ID: s.ID, Kind: logging.EntityKindSnake},
		lifecycle.SnakeDiedPayload{Reason: reason, Length: length}, nil)
}

func (w *World) respawnDue(ctx context.Context, tick uint64) {
	for id, at := range w.respawnAt {
		if tick < at {
			continue
		}
		for i := range w.state.Snakes {
			if w.state.Snakes[i].ID == id {
				if w.placeSnake(ctx, tick, i, true) {
					delete(w.respawnAt, id)
				}
				break
			}
		}
	}
}

func (w *World) mirrorTelemetry() {
	w.counters.SetSnakesAlive(w.state.LiveCount())
	w.counters.StoreAIMetrics(w.scheduler.Metrics())
}

// State returns a deep copy of the current world state.
func (w *World) State() arena.State {
	return w.state.Clone()
}

// Config returns the normalized world configuration.
func (w *World) Config() Config {
	return w.cfg
}

// Tick returns the current tick counter.
func (w *World) Tick() uint64 {
	return w.scheduler.CurrentTick()
}

// AIMetrics snapshots the scheduler's performance counters.
func (w *World) AIMetrics() ai.Metrics {
	return w.scheduler.Metrics()
}

// AIStats exposes scheduler and cache internals for diagnostics.
func (w *World) AIStats() ai.SchedulerStats {
	return w.scheduler.Stats()
}

// PresetFor returns the personality preset id assigned to a snake.
func (w *World) PresetFor(id string) (string, bool) {
	preset, ok := w.presets[id]
	return preset, ok
}
