package ai

import (
	"sort"
	"time"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
)

// Priority tiers. Each tier strictly dominates the next: one cell of food
// distance outweighs any aggression difference, and aggression outweighs
// any staleness difference.
const (
	priorityDistanceWeight   = 1_000_000.0
	priorityAggressionWeight = 1_000.0
	priorityStalenessCapMs   = 1000
)

// Decision is the last computed (or defaulted) movement choice for one
// snake. It persists until overwritten by a newer calculation or dropped
// by Clear.
type Decision struct {
	SnakeID       string         `json:"snakeId"`
	Direction     grid.Direction `json:"direction"`
	CalculationMs float64        `json:"calculationMs"`
	UsedFallback  bool           `json:"usedFallback"`
	Tick          uint64         `json:"tick"`
}

type pendingCalculation struct {
	snakeID     string
	snake       arena.Snake
	state       arena.State
	priority    float64
	scheduledAt time.Time
	seq         uint64
}

// decisionEngine is the seam between the scheduler and the pathfinding
// engine. Tests substitute a faulty implementation to exercise the
// recovery path.
type decisionEngine interface {
	Decide(arena.Snake, arena.State) Result
	ClearCaches()
	Stats() EngineStats
	Config() Config
	UpdateConfig(Config)
}

// Scheduler spreads AI decision work across frames so a growing snake
// count degrades decision freshness instead of frame rate. It accepts
// per-tick calculation requests, runs a bounded number of them inside the
// frame budget, and always has a direction to hand out.
//
// All methods run inline on the driver goroutine; nothing locks, blocks,
// or suspends. ProcessNext either completes one bounded calculation or
// declines.
type Scheduler struct {
	cfg    Config
	clock  Clock
	engine decisionEngine

	tick        uint64
	frameStart  time.Time
	frameCalcs  int
	perFrameCap int

	queue       map[string]*pendingCalculation
	scheduleSeq uint64

	decisions  map[string]Decision
	decidedAt  map[string]time.Time
	lastServed map[string]uint64
	serveSeq   uint64

	totalCalcs        uint64
	avgCalcMs         float64
	timeouts          uint64
	fallbacks         uint64
	frameOverruns     uint64
	adaptiveAdjusts   uint64
	evictions         uint64
	overrunsSinceTrim int
}

// SchedulerStats exposes queue and controller internals for diagnostics.
type SchedulerStats struct {
	Tick        uint64      `json:"tick"`
	PerFrameCap int         `json:"perFrameCap"`
	FrameCalcs  int         `json:"frameCalcs"`
	QueueLen    int         `json:"queueLen"`
	Decisions   int         `json:"decisions"`
	Evictions   uint64      `json:"evictions"`
	Engine      EngineStats `json:"engine"`
	Config      Config      `json:"config"`
}

// NewScheduler builds a scheduler driving its own engine.
func NewScheduler(cfg Config) *Scheduler {
	cfg = cfg.normalized()
	return &Scheduler{
		cfg:         cfg,
		clock:       cfg.Clock,
		engine:      NewEngine(cfg),
		perFrameCap: clampCap(cfg.MaxPerFrame),
		queue:       make(map[string]*pendingCalculation),
		decisions:   make(map[string]Decision),
		decidedAt:   make(map[string]time.Time),
		lastServed:  make(map[string]uint64),
	}
}

// Tick advances the frame counter and returns it. On the first tick of
// each throttle window the per-frame calculation count resets and the
// frame clock restarts; ProcessNext only runs work on those ticks.
func (s *Scheduler) Tick(now time.Time) uint64 {
	s.tick++
	if s.tick%s.cfg.ThrottleInterval == 0 {
		s.frameCalcs = 0
		s.frameStart = now
	}
	return s.tick
}

// CurrentTick returns the tick counter without advancing it.
func (s *Scheduler) CurrentTick() uint64 {
	return s.tick
}

// Schedule enqueues a calculation request for the snake. Dead and non-AI
// snakes are ignored. At most one entry exists per snake id; a newer
// request replaces the prior one wholesale. When the queue would exceed
// its maximum the lowest-priority, oldest entry is evicted, which may be
// the incoming one.
func (s *Scheduler) Schedule(snake arena.Snake, state arena.State) {
	if !snake.AI || !snake.Alive || snake.ID == "" {
		return
	}
	now := s.clock.Now()
	s.scheduleSeq++
	s.queue[snake.ID] = &pendingCalculation{
		snakeID:     snake.ID,
		snake:       snake,
		state:       state,
		priority:    s.priorityFor(snake, state, now),
		scheduledAt: now,
		seq:         s.scheduleSeq,
	}
	if len(s.queue) > s.cfg.MaxQueueSize {
		s.evictLowest()
	}
}

// priorityFor ranks pending work: proximity to food dominates, then the
// snake's aggression, then how stale its last decision has grown.
func (s *Scheduler) priorityFor(snake arena.Snake, state arena.State, now time.Time) float64 {
	span := state.Bounds.Width + state.Bounds.Height
	if span <= 0 {
		span = 1
	}
	dist := span
	if head, ok := snake.Head(); ok {
		for _, f := range state.Food {
			if d := head.Manhattan(f); d < dist {
				dist = d
			}
		}
	}

	staleMs := int64(priorityStalenessCapMs)
	if last, ok := s.decidedAt[snake.ID]; ok {
		staleMs = now.Sub(last).Milliseconds()
		if staleMs < 0 {
			staleMs = 0
		}
		if staleMs > priorityStalenessCapMs {
			staleMs = priorityStalenessCapMs
		}
	}

	priority := float64(span-dist) * priorityDistanceWeight
	priority += snake.Personality.Aggression * priorityAggressionWeight
	priority += float64(staleMs) / priorityStalenessCapMs
	return priority
}

func (s *Scheduler) evictLowest() {
	var victim *pendingCalculation
	for _, p := range s.queue {
		if victim == nil || p.priority < victim.priority ||
			(p.priority == victim.priority && p.seq < victim.seq) {
			victim = p
		}
	}
	if victim != nil {
		delete(s.queue, victim.snakeID)
		s.evictions++
	}
}

// ProcessNext runs at most one pending calculation and reports whether it
// did. It declines when the current tick is outside the throttle window,
// the queue is empty, the per-frame cap is reached, or the spend share of
// the frame budget has already elapsed.
func (s *Scheduler) ProcessNext() bool {
	if s.tick%s.cfg.ThrottleInterval != 0 {
		return false
	}
	if len(s.queue) == 0 {
		return false
	}
	if s.frameCalcs >= s.perFrameCap {
		return false
	}
	spendGate := time.Duration(float64(s.cfg.FrameBudget) * s.cfg.BudgetSpendFrac)
	if s.clock.Now().Sub(s.frameStart) >= spendGate {
		return false
	}

	p := s.pop()
	s.frameCalcs++
	s.run(p)
	return true
}

// pop removes and returns the highest-priority entry. Equal priorities
// rotate round-robin via the least recently served snake; remaining ties
// go to the older request.
func (s *Scheduler) pop() *pendingCalculation {
	var best *pendingCalculation
	var bestServed uint64
	for _, p := range s.queue {
		if best == nil {
			best, bestServed = p, s.lastServed[p.snakeID]
			continue
		}
		served := s.lastServed[p.snakeID]
		if p.priority > best.priority ||
			(p.priority == best.priority && served < bestServed) ||
			(p.priority == best.priority && served == bestServed && p.seq < best.seq) {
			best, bestServed = p, served
		}
	}
	delete(s.queue, best.snakeID)
	return best
}

func (s *Scheduler) run(p *pendingCalculation) {
	started := s.clock.Now()
	result := s.decide(p)
	finished := s.clock.Now()
	elapsed := finished.Sub(started)
	ms := durationMs(elapsed)

	s.totalCalcs++
	s.avgCalcMs += (ms - s.avgCalcMs) / float64(s.totalCalcs)

	// Advisory timeout: the late result still applies, only the counter
	// and the controller's future budgeting react.
	if elapsed > s.cfg.MaxCalcTime {
		s.timeouts++
	}
	if result.UsedFallback {
		s.fallbacks++
	}

	s.decisions[p.snakeID] = Decision{
		SnakeID:       p.snakeID,
		Direction:     result.Direction,
		CalculationMs: ms,
		UsedFallback:  result.UsedFallback,
		Tick:          s.tick,
	}
	s.decidedAt[p.snakeID] = finished
	s.serveSeq++
	s.lastServed[p.snakeID] = s.serveSeq

	if finished.Sub(s.frameStart) > s.cfg.FrameBudget {
		s.frameOverruns++
		s.overrunsSinceTrim++
	}
	s.adapt()
}

// decide shields the scheduler from engine failures: a panic during
// scoring becomes a fallback decision and a counter bump.
func (s *Scheduler) decide(p *pendingCalculation) (result Result) {
	defer func() {
		if recover() != nil {
			result = Result{Direction: s.cfg.Fallback, UsedFallback: true}
		}
	}()
	return s.engine.Decide(p.snake, p.state)
}

// adapt re-estimates how many calculations fit in the adaptive share of
// the frame budget given the observed average cost, clamped to [1,4].
// Accumulated frame overruns past the threshold shrink the cap by one and
// reset the accumulation. Additive heuristics, not a hard guarantee.
func (s *Scheduler) adapt() {
	previous := s.perFrameCap
	limit := previous
	if s.avgCalcMs > 0 {
		budgetMs := durationMs(s.cfg.FrameBudget) * s.cfg.AdaptiveFrac
		limit = clampCap(int(budgetMs / s.avgCalcMs))
	}
	if s.overrunsSinceTrim >= s.cfg.OverrunThreshold {
		s.overrunsSinceTrim = 0
		limit = clampCap(limit - 1)
	}
	s.perFrameCap = limit
	if limit != previous {
		s.adaptiveAdjusts++
	}
}

// DirectionFor returns the snake's last decided direction, or the
// configured fallback when no decision exists yet. Freshly spawned and
// never-scheduled snakes therefore still move.
func (s *Scheduler) DirectionFor(id string) grid.Direction {
	if d, ok := s.decisions[id]; ok {
		return d.Direction
	}
	return s.cfg.Fallback
}

// DecisionFor returns the stored decision for the snake, if any.
func (s *Scheduler) DecisionFor(id string) (Decision, bool) {
	d, ok := s.decisions[id]
	return d, ok
}

// Metrics snapshots the performance counters.
func (s *Scheduler) Metrics() Metrics {
	return Metrics{
		TotalCalculations:    s.totalCalcs,
		AverageCalculationMs: s.avgCalcMs,
		QueueSize:            len(s.queue),
		Timeouts:             s.timeouts,
		Fallbacks:            s.fallbacks,
		FrameOverruns:        s.frameOverruns,
		AdaptiveAdjustments:  s.adaptiveAdjusts,
	}
}

// Stats exposes queue, controller, and cache introspection.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		Tick:        s.tick,
		PerFrameCap: s.perFrameCap,
		FrameCalcs:  s.frameCalcs,
		QueueLen:    len(s.queue),
		Decisions:   len(s.decisions),
		Evictions:   s.evictions,
		Engine:      s.engine.Stats(),
		Config:      s.cfg,
	}
}

// PendingIDs lists queued snake ids in stable order.
func (s *Scheduler) PendingIDs() []string {
	ids := make([]string, 0, len(s.queue))
	for id := range s.queue {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// UpdateConfig overlays the non-zero fields of patch onto the running
// configuration and propagates them to the engine. An explicit
// MaxPerFrame resets the adaptive cap.
func (s *Scheduler) UpdateConfig(patch Config) {
	s.cfg = s.cfg.merged(patch)
	s.clock = s.cfg.Clock
	if patch.MaxPerFrame > 0 {
		s.perFrameCap = clampCap(s.cfg.MaxPerFrame)
	}
	s.engine.UpdateConfig(patch)
}

// Clear drops all pending work and stored decisions. Counters and the
// tick counter survive; caches are untouched (see ClearCaches).
func (s *Scheduler) Clear() {
	s.queue = make(map[string]*pendingCalculation)
	s.decisions = make(map[string]Decision)
	s.decidedAt = make(map[string]time.Time)
	s.lastServed = make(map[string]uint64)
}

// ClearCaches drops the engine's direction memo and occupancy cache.
func (s *Scheduler) ClearCaches() {
	s.engine.ClearCaches()
}
