package ai

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
)

// Scoring weights. Tunable, not load-bearing: any reweighting that keeps
// food attraction dominant for hungry aggressors and danger dominant for
// intelligent snakes preserves the observable behavior.
const (
	foodWeight     = 1.0
	dangerWeight   = 1.0
	stabilityBonus = 0.15
	edgePenalty    = 0.25
	jitterWeight   = 0.1
	edgeMargin     = 1

	memoMaxEntries = 256
)

// Result is the outcome of one decision computation.
type Result struct {
	Direction    grid.Direction
	UsedFallback bool
	FromCache    bool
}

// EngineStats describes the engine's cache behavior for diagnostics.
type EngineStats struct {
	CacheHits   uint64     `json:"cacheHits"`
	CacheMisses uint64     `json:"cacheMisses"`
	MemoEntries int        `json:"memoEntries"`
	Occupancy   CacheStats `json:"occupancy"`
}

type memoEntry struct {
	dir grid.Direction
	at  time.Time
}

// Engine turns one snake plus a state snapshot into a movement direction.
// A decision costs one occupancy lookup per candidate cell plus
// constant-size scoring, with a short-TTL memo keyed by the snake's local
// situation in front of the whole computation. Decide never panics and
// never returns an unusable direction.
type Engine struct {
	cfg   Config
	clock Clock
	cache *StateCache
	memo  map[string]memoEntry
	rng   *rand.Rand

	hits   uint64
	misses uint64
}

// NewEngine builds an engine with its own occupancy cache.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.normalized()
	seed := cfg.Seed
	if seed == 0 {
		seed = cfg.Clock.Now().UnixNano()
	}
	return &Engine{
		cfg:   cfg,
		clock: cfg.Clock,
		cache: NewStateCache(cfg.OccupancyMaxAge, cfg.Clock),
		memo:  make(map[string]memoEntry),
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Decide returns a movement direction for the snake given the snapshot.
//
// Dead or empty snakes get the configured fallback immediately. Otherwise
// the memo is consulted; on a miss the engine enumerates the three
// non-reversing directions, filters them for safety, and either continues
// on its heading (nothing safe), takes the single safe option, or scores
// the survivors.
func (e *Engine) Decide(snake arena.Snake, state arena.State) Result {
	head, ok := snake.Head()
	if !snake.Alive || !ok {
		return Result{Direction: e.cfg.Fallback, UsedFallback: true}
	}

	key := memoKey(snake.ID, head, state.Food)
	now := e.clock.Now()
	if entry, hit := e.memo[key]; hit && now.Sub(entry.at) <= e.cfg.DirectionTTL {
		e.hits++
		return Result{Direction: entry.dir, FromCache: true}
	}
	e.misses++

	dir := e.compute(snake, head, state)
	e.remember(key, dir, now)
	return Result{Direction: dir}
}

// ClearCaches drops the direction memo and forces the next occupancy read
// to rebuild.
func (e *Engine) ClearCaches() {
	e.memo = make(map[string]memoEntry)
	e.cache.Invalidate()
}

// Stats reports cache activity.
func (e *Engine) Stats() EngineStats {
	return EngineStats{
		CacheHits:   e.hits,
		CacheMisses: e.misses,
		MemoEntries: len(e.memo),
		Occupancy:   e.cache.Stats(),
	}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// UpdateConfig overlays the non-zero fields of patch onto the running
// configuration. A changed seed reseeds the jitter source.
func (e *Engine) UpdateConfig(patch Config) {
	e.cfg = e.cfg.merged(patch)
	e.clock = e.cfg.Clock
	e.cache.SetMaxAge(e.cfg.OccupancyMaxAge)
	if patch.Seed != 0 {
		e.rng = rand.New(rand.NewSource(patch.Seed))
	}
}

func (e *Engine) compute(snake arena.Snake, head grid.Position, state arena.State) grid.Direction {
	// Opposite of an unset heading is unset, so the exclusion is a no-op
	// for snakes that have not moved yet and all four directions stay in
	// play.
	reverse := snake.Heading.Opposite()
	careful := snake.Personality.Intelligence >= e.cfg.IntelligenceGate

	var safe [4]grid.Direction
	n := 0
	for _, d := range grid.Directions {
		if d == reverse {
			continue
		}
		next := d.Step(head)
		if !state.Bounds.Contains(next) {
			continue
		}
		if e.cache.IsOccupied(next, state.Snakes, state.Tick) {
			continue
		}
		if careful && e.constricted(next, snake, state) {
			continue
		}
		safe[n] = d
		n++
	}

	switch n {
	case 0:
		// Boxed in: continue on the current heading rather than halt.
		if snake.Heading.Valid() {
			return snake.Heading
		}
		return e.cfg.Fallback
	case 1:
		return safe[0]
	}

	target, hasTarget := e.foodTarget(head, state, careful)

	best := safe[0]
	bestScore := math.Inf(-1)
	for _, d := range safe[:n] {
		score := e.score(d, snake, head, state, target, hasTarget, careful)
		if score > bestScore {
			best = d
			bestScore = score
		}
	}
	return best
}

// constricted rejects cells whose neighborhood holds more occupied
// neighbors than the safety margin allows. The snake's own trailing
// segments are discounted: they move with it, so the pockets that matter
// are made of other bodies.
func (e *Engine) constricted(next grid.Position, snake arena.Snake, state arena.State) bool {
	margin := e.cfg.SafetyMargin
	crowd := e.cache.OccupiedNeighbors(next, margin, state.Snakes, state.Tick)
	for _, seg := range snake.Segments {
		if seg != next && seg.Chebyshev(next) <= margin {
			crowd--
		}
	}
	return crowd > margin
}

func (e *Engine) score(d grid.Direction, snake arena.Snake, head grid.Position, state arena.State, target grid.Position, hasTarget, careful bool) float64 {
	next := d.Step(head)
	p := snake.Personality

	var score float64
	if hasTarget {
		score += foodWeight / float64(1+next.Manhattan(target)) * p.Aggression
	}

	density := float64(e.cache.OccupiedNeighbors(next, 1, state.Snakes, state.Tick)) / 8.0
	score -= dangerWeight * density * p.Intelligence

	if d == snake.Heading {
		score += stabilityBonus * p.Patience
	}

	if careful && state.Bounds.EdgeDistance(next) <= edgeMargin {
		score -= edgePenalty
	}

	score += (e.rng.Float64()*2 - 1) * jitterWeight * (1 - p.Intelligence)
	return score
}

// foodTarget picks the food the scorer steers toward: the nearest within
// the search radius, tie-broken toward clearer surroundings for careful
// snakes, else the globally nearest.
func (e *Engine) foodTarget(head grid.Position, state arena.State, careful bool) (grid.Position, bool) {
	if len(state.Food) == 0 {
		return grid.Position{}, false
	}

	bestIdx := -1
	bestDist := 0
	bestClear := 0
	for i, f := range state.Food {
		dist := head.Manhattan(f)
		if dist > e.cfg.FoodSearchRadius {
			continue
		}
		clear := 0
		if careful {
			clear = e.cache.OccupiedNeighbors(f, 1, state.Snakes, state.Tick)
		}
		switch {
		case bestIdx < 0 || dist < bestDist:
			bestIdx, bestDist, bestClear = i, dist, clear
		case careful && dist == bestDist && clear < bestClear:
			bestIdx, bestClear = i, clear
		}
	}
	if bestIdx >= 0 {
		return state.Food[bestIdx], true
	}

	nearest := state.Food[0]
	nearestDist := head.Manhattan(nearest)
	for _, f := range state.Food[1:] {
		if dist := head.Manhattan(f); dist < nearestDist {
			nearest, nearestDist = f, dist
		}
	}
	return nearest, true
}

func (e *Engine) remember(key string, dir grid.Direction, now time.Time) {
	if len(e.memo) >= memoMaxEntries {
		e.pruneMemo(now)
	}
	e.memo[key] = memoEntry{dir: dir, at: now}
}

// pruneMemo drops expired entries; if the memo is still oversized the
// whole map resets, which only costs recomputation.
func (e *Engine) pruneMemo(now time.Time) {
	for key, entry := range e.memo {
		if now.Sub(entry.at) > e.cfg.DirectionTTL {
			delete(e.memo, key)
		}
	}
	if len(e.memo) >= memoMaxEntries {
		e.memo = make(map[string]memoEntry)
	}
}

// memoKey fingerprints the inputs a cached decision depends on: which
// snake, where its head sits, and the sorted set of food within the
// fingerprint radius.
func memoKey(id string, head grid.Position, food []grid.Position) string {
	var sb strings.Builder
	sb.WriteString(id)
	sb.WriteByte('|')
	sb.WriteString(head.Key())
	sb.WriteByte('|')

	var nearby []string
	for _, f := range food {
		if head.Manhattan(f) <= fingerprintRadius {
			nearby = append(nearby, f.Key())
		}
	}
	sort.Strings(nearby)
	sb.WriteString(strings.Join(nearby, ";"))
	return sb.String()
}
