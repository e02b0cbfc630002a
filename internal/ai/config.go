// Package ai implements the decision core for autonomous snakes: a
// frame-budgeted scheduler that spreads pathfinding work across ticks, a
// heuristic direction engine, and the occupancy cache both lean on.
//
// Everything in this package runs on the driver goroutine. Nothing locks,
// blocks, or escapes an error in steady state: degraded outcomes surface
// through counters and fallback decisions instead.
package ai

import (
	"time"

	"serpent-arena/server/internal/grid"
)

// Clock supplies the scheduler's notion of time. Injecting it keeps
// budget gates and cache TTLs deterministic under test.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function into a Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time {
	return f()
}

// Defaults applied by Config.normalized. The frame budget matches one
// 60 Hz frame; the rest are tuning values, not correctness constraints.
const (
	DefaultThrottleInterval  = 3
	DefaultMaxQueueSize      = 12
	DefaultMaxPerFrame       = 2
	DefaultFrameBudget       = 16670 * time.Microsecond
	DefaultBudgetSpendFrac   = 0.8
	DefaultAdaptiveFrac      = 0.6
	DefaultMaxCalcTime       = 5 * time.Millisecond
	DefaultOccupancyMaxAge   = 100 * time.Millisecond
	DefaultDirectionTTL      = 200 * time.Millisecond
	DefaultFoodSearchRadius  = 10
	DefaultSafetyMargin      = 2
	DefaultIntelligenceGate  = 0.6
	DefaultOverrunThreshold  = 3
	DefaultFallbackDirection = grid.Up
)

// The adaptive per-frame cap is clamped to this window regardless of what
// the controller estimates.
const (
	minPerFrameCap = 1
	maxPerFrameCap = 4
)

// fingerprintRadius bounds the nearby-food neighborhood baked into
// direction-cache keys. Food beyond this distance does not affect a
// cached decision, so it does not invalidate one either.
const fingerprintRadius = 3

// Config carries every tunable for the scheduler, engine, and occupancy
// cache. All values are explicit construction parameters; the package
// keeps no global state. A zero field means "use the default", and on
// UpdateConfig it means "keep the current value".
type Config struct {
	// Fallback is served whenever no computed decision exists: unknown
	// ids, malformed snakes, and recovered calculation failures.
	Fallback grid.Direction `json:"fallback"`

	// ThrottleInterval is the number of ticks between processing
	// windows. Work only runs on ticks divisible by it.
	ThrottleInterval uint64 `json:"throttleInterval"`

	// MaxQueueSize bounds the pending queue; scheduling beyond it evicts
	// the lowest-priority, oldest entry.
	MaxQueueSize int `json:"maxQueueSize"`

	// MaxPerFrame seeds the adaptive per-frame calculation cap.
	MaxPerFrame int `json:"maxPerFrame"`

	// FrameBudget is the target frame time the controller protects.
	FrameBudget time.Duration `json:"frameBudget"`

	// BudgetSpendFrac stops new work once this share of FrameBudget has
	// elapsed in the current window.
	BudgetSpendFrac float64 `json:"budgetSpendFrac"`

	// AdaptiveFrac is the share of FrameBudget the controller fills when
	// re-estimating the per-frame cap.
	AdaptiveFrac float64 `json:"adaptiveFrac"`

	// MaxCalcTime is advisory: calculations past it are counted as
	// timeouts but their results still apply.
	MaxCalcTime time.Duration `json:"maxCalcTime"`

	// OccupancyMaxAge bounds how stale the occupancy cache may grow
	// before a read forces a rebuild.
	OccupancyMaxAge time.Duration `json:"occupancyMaxAge"`

	// DirectionTTL bounds reuse of memoized direction decisions.
	DirectionTTL time.Duration `json:"directionTTL"`

	// FoodSearchRadius limits the nearest-food target search before the
	// engine falls back to the globally nearest food.
	FoodSearchRadius int `json:"foodSearchRadius"`

	// SafetyMargin is both the radius of the constriction check and the
	// number of foreign occupied neighbors it tolerates. A snake's own
	// trailing segments never count toward constriction.
	SafetyMargin int `json:"safetyMargin"`

	// IntelligenceGate enables the careful behaviors (constriction
	// avoidance, edge penalty, clearance tie-breaks) for personalities
	// at or above it.
	IntelligenceGate float64 `json:"intelligenceGate"`

	// OverrunThreshold is how many frame-budget overruns accumulate
	// before the cap shrinks by one.
	OverrunThreshold int `json:"overrunThreshold"`

	// Seed drives the scoring jitter. Zero seeds from the clock.
	Seed int64 `json:"seed"`

	Clock Clock `json:"-"`
}

// DefaultConfig returns the tuning the server ships with.
func DefaultConfig() Config {
	return Config{
		Fallback:         DefaultFallbackDirection,
		ThrottleInterval: DefaultThrottleInterval,
		MaxQueueSize:     DefaultMaxQueueSize,
		MaxPerFrame:      DefaultMaxPerFrame,
		FrameBudget:      DefaultFrameBudget,
		BudgetSpendFrac:  DefaultBudgetSpendFrac,
		AdaptiveFrac:     DefaultAdaptiveFrac,
		MaxCalcTime:      DefaultMaxCalcTime,
		OccupancyMaxAge:  DefaultOccupancyMaxAge,
		DirectionTTL:     DefaultDirectionTTL,
		FoodSearchRadius: DefaultFoodSearchRadius,
		SafetyMargin:     DefaultSafetyMargin,
		IntelligenceGate: DefaultIntelligenceGate,
		OverrunThreshold: DefaultOverrunThreshold,
	}
}

// normalized fills zero fields from the defaults and clamps the rest
// into sane ranges. Constructors call it so a zero Config is usable.
func (c Config) normalized() Config {
	return DefaultConfig().merged(c)
}

// merged overlays the non-zero fields of patch onto c.
func (c Config) merged(patch Config) Config {
	out := c
	if patch.Fallback.Valid() {
		out.Fallback = patch.Fallback
	}
	if patch.ThrottleInterval > 0 {
		out.ThrottleInterval = patch.ThrottleInterval
	}
	if patch.MaxQueueSize > 0 {
		out.MaxQueueSize = patch.MaxQueueSize
	}
	if patch.MaxPerFrame > 0 {
		out.MaxPerFrame = clampCap(patch.MaxPerFrame)
	}
	if patch.FrameBudget > 0 {
		out.FrameBudget = patch.FrameBudget
	}
	if patch.BudgetSpendFrac > 0 {
		out.BudgetSpendFrac = clampFrac(patch.BudgetSpendFrac)
	}
	if patch.AdaptiveFrac > 0 {
		out.AdaptiveFrac = clampFrac(patch.AdaptiveFrac)
	}
	if patch.MaxCalcTime > 0 {
		out.MaxCalcTime = patch.MaxCalcTime
	}
	if patch.OccupancyMaxAge > 0 {
		out.OccupancyMaxAge = patch.OccupancyMaxAge
	}
	if patch.DirectionTTL > 0 {
		out.DirectionTTL = patch.DirectionTTL
	}
	if patch.FoodSearchRadius > 0 {
		out.FoodSearchRadius = patch.FoodSearchRadius
	}
	if patch.SafetyMargin > 0 {
		out.SafetyMargin = patch.SafetyMargin
	}
	if patch.IntelligenceGate > 0 {
		out.IntelligenceGate = clampFrac(patch.IntelligenceGate)
	}
	if patch.OverrunThreshold > 0 {
		out.OverrunThreshold = patch.OverrunThreshold
	}
	if patch.Seed != 0 {
		out.Seed = patch.Seed
	}
	if patch.Clock != nil {
		out.Clock = patch.Clock
	}
	if out.Clock == nil {
		out.Clock = ClockFunc(time.Now)
	}
	return out
}

func clampCap(v int) int {
	if v < minPerFrameCap {
		return minPerFrameCap
	}
	if v > maxPerFrameCap {
		return maxPerFrameCap
	}
	return v
}

func clampFrac(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
