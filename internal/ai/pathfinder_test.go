package ai

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
)

func newTestEngine(clock Clock, patch Config) *Engine {
	patch.Clock = clock
	if patch.Seed == 0 {
		patch.Seed = 42
	}
	return NewEngine(patch)
}

func aiSnake(id string, heading grid.Direction, p arena.Personality, segments ...grid.Position) arena.Snake {
	return arena.Snake{
		ID:          id,
		Segments:    segments,
		Heading:     heading,
		Alive:       true,
		AI:          true,
		Personality: p,
	}
}

func stateOf(bounds grid.Bounds, tick uint64, snakes []arena.Snake, food ...grid.Position) arena.State {
	return arena.State{Snakes: snakes, Food: food, Bounds: bounds, Tick: tick}
}

var board25 = grid.Bounds{Width: 25, Height: 25}

func TestDecideDeadOrEmptySnakeFallsBack(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})

	dead := aiSnake("snake-1", grid.Right, arena.Personality{}, grid.Position{X: 5, Y: 5})
	dead.Alive = false
	res := engine.Decide(dead, stateOf(board25, 1, []arena.Snake{dead}))
	require.True(t, res.UsedFallback)
	require.Equal(t, DefaultFallbackDirection, res.Direction)

	empty := aiSnake("snake-2", grid.Right, arena.Personality{})
	res = engine.Decide(empty, stateOf(board25, 1, []arena.Snake{empty}))
	require.True(t, res.UsedFallback)
	require.Equal(t, DefaultFallbackDirection, res.Direction)
}

func TestDecideNeverReverses(t *testing.T) {
	center := grid.Position{X: 12, Y: 12}
	for _, heading := range grid.Directions {
		for seed := int64(1); seed <= 20; seed++ {
			engine := newTestEngine(newTestClock(), Config{Seed: seed})
			body := heading.Opposite().Step(center)
			snake := aiSnake("snake-1", heading, arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}, center, body)

			res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake}))
			require.NotEqual(t, heading.Opposite(), res.Direction,
				"heading %s seed %d reversed", heading, seed)
		}
	}
}

// Head at (0,5) heading left on an empty board: left exits the bounds and
// right is the forbidden reversal, so only up and down remain.
func TestWallAheadTurnsUpOrDown(t *testing.T) {
	balanced := arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}
	for seed := int64(1); seed <= 10; seed++ {
		engine := newTestEngine(newTestClock(), Config{Seed: seed})
		snake := aiSnake("snake-1", grid.Left, balanced,
			grid.Position{X: 0, Y: 5}, grid.Position{X: 1, Y: 5})

		res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake}))
		require.Contains(t, []grid.Direction{grid.Up, grid.Down}, res.Direction, "seed %d", seed)
		require.False(t, res.UsedFallback)
	}
}

// With full intelligence the jitter term vanishes and the up/down tie
// resolves by enumeration order.
func TestWallAheadTieBreaksInEnumerationOrder(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	sharp := arena.Personality{Aggression: 0.5, Intelligence: 1, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Left, sharp,
		grid.Position{X: 0, Y: 5}, grid.Position{X: 1, Y: 5})

	res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake}))
	require.Equal(t, grid.Up, res.Direction)
}

// Head at (8,5) heading right with food at (10,5) on a clear board: the
// food term dominates and the snake keeps going right.
func TestFoodAheadKeepsHeading(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	hungry := arena.Personality{Aggression: 0.8, Intelligence: 0.9, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Right, hungry,
		grid.Position{X: 8, Y: 5}, grid.Position{X: 7, Y: 5})

	res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 10, Y: 5}))
	require.Equal(t, grid.Right, res.Direction)
	require.False(t, res.UsedFallback)
}

func TestZeroSafeDirectionsKeepHeading(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	dull := arena.Personality{Aggression: 0.5, Intelligence: 0, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Up, dull,
		grid.Position{X: 5, Y: 5}, grid.Position{X: 5, Y: 6})
	blocker := arena.Snake{
		ID:    "wall",
		Alive: true,
		Segments: []grid.Position{
			{X: 5, Y: 4}, {X: 4, Y: 5}, {X: 6, Y: 5},
		},
	}

	res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake, blocker}))
	require.Equal(t, grid.Up, res.Direction)
	require.False(t, res.UsedFallback)
}

func TestSingleSafeDirectionTaken(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	dull := arena.Personality{Aggression: 0.5, Intelligence: 0, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Up, dull,
		grid.Position{X: 5, Y: 5}, grid.Position{X: 5, Y: 6})
	blocker := arena.Snake{
		ID:       "wall",
		Alive:    true,
		Segments: []grid.Position{{X: 5, Y: 4}, {X: 4, Y: 5}},
	}

	res := engine.Decide(snake, stateOf(board25, 1, []arena.Snake{snake, blocker}))
	require.Equal(t, grid.Right, res.Direction)
}

// A crowded cell passes the plain occupancy check but fails the
// constriction check for intelligent snakes. Dull snakes walk right in.
func TestConstrictionAvoidanceIsIntelligenceGated(t *testing.T) {
	crowd := arena.Snake{
		ID:       "crowd",
		Alive:    true,
		Segments: []grid.Position{{X: 8, Y: 4}, {X: 8, Y: 5}, {X: 8, Y: 6}},
	}
	food := grid.Position{X: 7, Y: 5}

	dull := aiSnake("snake-1", grid.Right,
		arena.Personality{Aggression: 1, Intelligence: 0, Patience: 0},
		grid.Position{X: 5, Y: 5}, grid.Position{X: 4, Y: 5})
	engine := newTestEngine(newTestClock(), Config{})
	res := engine.Decide(dull, stateOf(board25, 1, []arena.Snake{dull, crowd}, food))
	require.Equal(t, grid.Right, res.Direction)

	careful := aiSnake("snake-2", grid.Right,
		arena.Personality{Aggression: 1, Intelligence: 0.9, Patience: 0},
		grid.Position{X: 5, Y: 5}, grid.Position{X: 4, Y: 5})
	engine = newTestEngine(newTestClock(), Config{})
	res = engine.Decide(careful, stateOf(board25, 1, []arena.Snake{careful, crowd}, food))
	require.NotEqual(t, grid.Right, res.Direction)
	require.False(t, res.UsedFallback)
}

// Within the TTL an unchanged local neighborhood must produce the
// identical direction without recomputation.
func TestDecideMemoHitSkipsRecomputation(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock, Config{})
	balanced := arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Right, balanced,
		grid.Position{X: 12, Y: 12}, grid.Position{X: 11, Y: 12})
	state := stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 14, Y: 12})

	first := engine.Decide(snake, state)
	require.False(t, first.FromCache)

	clock.advance(150 * time.Millisecond)
	second := engine.Decide(snake, state)
	require.True(t, second.FromCache)
	require.Equal(t, first.Direction, second.Direction)

	stats := engine.Stats()
	require.Equal(t, uint64(1), stats.CacheHits)
	require.Equal(t, uint64(1), stats.CacheMisses)
}

func TestDecideMemoExpiresAfterTTL(t *testing.T) {
	clock := newTestClock()
	engine := newTestEngine(clock, Config{})
	sharp := arena.Personality{Aggression: 0.5, Intelligence: 1, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Right, sharp,
		grid.Position{X: 12, Y: 12}, grid.Position{X: 11, Y: 12})
	state := stateOf(board25, 1, []arena.Snake{snake})

	first := engine.Decide(snake, state)
	clock.advance(201 * time.Millisecond)
	second := engine.Decide(snake, state)

	require.False(t, second.FromCache)
	require.Equal(t, first.Direction, second.Direction)
	require.Equal(t, uint64(2), engine.Stats().CacheMisses)
}

// Only food within the fingerprint radius is part of the memo key: far
// food may move freely without invalidating a cached decision, nearby
// food may not.
func TestMemoFingerprintTracksNearbyFoodOnly(t *testing.T) {
	balanced := arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}
	head := grid.Position{X: 12, Y: 12}
	body := grid.Position{X: 11, Y: 12}

	engine := newTestEngine(newTestClock(), Config{})
	snake := aiSnake("snake-1", grid.Right, balanced, head, body)
	far := stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 20, Y: 20})
	engine.Decide(snake, far)
	farMoved := stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 21, Y: 20})
	res := engine.Decide(snake, farMoved)
	require.True(t, res.FromCache)

	engine = newTestEngine(newTestClock(), Config{})
	near := stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 14, Y: 12})
	engine.Decide(snake, near)
	nearMoved := stateOf(board25, 1, []arena.Snake{snake}, grid.Position{X: 14, Y: 13})
	res = engine.Decide(snake, nearMoved)
	require.False(t, res.FromCache)
}

func TestClearCachesDropsMemo(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	balanced := arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}
	snake := aiSnake("snake-1", grid.Right, balanced,
		grid.Position{X: 12, Y: 12}, grid.Position{X: 11, Y: 12})
	state := stateOf(board25, 1, []arena.Snake{snake})

	engine.Decide(snake, state)
	require.Equal(t, 1, engine.Stats().MemoEntries)

	engine.ClearCaches()
	require.Equal(t, 0, engine.Stats().MemoEntries)

	engine.Decide(snake, state)
	require.Equal(t, uint64(2), engine.Stats().CacheMisses)
}

func TestUpdateConfigChangesFallback(t *testing.T) {
	engine := newTestEngine(newTestClock(), Config{})
	engine.UpdateConfig(Config{Fallback: grid.Left})
	require.Equal(t, grid.Left, engine.Config().Fallback)

	dead := arena.Snake{ID: "snake-1", AI: true}
	res := engine.Decide(dead, stateOf(board25, 1, []arena.Snake{dead}))
	require.True(t, res.UsedFallback)
	require.Equal(t, grid.Left, res.Direction)
}

// Sweep random boards: whenever a plainly safe candidate exists the
// engine must pick one, and it must never reverse. Intelligence stays
// below the gate so the only filters are bounds and occupancy.
func TestDecidePicksSafeWhenSafeExists(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dullish := arena.Personality{Aggression: 0.6, Intelligence: 0.3, Patience: 0.4}

	for i := 0; i < 200; i++ {
		engine := newTestEngine(newTestClock(), Config{Seed: int64(i + 1)})

		head := grid.Position{X: 3 + rng.Intn(19), Y: 3 + rng.Intn(19)}
		heading := grid.Directions[rng.Intn(len(grid.Directions))]
		neck := heading.Opposite().Step(head)
		tail := heading.Opposite().Step(neck)
		snake := aiSnake("snake-1", heading, dullish, head, neck, tail)

		other := arena.Snake{ID: "other", Alive: true}
		for j := 0; j < 8; j++ {
			other.Segments = append(other.Segments, grid.Position{
				X: rng.Intn(board25.Width),
				Y: rng.Intn(board25.Height),
			})
		}

		state := stateOf(board25, uint64(i), []arena.Snake{snake, other})
		res := engine.Decide(snake, state)

		require.NotEqual(t, heading.Opposite(), res.Direction, "case %d reversed", i)

		occupied := map[grid.Position]bool{}
		for _, s := range state.Snakes {
			for _, seg := range s.Segments {
				occupied[seg] = true
			}
		}
		safeExists := false
		for _, d := range grid.Directions {
			if d == heading.Opposite() {
				continue
			}
			next := d.Step(head)
			if board25.Contains(next) && !occupied[next] {
				safeExists = true
				break
			}
		}
		if safeExists {
			next := res.Direction.Step(head)
			require.True(t, board25.Contains(next), "case %d walked out of bounds", i)
			require.False(t, occupied[next], "case %d walked into a body", i)
		}
	}
}
