package ai

import (
	"encoding/binary"
	"hash/fnv"
	"time"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
)

// StateCache memoizes which cells are covered by a live snake so repeated
// safety checks avoid rescanning every body. Reads answer from the last
// build unless a staleness trigger fires: the cache was never built or was
// invalidated, it outlived its max age, the tick counter jumped by more
// than one, the snake roster changed size, or any snake's change hash
// moved. Deciding whether to rebuild costs one hash comparison per snake;
// the rebuild itself costs one pass over every segment.
type StateCache struct {
	maxAge time.Duration
	clock  Clock

	occupied map[string]struct{}
	heads    map[string]grid.Position
	bodies   map[string][]grid.Position
	hashes   map[string]uint64

	builtTick uint64
	builtAt   time.Time
	valid     bool

	rebuilds uint64
	serves   uint64
}

// CacheStats describes the occupancy cache for diagnostics.
type CacheStats struct {
	Rebuilds  uint64  `json:"rebuilds"`
	Serves    uint64  `json:"serves"`
	Cells     int     `json:"cells"`
	Snakes    int     `json:"snakes"`
	BuiltTick uint64  `json:"builtTick"`
	AgeMs     float64 `json:"ageMs"`
}

// NewStateCache builds an empty cache. Zero maxAge and nil clock fall
// back to the defaults.
func NewStateCache(maxAge time.Duration, clock Clock) *StateCache {
	if maxAge <= 0 {
		maxAge = DefaultOccupancyMaxAge
	}
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	return &StateCache{
		maxAge:   maxAge,
		clock:    clock,
		occupied: make(map[string]struct{}),
		heads:    make(map[string]grid.Position),
		bodies:   make(map[string][]grid.Position),
		hashes:   make(map[string]uint64),
	}
}

// Occupied returns the set of cells covered by live snakes at the given
// tick, rebuilding first when stale. The returned map is the cache's own;
// callers must not mutate it.
func (c *StateCache) Occupied(snakes []arena.Snake, tick uint64) map[string]struct{} {
	c.sync(snakes, tick)
	return c.occupied
}

// IsOccupied reports whether pos is covered by any live snake.
func (c *StateCache) IsOccupied(pos grid.Position, snakes []arena.Snake, tick uint64) bool {
	c.sync(snakes, tick)
	_, ok := c.occupied[pos.Key()]
	return ok
}

// OccupiedNeighbors counts occupied cells in the square neighborhood of
// radius r around pos, excluding pos itself.
func (c *StateCache) OccupiedNeighbors(pos grid.Position, radius int, snakes []arena.Snake, tick uint64) int {
	if radius <= 0 {
		return 0
	}
	c.sync(snakes, tick)
	count := 0
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			key := grid.Position{X: pos.X + dx, Y: pos.Y + dy}.Key()
			if _, ok := c.occupied[key]; ok {
				count++
			}
		}
	}
	return count
}

// Heads returns the live snakes' head positions keyed by id. Read-only,
// same freshness rules as Occupied.
func (c *StateCache) Heads(snakes []arena.Snake, tick uint64) map[string]grid.Position {
	c.sync(snakes, tick)
	return c.heads
}

// OwnerAt returns the id of the live snake covering pos, or "" when the
// cell is free.
func (c *StateCache) OwnerAt(pos grid.Position, snakes []arena.Snake, tick uint64) string {
	c.sync(snakes, tick)
	for id, body := range c.bodies {
		for _, seg := range body {
			if seg == pos {
				return id
			}
		}
	}
	return ""
}

// Invalidate forces the next read to rebuild.
func (c *StateCache) Invalidate() {
	c.valid = false
}

// SetMaxAge adjusts the staleness bound for subsequent reads.
func (c *StateCache) SetMaxAge(maxAge time.Duration) {
	if maxAge > 0 {
		c.maxAge = maxAge
	}
}

// Stats reports cache activity for diagnostics.
func (c *StateCache) Stats() CacheStats {
	age := 0.0
	if c.valid {
		age = durationMs(c.clock.Now().Sub(c.builtAt))
	}
	return CacheStats{
		Rebuilds:  c.rebuilds,
		Serves:    c.serves,
		Cells:     len(c.occupied),
		Snakes:    len(c.hashes),
		BuiltTick: c.builtTick,
		AgeMs:     age,
	}
}

func (c *StateCache) sync(snakes []arena.Snake, tick uint64) {
	c.serves++
	if c.needsRebuild(snakes, tick) {
		c.rebuild(snakes, tick)
	}
}

func (c *StateCache) needsRebuild(snakes []arena.Snake, tick uint64) bool {
	if !c.valid {
		return true
	}
	if c.clock.Now().Sub(c.builtAt) > c.maxAge {
		return true
	}
	if tickGap(tick, c.builtTick) > 1 {
		return true
	}
	if len(snakes) != len(c.hashes) {
		return true
	}
	for i := range snakes {
		prev, ok := c.hashes[snakes[i].ID]
		if !ok || prev != snakeHash(snakes[i]) {
			return true
		}
	}
	return false
}

func (c *StateCache) rebuild(snakes []arena.Snake, tick uint64) {
	c.occupied = make(map[string]struct{})
	c.heads = make(map[string]grid.Position)
	c.bodies = make(map[string][]grid.Position)
	c.hashes = make(map[string]uint64, len(snakes))

	for i := range snakes {
		s := &snakes[i]
		c.hashes[s.ID] = snakeHash(*s)
		if !s.Alive || len(s.Segments) == 0 {
			continue
		}
		c.heads[s.ID] = s.Segments[0]
		c.bodies[s.ID] = append([]grid.Position(nil), s.Segments...)
		for _, seg := range s.Segments {
			c.occupied[seg.Key()] = struct{}{}
		}
	}

	c.builtTick = tick
	c.builtAt = c.clock.Now()
	c.valid = true
	c.rebuilds++
}

// snakeHash fingerprints the fields whose change must invalidate cached
// occupancy: identity, liveness, and the exact body cells.
func snakeHash(s arena.Snake) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.ID))
	var buf [8]byte
	if s.Alive {
		buf[0] = 1
	}
	h.Write(buf[:1])
	for _, seg := range s.Segments {
		binary.LittleEndian.PutUint32(buf[0:4], uint32(int32(seg.X)))
		binary.LittleEndian.PutUint32(buf[4:8], uint32(int32(seg.Y)))
		h.Write(buf[:])
	}
	return h.Sum64()
}

func tickGap(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
