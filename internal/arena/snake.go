// Package arena defines the domain value types the AI core consumes: the
// snakes, the food, and the immutable per-tick state snapshot.
package arena

import "serpent-arena/server/internal/grid"

// Snake is one serpent on the board. Segments run head-first; the tail is
// the final element. A snake with no segments is malformed input and is
// handled by defaulting, never by panicking.
type Snake struct {
	ID          string          `json:"id"`
	Segments    []grid.Position `json:"segments"`
	Heading     grid.Direction  `json:"heading,omitempty"`
	Alive       bool            `json:"alive"`
	AI          bool            `json:"ai"`
	Personality Personality     `json:"personality"`
}

// Head returns the lead segment, reporting false for empty bodies.
func (s Snake) Head() (grid.Position, bool) {
	if len(s.Segments) == 0 {
		return grid.Position{}, false
	}
	return s.Segments[0], true
}

// Length returns the body length in cells.
func (s Snake) Length() int {
	return len(s.Segments)
}

// Occupies reports whether any segment covers p.
func (s Snake) Occupies(p grid.Position) bool {
	for _, seg := range s.Segments {
		if seg == p {
			return true
		}
	}
	return false
}

// Clone deep-copies the snake so snapshots never alias live state.
func (s Snake) Clone() Snake {
	cloned := s
	if len(s.Segments) > 0 {
		cloned.Segments = append([]grid.Position(nil), s.Segments...)
	}
	return cloned
}
