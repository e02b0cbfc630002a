package arena

import "serpent-arena/server/internal/grid"

// State is the per-tick snapshot handed to the AI core. Producers build a
// fresh snapshot (or Clone one) each tick; the core treats it as
// read-only, so a snapshot scheduled on tick N stays coherent even when
// the decision runs frames later.
type State struct {
	Snakes []Snake         `json:"snakes"`
	Food   []grid.Position `json:"food"`
	Bounds grid.Bounds     `json:"bounds"`
	Tick   uint64          `json:"tick"`
}

// Clone deep-copies the snapshot, including every snake body.
func (s State) Clone() State {
	cloned := s
	if len(s.Snakes) > 0 {
		cloned.Snakes = make([]Snake, len(s.Snakes))
		for i := range s.Snakes {
			cloned.Snakes[i] = s.Snakes[i].Clone()
		}
	}
	if len(s.Food) > 0 {
		cloned.Food = append([]grid.Position(nil), s.Food...)
	}
	return cloned
}

// LiveCount returns how many snakes are alive.
func (s State) LiveCount() int {
	count := 0
	for i := range s.Snakes {
		if s.Snakes[i].Alive {
			count++
		}
	}
	return count
}

// SnakeByID returns the snake with the given id, reporting false when
// absent.
func (s State) SnakeByID(id string) (Snake, bool) {
	for i := range s.Snakes {
		if s.Snakes[i].ID == id {
			return s.Snakes[i], true
		}
	}
	return Snake{}, false
}
