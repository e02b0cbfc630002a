package sim

import "serpent-arena/server/internal/grid"

// eatFoodAt removes the pellet at p, reporting whether one was there.
func (w *World) eatFoodAt(p grid.Position) bool {
	for i, f := range w.state.Food {
		if f == p {
			w.state.Food = append(w.state.Food[:i], w.state.Food[i+1:]...)
			return true
		}
	}
	return false
}

// replenishFood tops the supply back up to the configured minimum per
// live snake.
func (w *World) replenishFood() {
	target := w.cfg.MinFoodPerSnake * w.state.LiveCount()
	for len(w.state.Food) < target {
		cell, ok := w.randomFreeCell()
		if !ok {
			return
		}
		w.state.Food = append(w.state.Food, cell)
	}
}

// randomFreeCell samples an unoccupied cell, giving up once the board is
// too crowded for rejection sampling to land.
func (w *World) randomFreeCell() (grid.Position, bool) {
	occupied := w.occupiedCells()
	if len(occupied) >= w.cfg.Bounds.Cells() {
		return grid.Position{}, false
	}
	for attempt := 0; attempt < placementAttempts; attempt++ {
		cell := grid.Position{
			X: w.rng.Intn(w.cfg.Bounds.Width),
			Y: w.rng.Intn(w.cfg.Bounds.Height),
		}
		if !occupied[cell] {
			return cell, true
		}
	}
	return grid.Position{}, false
}
