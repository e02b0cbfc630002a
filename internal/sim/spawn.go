package sim

import (
	"context"
	"fmt"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
	"serpent-arena/server/logging"
	"serpent-arena/server/logging/lifecycle"
)

// placementAttempts bounds the rejection sampling used for spawn and
// food placement. A 25×25 board with six three-segment snakes leaves
// hundreds of free cells, so exhaustion means the board is genuinely
// packed.
const placementAttempts = 64

func (w *World) spawnInitial(ctx context.Context) {
	for i := 0; i < w.cfg.InitialSnakes; i++ {
		w.nextID++
		id := fmt.Sprintf("snake-%d", w.nextID)
		w.state.Snakes = append(w.state.Snakes, arena.Snake{
			ID:          id,
			AI:          true,
			Personality: w.pickPersonality(id),
		})
		if !w.placeSnake(ctx, 0, len(w.state.Snakes)-1, false) {
			// No room this tick; respawnDue keeps trying.
			w.respawnAt[id] = 1
		}
	}
}

func (w *World) pickPersonality(id string) arena.Personality {
	if preset, ok := w.library.Random(w.rng); ok {
		w.presets[id] = preset.ID
		return preset.Traits
	}
	return arena.Personality{Aggression: 0.5, Intelligence: 0.5, Patience: 0.5}
}

// placeSnake lays a fresh body for the snake at idx: a random head with
// the remaining segments trailing opposite a random heading, all on
// board and off every occupied cell. Reports false when no placement
// was found this tick; the caller retries on a later one. respawn
// selects which lifecycle event announces the placement.
func (w *World) placeSnake(ctx context.Context, tick uint64, idx int, respawn bool) bool {
	s := &w.state.Snakes[idx]
	occupied := w.occupiedCells()
	length := w.cfg.SnakeLength

	for attempt := 0; attempt < placementAttempts; attempt++ {
		heading := grid.Directions[w.rng.Intn(len(grid.Directions))]
		back := heading.Opposite()
		segments := make([]grid.Position, 0, length)
		cell := grid.Position{
			X: w.rng.Intn(w.cfg.Bounds.Width),
			Y: w.rng.Intn(w.cfg.Bounds.Height),
		}
		fits := true
		for i := 0; i < length; i++ {
			if !w.cfg.Bounds.Contains(cell) || occupied[cell] {
				fits = false
				break
			}
			segments = append(segments, cell)
			cell = back.Step(cell)
		}
		if !fits {
			continue
		}

		s.Segments = segments
		s.Heading = heading
		s.Alive = true
		actor := logging.EntityRef{ID: s.ID, Kind: logging.EntityKindSnake}
		if respawn {
			lifecycle.SnakeRespawned(ctx, w.pub, tick, actor,
				lifecycle.SnakeRespawnedPayload{
					SpawnX: segments[0].X,
					SpawnY: segments[0].Y,
					Preset: w.presets[s.ID],
					Length: length,
				}, nil)
		} else {
			lifecycle.SnakeSpawned(ctx, w.pub, tick, actor,
				lifecycle.SnakeSpawnedPayload{
					SpawnX: segments[0].X,
					SpawnY: segments[0].Y,
					Preset: w.presets[s.ID],
					Length: length,
				}, nil)
		}
		return true
	}
	return false
}

// occupiedCells collects every cell covered by a snake body or a food
// pellet.
func (w *World) occupiedCells() map[grid.Position]bool {
	cells := make(map[grid.Position]bool)
	for i := range w.state.Snakes {
		for _, seg := range w.state.Snakes[i].Segments {
			cells[seg] = true
		}
	}
	for _, f := range w.state.Food {
		cells[f] = true
	}
	return cells
}
