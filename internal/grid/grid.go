// Package grid supplies the cell arithmetic shared by the arena, the AI
// core, and the wire protocol: integer positions, board bounds, and a
// closed enumeration of the four cardinal movement directions.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownDirection reports a direction string outside the enumeration.
var ErrUnknownDirection = errors.New("grid: unknown direction")

// Position is one cell on the board. The origin is the top-left corner;
// Y grows downward, matching the client's canvas coordinates.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key renders the position in the "x,y" form used as occupancy-set and
// cache keys.
func (p Position) Key() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Manhattan returns the L1 distance to o.
func (p Position) Manhattan(o Position) int {
	return abs(p.X-o.X) + abs(p.Y-o.Y)
}

// Chebyshev returns the L∞ distance to o: the radius of the smallest
// square neighborhood of p containing o.
func (p Position) Chebyshev(o Position) int {
	dx := abs(p.X - o.X)
	dy := abs(p.Y - o.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Bounds is the playable area. Valid cells run [0,Width) × [0,Height).
type Bounds struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Contains reports whether p lies on the board.
func (b Bounds) Contains(p Position) bool {
	return p.X >= 0 && p.X < b.Width && p.Y >= 0 && p.Y < b.Height
}

// EdgeDistance returns how many cells separate p from the nearest wall;
// zero means p sits on the perimeter. Out-of-bounds positions report a
// negative distance.
func (b Bounds) EdgeDistance(p Position) int {
	d := p.X
	if v := p.Y; v < d {
		d = v
	}
	if v := b.Width - 1 - p.X; v < d {
		d = v
	}
	if v := b.Height - 1 - p.Y; v < d {
		d = v
	}
	return d
}

// Cells returns the board area.
func (b Bounds) Cells() int {
	if b.Width <= 0 || b.Height <= 0 {
		return 0
	}
	return b.Width * b.Height
}

// Direction is a closed enumeration of the four cardinal moves. The zero
// value is not a valid direction; configuration patches rely on it to
// mean "unset".
type Direction uint8

const (
	Up Direction = iota + 1
	Down
	Left
	Right
)

// Directions lists the valid directions in the fixed order used to break
// scoring ties.
var Directions = [4]Direction{Up, Down, Left, Right}

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	return d >= Up && d <= Right
}

// Opposite returns the reverse of d. Invalid values map to themselves so
// the reversal exclusion stays a no-op for snakes without a heading.
func (d Direction) Opposite() Direction {
	switch d {
	case Up:
		return Down
	case Down:
		return Up
	case Left:
		return Right
	case Right:
		return Left
	}
	return d
}

// Step returns the neighboring cell one move from p in direction d.
// Invalid directions leave p unchanged.
func (d Direction) Step(p Position) Position {
	switch d {
	case Up:
		return Position{X: p.X, Y: p.Y - 1}
	case Down:
		return Position{X: p.X, Y: p.Y + 1}
	case Left:
		return Position{X: p.X - 1, Y: p.Y}
	case Right:
		return Position{X: p.X + 1, Y: p.Y}
	}
	return p
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "invalid"
}

// ParseDirection maps the wire form back onto the enumeration.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, s)
}

// MarshalJSON renders the direction as its lowercase name.
func (d Direction) MarshalJSON() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("grid: cannot marshal invalid direction %d", uint8(d))
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts the lowercase names produced by MarshalJSON.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
