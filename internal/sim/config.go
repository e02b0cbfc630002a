// Package sim owns the authoritative arena state and drives it forward
// one tick at a time. Each Step runs the decision pipeline, moves every
// snake, resolves collisions, respawns the fallen, and keeps the food
// supply topped up.
package sim

import (
	"time"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/grid"
)

const (
	DefaultWidth             = 25
	DefaultHeight            = 25
	DefaultInitialSnakes     = 6
	DefaultSnakeLength       = 3
	DefaultMinFoodPerSnake   = 1
	DefaultRespawnDelayTicks = 40
)

// Config carries the world tunables. Zero fields take defaults.
type Config struct {
	Bounds            grid.Bounds `json:"bounds"`
	InitialSnakes     int         `json:"initialSnakes"`
	SnakeLength       int         `json:"snakeLength"`
	MinFoodPerSnake   int         `json:"minFoodPerSnake"`
	RespawnDelayTicks uint64      `json:"respawnDelayTicks"`
	Seed              int64       `json:"seed"`

	AI ai.Config `json:"ai"`

	Clock ai.Clock `json:"-"`
}

func DefaultConfig() Config {
	return Config{
		Bounds:            grid.Bounds{Width: DefaultWidth, Height: DefaultHeight},
		InitialSnakes:     DefaultInitialSnakes,
		SnakeLength:       DefaultSnakeLength,
		MinFoodPerSnake:   DefaultMinFoodPerSnake,
		RespawnDelayTicks: DefaultRespawnDelayTicks,
	}
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.Bounds.Width <= 0 {
		c.Bounds.Width = def.Bounds.Width
	}
	if c.Bounds.Height <= 0 {
		c.Bounds.Height = def.Bounds.Height
	}
	if c.InitialSnakes <= 0 {
		c.InitialSnakes = def.InitialSnakes
	}
	if c.SnakeLength <= 0 {
		c.SnakeLength = def.SnakeLength
	}
	if c.MinFoodPerSnake <= 0 {
		c.MinFoodPerSnake = def.MinFoodPerSnake
	}
	if c.RespawnDelayTicks == 0 {
		c.RespawnDelayTicks = def.RespawnDelayTicks
	}
	if c.Clock == nil {
		c.Clock = ai.ClockFunc(time.Now)
	}
	c.AI.Clock = c.Clock
	if c.AI.Seed == 0 {
		c.AI.Seed = c.Seed
	}
	return c
}
