package lifecycle

import (
	"context"

	"serpent-arena/server/logging"
)

const (
	// EventSnakeSpawned is emitted when a snake enters the arena.
	EventSnakeSpawned logging.EventType = "lifecycle.snake_spawned"
	// EventSnakeDied is emitted when a snake collides and dies.
	EventSnakeDied logging.EventType = "lifecycle.snake_died"
	// EventSnakeRespawned is emitted when a dead snake rejoins the arena.
	EventSnakeRespawned logging.EventType = "lifecycle.snake_respawned"
	// EventFoodConsumed is emitted when a snake grows through a pellet.
	EventFoodConsumed logging.EventType = "lifecycle.food_consumed"
)

// SnakeSpawnedPayload captures spawn placement and personality.
type SnakeSpawnedPayload struct {
	SpawnX int    `json:"spawnX"`
	SpawnY int    `json:"spawnY"`
	Preset string `json:"preset,omitempty"`
	Length int    `json:"length"`
}

// SnakeDiedPayload captures the cause of death.
type SnakeDiedPayload struct {
	Reason string `json:"reason"`
	Length int    `json:"length"`
}

// SnakeRespawnedPayload captures where a snake came back.
type SnakeRespawnedPayload struct {
	SpawnX int    `json:"spawnX"`
	SpawnY int    `json:"spawnY"`
	Preset string `json:"preset,omitempty"`
	Length int    `json:"length"`
}

// FoodConsumedPayload captures the eaten pellet and the resulting body.
type FoodConsumedPayload struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Length int `json:"length"`
}

// SnakeSpawned publishes a spawn event.
func SnakeSpawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SnakeSpawnedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSnakeSpawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SnakeDied publishes a death event.
func SnakeDied(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SnakeDiedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSnakeDied,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SnakeRespawned publishes a respawn event.
func SnakeRespawned(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SnakeRespawnedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSnakeRespawned,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// FoodConsumed publishes a debug event for a pellet pickup.
func FoodConsumed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FoodConsumedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFoodConsumed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
