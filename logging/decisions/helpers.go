package decisions

import (
	"context"

	"serpent-arena/server/logging"
)

const (
	// EventComputed is emitted when a fresh direction decision lands.
	EventComputed logging.EventType = "ai.decision_computed"
	// EventFallback is emitted when a snake is served the fallback direction.
	EventFallback logging.EventType = "ai.decision_fallback"
	// EventEvicted is emitted when queue pressure discards pending work.
	EventEvicted logging.EventType = "ai.queue_evicted"
)

// ComputedPayload captures one finished direction calculation.
type ComputedPayload struct {
	Direction     string  `json:"direction"`
	CalculationMs float64 `json:"calculationMs"`
	QueueSize     int     `json:"queueSize"`
}

// FallbackPayload captures why a snake received the fallback direction.
type FallbackPayload struct {
	Direction string `json:"direction"`
	Reason    string `json:"reason"`
}

// EvictedPayload counts calculations dropped since the last report.
type EvictedPayload struct {
	Evicted  uint64 `json:"evicted"`
	QueueLen int    `json:"queueLen"`
}

// Computed publishes a debug event for a fresh decision.
func Computed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ComputedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventComputed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryAI,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Fallback publishes a warning when a snake moves on the fallback.
func Fallback(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload FallbackPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventFallback,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryAI,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// Evicted publishes a debug event when queue pressure drops work.
func Evicted(ctx context.Context, pub logging.Publisher, tick uint64, payload EvictedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventEvicted,
		Tick:     tick,
		Severity: logging.SeverityDebug,
		Category: logging.CategoryAI,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
