package network

import (
	"context"

	"serpent-arena/server/logging"
)

const (
	// EventSpectatorJoined is emitted when a spectator connects.
	EventSpectatorJoined logging.EventType = "network.spectator_joined"
	// EventSpectatorLeft is emitted when a spectator disconnects.
	EventSpectatorLeft logging.EventType = "network.spectator_left"
	// EventBroadcastFailed is emitted when a frame write to a spectator fails.
	EventBroadcastFailed logging.EventType = "network.broadcast_failed"
)

// SpectatorJoinedPayload captures connection metadata.
type SpectatorJoinedPayload struct {
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// SpectatorLeftPayload captures why a spectator went away.
type SpectatorLeftPayload struct {
	Reason string `json:"reason,omitempty"`
}

// BroadcastFailedPayload records the write error before the drop.
type BroadcastFailedPayload struct {
	Error string `json:"error,omitempty"`
}

// SpectatorJoined publishes a connect event.
func SpectatorJoined(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpectatorJoinedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSpectatorJoined,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// SpectatorLeft publishes a disconnect event.
func SpectatorLeft(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SpectatorLeftPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSpectatorLeft,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}

// BroadcastFailed publishes a warning before a spectator is dropped.
func BroadcastFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload BroadcastFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventBroadcastFailed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	}
	pub.Publish(ctx, event)
}
