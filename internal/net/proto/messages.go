package proto

import (
	"encoding/json"
	"fmt"

	"serpent-arena/server/internal/arena"
	"serpent-arena/server/internal/grid"
)

const (
	// Version tracks the wire-protocol revision expected by clients.
	Version = 1

	// Type identifiers for websocket payloads.
	typeWelcome   = "welcome"
	typeState     = "state"
	typeHeartbeat = "heartbeat"
)

// Client message type identifiers.
const (
	TypeHeartbeat = "heartbeat"
)

// Exported aliases for outbound message type identifiers.
const (
	TypeWelcome = typeWelcome
	TypeState   = typeState
)

// ClientMessage captures an inbound websocket message from a spectator.
type ClientMessage struct {
	Ver    int    `json:"ver,omitempty"`
	Type   string `json:"type"`
	SentAt int64  `json:"sentAt,omitempty"`
}

// DecodeClientMessage converts raw websocket payloads into a structured
// message. A missing version means the current one; a mismatched version
// is an error.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	return msg, nil
}

// WelcomeV1 is the first payload a spectator receives after the upgrade.
type WelcomeV1 struct {
	Ver            int         `json:"ver"`
	Type           string      `json:"type"`
	ID             string      `json:"id"`
	Tick           uint64      `json:"t"`
	Bounds         grid.Bounds `json:"bounds"`
	TicksPerSecond int         `json:"ticksPerSecond"`
	Presets        []string    `json:"presets,omitempty"`
}

// EncodeWelcomeV1 renders a versioned welcome payload.
func EncodeWelcomeV1(msg WelcomeV1) ([]byte, error) {
	msg.Ver = Version
	if msg.Type == "" {
		msg.Type = TypeWelcome
	}
	return json.Marshal(msg)
}

type stateSnapshot interface {
	ProtoStateSnapshot()
}

// EncodeStateSnapshot renders a state snapshot payload.
func EncodeStateSnapshot(msg stateSnapshot) ([]byte, error) {
	switch payload := msg.(type) {
	case StateSnapshotV1:
		return EncodeStateSnapshotV1(payload)
	case *StateSnapshotV1:
		if payload == nil {
			return json.Marshal(payload)
		}
		return EncodeStateSnapshotV1(*payload)
	default:
		return json.Marshal(msg)
	}
}

// StateSnapshotV1 captures the version 1 websocket state payload layout.
type StateSnapshotV1 struct {
	Ver        int             `json:"ver"`
	Type       string          `json:"type"`
	Tick       uint64          `json:"t"`
	ServerTime int64           `json:"serverTime"`
	Bounds     grid.Bounds     `json:"bounds"`
	Snakes     []arena.Snake   `json:"snakes"`
	Food       []grid.Position `json:"food"`
	AliveCount int             `json:"aliveCount"`
}

// ProtoStateSnapshot tags the struct as a websocket snapshot payload.
func (StateSnapshotV1) ProtoStateSnapshot() {}

// EncodeStateSnapshotV1 renders a versioned snapshot payload.
func EncodeStateSnapshotV1(msg StateSnapshotV1) ([]byte, error) {
	if msg.Type == "" {
		msg.Type = TypeState
	}
	msg.Ver = Version
	return json.Marshal(msg)
}

// StateSnapshotFromArena converts a simulation snapshot to its wire form.
func StateSnapshotFromArena(state arena.State, serverTime int64) StateSnapshotV1 {
	return StateSnapshotV1{
		Tick:       state.Tick,
		ServerTime: serverTime,
		Bounds:     state.Bounds,
		Snakes:     state.Snakes,
		Food:       state.Food,
		AliveCount: state.LiveCount(),
	}
}

// Heartbeat echoes timing metadata back to the client.
type Heartbeat struct {
	ServerTime int64
	ClientTime int64
}

// EncodeHeartbeat renders a heartbeat acknowledgement payload.
func EncodeHeartbeat(msg Heartbeat) ([]byte, error) {
	frame := struct {
		Ver        int    `json:"ver"`
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
		ClientTime int64  `json:"clientTime"`
	}{
		Ver:        Version,
		Type:       typeHeartbeat,
		ServerTime: msg.ServerTime,
		ClientTime: msg.ClientTime,
	}
	return json.Marshal(frame)
}
