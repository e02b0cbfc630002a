package app

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"serpent-arena/server/internal/ai"
	"serpent-arena/server/internal/grid"
	"serpent-arena/server/internal/net/proto"
	"serpent-arena/server/logging"
	"serpent-arena/server/logging/network"
)

type stubConn struct {
	mu       sync.Mutex
	writes   [][]byte
	writeErr error
	closes   int
}

func (c *stubConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *stubConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *stubConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

func (c *stubConn) closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type eventCollector struct {
	mu     sync.Mutex
	events []logging.Event
}

func (c *eventCollector) publisher() logging.Publisher {
	return logging.PublisherFunc(func(_ context.Context, event logging.Event) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, event)
	})
}

func (c *eventCollector) ofType(t logging.EventType) []logging.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []logging.Event
	for _, event := range c.events {
		if event.Type == t {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestHub(t *testing.T, mutate func(*HubConfig)) *Hub {
	t.Helper()
	cfg := DefaultHubConfig()
	cfg.Sim.Seed = 7
	cfg.Library = ai.MustLoadLibrary()
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHub(cfg)
}

func TestHubSubscribeAssignsIDsAndWelcome(t *testing.T) {
	collector := &eventCollector{}
	hub := newTestHub(t, func(cfg *HubConfig) {
		cfg.Publisher = collector.publisher()
	})

	first := &stubConn{}
	sub, welcome, ok := hub.Subscribe(first, "10.0.0.1:1111")
	require.True(t, ok)
	require.Equal(t, "spectator-1", sub.ID())
	require.Equal(t, "spectator-1", welcome.ID)
	require.Equal(t, grid.Bounds{Width: 25, Height: 25}, welcome.Bounds)
	require.Equal(t, TicksPerSecond, welcome.TicksPerSecond)
	require.Equal(t, hub.library.IDs(), welcome.Presets)

	_, welcome, ok = hub.Subscribe(&stubConn{}, "10.0.0.2:2222")
	require.True(t, ok)
	require.Equal(t, "spectator-2", welcome.ID)

	require.Equal(t, 2, hub.SpectatorCount())
	snap := hub.TelemetrySnapshot()
	require.Equal(t, uint64(2), snap.SpectatorsJoined)
	require.Equal(t, int64(2), snap.SpectatorsCurrent)

	joined := collector.ofType(network.EventSpectatorJoined)
	require.Len(t, joined, 2)
	payload, ok := joined[0].Payload.(network.SpectatorJoinedPayload)
	require.True(t, ok)
	require.Equal(t, "10.0.0.1:1111", payload.RemoteAddr)
}

func TestHubSubscribeRefusesPastCap(t *testing.T) {
	hub := newTestHub(t, func(cfg *HubConfig) {
		cfg.MaxSpectators = 2
	})

	_, _, ok := hub.Subscribe(&stubConn{}, "a")
	require.True(t, ok)
	_, _, ok = hub.Subscribe(&stubConn{}, "b")
	require.True(t, ok)
	_, _, ok = hub.Subscribe(&stubConn{}, "c")
	require.False(t, ok)
	require.Equal(t, 2, hub.SpectatorCount())
}

func TestHubUnsubscribeClosesConnOnce(t *testing.T) {
	collector := &eventCollector{}
	hub := newTestHub(t, func(cfg *HubConfig) {
		cfg.Publisher = collector.publisher()
	})
	conn := &stubConn{}
	sub, _, ok := hub.Subscribe(conn, "10.0.0.1:1111")
	require.True(t, ok)

	hub.Unsubscribe(sub.ID(), "client_closed")
	hub.Unsubscribe(sub.ID(), "client_closed")

	require.Equal(t, 0, hub.SpectatorCount())
	require.Equal(t, 1, conn.closed())

	snap := hub.TelemetrySnapshot()
	require.Equal(t, uint64(1), snap.SpectatorsLeft)
	require.Equal(t, int64(0), snap.SpectatorsCurrent)

	left := collector.ofType(network.EventSpectatorLeft)
	require.Len(t, left, 1)
	payload, ok := left[0].Payload.(network.SpectatorLeftPayload)
	require.True(t, ok)
	require.Equal(t, "client_closed", payload.Reason)
}

func TestHubStepOnceBroadcastsSnapshot(t *testing.T) {
	hub := newTestHub(t, nil)
	conn := &stubConn{}
	_, _, ok := hub.Subscribe(conn, "10.0.0.1:1111")
	require.True(t, ok)

	hub.StepOnce(context.Background())

	frames := conn.frames()
	require.Len(t, frames, 1)

	var snapshot proto.StateSnapshotV1
	require.NoError(t, json.Unmarshal(frames[0], &snapshot))
	require.Equal(t, proto.Version, snapshot.Ver)
	require.Equal(t, proto.TypeState, snapshot.Type)
	require.Equal(t, uint64(1), snapshot.Tick)
	require.Equal(t, grid.Bounds{Width: 25, Height: 25}, snapshot.Bounds)
	require.Len(t, snapshot.Snakes, 6)
	require.NotZero(t, snapshot.ServerTime)

	require.Equal(t, uint64(1), hub.Tick())
	snap := hub.TelemetrySnapshot()
	require.Equal(t, uint64(1), snap.TicksTotal)
	require.Equal(t, uint64(1), snap.BroadcastsTotal)
	require.Equal(t, uint64(len(frames[0])), snap.LastBroadcastBytes)
}

func TestHubStepOnceDropsFailingSubscriber(t *testing.T) {
	hub := newTestHub(t, nil)
	healthy := &stubConn{}
	broken := &stubConn{writeErr: io.ErrClosedPipe}
	_, _, ok := hub.Subscribe(healthy, "10.0.0.1:1111")
	require.True(t, ok)
	_, _, ok = hub.Subscribe(broken, "10.0.0.2:2222")
	require.True(t, ok)

	hub.StepOnce(context.Background())

	require.Equal(t, 1, hub.SpectatorCount())
	require.Len(t, healthy.frames(), 1)
	require.Equal(t, 1, broken.closed())
}

func TestHubResetWorldStartsFresh(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()
	hub.StepOnce(ctx)
	hub.StepOnce(ctx)
	require.Equal(t, uint64(2), hub.Tick())

	cfg := hub.CurrentConfig()
	cfg.InitialSnakes = 3
	applied := hub.ResetWorld(cfg)

	require.Equal(t, 3, applied.InitialSnakes)
	require.Equal(t, uint64(0), hub.Tick())
	require.Equal(t, 3, hub.LiveSnakes())
	require.Equal(t, 3, hub.CurrentConfig().InitialSnakes)
}

func TestHubDiagnosticsAccessors(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		hub.StepOnce(ctx)
	}

	require.Equal(t, uint64(5), hub.Tick())
	stats := hub.AIStats()
	require.Equal(t, uint64(5), stats.Tick)
	require.Equal(t, uint64(5), hub.TelemetrySnapshot().TicksTotal)
	require.Equal(t, 20, hub.TicksPerSecond())

	presets := hub.Presets()
	require.NotEmpty(t, presets)
	require.Equal(t, hub.library.IDs()[0], presets[0].ID)
}

func TestHubRunSimulationStopsOnCancel(t *testing.T) {
	hub := newTestHub(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		hub.RunSimulation(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return hub.Tick() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("simulation loop did not stop after cancel")
	}
}
