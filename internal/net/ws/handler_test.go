package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"serpent-arena/server/internal/grid"
	"serpent-arena/server/internal/net/proto"
)

type stubHub struct {
	mu      sync.Mutex
	accept  bool
	welcome proto.WelcomeV1
	subs    []*Subscriber
	left    []string
	reasons []string
}

func (h *stubHub) Subscribe(conn Conn, remoteAddr string) (*Subscriber, proto.WelcomeV1, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.accept {
		return nil, proto.WelcomeV1{}, false
	}
	sub := NewSubscriber("spectator-1", conn, time.Second)
	h.subs = append(h.subs, sub)
	return sub, h.welcome, true
}

func (h *stubHub) Unsubscribe(id, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left = append(h.left, id)
	h.reasons = append(h.reasons, reason)
}

func (h *stubHub) departed() ([]string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.left...), append([]string(nil), h.reasons...)
}

func websocketURL(t *testing.T, raw string) string {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	u.Scheme = "ws"
	return u.String()
}

func dialArena(t *testing.T, hub *stubHub) *websocket.Conn {
	t.Helper()
	handler := NewHandler(hub, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(srv.Close)

	conn, resp, err := websocket.DefaultDialer.Dial(websocketURL(t, srv.URL), nil)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestHandleSendsWelcomeOnConnect(t *testing.T) {
	hub := &stubHub{
		accept: true,
		welcome: proto.WelcomeV1{
			ID:             "spectator-1",
			Tick:           7,
			Bounds:         grid.Bounds{Width: 25, Height: 25},
			TicksPerSecond: 20,
			Presets:        []string{"balanced", "hunter"},
		},
	}
	conn := dialArena(t, hub)

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(payload, &wire))
	require.Equal(t, float64(proto.Version), wire["ver"])
	require.Equal(t, proto.TypeWelcome, wire["type"])
	require.Equal(t, "spectator-1", wire["id"])
	require.Equal(t, float64(7), wire["t"])
	require.Equal(t, float64(20), wire["ticksPerSecond"])
}

func TestHandleHeartbeatRoundTrip(t *testing.T) {
	hub := &stubHub{accept: true, welcome: proto.WelcomeV1{ID: "spectator-1"}}
	conn := dialArena(t, hub)

	_, _, err := conn.ReadMessage() // welcome
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":   proto.TypeHeartbeat,
		"sentAt": 123456,
	}))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(payload, &wire))
	require.Equal(t, "heartbeat", wire["type"])
	require.Equal(t, float64(123456), wire["clientTime"])
	require.Greater(t, wire["serverTime"], float64(0))
}

func TestHandleSkipsMalformedMessages(t *testing.T) {
	hub := &stubHub{accept: true, welcome: proto.WelcomeV1{ID: "spectator-1"}}
	conn := dialArena(t, hub)

	_, _, err := conn.ReadMessage() // welcome
	require.NoError(t, err)

	// Garbage, then a message from the future, then a real heartbeat.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "heartbeat", "ver": 99}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "heartbeat", "sentAt": 1}))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(payload, &wire))
	require.Equal(t, float64(1), wire["clientTime"])
}

func TestHandleRejectsWhenHubRefuses(t *testing.T) {
	hub := &stubHub{accept: false}
	conn := dialArena(t, hub)

	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))
}

func TestHandleUnsubscribesOnClientClose(t *testing.T) {
	hub := &stubHub{accept: true, welcome: proto.WelcomeV1{ID: "spectator-1"}}
	conn := dialArena(t, hub)

	_, _, err := conn.ReadMessage() // welcome
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	require.NoError(t, conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline))

	require.Eventually(t, func() bool {
		left, reasons := hub.departed()
		return len(left) == 1 && left[0] == "spectator-1" && reasons[0] == "client_closed"
	}, 2*time.Second, 10*time.Millisecond)
}
