// Package ws upgrades spectator connections and runs their read loops.
// The hub owns the subscriber registry and the broadcast fan-out; this
// package is transport only.
package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"serpent-arena/server/internal/net/proto"
)

// Hub is the subset of the arena hub the websocket surface needs.
type Hub interface {
	// Subscribe registers a freshly upgraded connection and returns its
	// subscriber plus the welcome payload. ok is false when the arena is
	// not accepting more spectators.
	Subscribe(conn Conn, remoteAddr string) (*Subscriber, proto.WelcomeV1, bool)
	// Unsubscribe removes a spectator and closes its connection.
	Unsubscribe(id, reason string)
}

type HandlerConfig struct {
	Logger *log.Logger
}

// Handler upgrades spectator connections and serves their sessions.
type Handler struct {
	hub      Hub
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(hub Hub, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the request, sends the welcome payload, and serves the
// session until the client disconnects.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.logger.Printf("ws: upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	sub, welcome, ok := h.hub.Subscribe(conn, r.RemoteAddr)
	if !ok {
		message := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "spectator limit reached")
		conn.WriteMessage(websocket.CloseMessage, message)
		conn.Close()
		return
	}

	data, err := proto.EncodeWelcomeV1(welcome)
	if err != nil {
		h.logger.Printf("ws: failed to encode welcome for %s: %v", sub.ID(), err)
		h.hub.Unsubscribe(sub.ID(), "welcome_failed")
		return
	}
	if err := sub.Send(data); err != nil {
		h.hub.Unsubscribe(sub.ID(), "welcome_failed")
		return
	}

	h.readLoop(conn, sub)
}

func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscriber) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Unsubscribe(sub.ID(), closeReason(err))
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("ws: discarding malformed message from %s: %v", sub.ID(), err)
			continue
		}

		switch msg.Type {
		case proto.TypeHeartbeat:
			reply, err := proto.EncodeHeartbeat(proto.Heartbeat{
				ServerTime: time.Now().UnixMilli(),
				ClientTime: msg.SentAt,
			})
			if err != nil {
				continue
			}
			if err := sub.Send(reply); err != nil {
				h.hub.Unsubscribe(sub.ID(), "write_failed")
				return
			}
		default:
			h.logger.Printf("ws: ignoring unsupported message type %q from %s", msg.Type, sub.ID())
		}
	}
}

func closeReason(err error) string {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "client_closed"
	}
	return "read_error"
}
