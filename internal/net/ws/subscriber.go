package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSubscriberClosed reports a send on a connection that has already
// been torn down.
var ErrSubscriberClosed = errors.New("ws: subscriber closed")

// DefaultWriteTimeout bounds how long a broadcast may block on one slow
// spectator before the hub gives up on it.
const DefaultWriteTimeout = 5 * time.Second

// Conn is the slice of *websocket.Conn the subscriber relies on, kept
// narrow so tests can stand in for the transport.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Subscriber is one spectator connection. Writes are serialized through
// an internal mutex; gorilla connections permit only one concurrent
// writer.
type Subscriber struct {
	id           string
	conn         Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewSubscriber wraps an upgraded connection. A non-positive timeout
// falls back to DefaultWriteTimeout.
func NewSubscriber(id string, conn Conn, writeTimeout time.Duration) *Subscriber {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	return &Subscriber{id: id, conn: conn, writeTimeout: writeTimeout}
}

// ID returns the spectator id assigned at subscribe time.
func (s *Subscriber) ID() string {
	return s.id
}

// Send writes one text frame under the write deadline.
func (s *Subscriber) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSubscriberClosed
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with the given code and reason, then tears
// down the connection. Safe to call more than once.
func (s *Subscriber) Close(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	message := websocket.FormatCloseMessage(code, reason)
	s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	s.conn.WriteMessage(websocket.CloseMessage, message)
	s.conn.Close()
}
