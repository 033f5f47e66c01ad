// internal/hub/websocket.go
package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/erilali/liveactivity/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // Must be less than readDeadline
)

// ServeWs upgrades the request, salts the new connection and registers it.
// The handler returns as soon as the client is registered; from then on the
// client is reached only through BroadcastAndReap.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		metrics.HandshakeFailures.Inc()
		h.logger.WithError(err).Warnf("WebSocket upgrade from %s failed", r.RemoteAddr)
		return
	}

	socket := newWSSocket(conn, h.options.SendQueueSize, h.options.MaxFrameSize)
	client := NewClient(socket, h.salts.Next())
	if err := h.Register(r.Context(), client); err != nil {
		h.logger.WithError(err).Warn("Could not register client")
		_ = socket.Close()
		return
	}
	metrics.ConnectionsAccepted.Inc()
}

// wsSocket is a Socket backed by a gorilla connection and a bounded queue
// drained by its own write pump.
type wsSocket struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSSocket(conn *websocket.Conn, queueSize int, maxFrameSize int64) *wsSocket {
	s := &wsSocket{
		conn: conn,
		send: make(chan []byte, queueSize),
		done: make(chan struct{}),
	}
	go s.writePump()
	go s.readPump(maxFrameSize)
	return s
}

func (s *wsSocket) TrySend(payload []byte) error {
	select {
	case <-s.done:
		return ErrSocketClosed
	default:
	}

	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (s *wsSocket) Close() error {
	s.shutdown()
	return nil
}

func (s *wsSocket) shutdown() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writePump is the only writer of data and ping frames. Any failure closes
// the socket so the next broadcast reaps it.
func (s *wsSocket) writePump() {
	ticker := time.NewTicker(webSocketPingPeriod)
	defer func() {
		ticker.Stop()
		s.shutdown()
	}()

	for {
		select {
		case <-s.done:
			return

		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Client connection is likely broken
			}
		}
	}
}

// readPump discards whatever the client sends. It is needed for pong and
// close handling and enforces the frame size limit.
func (s *wsSocket) readPump(maxFrameSize int64) {
	defer s.shutdown()

	s.conn.SetReadLimit(maxFrameSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	})

	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}
