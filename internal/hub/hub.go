// internal/hub/hub.go
// The registry of live WebSocket clients and the broadcast-and-reap pass.
package hub

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/erilali/liveactivity/internal/logger"
	"github.com/erilali/liveactivity/internal/message"
	"github.com/erilali/liveactivity/internal/metrics"
	"github.com/gorilla/websocket"
)

// ErrHubStopped is returned by requests made after Run has returned.
var ErrHubStopped = errors.New("hub stopped")

// Report summarizes one broadcast pass.
type Report struct {
	Delivered int // queued on the client's socket
	Dropped   int // client kept, message skipped
	Reaped    int // client removed and closed
}

// Options tunes every connection the hub accepts.
type Options struct {
	MaxFrameSize  int64 // read limit for inbound frames
	SendQueueSize int   // per-client outbound queue length
}

// DefaultOptions returns a 1000-byte frame limit and a 256-message send queue.
func DefaultOptions() Options {
	return Options{MaxFrameSize: 1000, SendQueueSize: 256}
}

type broadcastRequest struct {
	event message.BrokerEvent
	reply chan Report
}

// Hub owns the set of registered clients. Only the goroutine running Run
// touches the set; Register and BroadcastAndReap hand their work to it, so an
// insert never interleaves with a broadcast pass and passes never overlap.
type Hub struct {
	clients   []*Client
	register  chan *Client
	broadcast chan broadcastRequest
	done      chan struct{}
	live      atomic.Int64

	salts    Salter
	options  Options
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewHub creates a Hub. Nothing is served until Run is started.
func NewHub(salts Salter, options Options, logger *logger.Logger) *Hub {
	return &Hub{
		register:  make(chan *Client),
		broadcast: make(chan broadcastRequest),
		done:      make(chan struct{}),
		salts:     salts,
		options:   options,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Clients are anonymous browsers on any origin.
				return true
			},
		},
		logger: logger,
	}
}

// Run serves registry requests until ctx is cancelled, then closes every
// remaining socket.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for _, client := range h.clients {
				_ = client.Socket.Close()
			}
			h.clients = nil
			h.setLive()
			h.logger.Info("Hub stopped, all clients closed")
			return

		case client := <-h.register:
			h.clients = append(h.clients, client)
			h.setLive()
			h.logger.WithField("client_id", client.ID.String()).Debugf("Client registered, %d live", len(h.clients))

		case req := <-h.broadcast:
			req.reply <- h.broadcastAndReap(req.event)
		}
	}
}

// Register adds a client. It fails only if the hub has stopped or ctx ends
// before the hub takes the client.
func (h *Hub) Register(ctx context.Context, client *Client) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BroadcastAndReap offers event to every registered client, translated with
// that client's salt. Clients whose socket fails for any reason other than a
// full send queue are removed and closed before the call returns.
func (h *Hub) BroadcastAndReap(ctx context.Context, event message.BrokerEvent) (Report, error) {
	req := broadcastRequest{event: event, reply: make(chan Report, 1)}
	select {
	case h.broadcast <- req:
	case <-h.done:
		return Report{}, ErrHubStopped
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
	return <-req.reply, nil
}

// Len is the number of registered clients.
func (h *Hub) Len() int {
	return int(h.live.Load())
}

func (h *Hub) broadcastAndReap(event message.BrokerEvent) Report {
	start := time.Now()
	var report Report

	retained := h.clients[:0]
	for _, client := range h.clients {
		payload, err := message.EncodeClientMessage(message.Translate(event, client.Salt))
		if err != nil {
			h.logger.WithError(err).Errorf("Encoding event %d failed", event.ID())
			report.Dropped++
			retained = append(retained, client)
			continue
		}

		err = client.Socket.TrySend(payload)
		switch {
		case err == nil:
			report.Delivered++
			retained = append(retained, client)
		case errors.Is(err, ErrSendQueueFull):
			report.Dropped++
			retained = append(retained, client)
		default:
			report.Reaped++
			h.logger.WithField("client_id", client.ID.String()).WithError(err).Info("Dropping connection")
			_ = client.Socket.Close()
		}
	}
	for i := len(retained); i < len(h.clients); i++ {
		h.clients[i] = nil
	}
	h.clients = retained
	h.setLive()

	metrics.ClientSends.WithLabelValues(metrics.OutcomeDelivered).Add(float64(report.Delivered))
	metrics.ClientSends.WithLabelValues(metrics.OutcomeDropped).Add(float64(report.Dropped))
	metrics.ClientSends.WithLabelValues(metrics.OutcomeReaped).Add(float64(report.Reaped))
	metrics.BroadcastDuration.Observe(time.Since(start).Seconds())
	return report
}

func (h *Hub) setLive() {
	h.live.Store(int64(len(h.clients)))
	metrics.ConnectionsActive.Set(float64(len(h.clients)))
}
