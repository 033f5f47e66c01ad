// internal/broker/nats.go
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsConnectTimeout = 10 * time.Second
	natsPendingMsgs    = 256
)

// NATSSource subscribes to the live activity subject on a NATS server. Core
// NATS delivers every message to every subscriber, which gives the same
// fan-out as the AMQP exchange.
type NATSSource struct {
	url string
}

// NewNATSSource creates a source for the server at addr, a nats:// URL.
func NewNATSSource(addr string) *NATSSource {
	return &NATSSource{url: addr}
}

func (s *NATSSource) String() string { return s.url }

// Subscribe connects without client-side reconnection and subscribes to the
// live activity subject.
func (s *NATSSource) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &natsSubscription{
		in:     make(chan *nats.Msg, natsPendingMsgs),
		out:    make(chan Delivery),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}

	// The Ingestor owns reconnection, so the client must give up on the
	// first disconnect instead of retrying on its own.
	nc, err := nats.Connect(s.url,
		nats.Name(Topic),
		nats.Timeout(natsConnectTimeout),
		nats.NoReconnect(),
		nats.ClosedHandler(func(*nats.Conn) { sub.markClosed() }),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", s.url, err)
	}
	sub.conn = nc

	if _, err := nc.ChanSubscribe(Topic, sub.in); err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Topic, err)
	}

	go sub.forward()
	return sub, nil
}

// natsConn is the part of *nats.Conn a subscription needs once connected.
type natsConn interface {
	Close()
	LastError() error
}

type natsSubscription struct {
	conn       natsConn
	in         chan *nats.Msg
	out        chan Delivery
	done       chan struct{}
	closed     chan struct{}
	closedOnce sync.Once
	doneOnce   sync.Once
	err        error
}

func (s *natsSubscription) markClosed() {
	s.closedOnce.Do(func() { close(s.closed) })
}

func (s *natsSubscription) forward() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case <-s.closed:
			s.err = s.conn.LastError()
			return
		case m := <-s.in:
			select {
			case s.out <- NewDelivery(m.Data, nil):
			case <-s.done:
				return
			}
		}
	}
}

func (s *natsSubscription) Deliveries() <-chan Delivery { return s.out }
func (s *natsSubscription) Err() error                  { return s.err }

func (s *natsSubscription) Close() error {
	s.doneOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}
