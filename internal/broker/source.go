// internal/broker/source.go
// Broker-agnostic view of a live activity subscription.
package broker

import (
	"context"
	"errors"
)

// Exchange (AMQP) and subject (NATS) carrying live activity events; also used
// as the AMQP consumer tag.
const Topic = "live-activity"

// ErrStreamClosed is reported when a subscription ends without a more
// specific reason from the broker client.
var ErrStreamClosed = errors.New("delivery stream closed")

// Delivery is one raw message from the broker.
type Delivery struct {
	Body []byte
	ack  func() error
}

// NewDelivery pairs body with the transport's ack; ack may be nil.
func NewDelivery(body []byte, ack func() error) Delivery {
	return Delivery{Body: body, ack: ack}
}

// Ack acknowledges the delivery. Transports without acknowledgements make
// this a no-op.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Subscription is a provisioned, consuming broker session.
type Subscription interface {
	// Deliveries is closed when the session fails or is closed.
	Deliveries() <-chan Delivery
	// Err explains why Deliveries was closed. Only valid after that.
	Err() error
	Close() error
}

// Source connects to the broker and provisions a fresh transient subscription.
type Source interface {
	Subscribe(ctx context.Context) (Subscription, error)
	String() string
}
