// internal/broker/amqp.go
package broker

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpDialTimeout = 10 * time.Second

// amqpChannel is the part of *amqp.Channel used to provision a subscription.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// AMQPSource subscribes to the live activity fan-out exchange on RabbitMQ.
type AMQPSource struct {
	url string
}

// NewAMQPSource creates a source for the broker at addr, an amqp:// URL.
func NewAMQPSource(addr string) *AMQPSource {
	return &AMQPSource{url: addr}
}

// String names the broker by host only, leaving credentials out of logs.
func (s *AMQPSource) String() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return "amqp broker"
	}
	return "amqp://" + u.Host
}

// Subscribe dials the broker, provisions a private queue on the exchange and
// starts consuming from it.
func (s *AMQPSource) Subscribe(ctx context.Context) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(s.url, amqp.Config{
		Dial:       amqp.DefaultDial(amqpDialTimeout),
		Properties: amqp.Table{"connection_name": Topic},
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	deliveries, err := provision(ch)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	sub := &amqpSubscription{
		conn:      conn,
		out:       make(chan Delivery),
		done:      make(chan struct{}),
		connClose: conn.NotifyClose(make(chan *amqp.Error, 1)),
		chanClose: ch.NotifyClose(make(chan *amqp.Error, 1)),
	}
	go sub.forward(deliveries)
	return sub, nil
}

// provision declares the exchange, a private queue bound to it, and starts
// consuming with manual acknowledgement. Every step is safe to repeat on a
// new connection: the exchange declaration is idempotent and the queue is
// server-named.
func provision(ch amqpChannel) (<-chan amqp.Delivery, error) {
	if err := ch.ExchangeDeclare(Topic, amqp.ExchangeFanout, false, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", Topic, err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", Topic, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", q.Name, err)
	}

	deliveries, err := ch.Consume(q.Name, Topic, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", q.Name, err)
	}
	return deliveries, nil
}

type amqpSubscription struct {
	conn      io.Closer
	out       chan Delivery
	done      chan struct{}
	closeOnce sync.Once
	connClose chan *amqp.Error
	chanClose chan *amqp.Error
	err       error
}

func (s *amqpSubscription) forward(in <-chan amqp.Delivery) {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case d, ok := <-in:
			if !ok {
				s.err = s.closeReason()
				return
			}
			select {
			case s.out <- NewDelivery(d.Body, func() error { return d.Ack(false) }):
			case <-s.done:
				return
			}
		}
	}
}

func (s *amqpSubscription) closeReason() error {
	select {
	case e := <-s.chanClose:
		if e != nil {
			return e
		}
	default:
	}
	select {
	case e := <-s.connClose:
		if e != nil {
			return e
		}
	default:
	}
	return nil
}

func (s *amqpSubscription) Deliveries() <-chan Delivery { return s.out }
func (s *amqpSubscription) Err() error                  { return s.err }

func (s *amqpSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
