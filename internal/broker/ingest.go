// internal/broker/ingest.go
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/erilali/liveactivity/internal/hub"
	"github.com/erilali/liveactivity/internal/logger"
	"github.com/erilali/liveactivity/internal/message"
	"github.com/erilali/liveactivity/internal/metrics"
)

// Broadcaster receives every decoded event.
type Broadcaster interface {
	BroadcastAndReap(ctx context.Context, event message.BrokerEvent) (hub.Report, error)
}

// Ingestor pulls events from a Source and hands them to a Broadcaster,
// reconnecting forever when anything goes wrong.
type Ingestor struct {
	source         Source
	broadcaster    Broadcaster
	reconnectDelay time.Duration
	connected      atomic.Bool
	logger         *logger.Logger
}

// NewIngestor creates an Ingestor. A zero reconnectDelay retries at once.
func NewIngestor(source Source, broadcaster Broadcaster, reconnectDelay time.Duration, logger *logger.Logger) *Ingestor {
	return &Ingestor{
		source:         source,
		broadcaster:    broadcaster,
		reconnectDelay: reconnectDelay,
		logger:         logger,
	}
}

// Connected reports whether a subscription is currently being consumed.
func (i *Ingestor) Connected() bool {
	return i.connected.Load()
}

// Run loops until ctx is cancelled. Broker failures never end it.
func (i *Ingestor) Run(ctx context.Context) {
	for {
		err := i.consume(ctx)
		if ctx.Err() != nil {
			i.logger.Info("Ingestion stopped")
			return
		}

		metrics.BrokerReconnects.Inc()
		i.logger.WithError(err).Warnf("Lost %s, reconnecting", i.source)

		if i.reconnectDelay > 0 {
			select {
			case <-time.After(i.reconnectDelay):
			case <-ctx.Done():
				return
			}
		}
	}
}

// consume runs one Disconnected -> Consuming -> Disconnected cycle. It always
// returns a non-nil error.
func (i *Ingestor) consume(ctx context.Context) error {
	i.logger.Infof("Connecting to %s", i.source)
	sub, err := i.source.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Close()

	i.setConnected(true)
	defer i.setConnected(false)
	i.logger.Info("Listening to events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-sub.Deliveries():
			if !ok {
				if err := sub.Err(); err != nil {
					return errors.Join(ErrStreamClosed, err)
				}
				return ErrStreamClosed
			}
			if err := i.handle(ctx, d); err != nil {
				return err
			}
		}
	}
}

// handle acknowledges first: an event is never redelivered, even when it
// cannot be decoded.
func (i *Ingestor) handle(ctx context.Context, d Delivery) error {
	metrics.BrokerEvents.Inc()
	if err := d.Ack(); err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}

	event, err := message.DecodeBrokerEvent(d.Body)
	if err != nil {
		metrics.DecodeFailures.Inc()
		i.logger.WithError(err).Warnf("Error consuming event (%d bytes), skipped", len(d.Body))
		return nil
	}

	report, err := i.broadcaster.BroadcastAndReap(ctx, event)
	if err != nil {
		return fmt.Errorf("broadcast event %d: %w", event.ID(), err)
	}
	i.logger.Debugf("Event %d: delivered=%d dropped=%d reaped=%d", event.ID(), report.Delivered, report.Dropped, report.Reaped)
	return nil
}

func (i *Ingestor) setConnected(v bool) {
	i.connected.Store(v)
	if v {
		metrics.BrokerConnected.Set(1)
	} else {
		metrics.BrokerConnected.Set(0)
	}
}
