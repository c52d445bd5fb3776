package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/infra"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

const (
	RoutingKeyPrefix = "monitor."
	confirmTimeout   = 10 * time.Second
)

var ErrBrokerUnavailable = errors.New("broker connection is closed")

// RabbitMQPublisher publishes monitor events to a topic exchange with publisher confirms.
// The connection is maintained in the background and re-established with backoff.
type RabbitMQPublisher struct {
	url      string
	exchange string
	logger   *slog.Logger
	backoff  *infra.Backoff

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel

	healthy   atomic.Bool
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewRabbitMQPublisher(url, exchange string, l *slog.Logger) *RabbitMQPublisher {
	ctx, cancel := context.WithCancel(context.Background())
	return &RabbitMQPublisher{
		url:      url,
		exchange: exchange,
		logger:   l.With("broker", "rabbitmq", "exchange", exchange),
		backoff:  infra.NewBackoff(time.Second, 30*time.Second, 2.0),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *RabbitMQPublisher) Name() string { return "rabbitmq" }

// Start keeps a connection open until Close is called
func (r *RabbitMQPublisher) Start() {
	go r.maintain()
}

func (r *RabbitMQPublisher) maintain() {
	for {
		connClosed, chanClosed, err := r.connect()
		if err != nil {
			r.logger.Warn("RabbitMQ connection attempt failed", "error", err, "attempt", r.backoff.Attempts()+1)
			if !r.backoff.Wait(r.ctx) {
				return
			}
			continue
		}
		r.backoff.Reset()

		select {
		case <-r.ctx.Done():
			return
		case err := <-connClosed:
			r.setHealthy(false)
			r.logger.Warn("RabbitMQ connection lost, reconnecting", "error", err)
		case err := <-chanClosed:
			r.setHealthy(false)
			r.logger.Warn("RabbitMQ channel closed, reconnecting", "error", err)
			r.mu.Lock()
			r.conn.Close()
			r.mu.Unlock()
		}
	}
}

// connect dials, declares the exchange and enables confirms. The returned channels fire
// when the connection or the channel closes.
func (r *RabbitMQPublisher) connect() (<-chan *amqp.Error, <-chan *amqp.Error, error) {
	c, err := amqp.Dial(r.url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		r.exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		ch.Close()
		c.Close()
		return nil, nil, fmt.Errorf("failed to declare topic exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		c.Close()
		return nil, nil, fmt.Errorf("failed to activate Publisher Confirms: %w", err)
	}

	connClosed := c.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.Lock()
	// Close may have run while dialing
	if err := r.ctx.Err(); err != nil {
		r.mu.Unlock()
		ch.Close()
		c.Close()
		return nil, nil, err
	}
	r.conn, r.channel = c, ch
	r.setHealthy(true)
	r.mu.Unlock()

	r.logger.Info("Connected to RabbitMQ")
	return connClosed, chanClosed, nil
}

// Publish sends ev and blocks until the broker confirms it
func (r *RabbitMQPublisher) Publish(ctx context.Context, ev models.Event) error {
	if !r.IsHealthy() {
		return ErrBrokerUnavailable
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	r.mu.Lock()
	ch := r.channel
	r.mu.Unlock()

	deferred, err := ch.PublishWithDeferredConfirmWithContext(
		ctx,
		r.exchange,
		RoutingKey(ev),
		false,
		false,
		amqp.Publishing{
			Headers: amqp.Table{
				"event_id": ev.ID,
			},
			MessageId:    ev.ID,
			Timestamp:    ev.Timestamp,
			Type:         ev.Name,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish call failed: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("RabbitMQ NACK received for %s", ev.ID)
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout")
	}
}

// RoutingKey maps an event to its topic routing key, e.g. monitor.newRecord
func RoutingKey(ev models.Event) string {
	return RoutingKeyPrefix + ev.Name
}

// Close stops reconnecting and shuts down the RabbitMQ resources
func (r *RabbitMQPublisher) Close() error {
	r.closeOnce.Do(func() {
		r.logger.Info("Terminating RabbitMQ publisher")
		r.cancel()

		r.mu.Lock()
		if r.channel != nil {
			r.channel.Close()
		}
		if r.conn != nil {
			r.conn.Close()
		}
		r.setHealthy(false)
		r.mu.Unlock()
	})
	return nil
}

// IsHealthy returns true if the connection and channel are active
func (r *RabbitMQPublisher) IsHealthy() bool {
	return r.healthy.Load()
}

func (r *RabbitMQPublisher) setHealthy(ok bool) {
	r.healthy.Store(ok)
	v := 0.0
	if ok {
		v = 1
	}
	metrics.BrokerHealth.WithLabelValues(r.Name()).Set(v)
}
