package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

const publishTimeout = 5 * time.Second

// Sink receives events synchronously and must not block
type Sink interface {
	Notify(ev models.Event)
}

// Publisher delivers events to an external broker
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev models.Event) error
}

type queue struct {
	pub Publisher
	ch  chan models.Event
}

// Dispatcher is the single Notifier handed to the monitor. Local sinks are called inline,
// broker publishers are fed through bounded queues so a slow broker never stalls the loop.
type Dispatcher struct {
	mu     sync.RWMutex
	sinks  []Sink
	queues []*queue
	closed bool
	wg     sync.WaitGroup
	logger *slog.Logger
}

func NewDispatcher(logger *slog.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks:  sinks,
		logger: logger.With("component", "dispatcher"),
	}
}

// AddSink registers a synchronous sink, typically the websocket hub
func (d *Dispatcher) AddSink(s Sink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, s)
}

// AddPublisher starts a delivery goroutine for p with room for buffer pending events
func (d *Dispatcher) AddPublisher(p Publisher, buffer int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}

	q := &queue{pub: p, ch: make(chan models.Event, buffer)}
	d.queues = append(d.queues, q)

	d.wg.Add(1)
	go d.deliver(q)
	d.logger.Info("Event publisher registered", "publisher", p.Name(), "buffer", buffer)
}

func (d *Dispatcher) Notify(ev models.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for _, s := range d.sinks {
		s.Notify(ev)
	}
	for _, q := range d.queues {
		select {
		case q.ch <- ev:
		default:
			metrics.NotificationsDropped.WithLabelValues(q.pub.Name()).Inc()
			d.logger.Warn("Publisher queue full, dropping event", "publisher", q.pub.Name(), "event", ev.Name)
		}
	}
}

func (d *Dispatcher) deliver(q *queue) {
	defer d.wg.Done()
	for ev := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := q.pub.Publish(ctx, ev); err != nil {
			d.logger.Warn("Failed to publish event",
				"publisher", q.pub.Name(),
				"event", ev.Name,
				"event_id", ev.ID,
				"error", err,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be attempted
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q.ch)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
