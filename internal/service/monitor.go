package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/timesync"
	"github.com/Guizzs26/tiempo-relay/pkg/infra"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

// SourceStore defines the read capabilities of the day-partitioned source
type SourceStore interface {
	FetchAt(ctx context.Context, table, hora string) (models.Record, bool, error)
	FetchAll(ctx context.Context, table, hora string) ([]models.Record, error)
	FetchWell(ctx context.Context) (models.Record, bool, error)
}

// WellStore persists the well header row
type WellStore interface {
	UpsertWell(ctx context.Context, well models.Record) (bool, error)
}

// Notifier receives every monitor event. Notify must not block.
type Notifier interface {
	Notify(ev models.Event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(models.Event) {}

// SearchResult is the answer to a manual query
type SearchResult struct {
	Table   string          `json:"table"`
	Hora    string          `json:"hora"`
	Records []models.Record `json:"records"`
}

// MonitorParams groups the monitor dependencies
type MonitorParams struct {
	Aligner      *timesync.Aligner
	Source       SourceStore
	Forwarder    *Forwarder
	Wells        WellStore
	Notifier     Notifier
	State        *models.StateStore
	QueryDelay   time.Duration
	ErrorBackoff time.Duration
	Logger       *slog.Logger
}

// Monitor runs the poll loop: wait for the next 5-second tick, fetch the delayed moment
// from today's source table, forward it and broadcast the result.
// Start and Stop may be called from any goroutine.
type Monitor struct {
	aligner   *timesync.Aligner
	clock     clock.Clock
	source    SourceStore
	forwarder *Forwarder
	wells     WellStore
	notifier  Notifier
	state     *models.StateStore
	delay     time.Duration
	backoff   *infra.Backoff
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewMonitor(p MonitorParams) *Monitor {
	notifier := p.Notifier
	if notifier == nil {
		notifier = noopNotifier{}
	}
	backoff := p.ErrorBackoff
	if backoff <= 0 {
		backoff = timesync.TickInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Monitor{
		aligner:   p.Aligner,
		clock:     p.Aligner.Clock(),
		source:    p.Source,
		forwarder: p.Forwarder,
		wells:     p.Wells,
		notifier:  notifier,
		state:     p.State,
		delay:     p.QueryDelay,
		backoff:   infra.NewConstantBackoff(backoff),
		logger:    p.Logger.With("component", "monitor"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the poll loop. It returns false if monitoring is already running.
func (m *Monitor) Start() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return false
	}
	if m.ctx.Err() != nil {
		m.logger.Warn("Start requested after shutdown, ignoring")
		return false
	}

	m.running = true
	prev := m.done
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop, m.done = stop, done

	m.state.SetRunning(true)
	metrics.Running.Set(1)
	m.emit(models.EventStarted, models.StartedData{Timezone: m.aligner.Label()})
	m.logger.Info("Monitoring started", "timezone", m.aligner.Label(), "delay", m.delay)

	go func() {
		// A previous loop may still be finishing an in-flight cycle
		if prev != nil {
			<-prev
		}
		m.run(stop, done)
	}()
	return true
}

// Stop signals the loop to exit at its next suspension point. It returns false if
// monitoring was not running.
func (m *Monitor) Stop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return false
	}
	m.running = false
	close(m.stop)

	m.state.SetRunning(false)
	m.state.SetPhase(models.PhaseStopped)
	metrics.Running.Set(0)
	m.emit(models.EventStopped, nil)
	m.logger.Info("Monitoring stopped")
	return true
}

// Close stops monitoring, aborts in-flight store calls and waits for the loop to exit
func (m *Monitor) Close() {
	m.Stop()
	m.cancel()

	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done != nil {
		<-done
	}
}

// State returns a snapshot of the monitor state
func (m *Monitor) State() models.MonitorState {
	return m.state.Snapshot()
}

// CurrentState is the payload sent to each new live subscriber
func (m *Monitor) CurrentState() models.CurrentStateData {
	return models.CurrentStateData{
		MonitorState: m.state.Snapshot(),
		Timezone:     m.aligner.Label(),
		LocalNow:     m.aligner.Now().Format(time.DateTime),
	}
}

// TimezoneInfo describes the configured zone and the current local and UTC times
func (m *Monitor) TimezoneInfo() models.TimezoneInfo {
	return m.aligner.Info()
}

// ManualFetch returns every row of today's source table at hora. It bypasses the
// forwarder and the dedup guard.
func (m *Monitor) ManualFetch(ctx context.Context, hora string) (SearchResult, error) {
	hora, err := timesync.ValidateClock(hora)
	if err != nil {
		return SearchResult{}, err
	}

	table := m.aligner.CurrentTableName()
	records, err := m.source.FetchAll(ctx, table, hora)
	if err != nil {
		return SearchResult{}, fmt.Errorf("manual fetch: %w", err)
	}
	if records == nil {
		records = []models.Record{}
	}

	m.logger.Info("Manual fetch", "table", table, "hora", hora, "count", len(records))
	return SearchResult{Table: table, Hora: hora, Records: records}, nil
}

// RefreshWellData copies the first well row from the source into the destination.
// It reports whether a row was written.
func (m *Monitor) RefreshWellData(ctx context.Context) bool {
	rec, found, err := m.source.FetchWell(ctx)
	if err != nil {
		m.logger.Error("Failed to read well data from source", "error", err)
		return false
	}
	if !found {
		m.logger.Warn("Source well table is empty")
		return false
	}

	well := models.WellRow(rec)
	updated, err := m.wells.UpsertWell(ctx, well)
	if err != nil {
		m.logger.Error("Failed to save well data", "error", err)
		return false
	}

	m.logger.Info("Well data saved",
		"pozo", well.StringValue(models.WellKeyColumn),
		"updated", updated,
	)
	return true
}

func (m *Monitor) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var last time.Time
	for {
		// SYNCHRONIZING
		wait, boundary := m.nextBoundary(last)
		ok := m.advance(stop, models.PhaseSynchronizing, models.EventSynchronizing, models.SynchronizingData{
			WaitSeconds: wait.Seconds(),
			Boundary:    timesync.FormatMoment(boundary),
			Timezone:    m.aligner.Label(),
		})
		if !ok || !m.sleep(stop, wait) {
			return
		}

		table := m.aligner.CurrentTableName()
		m.state.SetCurrentTable(table)
		ok = m.advance(stop, models.PhaseRunning, models.EventSynchronized, models.SynchronizedData{
			Table:    table,
			Timezone: m.aligner.Label(),
		})
		if !ok {
			return
		}
		last = boundary

		// RUNNING
		for {
			if err := m.cycle(stop); err != nil {
				metrics.Resyncs.Inc()
				delay := m.backoff.Next()
				m.logger.Error("Poll cycle failed, resynchronizing", "error", err, "backoff", delay)

				ok := m.advance(stop, models.PhaseSynchronizing, models.EventSynchronizing, models.SynchronizingData{
					WaitSeconds: delay.Seconds(),
					Timezone:    m.aligner.Label(),
					Error:       err.Error(),
				})
				if !ok || !m.sleep(stop, delay) {
					return
				}
				break
			}
			m.backoff.Reset()

			wait, boundary := m.nextBoundary(last)
			if !m.sleep(stop, wait) {
				return
			}
			last = boundary
		}
	}
}

// nextBoundary never returns a tick at or before the last one served, so a cycle that
// finishes within its own tick waits for the following one
func (m *Monitor) nextBoundary(last time.Time) (time.Duration, time.Time) {
	now := m.aligner.Now()
	wait, boundary := m.aligner.NextBoundary(now)
	if !last.IsZero() && !boundary.After(last) {
		boundary = last.Add(timesync.TickInterval)
		wait = max(boundary.Sub(now), 0)
	}
	return wait, boundary
}

// cycle runs one RUNNING step. A returned error means a store could not be reached.
func (m *Monitor) cycle(stop <-chan struct{}) (err error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(m.ctx, "monitor.cycle")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	now := m.aligner.Now()
	moment := timesync.FormatMoment(m.aligner.QueryMoment(now, m.delay))
	table := m.aligner.TableName(now)
	m.state.SetCurrentTable(table)
	span.SetAttributes(
		attribute.String("source.table", table),
		attribute.String("query.moment", moment),
	)

	l := m.logger.With("table", table, "moment", moment)

	rec, found, err := m.source.FetchAt(ctx, table, moment)
	if err != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("fetch %s at %s: %w", table, moment, err)
	}
	if !found {
		metrics.PollCycles.WithLabelValues("empty").Inc()
		l.Debug("No source row for moment")
		return nil
	}

	outcome, err := m.forwarder.Forward(ctx, rec, moment)
	if err != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("forward %s at %s: %w", table, moment, err)
	}
	metrics.PollCycles.WithLabelValues("found").Inc()
	m.state.SetLastRecordTime(moment)

	sent := m.publish(stop, models.EventNewRecord, models.NewRecordData{
		Record:      rec,
		QueryMoment: moment,
		Outcome:     string(outcome),
		Table:       table,
		LocalNow:    m.aligner.Now().Format(time.DateTime),
		Timezone:    m.aligner.Label(),
	})
	if !sent {
		l.Info("Monitoring stopped during cycle, record not broadcast", "outcome", outcome)
	}
	return nil
}

// advance moves to phase and broadcasts the event unless stop was requested.
// Holding mu orders the loop's events against Stop's "stopped".
func (m *Monitor) advance(stop <-chan struct{}, phase models.Phase, name string, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stopped(stop) {
		return false
	}
	m.state.SetPhase(phase)
	m.emit(name, data)
	return true
}

func (m *Monitor) publish(stop <-chan struct{}, name string, data any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stopped(stop) {
		return false
	}
	m.emit(name, data)
	return true
}

func (m *Monitor) emit(name string, data any) {
	m.notifier.Notify(models.NewEvent(name, data))
}

// sleep suspends the loop for d. It returns false when stop or shutdown interrupted it.
func (m *Monitor) sleep(stop <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-stop:
			return false
		case <-m.ctx.Done():
			return false
		default:
			return true
		}
	}

	select {
	case <-m.clock.After(d):
		return !stopped(stop)
	case <-stop:
		return false
	case <-m.ctx.Done():
		return false
	}
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
