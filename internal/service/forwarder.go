package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

// Outcome is the forwarder's verdict for one fetched record
type Outcome string

const (
	OutcomeForwarded Outcome = "forwarded"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

const tracerName = "github.com/Guizzs26/tiempo-relay"

// DestinationStore defines the destination capabilities the forwarder relies on
type DestinationStore interface {
	ExistsAt(ctx context.Context, hora string) (bool, error)
	Columns(ctx context.Context) ([]string, error)
	Insert(ctx context.Context, rec models.Record) error
}

// Forwarder copies a fetched record into the destination table at most once per process run
type Forwarder struct {
	dest   DestinationStore
	guard  *DedupGuard
	state  *models.StateStore
	logger *slog.Logger
}

// NewForwarder builds a forwarder that remembers handled keys in guard
func NewForwarder(dest DestinationStore, guard *DedupGuard, state *models.StateStore, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		dest:   dest,
		guard:  guard,
		state:  state,
		logger: logger,
	}
}

// Forward decides whether rec, fetched for moment, is new and inserts it if so.
// A non-nil error means the destination could not be consulted; the caller treats that as a
// cycle failure. Insert failures and schema mismatches are reported as OutcomeFailed with a nil error.
func (f *Forwarder) Forward(ctx context.Context, rec models.Record, moment string) (outcome Outcome, err error) {
	key := RecordKey(moment, rec)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "forwarder.forward")
	span.SetAttributes(attribute.String("record.key", key))
	defer func() {
		span.SetAttributes(attribute.String("forward.outcome", string(outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ForwardOutcomes.WithLabelValues(string(outcome)).Inc()
	}()

	l := f.logger.With("key", key)

	if !f.guard.ShouldAdmit(key) {
		l.Debug("Record already handled in this run, skipping destination")
		return OutcomeDuplicate, nil
	}

	exists, err := f.dest.ExistsAt(ctx, moment)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("destination existence check: %w", err)
	}
	if exists {
		f.guard.MarkAdmitted(key)
		l.Info("Record already present in destination")
		return OutcomeDuplicate, nil
	}

	columns, err := f.dest.Columns(ctx)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("destination schema discovery: %w", err)
	}

	projected := rec.Project(columns)
	if projected.Len() == 0 {
		l.Warn("Record shares no column with destination, not inserting",
			"record_columns", rec.Columns(),
			"error", models.ErrSchemaMismatch,
		)
		return OutcomeFailed, nil
	}

	if err := f.dest.Insert(ctx, projected); err != nil {
		if errors.Is(err, models.ErrSchemaMismatch) {
			l.Warn("Destination rejected projected record", "error", err)
		} else {
			l.Error("Failed to insert record into destination", "error", err)
		}
		return OutcomeFailed, nil
	}

	f.guard.MarkAdmitted(key)
	saved := f.state.IncSaved()
	l.Info("Record forwarded", "columns", projected.Len(), "saved_total", saved)
	return OutcomeForwarded, nil
}
