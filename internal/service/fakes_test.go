package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeDestination struct {
	mu        sync.Mutex
	columns   []string
	existing  map[string]bool
	inserted  []models.Record
	wells     []models.Record
	existsErr error
	insertErr error
	calls     map[string]int
}

func newFakeDestination(columns ...string) *fakeDestination {
	return &fakeDestination{
		columns:  columns,
		existing: make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (d *fakeDestination) ExistsAt(_ context.Context, hora string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["exists"]++
	if d.existsErr != nil {
		return false, d.existsErr
	}
	return d.existing[hora], nil
}

func (d *fakeDestination) Columns(context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["columns"]++
	out := make([]string, len(d.columns))
	copy(out, d.columns)
	return out, nil
}

func (d *fakeDestination) Insert(_ context.Context, rec models.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["insert"]++
	if d.insertErr != nil {
		return d.insertErr
	}
	d.inserted = append(d.inserted, rec)
	d.existing[rec.StringValue(models.ColumnHora)] = true
	return nil
}

func (d *fakeDestination) UpsertWell(_ context.Context, well models.Record) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["well"]++
	for i, w := range d.wells {
		if w.StringValue(models.WellKeyColumn) == well.StringValue(models.WellKeyColumn) {
			d.wells[i] = well
			return true, nil
		}
	}
	d.wells = append(d.wells, well)
	return false, nil
}

func (d *fakeDestination) Inserted() []models.Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Record, len(d.inserted))
	copy(out, d.inserted)
	return out
}

func (d *fakeDestination) Calls(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[name]
}

type fakeSource struct {
	mu      sync.Mutex
	rows    map[string]models.Record // table + "|" + hora
	well    *models.Record
	failN   int
	fetches []string

	entered chan struct{}
	gate    chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{rows: make(map[string]models.Record)}
}

func (s *fakeSource) Put(table, hora string, rec models.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[table+"|"+hora] = rec
}

// FailNext makes the next n fetches return a connectivity error
func (s *fakeSource) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failN = n
}

// Hold makes every fetch block until release is called. entered receives once per
// blocked fetch.
func (s *fakeSource) Hold() (entered <-chan struct{}, release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entered = make(chan struct{}, 8)
	s.gate = make(chan struct{})
	gate := s.gate

	var once sync.Once
	return s.entered, func() { once.Do(func() { close(gate) }) }
}

func (s *fakeSource) FetchAt(_ context.Context, table, hora string) (models.Record, bool, error) {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, table+"|"+hora)
	if s.failN > 0 {
		s.failN--
		return models.Record{}, false, errors.Join(models.ErrConnectivity, errors.New("mock source down"))
	}
	rec, ok := s.rows[table+"|"+hora]
	return rec, ok, nil
}

func (s *fakeSource) FetchAll(ctx context.Context, table, hora string) ([]models.Record, error) {
	rec, ok, err := s.FetchAt(ctx, table, hora)
	if err != nil || !ok {
		return nil, err
	}
	return []models.Record{rec}, nil
}

func (s *fakeSource) FetchWell(context.Context) (models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.well == nil {
		return models.Record{}, false, nil
	}
	return *s.well, true, nil
}

func (s *fakeSource) Fetches() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.fetches))
	copy(out, s.fetches)
	return out
}

type recordingNotifier struct {
	events chan models.Event
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{events: make(chan models.Event, 64)}
}

func (n *recordingNotifier) Notify(ev models.Event) {
	n.events <- ev
}
