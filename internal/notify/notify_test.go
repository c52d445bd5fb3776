package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/websocket"

	"github.com/Guizzs26/tiempo-relay/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticState struct{}

func (staticState) CurrentState() models.CurrentStateData {
	return models.CurrentStateData{
		MonitorState: models.MonitorState{Phase: models.PhaseStopped, CurrentTable: "tiempo070324"},
		Timezone:     "Venezuela (UTC-04:30)",
	}
}

type wireEvent struct {
	ID   string          `json:"event_id"`
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

func dial(c *qt.C, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(c *qt.C, conn *websocket.Conn) wireEvent {
	c.Helper()
	c.Assert(conn.SetReadDeadline(time.Now().Add(5*time.Second)), qt.IsNil)
	var ev wireEvent
	c.Assert(conn.ReadJSON(&ev), qt.IsNil)
	return ev
}

func TestHubSendsCurrentStateThenEvents(t *testing.T) {
	c := qt.New(t)
	hub := NewHub(staticState{}, discardLogger())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(c, srv)

	first := readEvent(c, conn)
	c.Assert(first.Name, qt.Equals, models.EventCurrentState)
	var state map[string]any
	c.Assert(json.Unmarshal(first.Data, &state), qt.IsNil)
	c.Assert(state["current_table"], qt.Equals, "tiempo070324")
	c.Assert(state["timezone"], qt.Equals, "Venezuela (UTC-04:30)")

	// The subscription lands right after currentState is queued; keep publishing until it does.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				hub.Notify(models.NewEvent(models.EventSynchronized, models.SynchronizedData{Table: "tiempo070324"}))
			}
		}
	}()

	got := readEvent(c, conn)
	c.Assert(got.Name, qt.Equals, models.EventSynchronized)
	c.Assert(string(got.Data), qt.Equals, `{"table":"tiempo070324","timezone":""}`)
}

type recordingPublisher struct {
	name string
	mu   sync.Mutex
	got  []models.Event
	err  error
	gate chan struct{}
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(ctx context.Context, ev models.Event) error {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, ev)
	return p.err
}

func (p *recordingPublisher) Events() []models.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Event(nil), p.got...)
}

type sinkFunc func(models.Event)

func (f sinkFunc) Notify(ev models.Event) { f(ev) }

func TestDispatcherFansOut(t *testing.T) {
	c := qt.New(t)

	var local []string
	d := NewDispatcher(discardLogger(), sinkFunc(func(ev models.Event) {
		local = append(local, ev.Name)
	}))
	amqp := &recordingPublisher{name: "rabbitmq"}
	kafka := &recordingPublisher{name: "kafka", err: errors.New("leader not available")}
	d.AddPublisher(amqp, 8)
	d.AddPublisher(kafka, 8)

	d.Notify(models.NewEvent(models.EventStarted, nil))
	d.Notify(models.NewEvent(models.EventStopped, nil))
	d.Close()

	c.Assert(local, qt.DeepEquals, []string{models.EventStarted, models.EventStopped})
	c.Assert(amqp.Events(), qt.HasLen, 2)
	c.Assert(amqp.Events()[1].Name, qt.Equals, models.EventStopped)
	// Publish errors are logged, not retried.
	c.Assert(kafka.Events(), qt.HasLen, 2)

	// Closed dispatchers ignore further events.
	d.Notify(models.NewEvent(models.EventStarted, nil))
	c.Assert(local, qt.HasLen, 2)
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	c := qt.New(t)

	d := NewDispatcher(discardLogger())
	slow := &recordingPublisher{name: "slow", gate: make(chan struct{})}
	d.AddPublisher(slow, 1)

	for i := 0; i < 10; i++ {
		d.Notify(models.NewEvent(models.EventNewRecord, i))
	}
	close(slow.gate)
	d.Close()

	// One event in flight plus one buffered; the rest were dropped.
	n := len(slow.Events())
	c.Assert(n >= 1 && n <= 2, qt.IsTrue, qt.Commentf("delivered %d", n))
}
