package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/service"
)

type fakeMonitor struct {
	running  bool
	searched []string
	wellOK   bool
}

func (f *fakeMonitor) State() models.MonitorState {
	phase := models.PhaseStopped
	if f.running {
		phase = models.PhaseRunning
	}
	return models.MonitorState{Running: f.running, Phase: phase, CurrentTable: "tiempo070324"}
}

func (f *fakeMonitor) Start() bool {
	if f.running {
		return false
	}
	f.running = true
	return true
}

func (f *fakeMonitor) Stop() bool {
	if !f.running {
		return false
	}
	f.running = false
	return true
}

func (f *fakeMonitor) ManualFetch(_ context.Context, hora string) (service.SearchResult, error) {
	f.searched = append(f.searched, hora)
	rec := models.NewRecord(models.Field{Name: "HORA", Value: hora})
	return service.SearchResult{Table: "tiempo070324", Hora: hora, Records: []models.Record{rec}}, nil
}

func (f *fakeMonitor) RefreshWellData(context.Context) bool { return f.wellOK }

func (f *fakeMonitor) TimezoneInfo() models.TimezoneInfo {
	return models.TimezoneInfo{Zone: "Venezuela", OffsetLabel: "UTC-04:30", OffsetHours: -4.5}
}

func do(c *qt.C, h http.Handler, method, path string) (int, map[string]any) {
	c.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		c.Assert(json.Unmarshal(rec.Body.Bytes(), &body), qt.IsNil)
	}
	return rec.Code, body
}

func newTestRouter(m *fakeMonitor) http.Handler {
	return NewRouter(m, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestStartStop(t *testing.T) {
	c := qt.New(t)
	m := &fakeMonitor{}
	r := newTestRouter(m)

	code, body := do(c, r, http.MethodPost, "/api/start")
	c.Assert(code, qt.Equals, http.StatusOK)
	c.Assert(body["success"], qt.Equals, true)
	c.Assert(body["message"], qt.Equals, "Monitoring started")

	_, body = do(c, r, http.MethodPost, "/api/start")
	c.Assert(body["message"], qt.Equals, "Monitoring already running")

	_, body = do(c, r, http.MethodGet, "/api/state")
	data := body["data"].(map[string]any)
	c.Assert(data["running"], qt.Equals, true)
	c.Assert(data["phase"], qt.Equals, "RUNNING")

	_, body = do(c, r, http.MethodPost, "/api/stop")
	c.Assert(body["message"], qt.Equals, "Monitoring stopped")

	code, _ = do(c, r, http.MethodGet, "/api/start")
	c.Assert(code, qt.Equals, http.StatusMethodNotAllowed)
	code, _ = do(c, r, http.MethodDelete, "/api/stop")
	c.Assert(code, qt.Equals, http.StatusMethodNotAllowed)
	code, _ = do(c, r, http.MethodPost, "/api/search/10:00:00")
	c.Assert(code, qt.Equals, http.StatusMethodNotAllowed)
	code, _ = do(c, r, http.MethodGet, "/api/unknown")
	c.Assert(code, qt.Equals, http.StatusNotFound)
	c.Assert(m.running, qt.IsFalse)
}

func TestSearch(t *testing.T) {
	c := qt.New(t)
	m := &fakeMonitor{}
	r := newTestRouter(m)

	code, body := do(c, r, http.MethodGet, "/api/search/7:30:05")
	c.Assert(code, qt.Equals, http.StatusOK)
	data := body["data"].(map[string]any)
	c.Assert(data["table"], qt.Equals, "tiempo070324")
	c.Assert(data["records"], qt.HasLen, 1)
	c.Assert(m.searched, qt.DeepEquals, []string{"07:30:05"})

	code, body = do(c, r, http.MethodGet, "/api/search/24:00:00")
	c.Assert(code, qt.Equals, http.StatusBadRequest)
	c.Assert(body["success"], qt.Equals, false)
	c.Assert(body["error"], qt.Contains, "HH:MM:SS")
	c.Assert(m.searched, qt.HasLen, 1)
}

func TestWellRefreshAndTimezone(t *testing.T) {
	c := qt.New(t)
	m := &fakeMonitor{}
	r := newTestRouter(m)

	_, body := do(c, r, http.MethodPost, "/api/well-data/refresh")
	c.Assert(body["success"], qt.Equals, false)

	m.wellOK = true
	_, body = do(c, r, http.MethodPost, "/api/well-data/refresh")
	c.Assert(body["success"], qt.Equals, true)

	_, body = do(c, r, http.MethodGet, "/api/timezone")
	data := body["data"].(map[string]any)
	c.Assert(data["offset"], qt.Equals, "UTC-04:30")
	c.Assert(data["offset_decimal"], qt.Equals, -4.5)
}

func TestHealth(t *testing.T) {
	c := qt.New(t)
	rec := httptest.NewRecorder()
	newTestRouter(&fakeMonitor{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "OK")
}
