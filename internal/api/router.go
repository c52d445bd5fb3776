// Package api exposes the monitor command surface over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/service"
	"github.com/Guizzs26/tiempo-relay/internal/timesync"
)

// Monitor is the command surface served by the router
type Monitor interface {
	State() models.MonitorState
	Start() bool
	Stop() bool
	ManualFetch(ctx context.Context, hora string) (service.SearchResult, error)
	RefreshWellData(ctx context.Context) bool
	TimezoneInfo() models.TimezoneInfo
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type handler struct {
	monitor Monitor
	logger  *slog.Logger
}

// NewRouter wires the JSON API, the live event socket, metrics and health
func NewRouter(m Monitor, live http.Handler, logger *slog.Logger) *mux.Router {
	h := &handler{monitor: m, logger: logger.With("component", "api")}

	r := mux.NewRouter()
	r.Use(h.logRequests)

	// Full paths on the root router so a method mismatch answers 405, not 404
	r.HandleFunc("/api/state", h.state).Methods(http.MethodGet)
	r.HandleFunc("/api/start", h.start).Methods(http.MethodPost)
	r.HandleFunc("/api/stop", h.stop).Methods(http.MethodPost)
	r.HandleFunc("/api/search/{hora}", h.search).Methods(http.MethodGet)
	r.HandleFunc("/api/well-data/refresh", h.refreshWell).Methods(http.MethodPost)
	r.HandleFunc("/api/timezone", h.timezone).Methods(http.MethodGet)

	if live != nil {
		r.Handle("/ws", live)
	}
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return r
}

func (h *handler) state(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, response{Success: true, Data: h.monitor.State()})
}

func (h *handler) start(w http.ResponseWriter, _ *http.Request) {
	msg := "Monitoring started"
	if !h.monitor.Start() {
		msg = "Monitoring already running"
	}
	h.write(w, http.StatusOK, response{Success: true, Message: msg})
}

func (h *handler) stop(w http.ResponseWriter, _ *http.Request) {
	msg := "Monitoring stopped"
	if !h.monitor.Stop() {
		msg = "Monitoring already stopped"
	}
	h.write(w, http.StatusOK, response{Success: true, Message: msg})
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	hora, err := timesync.ValidateClock(mux.Vars(r)["hora"])
	if err != nil {
		h.write(w, http.StatusBadRequest, response{Error: err.Error()})
		return
	}

	res, err := h.monitor.ManualFetch(r.Context(), hora)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, models.ErrMalformedTime) {
			status = http.StatusBadRequest
		}
		h.logger.Error("Manual search failed", "hora", hora, "error", err)
		h.write(w, status, response{Error: err.Error()})
		return
	}
	h.write(w, http.StatusOK, response{Success: true, Data: res})
}

func (h *handler) refreshWell(w http.ResponseWriter, r *http.Request) {
	if !h.monitor.RefreshWellData(r.Context()) {
		h.write(w, http.StatusOK, response{Message: "Well data was not updated"})
		return
	}
	h.write(w, http.StatusOK, response{Success: true, Message: "Well data updated"})
}

func (h *handler) timezone(w http.ResponseWriter, _ *http.Request) {
	h.write(w, http.StatusOK, response{Success: true, Data: h.monitor.TimezoneInfo()})
}

func (h *handler) write(w http.ResponseWriter, status int, body response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
