// Package notify fans monitor events out to live websocket observers and to the
// configured message brokers.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/juju/pubsub/v2"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

const (
	eventsTopic = "monitor.events"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	clientBuffer   = 64
)

// StateProvider returns the snapshot sent to a subscriber when it connects
type StateProvider interface {
	CurrentState() models.CurrentStateData
}

// Hub broadcasts monitor events to every connected websocket client
type Hub struct {
	hub      *pubsub.SimpleHub
	state    StateProvider
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewHub(state StateProvider, logger *slog.Logger) *Hub {
	l := logger.With("component", "ws_hub")
	return &Hub{
		hub: pubsub.NewSimpleHub(&pubsub.SimpleHubConfig{
			Logger: hubLogger{l},
		}),
		state: state,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: l,
	}
}

// Notify publishes ev to all subscribers. Delivery is asynchronous.
func (h *Hub) Notify(ev models.Event) {
	_ = h.hub.Publish(eventsTopic, ev)
}

// ServeHTTP upgrades the request and streams events until the client goes away
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan models.Event, clientBuffer),
		done:   make(chan struct{}),
		logger: h.logger.With("remote", r.RemoteAddr),
	}

	// currentState goes first so the observer never renders an event without context
	c.enqueue(models.NewEvent(models.EventCurrentState, h.state.CurrentState()))

	unsubscribe := h.hub.Subscribe(eventsTopic, func(_ string, data interface{}) {
		if ev, ok := data.(models.Event); ok {
			c.enqueue(ev)
		}
	})
	metrics.Subscribers.Inc()
	c.logger.Info("Observer connected")

	go c.writePump()
	c.readPump()

	unsubscribe()
	metrics.Subscribers.Dec()
	c.logger.Info("Observer disconnected")
}

type client struct {
	conn   *websocket.Conn
	send   chan models.Event
	done   chan struct{}
	logger *slog.Logger
}

// enqueue never blocks the hub; a client that cannot keep up loses events
func (c *client) enqueue(ev models.Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		metrics.NotificationsDropped.WithLabelValues("websocket").Inc()
		c.logger.Warn("Observer too slow, dropping event", "event", ev.Name)
	}
}

// readPump discards client messages and detects closed connections
func (c *client) readPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("Observer read failed", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case ev := <-c.send:
			payload, err := json.Marshal(ev)
			if err != nil {
				c.logger.Error("Failed to encode event", "event", ev.Name, "error", err)
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("Observer write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// hubLogger routes pubsub diagnostics into slog
type hubLogger struct {
	l *slog.Logger
}

func (h hubLogger) Errorf(format string, args ...interface{}) {
	h.l.Error(fmt.Sprintf(format, args...))
}

func (h hubLogger) Warningf(format string, args ...interface{}) {
	h.l.Warn(fmt.Sprintf(format, args...))
}

func (h hubLogger) Infof(format string, args ...interface{}) {
	h.l.Info(fmt.Sprintf(format, args...))
}

func (h hubLogger) Debugf(format string, args ...interface{}) {
	h.l.Debug(fmt.Sprintf(format, args...))
}

func (h hubLogger) Tracef(format string, args ...interface{}) {
	h.l.Debug(fmt.Sprintf(format, args...))
}
