package models

import (
	"time"

	"github.com/google/uuid"
)

// Event names broadcast to live observers
const (
	EventStarted       = "started"
	EventStopped       = "stopped"
	EventSynchronizing = "synchronizing"
	EventSynchronized  = "synchronized"
	EventNewRecord     = "newRecord"
	EventCurrentState  = "currentState"
)

// Event is the envelope sent to every notification sink
type Event struct {
	ID        string    `json:"event_id"` // Unique ID for tracing (UUID)
	Name      string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

func NewEvent(name string, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

type StartedData struct {
	Timezone string `json:"timezone"`
}

type SynchronizingData struct {
	WaitSeconds float64 `json:"wait_seconds"`
	Boundary    string  `json:"boundary"`
	Timezone    string  `json:"timezone"`
	Error       string  `json:"error,omitempty"`
}

type SynchronizedData struct {
	Table    string `json:"table"`
	Timezone string `json:"timezone"`
}

type NewRecordData struct {
	Record      Record `json:"record"`
	QueryMoment string `json:"query_moment"`
	Outcome     string `json:"outcome"`
	Table       string `json:"table"`
	LocalNow    string `json:"local_now"`
	Timezone    string `json:"timezone"`
}

type CurrentStateData struct {
	MonitorState
	Timezone string `json:"timezone"`
	LocalNow string `json:"local_now"`
}

// TimezoneInfo describes the fixed offset the monitor runs in
type TimezoneInfo struct {
	Zone         string  `json:"zone"`
	OffsetLabel  string  `json:"offset"`
	OffsetHours  float64 `json:"offset_decimal"`
	LocalNow     string  `json:"local_now"`
	UTCNow       string  `json:"utc_now"`
	CurrentTable string  `json:"current_table"`
	Timestamp    int64   `json:"timestamp"`
}
