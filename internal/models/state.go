package models

import (
	"sync"
	"time"
)

// Phase is the poll loop's state machine position
type Phase string

const (
	PhaseStopped       Phase = "STOPPED"
	PhaseSynchronizing Phase = "SYNCHRONIZING"
	PhaseRunning       Phase = "RUNNING"
)

// MonitorState is the externally visible snapshot of the monitor
type MonitorState struct {
	Running        bool      `json:"running"`
	Phase          Phase     `json:"phase"`
	CurrentTable   string    `json:"current_table"`
	LastRecordTime string    `json:"last_record_time,omitempty"`
	SavedCount     int64     `json:"saved_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StateStore owns the single MonitorState instance. The poll loop is its only writer
// (plus the forwarder's success counter); every reader gets a copy.
type StateStore struct {
	mu    sync.RWMutex
	state MonitorState
}

func NewStateStore(table string) *StateStore {
	return &StateStore{state: MonitorState{
		Phase:        PhaseStopped,
		CurrentTable: table,
		UpdatedAt:    time.Now(),
	}}
}

// Snapshot returns a copy of the current state
func (s *StateStore) Snapshot() MonitorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *StateStore) update(fn func(*MonitorState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	s.state.UpdatedAt = time.Now()
}

func (s *StateStore) SetRunning(running bool) {
	s.update(func(st *MonitorState) { st.Running = running })
}

func (s *StateStore) SetPhase(p Phase) {
	s.update(func(st *MonitorState) { st.Phase = p })
}

func (s *StateStore) SetCurrentTable(table string) {
	s.update(func(st *MonitorState) { st.CurrentTable = table })
}

func (s *StateStore) SetLastRecordTime(moment string) {
	s.update(func(st *MonitorState) { st.LastRecordTime = moment })
}

// IncSaved bumps the forwarded-record counter and returns the new value
func (s *StateStore) IncSaved() int64 {
	var n int64
	s.update(func(st *MonitorState) {
		st.SavedCount++
		n = st.SavedCount
	})
	return n
}
