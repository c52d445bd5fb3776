package service

import (
	"sync"

	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/pkg/metrics"
)

// RecordKey identifies one forwarding attempt: the query moment plus the row's ID (empty when absent)
func RecordKey(moment string, rec models.Record) string {
	return moment + "_" + rec.StringValue(models.ColumnID)
}

// DedupGuard remembers keys that were forwarded or confirmed as duplicates during this process run.
// The set is never pruned; a restart starts from empty.
type DedupGuard struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewDedupGuard returns an empty guard
func NewDedupGuard() *DedupGuard {
	return &DedupGuard{keys: make(map[string]struct{})}
}

// ShouldAdmit reports whether key has not been seen yet. It does not record the key.
func (g *DedupGuard) ShouldAdmit(key string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, seen := g.keys[key]
	return !seen
}

// MarkAdmitted records key; repeated calls are no-ops
func (g *DedupGuard) MarkAdmitted(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.keys[key] = struct{}{}
	metrics.DedupKeys.Set(float64(len(g.keys)))
}

// Len is the number of remembered keys
func (g *DedupGuard) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.keys)
}
