// Package approval holds the demo-approval domain: the pending-request
// registry, the typed payload carried by card buttons, the Block Kit builders
// for every surface the workflow posts, and the stale-card reminder sweep.
package approval

import (
	"sync"
	"time"
)

// Record describes one posted approval card, keyed by the card's Slack
// message timestamp. Records are best-effort bookkeeping: decision handlers
// decode everything they need from the button payload, so a restart that
// empties the registry does not break the decision flow.
type Record struct {
	OriginChannel string
	OriginThread  string
	Item          string
	RequesterID   string

	// CardChannel is where the approval card was posted; reminders thread
	// under the card.
	CardChannel string
	PostedAt    time.Time
}

// Registry stores pending approval records. Implementations must be safe for
// concurrent use; event handlers run on independent goroutines.
type Registry interface {
	Put(id string, rec Record)
	Get(id string) (Record, bool)
	Delete(id string)

	// Pending returns the records posted before the cutoff, keyed by card ID.
	Pending(cutoff time.Time) map[string]Record
}

// MemoryRegistry is the process-lifetime Registry. State is lost on restart,
// which is acceptable per the payload round-trip above.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[string]Record)}
}

// Put stores a record under the given card ID.
func (r *MemoryRegistry) Put(id string, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[id] = rec
}

// Get returns the record for a card ID.
func (r *MemoryRegistry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Delete removes a record. Deleting an unknown ID is a no-op.
func (r *MemoryRegistry) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
}

// Pending returns a copy of every record posted before the cutoff.
func (r *MemoryRegistry) Pending(cutoff time.Time) map[string]Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pending := make(map[string]Record)
	for id, rec := range r.records {
		if rec.PostedAt.Before(cutoff) {
			pending[id] = rec
		}
	}
	return pending
}

// Len returns the number of stored records.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

var _ Registry = (*MemoryRegistry)(nil)
