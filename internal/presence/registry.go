// Package presence tracks which identified connections are online.
package presence

import (
	"sort"
	"sync"
	"time"

	"lanchat/internal/metrics"
	"lanchat/internal/model"
)

// RosterPublisher receives the full roster after every membership change.
// It is called with the registry lock held and must only enqueue.
type RosterPublisher interface {
	PublishRoster(roster []model.PresenceEntry)
}

// PublisherFunc adapts a function to RosterPublisher
type PublisherFunc func(roster []model.PresenceEntry)

func (f PublisherFunc) PublishRoster(roster []model.PresenceEntry) { f(roster) }

type slot struct {
	seq   uint64
	entry model.PresenceEntry
}

// Registry is the single owner of presence entries
type Registry struct {
	mu      sync.Mutex
	entries map[string]slot // connectionID -> entry
	seq     uint64
	pub     RosterPublisher
	now     func() time.Time
}

// NewRegistry creates an empty Registry. pub may be nil.
func NewRegistry(pub RosterPublisher) *Registry {
	if pub == nil {
		pub = PublisherFunc(func([]model.PresenceEntry) {})
	}
	return &Registry{
		entries: make(map[string]slot),
		pub:     pub,
		now:     time.Now,
	}
}

// Put adds or replaces the entry for e.ConnectionID and publishes the roster.
// A replaced entry keeps its position.
func (r *Registry) Put(e model.PresenceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[e.ConnectionID]
	if ok {
		e.JoinedAt = s.entry.JoinedAt
	} else {
		r.seq++
		s.seq = r.seq
		e.JoinedAt = r.now()
	}
	s.entry = e
	r.entries[e.ConnectionID] = s

	r.publishLocked()
}

// Remove deletes the entry of connectionID. Publishes only if one existed.
func (r *Registry) Remove(connectionID string) (model.PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[connectionID]
	if !ok {
		return model.PresenceEntry{}, false
	}
	delete(r.entries, connectionID)

	r.publishLocked()
	return s.entry, true
}

// Snapshot returns the roster in join order
func (r *Registry) Snapshot() []model.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Observe calls fn with the current roster while holding the lock, so fn
// sees no publication interleaved with the snapshot it receives.
func (r *Registry) Observe(fn func(roster []model.PresenceEntry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.snapshotLocked())
}

// ConnectionsOf returns the connection ids identified as userID
func (r *Registry) ConnectionsOf(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []string
	for id, s := range r.entries {
		if s.entry.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) snapshotLocked() []model.PresenceEntry {
	slots := make([]slot, 0, len(r.entries))
	for _, s := range r.entries {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].seq < slots[j].seq })

	out := make([]model.PresenceEntry, len(slots))
	for i, s := range slots {
		out[i] = s.entry
	}
	return out
}

func (r *Registry) publishLocked() {
	roster := r.snapshotLocked()
	metrics.OnlineEntries.Set(float64(len(roster)))
	r.pub.PublishRoster(roster)
}
