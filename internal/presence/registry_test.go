package presence

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanchat/internal/model"
)

type recorder struct {
	mu      sync.Mutex
	rosters [][]model.PresenceEntry
}

func (r *recorder) PublishRoster(roster []model.PresenceEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, roster)
}

func (r *recorder) last() []model.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rosters[len(r.rosters)-1]
}

func userIDs(roster []model.PresenceEntry) []string {
	ids := make([]string, len(roster))
	for i, e := range roster {
		ids[i] = e.UserID
	}
	return ids
}

func entry(conn, user string) model.PresenceEntry {
	return model.PresenceEntry{ConnectionID: conn, UserID: user, Username: user + "-name", RemoteAddress: "10.0.0.2"}
}

func TestRegistry_ConnectConnectDisconnect(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)

	r.Put(entry("c1", "U1"))
	r.Put(entry("c2", "U2"))
	_, ok := r.Remove("c1")
	require.True(t, ok)

	require.Len(t, rec.rosters, 3)
	assert.Equal(t, []string{"U1"}, userIDs(rec.rosters[0]))
	assert.Equal(t, []string{"U1", "U2"}, userIDs(rec.rosters[1]))
	assert.Equal(t, []string{"U2"}, userIDs(rec.rosters[2]))
	assert.Equal(t, []string{"U2"}, userIDs(r.Snapshot()))
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	r := NewRegistry(nil)

	r.Put(entry("c1", "alice"))
	r.Put(entry("c2", "bob"))
	r.Put(entry("c3", "alice"))

	assert.Equal(t, []string{"alice", "bob", "alice"}, userIDs(r.Snapshot()))
	assert.Equal(t, []string{"c1", "c3"}, r.ConnectionsOf("alice"))
	assert.Empty(t, r.ConnectionsOf("carol"))
	assert.Equal(t, 3, r.Len())
}

func TestRegistry_ReidentifyKeepsPosition(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)

	r.Put(entry("c1", "U1"))
	r.Put(entry("c2", "U2"))
	joined := r.Snapshot()[0].JoinedAt

	renamed := entry("c1", "U1")
	renamed.Username = "new-name"
	r.Put(renamed)

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "new-name", snap[0].Username)
	assert.Equal(t, joined, snap[0].JoinedAt)
	assert.Len(t, rec.rosters, 3)
}

func TestRegistry_RemoveUnknownDoesNotPublish(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)

	_, ok := r.Remove("nope")
	assert.False(t, ok)
	assert.Empty(t, rec.rosters)
}

func TestRegistry_PublicationsFollowMutationOrder(t *testing.T) {
	rec := &recorder{}
	r := NewRegistry(rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Put(entry(id, "u"))
			r.Remove(id)
		}(i)
	}
	wg.Wait()

	// every publication differs from the previous one by exactly one entry
	prev := 0
	for _, roster := range rec.rosters {
		diff := len(roster) - prev
		assert.True(t, diff == 1 || diff == -1, "roster size jumped from %d to %d", prev, len(roster))
		prev = len(roster)
	}
	assert.Empty(t, rec.last())
	assert.Zero(t, r.Len())
}

func TestRegistry_ObserveSeesCurrentRoster(t *testing.T) {
	r := NewRegistry(nil)
	r.Put(entry("c1", "U1"))

	var seen []model.PresenceEntry
	r.Observe(func(roster []model.PresenceEntry) { seen = roster })
	assert.Equal(t, []string{"U1"}, userIDs(seen))
}
