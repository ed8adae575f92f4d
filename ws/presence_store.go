package ws

import (
	"context"
	"sort"
	"sync"

	"github.com/akinalp/tradechat/pubsub"
)

// PresenceStore holds tracked presence per topic. Entries are keyed by
// presence key (user id) and connection ref, so one user with two tabs
// shows up once with two entries.
type PresenceStore interface {
	Track(ctx context.Context, topic, key string, entry pubsub.PresenceEntry) error
	Untrack(ctx context.Context, topic, key, ref string) error
	State(ctx context.Context, topic string) (pubsub.PresenceState, error)
}

// MemoryPresenceStore keeps presence in process memory (single instance).
type MemoryPresenceStore struct {
	mu     sync.RWMutex
	topics map[string]map[string]map[string]pubsub.PresenceEntry
}

func NewMemoryPresenceStore() *MemoryPresenceStore {
	return &MemoryPresenceStore{
		topics: make(map[string]map[string]map[string]pubsub.PresenceEntry),
	}
}

func (s *MemoryPresenceStore) Track(_ context.Context, topic, key string, entry pubsub.PresenceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.topics[topic]
	if !ok {
		keys = make(map[string]map[string]pubsub.PresenceEntry)
		s.topics[topic] = keys
	}
	refs, ok := keys[key]
	if !ok {
		refs = make(map[string]pubsub.PresenceEntry)
		keys[key] = refs
	}
	refs[entry.Ref] = entry
	return nil
}

func (s *MemoryPresenceStore) Untrack(_ context.Context, topic, key, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.topics[topic]
	refs := keys[key]
	delete(refs, ref)
	if len(refs) == 0 {
		delete(keys, key)
	}
	if len(keys) == 0 {
		delete(s.topics, topic)
	}
	return nil
}

func (s *MemoryPresenceStore) State(_ context.Context, topic string) (pubsub.PresenceState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := make(pubsub.PresenceState)
	for key, refs := range s.topics[topic] {
		for _, e := range refs {
			state[key] = append(state[key], e)
		}
		sortEntries(state[key])
	}
	return state, nil
}

// sortEntries orders entries by join time then ref so snapshots are
// stable.
func sortEntries(entries []pubsub.PresenceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.OnlineAt.Equal(b.OnlineAt) {
			return a.OnlineAt.Before(b.OnlineAt)
		}
		return a.Ref < b.Ref
	})
}
