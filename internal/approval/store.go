package approval

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/farazbot/backend/internal/models"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

var ErrDuplicateKey = errors.New("pending action already exists for key")

// Store holds pending actions in memory. Entries are bounded by capacity and
// dropped by the cache after ttl even if nothing resolves them. Dropped
// entries are kept aside until Evicted collects them.
type Store struct {
	mu      sync.Mutex
	pending *expirable.LRU[string, models.PendingAction]

	// evictMu is only taken inside the cache callback and never while
	// waiting on the cache, so it is safe under the cache lock
	evictMu sync.Mutex
	taking  map[string]bool
	evicted []models.PendingAction
}

func NewStore(capacity int, ttl time.Duration) *Store {
	if capacity <= 0 {
		capacity = 1024
	}
	s := &Store{taking: make(map[string]bool)}
	s.pending = expirable.NewLRU[string, models.PendingAction](capacity, s.onEvict, ttl)
	return s
}

// onEvict runs under the cache lock for every removal, including Take
func (s *Store) onEvict(key string, p models.PendingAction) {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	if s.taking[key] {
		return
	}
	s.evicted = append(s.evicted, p)
}

// Evicted returns and clears the entries dropped for capacity or age
func (s *Store) Evicted() []models.PendingAction {
	s.evictMu.Lock()
	defer s.evictMu.Unlock()
	out := s.evicted
	s.evicted = nil
	return out
}

// Put stores p under p.Key. Keys are never overwritten.
func (s *Store) Put(p models.PendingAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Contains(p.Key) {
		return ErrDuplicateKey
	}
	s.pending.Add(p.Key, p)
	return nil
}

func (s *Store) Get(key string) (models.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Peek(key)
}

// Take removes and returns the entry for key. Of any number of concurrent
// callers for one key, at most one gets ok == true.
func (s *Store) Take(key string) (models.PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending.Peek(key)
	if !ok {
		return models.PendingAction{}, false
	}
	s.evictMu.Lock()
	s.taking[key] = true
	s.evictMu.Unlock()

	s.pending.Remove(key)

	s.evictMu.Lock()
	delete(s.taking, key)
	s.evictMu.Unlock()
	return p, true
}

// SetPrompt records the id of the prompt message rendered for key
func (s *Store) SetPrompt(key, promptID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending.Peek(key)
	if !ok {
		return false
	}
	p.PromptID = promptID
	s.pending.Add(key, p)
	return true
}

// List returns pending entries, oldest first
func (s *Store) List() []models.PendingAction {
	s.mu.Lock()
	out := s.pending.Values()
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}
