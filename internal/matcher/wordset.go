package matcher

import (
	"sort"
	"strings"
	"sync"
)

// WordSet is a concurrency-safe set of normalized phrases
type WordSet struct {
	mu    sync.RWMutex
	words map[string]struct{}
}

// NewWordSet builds a set from the given phrases, skipping blanks
func NewWordSet(words ...string) *WordSet {
	s := &WordSet{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		s.Add(w)
	}
	return s
}

// Normalize lower-cases and trims a phrase
func Normalize(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// Add inserts word and reports whether it was new
func (s *WordSet) Add(word string) bool {
	w := Normalize(word)
	if w == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.words[w]; ok {
		return false
	}
	s.words[w] = struct{}{}
	return true
}

// Remove deletes word and reports whether it was present
func (s *WordSet) Remove(word string) bool {
	w := Normalize(word)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.words[w]; !ok {
		return false
	}
	delete(s.words, w)
	return true
}

func (s *WordSet) Contains(word string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.words[Normalize(word)]
	return ok
}

func (s *WordSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.words)
}

// List returns the phrases in sorted order
func (s *WordSet) List() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.words))
	for w := range s.words {
		out = append(out, w)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// FindIn returns the first phrase occurring as a substring of lowered.
// lowered must already be lower-cased.
func (s *WordSet) FindIn(lowered string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for w := range s.words {
		if strings.Contains(lowered, w) {
			return w, true
		}
	}
	return "", false
}
