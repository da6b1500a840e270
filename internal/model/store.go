package model

import (
	"sync"
)

// Store holds the currently served classifier. The classifier itself is
// immutable after load; the store only swaps the pointer on hot reload,
// so concurrent prediction requests need no further synchronization.
type Store struct {
	mu  sync.RWMutex
	clf *Classifier
}

// NewStore creates a store, optionally seeded with a classifier.
func NewStore(clf *Classifier) *Store {
	return &Store{clf: clf}
}

// Get returns the current classifier, or ErrNotFitted when no artifact
// has been loaded yet.
func (s *Store) Get() (*Classifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.clf == nil {
		return nil, ErrNotFitted
	}
	return s.clf, nil
}

// Swap replaces the served classifier.
func (s *Store) Swap(clf *Classifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clf = clf
}

// Reload loads the artifact at path and swaps it in.
func (s *Store) Reload(path string) (*Classifier, error) {
	clf, err := Load(path)
	if err != nil {
		return nil, err
	}
	s.Swap(clf)
	return clf, nil
}
