// Package session owns the client-local session identifier that correlates a
// user's turns with the backend's conversational memory.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Key is the store entry holding the identifier.
const Key = "session_id"

// fallbackID is persisted when the generator yields nothing.
const fallbackID = "default"

// Store is a minimal key-value persistence contract.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// Resolve returns the persisted identifier, generating and persisting one with
// generate when none is stored. A nil generate uses NewID.
func Resolve(store Store, generate func() string) (string, error) {
	if generate == nil {
		generate = NewID
	}
	id, ok, err := store.Get(Key)
	if err != nil {
		return "", errors.Wrap(err, "read session id")
	}
	if ok && id != "" {
		return id, nil
	}
	id = generate()
	if id == "" {
		id = fallbackID
	}
	if err := store.Set(Key, id); err != nil {
		return id, errors.Wrap(err, "persist session id")
	}
	return id, nil
}

// Reset forgets the persisted identifier so the next Resolve generates a new one.
func Reset(store Store) error {
	if err := store.Delete(Key); err != nil {
		return errors.Wrap(err, "clear session id")
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]string{}}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.entries[key]
	return value, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
