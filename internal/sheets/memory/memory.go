package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// Store is an in-process remote. It keeps the last pushed body and counts
// round trips, which makes it useful both offline and in tests.
type Store struct {
	mu       sync.Mutex
	body     []byte
	revision int64
	fetches  int
	pushes   int
}

func New() *Store {
	return &Store{}
}

// NewWithSnapshot starts the store with an existing remote body.
func NewWithSnapshot(body []byte, revision int64) *Store {
	return &Store{body: append([]byte(nil), body...), revision: revision}
}

// NewFromFile seeds the store from a JSON file. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed snapshot %s: %w", path, err)
	}
	return NewWithSnapshot(data, 0), nil
}

func (s *Store) FetchSnapshot(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.body == nil {
		return nil, false, nil
	}
	return append([]byte(nil), s.body...), true, nil
}

func (s *Store) PushSnapshot(_ context.Context, body []byte, revision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes++
	s.body = append([]byte(nil), body...)
	s.revision = revision
	return nil
}

// Revision returns the revision of the last push.
func (s *Store) Revision() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Counts returns how many fetches and pushes the store has served.
func (s *Store) Counts() (fetches, pushes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches, s.pushes
}
