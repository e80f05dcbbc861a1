package state

import (
	"context"
	"sync"
	"time"

	"github.com/itbasis/go-clock"
)

type lease struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store. State is lost when the process exits,
// so it only suits tests and single-invocation local runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
	leases map[string]lease
	clock  clock.Clock
}

// NewMemoryStore creates an empty store using clk for lease expiry
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		leases: make(map[string]lease),
		clock:  clk,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
	return nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if l, ok := s.leases[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	s.leases[key] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[key]; ok && l.owner == owner {
		delete(s.leases, key)
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
