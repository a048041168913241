package attendance

import (
	"context"
	"sync"
	"time"
)

// Store is the persistence abstraction for attendance records.
// Implementations can be in-memory or SQL-backed; the Recorder writes through
// Store and never needs to know which one is used.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	// CountDistinct returns the number of distinct IPs that connected within
	// [start, end], bounds inclusive.
	CountDistinct(ctx context.Context, start, end time.Time) (int, error)
	Close() error
}

// InMemoryStore is a concurrency-safe in-memory implementation of Store.
// It is the default when no database is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Insert implements Store.Insert.
func (s *InMemoryStore) Insert(_ context.Context, rec Record) error {
	rec.ConnectedAt = rec.ConnectedAt.UTC()
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

// CountDistinct implements Store.CountDistinct.
func (s *InMemoryStore) CountDistinct(_ context.Context, start, end time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, rec := range s.records {
		if rec.ConnectedAt.Before(start) || rec.ConnectedAt.After(end) {
			continue
		}
		seen[rec.IP] = struct{}{}
	}
	return len(seen), nil
}

// Len returns the number of stored records.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.Close.
func (s *InMemoryStore) Close() error {
	return nil
}
