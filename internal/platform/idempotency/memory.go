package idempotency

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps keys in process. Used in tests and when Firestore is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Reserve(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if record, ok := s.records[id]; ok && !expired(record, now) {
		if record.Fingerprint != fingerprint {
			return Record{}, false, ErrKeyReused
		}
		return record, false, nil
	}
	record := Record{Key: key, Fingerprint: fingerprint, State: StatePending, ExpiresAt: now.Add(ttl)}
	s.records[id] = record
	return record, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	record := s.records[id]
	record.Key = key
	record.State = StateCompleted
	resp.Body = slices.Clone(resp.Body)
	record.Response = resp
	record.ExpiresAt = now.Add(ttl)
	s.records[id] = record
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID(key))
	return nil
}
