package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// DefaultTTL is how long a completed submission is replayed.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a key.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
)

// ErrKeyReused is returned when a key comes back with a different request.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

// Response is the stored reply of a completed request.
type Response struct {
	Status      int
	ContentType string
	Body        []byte
}

// Record is one key as persisted.
type Record struct {
	Key         string
	Fingerprint string
	State       State
	Response    Response
	ExpiresAt   time.Time
}

// Store reserves keys before a request runs and keeps its reply afterwards.
// Reserve returns the existing record, if any, and whether the caller now
// owns the key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Record, bool, error)
	Complete(ctx context.Context, key string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

func expired(record Record, now time.Time) bool {
	return !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt)
}

// documentID hashes key so any client value is a valid document id.
func documentID(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}
