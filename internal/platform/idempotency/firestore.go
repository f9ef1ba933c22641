package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps keys in a collection. expiresAt is meant to back a
// Firestore TTL policy; expired documents are also ignored on read.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore uses collection, or idempotencyKeys when blank.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

type firestoreRecord struct {
	Key          string    `firestore:"key"`
	Fingerprint  string    `firestore:"fingerprint"`
	State        string    `firestore:"state"`
	Status       int       `firestore:"status,omitempty"`
	ContentType  string    `firestore:"contentType,omitempty"`
	Body         []byte    `firestore:"body,omitempty"`
	ExpiresAt    time.Time `firestore:"expiresAt"`
	UpdatedAtUTC time.Time `firestore:"updatedAt"`
}

func (r firestoreRecord) record() Record {
	return Record{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		State:       State(r.State),
		Response:    Response{Status: r.Status, ContentType: r.ContentType, Body: r.Body},
		ExpiresAt:   r.ExpiresAt,
	}
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Record, bool, error) {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Record{}, false, err
	}

	var (
		result Record
		owned  bool
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		owned = false
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var existing firestoreRecord
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			current := existing.record()
			if !expired(current, now) {
				if current.Fingerprint != fingerprint {
					return ErrKeyReused
				}
				result = current
				return nil
			}
		}
		fresh := firestoreRecord{
			Key:          key,
			Fingerprint:  fingerprint,
			State:        string(StatePending),
			ExpiresAt:    now.Add(ttl).UTC(),
			UpdatedAtUTC: now.UTC(),
		}
		if err := tx.Set(ref, fresh); err != nil {
			return err
		}
		result = fresh.record()
		owned = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrKeyReused) {
			return Record{}, false, err
		}
		return Record{}, false, pfirestore.WrapError("idempotency.reserve", err)
	}
	return result, owned, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	_, err = ref.Set(ctx, map[string]any{
		"key":         key,
		"state":       string(StateCompleted),
		"status":      resp.Status,
		"contentType": resp.ContentType,
		"body":        resp.Body,
		"expiresAt":   now.Add(ttl).UTC(),
		"updatedAt":   now.UTC(),
	}, firestore.MergeAll)
	return pfirestore.WrapError("idempotency.complete", err)
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	return pfirestore.WrapError("idempotency.release", err)
}
