package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
)

const (
	countersCollection = "counters"
	fieldCounterValue  = "value"
	fieldCounterUpdate = "updatedAt"
)

type counterState struct {
	Value int64
}

func encodeCounter(state counterState) (map[string]any, error) {
	return map[string]any{fieldCounterValue: state.Value}, nil
}

func decodeCounterSnapshot(snap *firestore.DocumentSnapshot) (counterState, error) {
	return counterState{Value: int64(intField(snap.Data(), fieldCounterValue))}, nil
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterState]
	now      func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection(provider, countersCollection, encodeCounter, decodeCounterSnapshot),
		now:      time.Now,
	}, nil
}

// Next atomically adds step (minimum 1) to the counter and returns the new
// value. A missing counter starts from zero.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if r == nil || r.provider == nil {
		return 0, errors.New("counter repository not initialised")
	}
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, errors.New("counter id is required")
	}
	if step <= 0 {
		step = 1
	}

	var next int64
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.counters.Doc(ctx, id)
		if err != nil {
			return err
		}

		var current int64
		snap, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			state, err := decodeCounterSnapshot(snap)
			if err != nil {
				return fmt.Errorf("decode counter %s: %w", id, err)
			}
			current = state.Value
		case codes.NotFound:
		default:
			return err
		}

		next = current + step
		return tx.Set(ref, map[string]any{
			fieldCounterValue:  next,
			fieldCounterUpdate: r.now().UTC(),
		}, firestore.MergeAll)
	})
	if err != nil {
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}
