package repositories

import (
	"context"
	"sync"
)

// SnapshotEvent is one delivery of a live subscription: either the complete
// current result set or the error that ended the stream.
type SnapshotEvent[T any] struct {
	Items []T
	Err   error
}

// Subscription is a live query handle. Each event supersedes the previous
// one. Close must be called to release the listener.
type Subscription[T any] struct {
	events chan SnapshotEvent[T]
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Producer runs a listener until ctx ends, handing every snapshot to emit.
// emit returns false once the subscriber is gone.
type Producer[T any] func(ctx context.Context, emit func(SnapshotEvent[T]) bool)

// NewSubscription starts produce on its own goroutine. An error event is
// delivered at most once and closes the stream.
func NewSubscription[T any](ctx context.Context, produce Producer[T]) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		events: make(chan SnapshotEvent[T], 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		produce(ctx, func(event SnapshotEvent[T]) bool {
			select {
			case s.events <- event:
			case <-ctx.Done():
				return false
			}
			return event.Err == nil
		})
	}()
	return s
}

// Events returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription[T]) Events() <-chan SnapshotEvent[T] {
	return s.events
}

// Done is closed once the listener goroutine has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Close stops the listener and waits for it to exit. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.cancel()
		// Unblock a producer parked on a full buffer.
		go func() {
			for range s.events {
			}
		}()
		<-s.done
	})
}
