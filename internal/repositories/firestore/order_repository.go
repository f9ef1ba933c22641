package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	pfirestore "github.com/Thaynan-souza/raphietro-atelier/internal/platform/firestore"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

const ordersCollection = "pedidos"

// OrderRepository implements repositories.OrderRepository on the pedidos collection.
type OrderRepository struct {
	orders *pfirestore.Collection[domain.Order]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		orders: pfirestore.NewCollection(provider, ordersCollection, encodeOrder, decodeOrderSnapshot),
	}, nil
}

// Create stores the order under a generated id.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) (string, error) {
	if r == nil || r.orders == nil {
		return "", errors.New("order repository not initialised")
	}
	return r.orders.Add(ctx, order)
}

// Get loads one order.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data, nil
}

// UpdateStatus writes status and appends the history entry in a single update.
// Concurrent writers are not reconciled: status is last-write-wins and the
// history append is an array union.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.StatusUpdate) error {
	if r == nil || r.orders == nil {
		return errors.New("order repository not initialised")
	}
	return r.orders.Update(ctx, strings.TrimSpace(orderID), []firestore.Update{
		{Path: fieldOrderStatus, Value: string(update.Status)},
		{Path: fieldOrderHistory, Value: firestore.ArrayUnion(encodeStatusEntry(update.Entry))},
	})
}

// Subscribe streams the full order list, newest first.
func (r *OrderRepository) Subscribe(ctx context.Context) (*repositories.Subscription[domain.Order], error) {
	if r == nil || r.orders == nil {
		return nil, errors.New("order repository not initialised")
	}
	return watch(ctx, r.orders, func(q firestore.Query) firestore.Query {
		return q.OrderBy(fieldCreatedAt, firestore.Desc)
	}), nil
}

// watch bridges a collection listener onto the subscription channel.
func watch[T any](ctx context.Context, coll *pfirestore.Collection[T], build pfirestore.QueryBuilder) *repositories.Subscription[T] {
	return repositories.NewSubscription(ctx, func(ctx context.Context, emit func(repositories.SnapshotEvent[T]) bool) {
		coll.Watch(ctx, build, func(docs []pfirestore.Document[T], err error) bool {
			if err != nil {
				return emit(repositories.SnapshotEvent[T]{Err: err})
			}
			items := make([]T, 0, len(docs))
			for _, doc := range docs {
				items = append(items, doc.Data)
			}
			return emit(repositories.SnapshotEvent[T]{Items: items})
		})
	})
}
