package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

// OrderFilter narrows the order list. Zero values match everything.
type OrderFilter struct {
	Search string
	Status domain.OrderStatus
	Limit  int
}

// OrderBoard keeps the latest snapshot of the live order list, newest first.
type OrderBoard struct {
	sub    *repositories.Subscription[domain.Order]
	loc    *time.Location
	logger Logger

	mu     sync.RWMutex
	orders []domain.Order
	err    error

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
}

// OrderBoardOption customises the board.
type OrderBoardOption func(*OrderBoard)

// WithBoardLocation sets the zone used to match display dates.
func WithBoardLocation(loc *time.Location) OrderBoardOption {
	return func(b *OrderBoard) {
		if loc != nil {
			b.loc = loc
		}
	}
}

// WithBoardLogger sets the event hook.
func WithBoardLogger(logger Logger) OrderBoardOption {
	return func(b *OrderBoard) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewOrderBoard subscribes to orders. Close releases the subscription.
func NewOrderBoard(ctx context.Context, orders repositories.OrderRepository, opts ...OrderBoardOption) (*OrderBoard, error) {
	if orders == nil {
		return nil, errors.New("order board: order repository is required")
	}
	b := &OrderBoard{
		loc:    domain.DefaultLocation(),
		logger: noopLogger,
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	sub, err := orders.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	b.sub = sub
	go b.consume(ctx)
	return b, nil
}

func (b *OrderBoard) consume(ctx context.Context) {
	defer close(b.done)
	defer b.markReady()
	for event := range b.sub.Events() {
		b.mu.Lock()
		if event.Err != nil {
			// The last snapshot stays visible.
			b.err = event.Err
		} else {
			b.orders = event.Items
		}
		b.mu.Unlock()
		b.markReady()
		if event.Err != nil {
			b.logger(ctx, "order.board.subscription.failed", map[string]any{"error": event.Err.Error()})
		}
	}
}

func (b *OrderBoard) markReady() {
	b.readyOnce.Do(func() { close(b.ready) })
}

// Ready is closed once the first snapshot or error has arrived.
func (b *OrderBoard) Ready() <-chan struct{} {
	return b.ready
}

// Err returns the error that ended the subscription, if any.
func (b *OrderBoard) Err() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.err
}

// Snapshot returns the current list.
func (b *OrderBoard) Snapshot() []domain.Order {
	return b.Filter(OrderFilter{})
}

// Get returns the order with id from the current snapshot.
func (b *OrderBoard) Get(id string) (domain.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, order := range b.orders {
		if order.ID == id {
			return order, true
		}
	}
	return domain.Order{}, false
}

// Filter applies f to the current snapshot. Search is a case and accent
// insensitive substring match over client name, staff name, status, and the
// display date.
func (b *OrderBoard) Filter(f OrderFilter) []domain.Order {
	needle := foldText(strings.TrimSpace(f.Search))

	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Order, 0, len(b.orders))
	for _, order := range b.orders {
		if f.Status != "" && order.Status != f.Status {
			continue
		}
		if needle != "" && !b.matches(order, needle) {
			continue
		}
		out = append(out, order)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (b *OrderBoard) matches(order domain.Order, needle string) bool {
	for _, field := range []string{
		order.ClientName,
		order.StaffName,
		string(order.Status),
		order.OrderDate.Text(b.loc),
	} {
		if field != "" && strings.Contains(foldText(field), needle) {
			return true
		}
	}
	return false
}

// Close releases the subscription and waits for the consumer to stop.
func (b *OrderBoard) Close() {
	if b == nil || b.sub == nil {
		return
	}
	b.sub.Close()
	<-b.done
}

var accentFolder = sync.Pool{
	New: func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	},
}

// foldText lower-cases s and strips combining marks so "Conceição" matches "conceicao".
func foldText(s string) string {
	if s == "" {
		return ""
	}
	t := accentFolder.Get().(transform.Transformer)
	defer accentFolder.Put(t)
	t.Reset()
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}
