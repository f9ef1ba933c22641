package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/auth"
	"github.com/Thaynan-souza/raphietro-atelier/internal/repositories"
)

// StatusEngineDeps wires the status engine.
type StatusEngineDeps struct {
	Orders      repositories.OrderRepository
	Events      OrderEventPublisher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

// StatusEngine applies lifecycle transitions. Any status may move to any
// other, including itself; every transition is recorded.
type StatusEngine struct {
	orders repositories.OrderRepository
	events OrderEventPublisher
	clock  func() time.Time
	newID  func() string
	logger Logger
}

// StatusChange describes a committed transition.
type StatusChange struct {
	OrderID  string
	Previous domain.OrderStatus
	Entry    domain.StatusEntry
}

// NewStatusEngine validates deps.
func NewStatusEngine(deps StatusEngineDeps) (*StatusEngine, error) {
	if deps.Orders == nil {
		return nil, errors.New("status engine: order repository is required")
	}
	e := &StatusEngine{
		orders: deps.Orders,
		events: deps.Events,
		clock:  deps.Clock,
		newID:  deps.IDGenerator,
		logger: deps.Logger,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return ulid.Make().String() }
	}
	if e.logger == nil {
		e.logger = noopLogger
	}
	return e, nil
}

// ChangeStatus moves order to newStatus on behalf of identity. A nil
// observation for a reopen means the staff member declined to give one: the
// call returns ErrTransitionCancelled and writes nothing. order itself is not
// modified; the committed state arrives through the order subscription.
func (e *StatusEngine) ChangeStatus(ctx context.Context, order domain.Order, newStatus domain.OrderStatus, identity *auth.Identity, observation *string) (StatusChange, error) {
	actor := identity.Actor()
	if actor == "" {
		return StatusChange{}, ErrUnauthenticated
	}
	if strings.TrimSpace(order.ID) == "" {
		return StatusChange{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	if !newStatus.Valid() {
		return StatusChange{}, fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	if newStatus.RequiresObservation() && observation == nil {
		return StatusChange{}, ErrTransitionCancelled
	}

	entry := domain.StatusEntry{
		Status:      newStatus,
		Date:        domain.TimestampMoment(e.clock().UTC()),
		ChangedBy:   actor,
		Observation: cloneString(observation),
	}
	if err := e.orders.UpdateStatus(ctx, order.ID, repositories.StatusUpdate{Status: newStatus, Entry: entry}); err != nil {
		e.logger(ctx, "order.status.update.failed", map[string]any{
			"order":  order.ID,
			"status": string(newStatus),
			"error":  err.Error(),
		})
		if isNotFound(err) {
			return StatusChange{}, fmt.Errorf("%w: %s", ErrOrderNotFound, order.ID)
		}
		return StatusChange{}, fmt.Errorf("%w: update status: %v", ErrPersistence, err)
	}

	change := StatusChange{OrderID: order.ID, Previous: order.Status, Entry: entry}
	publishEvent(ctx, e.events, e.logger, OrderEvent{
		EventID:        e.newID(),
		Type:           OrderEventStatusChanged,
		OrderID:        order.ID,
		ShortID:        order.ShortID(),
		Status:         string(newStatus),
		PreviousStatus: string(order.Status),
		ChangedBy:      actor,
		Observation:    cloneString(observation),
		OccurredAt:     entry.Date.Time,
	})
	e.logger(ctx, "order.status.changed", map[string]any{
		"order":    order.ID,
		"from":     string(order.Status),
		"to":       string(newStatus),
		"actor":    actor,
		"reopened": newStatus == domain.OrderStatusReopened,
	})
	return change, nil
}

// ChangeStatusByID loads the order and delegates to ChangeStatus.
func (e *StatusEngine) ChangeStatusByID(ctx context.Context, orderID string, newStatus domain.OrderStatus, identity *auth.Identity, observation *string) (StatusChange, error) {
	if identity.Actor() == "" {
		return StatusChange{}, ErrUnauthenticated
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return StatusChange{}, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	order, err := e.orders.Get(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return StatusChange{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		return StatusChange{}, fmt.Errorf("%w: load order: %v", ErrPersistence, err)
	}
	order.ID = orderID
	return e.ChangeStatus(ctx, order, newStatus, identity, observation)
}

// Apply returns a copy of order with the change applied, matching what the
// repository commits.
func (c StatusChange) Apply(order domain.Order) domain.Order {
	order.Status = c.Entry.Status
	order.StatusHistory = append(append([]domain.StatusEntry(nil), order.StatusHistory...), c.Entry)
	return order
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
