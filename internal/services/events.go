package services

import (
	"context"
	"time"
)

// OrderEventType names an order lifecycle event.
type OrderEventType string

const (
	OrderEventCreated       OrderEventType = "order.created"
	OrderEventStatusChanged OrderEventType = "order.status_changed"
)

// OrderEvent is published after an order write commits.
type OrderEvent struct {
	EventID        string         `json:"eventId"`
	Type           OrderEventType `json:"type"`
	OrderID        string         `json:"orderId"`
	ShortID        string         `json:"shortId"`
	Status         string         `json:"status"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	ChangedBy      string         `json:"changedBy,omitempty"`
	Observation    *string        `json:"observation,omitempty"`
	Total          string         `json:"total,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// OrderEventPublisher delivers order events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// NoopOrderEventPublisher drops every event.
type NoopOrderEventPublisher struct{}

func (NoopOrderEventPublisher) PublishOrderEvent(context.Context, OrderEvent) (string, error) {
	return "", nil
}

// Logger is the structured event hook services report through.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

func publishEvent(ctx context.Context, events OrderEventPublisher, logger Logger, event OrderEvent) {
	if events == nil {
		return
	}
	if _, err := events.PublishOrderEvent(ctx, event); err != nil {
		logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   string(event.Type),
			"order":  event.OrderID,
			"status": event.Status,
			"error":  err.Error(),
		})
	}
}
