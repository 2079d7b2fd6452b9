// Package events publishes order lifecycle events after the owning mutation
// has been committed.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"bakery/internal/models"
)

type Type string

const (
	OrderCreated       Type = "order.created.v1"
	OrderStatusChanged Type = "order.status_changed.v1"
	OrderCancelled     Type = "order.cancelled.v1"
	OrderReviewed      Type = "order.reviewed.v1"
	PaymentCompleted   Type = "payment.completed.v1"
	PaymentFailed      Type = "payment.failed.v1"
)

type Event struct {
	ID            string               `json:"eventId"`
	Type          Type                 `json:"eventType"`
	SchemaVersion int                  `json:"schemaVersion"`
	OccurredAt    time.Time            `json:"occurredAt"`
	OrderID       string               `json:"orderId"`
	OrderNumber   string               `json:"orderNumber"`
	UserID        string               `json:"userId"`
	Status        models.OrderStatus   `json:"status"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	TotalAmount   float64              `json:"totalAmount"`
	Reason        string               `json:"reason,omitempty"`
}

// ForOrder snapshots the order into a new event.
func ForOrder(t Type, order *models.Order) Event {
	return Event{
		ID:            uuid.New().String(),
		Type:          t,
		SchemaVersion: 1,
		OccurredAt:    time.Now().UTC(),
		OrderID:       order.ID.Hex(),
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID.Hex(),
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
	}
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
