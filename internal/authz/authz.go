// Package authz is the single object-level authorization predicate consulted
// by every mutating order and payment operation.
package authz

import (
	"errors"

	"bakery/internal/models"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrForbidden       = errors.New("not authorized to access this order")
)

type Action string

const (
	ViewOrder       Action = "order:view"
	CancelOrder     Action = "order:cancel"
	ReviewOrder     Action = "order:review"
	TransitionOrder Action = "order:transition"
	ListAllOrders   Action = "order:list_all"
	RefundPayment   Action = "payment:refund"
	ReportFailure   Action = "payment:report_failure"
	ViewPayment     Action = "payment:view"
)

// Check returns nil when p may perform action on order. order may be nil for
// actions that do not address a single order.
func Check(p models.Principal, action Action, order *models.Order) error {
	if p.UserID.IsZero() {
		return ErrUnauthenticated
	}
	switch action {
	case ViewOrder, CancelOrder, ReportFailure, ViewPayment:
		if p.IsAdmin() || p.Owns(order) {
			return nil
		}
	case ReviewOrder:
		if p.Owns(order) {
			return nil
		}
	case TransitionOrder, ListAllOrders, RefundPayment:
		if p.IsAdmin() {
			return nil
		}
	}
	return ErrForbidden
}
