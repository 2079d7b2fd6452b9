package orders

import (
	"errors"
	"fmt"

	"bakery/internal/authz"
	"bakery/internal/models"
	"bakery/internal/store"
)

var (
	// ErrOrderNotFound matches store.ErrNotFound under errors.Is.
	ErrOrderNotFound    = fmt.Errorf("order not found: %w", store.ErrNotFound)
	ErrForbidden        = authz.ErrForbidden
	ErrUnauthenticated  = authz.ErrUnauthenticated
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidState     = errors.New("can only review delivered orders")
	ErrConcurrentUpdate = errors.New("order was modified concurrently, please retry")
)

// ValidationError reports malformed or missing input. Nothing was mutated.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// CannotCancelError is returned when cancelling an order that already reached
// a terminal status.
type CannotCancelError struct {
	Status models.OrderStatus
}

func (e *CannotCancelError) Error() string {
	return fmt.Sprintf("Cannot cancel order with status: %s", e.Status)
}
