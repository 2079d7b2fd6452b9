// Package store declares the persistence ports used by checkout and the
// order lifecycle. Implementations live in internal/database (MongoDB) and
// internal/store/memstore.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"bakery/internal/models"
)

var (
	// ErrNotFound is returned when the addressed document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a conditional update's precondition no
	// longer holds (stock moved, or the order version changed).
	ErrConflict = errors.New("conditional update precondition failed")
	// ErrDuplicate is returned when an insert violates a unique index.
	ErrDuplicate = errors.New("duplicate key")
)

type ProductStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	// DecrementStock subtracts qty iff the product is in stock and holds at
	// least qty units. A product reaching zero is clamped to 0 and marked out
	// of stock in the same write.
	DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Product, error)
	// IncrementStock adds qty and marks the product in stock when the new
	// quantity is positive.
	IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Product, error)
}

type Page struct {
	Page  int64
	Limit int64
}

// Skip returns the number of documents preceding the page.
func (p Page) Skip() int64 {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	FindByUser(ctx context.Context, userID primitive.ObjectID, page Page) ([]models.Order, error)
	FindAll(ctx context.Context, page Page) ([]models.Order, error)
	// FindByPaymentID returns the order a gateway payment was recorded on.
	FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error)
	// Update replaces the order iff its stored version equals
	// expectedVersion, and bumps the version.
	Update(ctx context.Context, order *models.Order, expectedVersion int64) error
}

type CartStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}
