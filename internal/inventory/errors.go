package inventory

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var ErrInvalidQuantity = errors.New("quantity must be greater than zero")

type FailureKind string

const (
	ProductNotFound   FailureKind = "product_not_found"
	OutOfStock        FailureKind = "out_of_stock"
	InsufficientStock FailureKind = "insufficient_stock"
)

// ItemFailure explains why one requested line could not be reserved.
type ItemFailure struct {
	ProductID   primitive.ObjectID `json:"productId"`
	ProductName string             `json:"productName,omitempty"`
	Kind        FailureKind        `json:"reason"`
	Available   int                `json:"available"`
	Requested   int                `json:"requested"`
}

func (f ItemFailure) Message() string {
	switch f.Kind {
	case ProductNotFound:
		return fmt.Sprintf("Product not found: %s", f.ProductID.Hex())
	case OutOfStock:
		return fmt.Sprintf("%s is currently out of stock", f.ProductName)
	default:
		return fmt.Sprintf("Only %d units of %s available (requested: %d)", f.Available, f.ProductName, f.Requested)
	}
}

// StockError carries every failed line of a rejected reservation.
type StockError struct {
	Failures []ItemFailure
}

func (e *StockError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message())
	}
	return "stock unavailable: " + strings.Join(msgs, "; ")
}

// Messages returns one human-readable line per failure.
func (e *StockError) Messages() []string {
	msgs := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		msgs = append(msgs, f.Message())
	}
	return msgs
}
