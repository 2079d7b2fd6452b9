package orders

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bakery/internal/models"
	"bakery/internal/payment"
)

// amountTolerance absorbs float rounding when checking the order total.
const amountTolerance = 0.005

type ItemInput struct {
	ProductID primitive.ObjectID `json:"product"`
	Quantity  int                `json:"quantity" validate:"gte=1"`
}

// CreateInput is a checkout request. Items may be empty, in which case the
// caller's cart is checked out.
type CreateInput struct {
	Items           []ItemInput            `json:"items" validate:"omitempty,dive"`
	DeliveryAddress models.DeliveryAddress `json:"deliveryAddress"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cod razorpay upi card netbanking"`
	Subtotal        float64                `json:"subtotal" validate:"gte=0"`
	DeliveryCharge  float64                `json:"deliveryCharge" validate:"gte=0"`
	TotalAmount     float64                `json:"totalAmount" validate:"gte=0"`
	Notes           string                 `json:"notes" validate:"max=500"`

	// Payment is the gateway's completion claim, present only when the
	// client paid before placing the order.
	Payment *payment.Claim `json:"-"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *Service) validateInput(in CreateInput) error {
	if err := s.validate.Struct(in); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return &ValidationError{Message: err.Error()}
	}

	for i, item := range in.Items {
		if item.ProductID.IsZero() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].product", i), Message: "product is required"}
		}
	}

	for _, amount := range []float64{in.Subtotal, in.DeliveryCharge, in.TotalAmount} {
		if math.IsNaN(amount) || math.IsInf(amount, 0) {
			return &ValidationError{Field: "totalAmount", Message: "amounts must be finite numbers"}
		}
	}
	if math.Abs(in.Subtotal+in.DeliveryCharge-in.TotalAmount) > amountTolerance {
		return &ValidationError{Field: "totalAmount", Message: "totalAmount must equal subtotal plus deliveryCharge"}
	}
	return nil
}

func fieldError(fe validator.FieldError) *ValidationError {
	field := strings.TrimPrefix(fe.Namespace(), "CreateInput.")
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: fe.Field() + " is required"}
	case "oneof":
		if fe.Field() == "paymentMethod" {
			return &ValidationError{Field: field, Message: "Invalid payment method"}
		}
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())}
	case "gte":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())}
	case "max":
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())}
	}
	return &ValidationError{Field: field, Message: fe.Field() + " is invalid"}
}

func trimOr(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
