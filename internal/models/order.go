package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type PaymentMethod string

const (
	PaymentCOD        PaymentMethod = "cod"
	PaymentRazorpay   PaymentMethod = "razorpay"
	PaymentUPI        PaymentMethod = "upi"
	PaymentCard       PaymentMethod = "card"
	PaymentNetbanking PaymentMethod = "netbanking"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentRazorpay, PaymentUPI, PaymentCard, PaymentNetbanking:
		return true
	}
	return false
}

// GatewayRouted reports whether completion of this method is asserted by the
// payment gateway and therefore has to be signature-verified.
func (m PaymentMethod) GatewayRouted() bool {
	return m.Valid() && m != PaymentCOD
}

// RequiresPrepayment is true for methods where the client pays through the
// gateway checkout before the order is placed.
func (m PaymentMethod) RequiresPrepayment() bool {
	return m == PaymentRazorpay
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentRefunded PaymentStatus = "Refunded"
	PaymentFailed   PaymentStatus = "Failed"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "Pending"
	StatusConfirmed      OrderStatus = "Confirmed"
	StatusPreparing      OrderStatus = "Preparing"
	StatusOutForDelivery OrderStatus = "Out for Delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
)

// Terminal statuses accept no further status transitions.
func (s OrderStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// OrderItem is a frozen snapshot of the product at purchase time.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Emoji     string             `bson:"emoji,omitempty" json:"emoji,omitempty"`
}

type DeliveryAddress struct {
	Name     string `bson:"name" json:"name" validate:"required"`
	Phone    string `bson:"phone" json:"phone" validate:"required"`
	Address  string `bson:"address" json:"address" validate:"required"`
	Landmark string `bson:"landmark,omitempty" json:"landmark,omitempty"`
	City     string `bson:"city" json:"city" validate:"required"`
	Pincode  string `bson:"pincode" json:"pincode" validate:"required"`
}

// GatewayPayment holds the correlation identifiers reported by the gateway.
type GatewayPayment struct {
	OrderID   string `bson:"razorpayOrderId" json:"razorpayOrderId"`
	PaymentID string `bson:"razorpayPaymentId" json:"razorpayPaymentId"`
	Signature string `bson:"razorpaySignature" json:"-"`
}

// Order defines the persisted order document. Version guards every update.
type Order struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber       string             `bson:"orderNumber" json:"orderNumber"`
	UserID            primitive.ObjectID `bson:"user" json:"user"`
	Items             []OrderItem        `bson:"items" json:"items"`
	DeliveryAddress   DeliveryAddress    `bson:"deliveryAddress" json:"deliveryAddress"`
	PaymentMethod     PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus     PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	PaymentError      string             `bson:"paymentError,omitempty" json:"paymentError,omitempty"`
	Status            OrderStatus        `bson:"status" json:"status"`
	Subtotal          float64            `bson:"subtotal" json:"subtotal"`
	DeliveryCharge    float64            `bson:"deliveryCharge" json:"deliveryCharge"`
	TotalAmount       float64            `bson:"totalAmount" json:"totalAmount"`
	EstimatedDelivery time.Time          `bson:"estimatedDelivery" json:"estimatedDelivery"`
	DeliveredAt       *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt       *time.Time         `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancelReason      string             `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	Timeline          Timeline           `bson:"timeline" json:"timeline"`
	Notes             string             `bson:"notes" json:"notes"`
	Rating            *int               `bson:"rating,omitempty" json:"rating,omitempty"`
	Review            string             `bson:"review,omitempty" json:"review,omitempty"`
	Gateway           *GatewayPayment    `bson:"gateway,omitempty" json:"gateway,omitempty"`
	Version           int64              `bson:"version" json:"-"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
