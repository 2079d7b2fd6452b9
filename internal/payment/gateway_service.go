package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"bakery/internal/authz"
	"bakery/internal/logger"
	"bakery/internal/models"
	"bakery/internal/store"
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidPaymentID = errors.New("payment id is required")
)

// CheckoutOrder is what the client needs to open the gateway checkout.
type CheckoutOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"keyId"`
}

// PaymentOrders finds the order a gateway payment was recorded on.
type PaymentOrders interface {
	OrderForPayment(ctx context.Context, paymentID string) (*models.Order, error)
}

type GatewayService struct {
	gateway  Gateway
	orders   PaymentOrders
	keyID    string
	currency string
	log      *zap.Logger
	now      func() time.Time
}

func NewGatewayService(gateway Gateway, orders PaymentOrders, keyID, currency string, log *zap.Logger) *GatewayService {
	return &GatewayService{
		gateway:  gateway,
		orders:   orders,
		keyID:    keyID,
		currency: currency,
		log:      logger.Component(log, "payment"),
		now:      time.Now,
	}
}

// toMinor converts a major-unit amount (rupees) to minor units (paise).
func toMinor(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (s *GatewayService) CreateGatewayOrder(ctx context.Context, p models.Principal, amount float64, currency, receipt string) (*CheckoutOrder, error) {
	if p.UserID.IsZero() {
		return nil, authz.ErrUnauthenticated
	}
	if amount <= 0 || math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, ErrInvalidAmount
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = s.currency
	}
	receipt = strings.TrimSpace(receipt)
	if receipt == "" {
		receipt = fmt.Sprintf("order_%d", s.now().UnixMilli())
	}

	order, err := s.gateway.CreateOrder(ctx, OrderRequest{
		Amount:   toMinor(amount),
		Currency: currency,
		Receipt:  receipt,
		Notes:    map[string]string{"userId": p.UserID.Hex()},
	})
	if err != nil {
		s.log.Error("gateway order creation failed", zap.String("receipt", receipt), zap.Error(err))
		return nil, err
	}

	s.log.Info("gateway order created",
		zap.String("gatewayOrderId", order.ID),
		zap.Int64("amount", order.Amount),
		zap.String("currency", order.Currency))
	return &CheckoutOrder{
		ID:       order.ID,
		Amount:   order.Amount,
		Currency: order.Currency,
		KeyID:    s.keyID,
	}, nil
}

// PaymentDetails fetches a payment from the gateway. Admins may read any
// payment; anyone else only payments recorded on an order they own.
func (s *GatewayService) PaymentDetails(ctx context.Context, p models.Principal, paymentID string) (map[string]interface{}, error) {
	if p.UserID.IsZero() {
		return nil, authz.ErrUnauthenticated
	}
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, ErrInvalidPaymentID
	}
	if !p.IsAdmin() {
		order, err := s.orders.OrderForPayment(ctx, paymentID)
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn("payment lookup for unrecorded payment",
				zap.String("paymentId", paymentID),
				zap.String("userId", p.UserID.Hex()))
			return nil, authz.ErrForbidden
		}
		if err != nil {
			return nil, err
		}
		if err := authz.Check(p, authz.ViewPayment, order); err != nil {
			return nil, err
		}
	}
	return s.gateway.FetchPayment(ctx, paymentID)
}

// Refund asks the gateway to refund a payment. It does not touch any order.
func (s *GatewayService) Refund(ctx context.Context, p models.Principal, paymentID string, amount *float64) (*Refund, error) {
	if err := authz.Check(p, authz.RefundPayment, nil); err != nil {
		return nil, err
	}
	if strings.TrimSpace(paymentID) == "" {
		return nil, ErrInvalidPaymentID
	}
	var minor *int64
	if amount != nil {
		if *amount <= 0 {
			return nil, ErrInvalidAmount
		}
		m := toMinor(*amount)
		minor = &m
	}

	refund, err := s.gateway.Refund(ctx, paymentID, minor)
	if err != nil {
		s.log.Error("refund failed", zap.String("paymentId", paymentID), zap.Error(err))
		return nil, err
	}
	s.log.Info("refund issued",
		zap.String("paymentId", paymentID),
		zap.String("refundId", refund.ID),
		zap.Int64("amount", refund.Amount))
	return refund, nil
}
