package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"bakery/internal/logger"
	"bakery/internal/models"
	"bakery/internal/store"
)

const (
	defaultFailureReason = "Payment failed"

	// keyReleaseTimeout bounds the release of a reserved key after a failed
	// apply. The release does not inherit the request's cancellation.
	keyReleaseTimeout = 3 * time.Second
)

// OrderPayments applies payment outcomes to orders through the order state
// machine.
type OrderPayments interface {
	// ApplyPayment marks the order paid. applied is false when the same
	// payment had already been recorded.
	ApplyPayment(ctx context.Context, orderID primitive.ObjectID, ref models.GatewayPayment) (order *models.Order, applied bool, err error)
	RecordPaymentFailure(ctx context.Context, p models.Principal, orderID primitive.ObjectID, reason string) (*models.Order, error)
}

// Verified is the outcome of a successful reconciliation.
type Verified struct {
	PaymentID string        `json:"paymentId"`
	Order     *models.Order `json:"order,omitempty"`
	Duplicate bool          `json:"duplicate"`
}

type Reconciler struct {
	verifier *Verifier
	orders   OrderPayments
	seen     IdempotencyStore
	ttl      time.Duration
	log      *zap.Logger
}

func NewReconciler(verifier *Verifier, orders OrderPayments, seen IdempotencyStore, ttl time.Duration, log *zap.Logger) *Reconciler {
	return &Reconciler{
		verifier: verifier,
		orders:   orders,
		seen:     seen,
		ttl:      ttl,
		log:      logger.Component(log, "reconciliation"),
	}
}

// Reconcile verifies a gateway payment claim and, when orderID is given,
// records it on that order exactly once. A mismatching signature leaves every
// order untouched.
func (r *Reconciler) Reconcile(ctx context.Context, claim Claim, orderID *primitive.ObjectID) (*Verified, error) {
	if err := r.verifier.Verify(claim); err != nil {
		r.log.Warn("payment signature rejected",
			zap.String("gatewayOrderId", claim.GatewayOrderID),
			zap.String("paymentId", claim.PaymentID))
		return nil, err
	}

	result := &Verified{PaymentID: claim.PaymentID}
	if orderID == nil {
		return result, nil
	}

	key := "payment:" + claim.PaymentID + ":" + orderID.Hex()
	reserved, err := r.seen.Reserve(ctx, key, r.ttl)
	if err != nil {
		// The order update is idempotent on its own; the store only saves
		// the write.
		r.log.Warn("idempotency store unavailable", zap.Error(err))
		reserved = true
	}
	if !reserved {
		r.log.Info("duplicate payment confirmation ignored",
			zap.String("paymentId", claim.PaymentID),
			zap.String("orderId", orderID.Hex()))
		result.Duplicate = true
		return result, nil
	}

	order, applied, err := r.orders.ApplyPayment(ctx, *orderID, models.GatewayPayment{
		OrderID:   claim.GatewayOrderID,
		PaymentID: claim.PaymentID,
		Signature: claim.Signature,
	})
	if err != nil {
		r.release(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			r.log.Warn("verified payment for unknown order",
				zap.String("paymentId", claim.PaymentID),
				zap.String("orderId", orderID.Hex()))
			return result, nil
		}
		return nil, err
	}

	result.Order = order
	result.Duplicate = !applied
	r.log.Info("payment reconciled",
		zap.String("paymentId", claim.PaymentID),
		zap.String("orderNumber", order.OrderNumber),
		zap.String("status", string(order.Status)),
		zap.Bool("duplicate", result.Duplicate))
	return result, nil
}

// release frees key so a retry of the same payment is applied again.
func (r *Reconciler) release(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), keyReleaseTimeout)
	defer cancel()

	if err := r.seen.Release(ctx, key); err != nil {
		r.log.Warn("idempotency key release failed", zap.String("key", key), zap.Error(err))
	}
}

// RecordFailure marks the order's payment as failed without changing its
// status. An unknown order is logged and acknowledged with a nil order.
func (r *Reconciler) RecordFailure(ctx context.Context, p models.Principal, orderID primitive.ObjectID, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFailureReason
	}
	order, err := r.orders.RecordPaymentFailure(ctx, p, orderID, reason)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("payment failure for unknown order", zap.String("orderId", orderID.Hex()))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.log.Info("payment failure recorded",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("reason", reason))
	return order, nil
}
