// Package orders is the order state machine: checkout, status progression,
// cancellation, reviews and the payment outcomes reported by reconciliation.
package orders

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"bakery/internal/authz"
	"bakery/internal/events"
	"bakery/internal/inventory"
	"bakery/internal/logger"
	"bakery/internal/models"
	"bakery/internal/payment"
	"bakery/internal/store"
)

const (
	maxUpdateAttempts = 5
	maxInsertAttempts = 3

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// errUnchanged aborts a mutation without writing.
var errUnchanged = errors.New("order unchanged")

type Options struct {
	// DeliveryEstimate is added to the creation time for the Delivered step.
	DeliveryEstimate time.Duration
	// Location is the zone timeline times are displayed in. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	orders   store.OrderStore
	carts    store.CartStore
	stock    *inventory.Engine
	verifier *payment.Verifier
	events   events.Publisher
	validate *validator.Validate
	log      *zap.Logger

	estimate time.Duration
	location *time.Location
	now      func() time.Time
}

func NewService(
	orders store.OrderStore,
	carts store.CartStore,
	stock *inventory.Engine,
	verifier *payment.Verifier,
	publisher events.Publisher,
	log *zap.Logger,
	opts Options,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.DeliveryEstimate <= 0 {
		opts.DeliveryEstimate = defaultEstimate
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		stock:    stock,
		verifier: verifier,
		events:   publisher,
		validate: newValidator(),
		log:      logger.Component(log, "orders"),
		estimate: opts.DeliveryEstimate,
		location: opts.Location,
		now:      opts.Now,
	}
}

func (s *Service) CreateOrder(ctx context.Context, p models.Principal, in CreateInput) (*models.Order, error) {
	if p.UserID.IsZero() {
		return nil, ErrUnauthenticated
	}
	if err := s.validateInput(in); err != nil {
		return nil, err
	}
	paid, err := s.checkPayment(in)
	if err != nil {
		return nil, err
	}
	reqs, err := s.requests(ctx, p.UserID, in.Items)
	if err != nil {
		return nil, err
	}

	items, err := s.stock.Reserve(ctx, reqs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	eta := now.Add(s.estimate)
	order := &models.Order{
		UserID:            p.UserID,
		Items:             items,
		DeliveryAddress:   in.DeliveryAddress,
		PaymentMethod:     in.PaymentMethod,
		PaymentStatus:     models.PaymentPending,
		Status:            models.StatusPending,
		Subtotal:          in.Subtotal,
		DeliveryCharge:    in.DeliveryCharge,
		TotalAmount:       in.TotalAmount,
		EstimatedDelivery: eta,
		Timeline:          newTimeline(now, paid, eta, s.location),
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if paid {
		order.PaymentStatus = models.PaymentPaid
		order.Status = models.StatusConfirmed
		order.Gateway = &models.GatewayPayment{
			OrderID:   in.Payment.GatewayOrderID,
			PaymentID: in.Payment.PaymentID,
			Signature: in.Payment.Signature,
		}
	}

	if err := s.insert(ctx, order); err != nil {
		s.log.Error("order insert failed, releasing reserved stock",
			zap.String("userId", p.UserID.Hex()),
			zap.Error(err))
		s.stock.Release(ctx, items)
		return nil, err
	}

	if err := s.carts.Clear(ctx, p.UserID); err != nil {
		s.log.Warn("cart clear failed after checkout",
			zap.String("userId", p.UserID.Hex()),
			zap.String("orderNumber", order.OrderNumber),
			zap.Error(err))
	}

	s.log.Info("order created",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("paymentMethod", string(order.PaymentMethod)),
		zap.String("paymentStatus", string(order.PaymentStatus)),
		zap.Int("lines", len(order.Items)))
	s.publish(ctx, events.OrderCreated, order, "")
	return order, nil
}

// checkPayment decides whether the order starts paid. A claim is only
// trusted after the signature is recomputed here.
func (s *Service) checkPayment(in CreateInput) (bool, error) {
	if in.Payment == nil {
		if in.PaymentMethod.RequiresPrepayment() {
			return false, &ValidationError{Field: "paymentStatus", Message: "Payment must be completed before creating order"}
		}
		return false, nil
	}
	if !in.PaymentMethod.GatewayRouted() {
		return false, &ValidationError{Field: "paymentMethod", Message: "payment details are only accepted for online payment methods"}
	}
	if !in.Payment.Complete() {
		return false, &ValidationError{Field: "payment", Message: "Invalid payment details"}
	}
	if err := s.verifier.Verify(*in.Payment); err != nil {
		s.log.Warn("checkout payment claim rejected",
			zap.String("gatewayOrderId", in.Payment.GatewayOrderID),
			zap.String("paymentId", in.Payment.PaymentID))
		return false, err
	}
	return true, nil
}

// requests turns the submitted lines, or the user's cart when none were
// submitted, into reservation requests.
func (s *Service) requests(ctx context.Context, userID primitive.ObjectID, items []ItemInput) ([]inventory.Request, error) {
	reqs := make([]inventory.Request, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, inventory.Request{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	if len(reqs) > 0 {
		return reqs, nil
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, pkgerrors.Wrap(err, "load cart")
	}
	if cart != nil {
		for _, item := range cart.Items {
			reqs = append(reqs, inventory.Request{ProductID: item.ProductID, Quantity: item.Quantity})
		}
	}
	if len(reqs) == 0 {
		return nil, &ValidationError{Field: "items", Message: "No items in order"}
	}
	return reqs, nil
}

func (s *Service) insert(ctx context.Context, order *models.Order) error {
	var err error
	for attempt := 0; attempt < maxInsertAttempts; attempt++ {
		order.OrderNumber = newOrderNumber(order.CreatedAt)
		err = s.orders.Insert(ctx, order)
		if !errors.Is(err, store.ErrDuplicate) {
			return err
		}
		s.log.Warn("order number collision, regenerating", zap.String("orderNumber", order.OrderNumber))
	}
	return pkgerrors.Wrap(err, "allocate order number")
}

func newOrderNumber(t time.Time) string {
	return fmt.Sprintf("TB-%d-%d", t.UnixMilli(), 1000+rand.Intn(9000))
}

func (s *Service) GetOrder(ctx context.Context, p models.Principal, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Check(p, authz.ViewOrder, order); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrders returns the caller's own orders, newest first.
func (s *Service) ListOrders(ctx context.Context, p models.Principal, page store.Page) ([]models.Order, error) {
	if p.UserID.IsZero() {
		return nil, ErrUnauthenticated
	}
	orders, err := s.orders.FindByUser(ctx, p.UserID, normalizePage(page))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list orders")
	}
	return orders, nil
}

// OrderForPayment returns the order a gateway payment was recorded on.
func (s *Service) OrderForPayment(ctx context.Context, paymentID string) (*models.Order, error) {
	order, err := s.orders.FindByPaymentID(ctx, paymentID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "find order by payment")
	}
	return order, nil
}

func (s *Service) ListAllOrders(ctx context.Context, p models.Principal, page store.Page) ([]models.Order, error) {
	if err := authz.Check(p, authz.ListAllOrders, nil); err != nil {
		return nil, err
	}
	orders, err := s.orders.FindAll(ctx, normalizePage(page))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "list all orders")
	}
	return orders, nil
}

func normalizePage(page store.Page) store.Page {
	if page.Page < 1 {
		page.Page = 1
	}
	if page.Limit < 1 {
		page.Limit = defaultPageLimit
	}
	if page.Limit > maxPageLimit {
		page.Limit = maxPageLimit
	}
	return page
}

// CancelOrder cancels a non-terminal order and then returns its stock. A
// paid order is flagged Refunded; the gateway refund itself is a separate
// admin operation.
func (s *Service) CancelOrder(ctx context.Context, p models.Principal, id primitive.ObjectID, reason string) (*models.Order, error) {
	reason = trimOr(reason, "Cancelled by user")

	order, err := s.mutate(ctx, id, func(o *models.Order) error {
		if err := authz.Check(p, authz.CancelOrder, o); err != nil {
			return err
		}
		if o.Status.Terminal() {
			return &CannotCancelError{Status: o.Status}
		}
		now := s.now()
		o.Status = models.StatusCancelled
		o.CancelledAt = &now
		o.CancelReason = reason
		if o.PaymentStatus == models.PaymentPaid {
			o.PaymentStatus = models.PaymentRefunded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.stock.Release(ctx, order.Items)
	s.log.Info("order cancelled",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("reason", reason),
		zap.String("paymentStatus", string(order.PaymentStatus)))
	s.publish(ctx, events.OrderCancelled, order, reason)
	return order, nil
}

// TransitionStatus moves a non-terminal order to status. Cancellation has its
// own operation.
func (s *Service) TransitionStatus(ctx context.Context, p models.Principal, id primitive.ObjectID, status models.OrderStatus) (*models.Order, error) {
	if err := authz.Check(p, authz.TransitionOrder, nil); err != nil {
		return nil, err
	}
	if _, ok := models.StepFor(status); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	var previous models.OrderStatus
	order, err := s.mutate(ctx, id, func(o *models.Order) error {
		if o.Status.Terminal() {
			return fmt.Errorf("%w: order is already %s", ErrInvalidStatus, o.Status)
		}
		now := s.now()
		previous = o.Status
		o.Status = status
		o.Timeline = advance(o.Timeline, status, now, s.location)
		if status == models.StatusDelivered {
			o.DeliveredAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status updated",
		zap.String("orderNumber", order.OrderNumber),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)))
	s.publish(ctx, events.OrderStatusChanged, order, "")
	return order, nil
}

func (s *Service) AddReview(ctx context.Context, p models.Principal, id primitive.ObjectID, rating int, review string) (*models.Order, error) {
	if rating < 0 || rating > 5 {
		return nil, &ValidationError{Field: "rating", Message: "rating must be between 0 and 5"}
	}

	order, err := s.mutate(ctx, id, func(o *models.Order) error {
		if err := authz.Check(p, authz.ReviewOrder, o); err != nil {
			return err
		}
		if o.Status != models.StatusDelivered {
			return ErrInvalidState
		}
		r := rating
		o.Rating = &r
		o.Review = trimOr(review, "")
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.OrderReviewed, order, "")
	return order, nil
}

// ApplyPayment records a verified gateway payment. A Pending order is
// confirmed; a cancelled order is flagged Refunded since the money arrived
// after cancellation. Re-applying the same payment is a no-op.
func (s *Service) ApplyPayment(ctx context.Context, id primitive.ObjectID, ref models.GatewayPayment) (*models.Order, bool, error) {
	applied := false
	order, err := s.mutate(ctx, id, func(o *models.Order) error {
		if o.Gateway != nil && o.Gateway.PaymentID == ref.PaymentID &&
			(o.PaymentStatus == models.PaymentPaid || o.PaymentStatus == models.PaymentRefunded) {
			return errUnchanged
		}
		if o.Gateway != nil && o.Gateway.PaymentID != "" && o.PaymentStatus == models.PaymentPaid {
			s.log.Warn("order already paid by another payment",
				zap.String("orderNumber", o.OrderNumber),
				zap.String("previousPaymentId", o.Gateway.PaymentID),
				zap.String("paymentId", ref.PaymentID))
		}

		g := ref
		o.Gateway = &g
		o.PaymentError = ""
		switch {
		case o.Status == models.StatusCancelled:
			o.PaymentStatus = models.PaymentRefunded
		case o.Status == models.StatusPending:
			o.PaymentStatus = models.PaymentPaid
			o.Status = models.StatusConfirmed
			o.Timeline = advance(o.Timeline, models.StatusConfirmed, s.now(), s.location)
		default:
			o.PaymentStatus = models.PaymentPaid
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if applied {
		s.publish(ctx, events.PaymentCompleted, order, "")
	}
	return order, applied, nil
}

// RecordPaymentFailure stores the failure reason. Order status is untouched
// and a settled payment is never downgraded.
func (s *Service) RecordPaymentFailure(ctx context.Context, p models.Principal, id primitive.ObjectID, reason string) (*models.Order, error) {
	changed := false
	order, err := s.mutate(ctx, id, func(o *models.Order) error {
		if err := authz.Check(p, authz.ReportFailure, o); err != nil {
			return err
		}
		if o.PaymentStatus == models.PaymentPaid || o.PaymentStatus == models.PaymentRefunded {
			s.log.Warn("payment failure ignored for settled order",
				zap.String("orderNumber", o.OrderNumber),
				zap.String("paymentStatus", string(o.PaymentStatus)))
			return errUnchanged
		}
		o.PaymentStatus = models.PaymentFailed
		o.PaymentError = reason
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.publish(ctx, events.PaymentFailed, order, reason)
	}
	return order, nil
}

// mutate loads the order, applies fn and writes it back guarded by the
// version read. A concurrent writer causes a reload and a fresh attempt, so
// fn always sees the latest state.
func (s *Service) mutate(ctx context.Context, id primitive.ObjectID, fn func(*models.Order) error) (*models.Order, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		order, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}

		if err := fn(order); err != nil {
			if errors.Is(err, errUnchanged) {
				return order, nil
			}
			return nil, err
		}

		order.UpdatedAt = s.now()
		err = s.orders.Update(ctx, order, order.Version)
		switch {
		case err == nil:
			return order, nil
		case errors.Is(err, store.ErrConflict):
			s.log.Debug("order version conflict, retrying",
				zap.String("orderId", id.Hex()),
				zap.Int("attempt", attempt+1))
			continue
		case errors.Is(err, store.ErrNotFound):
			return nil, ErrOrderNotFound
		default:
			return nil, pkgerrors.Wrap(err, "update order")
		}
	}
	return nil, ErrConcurrentUpdate
}

func (s *Service) load(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load order")
	}
	return order, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, order *models.Order, reason string) {
	evt := events.ForOrder(t, order)
	evt.Reason = reason
	if err := s.events.Publish(ctx, evt); err != nil {
		s.log.Warn("event publish failed",
			zap.String("eventType", string(t)),
			zap.String("orderNumber", order.OrderNumber),
			zap.Error(err))
	}
}
