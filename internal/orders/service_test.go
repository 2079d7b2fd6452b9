package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bakery/internal/events"
	"bakery/internal/inventory"
	"bakery/internal/models"
	"bakery/internal/payment"
	"bakery/internal/store"
	"bakery/internal/store/memstore"
)

const testSecret = "rzp_test_secret"

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, evt events.Event) error {
	args := m.Called(ctx, evt)
	return args.Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) published() []events.Type {
	var out []events.Type
	for _, call := range m.Calls {
		out = append(out, call.Arguments.Get(1).(events.Event).Type)
	}
	return out
}

type fixture struct {
	svc      *Service
	products *memstore.Products
	orders   *memstore.Orders
	carts    *memstore.Carts
	pub      *mockPublisher
	verifier *payment.Verifier

	owner    models.Principal
	stranger models.Principal
	admin    models.Principal
}

var fixedNow = time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		products: memstore.NewProducts(),
		orders:   memstore.NewOrders(),
		carts:    memstore.NewCarts(),
		pub:      &mockPublisher{},
		verifier: payment.NewVerifier(testSecret),
		owner:    models.Principal{UserID: primitive.NewObjectID(), Role: models.RoleUser},
		stranger: models.Principal{UserID: primitive.NewObjectID(), Role: models.RoleUser},
		admin:    models.Principal{UserID: primitive.NewObjectID(), Role: models.RoleAdmin},
	}
	f.pub.On("Publish", mock.Anything, mock.Anything).Return(nil)

	log := zap.NewNop()
	f.svc = NewService(f.orders, f.carts, inventory.NewEngine(f.products, log), f.verifier, f.pub, log, Options{
		DeliveryEstimate: 45 * time.Minute,
		Now:              func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) product(name string, qty int) models.Product {
	return f.products.Put(models.Product{Name: name, Price: 60, Emoji: "🥐", StockQuantity: qty, InStock: qty > 0})
}

func (f *fixture) stock(t *testing.T, id primitive.ObjectID) int {
	t.Helper()
	p, err := f.products.FindByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func address() models.DeliveryAddress {
	return models.DeliveryAddress{
		Name:    "Asha",
		Phone:   "9000000000",
		Address: "12 Baker Street",
		City:    "Pune",
		Pincode: "411001",
	}
}

func codInput(items ...ItemInput) CreateInput {
	return CreateInput{
		Items:           items,
		DeliveryAddress: address(),
		PaymentMethod:   models.PaymentCOD,
		Subtotal:        180,
		DeliveryCharge:  20,
		TotalAmount:     200,
	}
}

func (f *fixture) place(t *testing.T, in CreateInput) *models.Order {
	t.Helper()
	order, err := f.svc.CreateOrder(context.Background(), f.owner, in)
	require.NoError(t, err)
	return order
}

func completed(o *models.Order) []bool {
	out := make([]bool, 0, len(o.Timeline))
	for _, step := range o.Timeline {
		out = append(out, step.Completed)
	}
	return out
}

func TestCheckoutFromCartThenCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	f.carts.Put(models.Cart{UserID: f.owner.UserID, Items: []models.CartItem{{ProductID: p1.ID, Quantity: 3}}, TotalAmount: 180})

	order := f.place(t, codInput())

	assert.Equal(t, 2, f.stock(t, p1.ID))
	assert.Equal(t, models.StatusPending, order.Status)
	assert.Equal(t, models.PaymentPending, order.PaymentStatus)
	assert.True(t, strings.HasPrefix(order.OrderNumber, "TB-"))
	assert.Equal(t, []bool{true, false, false, false, false}, completed(order))
	assert.Equal(t, "09:05 AM", order.Timeline[models.StepOrderPlaced].Time)
	assert.Equal(t, models.TimePending, order.Timeline[models.StepConfirmed].Time)
	assert.Equal(t, "09:50 AM (Est.)", order.Timeline[models.StepDelivered].Time)
	assert.Equal(t, fixedNow.Add(45*time.Minute), order.EstimatedDelivery)
	require.Len(t, order.Items, 1)
	assert.Equal(t, models.OrderItem{ProductID: p1.ID, Name: "Croissant", Price: 60, Quantity: 3, Emoji: "🥐"}, order.Items[0])

	cart, err := f.carts.Get(ctx, f.owner.UserID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	cancelled, err := f.svc.CancelOrder(ctx, f.owner, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.PaymentPending, cancelled.PaymentStatus)
	assert.Equal(t, "Cancelled by user", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, []events.Type{events.OrderCreated, events.OrderCancelled}, f.pub.published())
}

func TestCreateOrderWithVerifiedPaymentStartsConfirmed(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Baguette", 4)

	in := codInput(ItemInput{ProductID: p1.ID, Quantity: 1})
	in.PaymentMethod = models.PaymentRazorpay
	in.Payment = &payment.Claim{
		GatewayOrderID: "order_1",
		PaymentID:      "pay_1",
		Signature:      f.verifier.Sign("order_1", "pay_1"),
	}
	order := f.place(t, in)

	assert.Equal(t, models.StatusConfirmed, order.Status)
	assert.Equal(t, models.PaymentPaid, order.PaymentStatus)
	require.NotNil(t, order.Gateway)
	assert.Equal(t, "pay_1", order.Gateway.PaymentID)
	assert.Equal(t, []bool{true, true, false, false, false}, completed(order))
	assert.Equal(t, "09:05 AM", order.Timeline[models.StepConfirmed].Time)
}

func TestCreateOrderRejectsTamperedPaymentClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Baguette", 4)

	in := codInput(ItemInput{ProductID: p1.ID, Quantity: 2})
	in.PaymentMethod = models.PaymentRazorpay
	sig := []byte(f.verifier.Sign("order_1", "pay_1"))
	sig[0] ^= 1
	in.Payment = &payment.Claim{GatewayOrderID: "order_1", PaymentID: "pay_1", Signature: string(sig)}

	_, err := f.svc.CreateOrder(ctx, f.owner, in)
	require.ErrorIs(t, err, payment.ErrSignatureMismatch)
	assert.Equal(t, 4, f.stock(t, p1.ID))

	all, err := f.orders.FindAll(ctx, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Muffin", 10)
	line := ItemInput{ProductID: p1.ID, Quantity: 1}

	cases := []struct {
		name  string
		edit  func(*CreateInput)
		field string
	}{
		{"missing address name", func(in *CreateInput) { in.DeliveryAddress.Name = "" }, "deliveryAddress.name"},
		{"unknown payment method", func(in *CreateInput) { in.PaymentMethod = "cheque" }, "paymentMethod"},
		{"zero quantity", func(in *CreateInput) { in.Items[0].Quantity = 0 }, "items[0].quantity"},
		{"missing product", func(in *CreateInput) { in.Items[0].ProductID = primitive.NilObjectID }, "items[0].product"},
		{"negative charge", func(in *CreateInput) { in.DeliveryCharge = -1; in.TotalAmount = 179 }, "deliveryCharge"},
		{"total mismatch", func(in *CreateInput) { in.TotalAmount = 150 }, "totalAmount"},
		{"razorpay without payment", func(in *CreateInput) { in.PaymentMethod = models.PaymentRazorpay }, "paymentStatus"},
		{"cod with payment claim", func(in *CreateInput) {
			in.Payment = &payment.Claim{GatewayOrderID: "o", PaymentID: "p", Signature: "s"}
		}, "paymentMethod"},
		{"incomplete claim", func(in *CreateInput) {
			in.PaymentMethod = models.PaymentUPI
			in.Payment = &payment.Claim{GatewayOrderID: "o"}
		}, "payment"},
		{"no items and empty cart", func(in *CreateInput) { in.Items = nil }, "items"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := codInput(line)
			tc.edit(&in)

			_, err := f.svc.CreateOrder(context.Background(), f.owner, in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, 10, f.stock(t, p1.ID))
		})
	}
}

func TestCreateOrderRequiresPrincipal(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Muffin", 10)

	_, err := f.svc.CreateOrder(context.Background(), models.Principal{}, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateOrderReportsEveryUnavailableLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	p2 := f.product("Eclair", 1)
	missing := primitive.NewObjectID()

	_, err := f.svc.CreateOrder(ctx, f.owner, codInput(
		ItemInput{ProductID: p1.ID, Quantity: 2},
		ItemInput{ProductID: p2.ID, Quantity: 3},
		ItemInput{ProductID: missing, Quantity: 1},
	))

	var stockErr *inventory.StockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Failures, 2)
	assert.Equal(t, inventory.InsufficientStock, stockErr.Failures[0].Kind)
	assert.Equal(t, inventory.ProductNotFound, stockErr.Failures[1].Kind)
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Equal(t, 1, f.stock(t, p2.ID))
}

func TestCreateOrderReleasesStockWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Croissant", 5)
	f.orders.FailInsert = errors.New("primary stepped down")

	_, err := f.svc.CreateOrder(context.Background(), f.owner, codInput(ItemInput{ProductID: p1.ID, Quantity: 4}))
	require.Error(t, err)
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Empty(t, f.pub.published())
}

// deadlineProducts refuses increments on a finished context, as the MongoDB
// driver does.
type deadlineProducts struct {
	*memstore.Products
}

func (p deadlineProducts) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.Products.IncrementStock(ctx, id, qty)
}

// stalledOrders never completes an insert before the caller gives up.
type stalledOrders struct {
	*memstore.Orders
}

func (o stalledOrders) Insert(ctx context.Context, _ *models.Order) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCreateOrderReleasesStockWhenInsertTimesOut(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Croissant", 5)
	log := zap.NewNop()
	svc := NewService(stalledOrders{f.orders}, f.carts, inventory.NewEngine(deadlineProducts{f.products}, log), f.verifier, f.pub, log, Options{
		Now: func() time.Time { return fixedNow },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.CreateOrder(ctx, f.owner, codInput(ItemInput{ProductID: p1.ID, Quantity: 3}))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 5, f.stock(t, p1.ID))
	assert.Empty(t, f.pub.published())
}

func TestCancelRestoresStockAfterCallerContextEnds(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Croissant", 5)
	log := zap.NewNop()
	svc := NewService(f.orders, f.carts, inventory.NewEngine(deadlineProducts{f.products}, log), f.verifier, f.pub, log, Options{
		Now: func() time.Time { return fixedNow },
	})
	order, err := svc.CreateOrder(context.Background(), f.owner, codInput(ItemInput{ProductID: p1.ID, Quantity: 3}))
	require.NoError(t, err)
	require.Equal(t, 2, f.stock(t, p1.ID))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled, err := svc.CancelOrder(ctx, f.owner, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, 5, f.stock(t, p1.ID))
}

func TestTransitionCatchesUpTimeline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, err := f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusConfirmed)
	require.NoError(t, err)
	order, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusPreparing)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPreparing, order.Status)
	assert.Equal(t, []bool{true, true, true, false, false}, completed(order))
	assert.Equal(t, "09:50 AM (Est.)", order.Timeline[models.StepDelivered].Time)

	confirmedAt := order.Timeline[models.StepConfirmed].Time
	order, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, false, false}, completed(order))
	assert.Equal(t, confirmedAt, order.Timeline[models.StepConfirmed].Time)
}

func TestUpdatesCarryServiceClock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, err := f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusConfirmed)
	require.NoError(t, err)

	stored, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, fixedNow, stored.UpdatedAt)
	assert.Equal(t, int64(1), stored.Version)
}

func TestCreateOrderShowsTimesInDisplayLocation(t *testing.T) {
	f := newFixture(t)
	p1 := f.product("Croissant", 5)
	log := zap.NewNop()
	svc := NewService(f.orders, f.carts, inventory.NewEngine(f.products, log), f.verifier, f.pub, log, Options{
		DeliveryEstimate: 45 * time.Minute,
		Location:         time.FixedZone("IST", 5*60*60+30*60),
		Now:              func() time.Time { return fixedNow },
	})

	order, err := svc.CreateOrder(context.Background(), f.owner, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "02:35 PM", order.Timeline[models.StepOrderPlaced].Time)
	assert.Equal(t, "03:20 PM (Est.)", order.Timeline[models.StepDelivered].Time)
	assert.Equal(t, fixedNow, order.CreatedAt)
}

func TestTransitionSkippingAheadCompletesEarlierSteps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	order, err := f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, true, true, true}, completed(order))
	assert.Equal(t, "09:05 AM", order.Timeline[models.StepDelivered].Time)
	require.NotNil(t, order.DeliveredAt)
}

func TestTransitionRejectsIllegalRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 5)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, err := f.svc.TransitionStatus(ctx, f.owner, order.ID, models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, "Baking")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, err = f.svc.TransitionStatus(ctx, f.admin, primitive.NewObjectID(), models.StatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTerminalOrdersAreImmutable(t *testing.T) {
	for _, terminal := range []models.OrderStatus{models.StatusDelivered, models.StatusCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			p1 := f.product("Croissant", 5)
			order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 2}))

			var err error
			if terminal == models.StatusDelivered {
				_, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusDelivered)
			} else {
				_, err = f.svc.CancelOrder(ctx, f.owner, order.ID, "changed my mind")
			}
			require.NoError(t, err)

			before, err := f.orders.FindByID(ctx, order.ID)
			require.NoError(t, err)
			stockBefore := f.stock(t, p1.ID)

			_, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusPreparing)
			assert.ErrorIs(t, err, ErrInvalidStatus)

			_, err = f.svc.CancelOrder(ctx, f.admin, order.ID, "")
			var cannot *CannotCancelError
			require.ErrorAs(t, err, &cannot)
			assert.Equal(t, terminal, cannot.Status)

			after, err := f.orders.FindByID(ctx, order.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, stockBefore, f.stock(t, p1.ID))
		})
	}
}

func TestCancelRestoresExactlyWhatWasReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	p2 := f.product("Eclair", 5)

	first := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 2}, ItemInput{ProductID: p2.ID, Quantity: 1}))
	f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 3}))
	require.Equal(t, 5, f.stock(t, p1.ID))
	require.Equal(t, 4, f.stock(t, p2.ID))

	_, err := f.svc.CancelOrder(ctx, f.owner, first.ID, "wrong address")
	require.NoError(t, err)
	assert.Equal(t, 7, f.stock(t, p1.ID))
	assert.Equal(t, 5, f.stock(t, p2.ID))
}

func TestCancelAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 2}))

	_, err := f.svc.CancelOrder(ctx, f.stranger, order.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, 8, f.stock(t, p1.ID))

	cancelled, err := f.svc.CancelOrder(ctx, f.admin, order.ID, "out of flour")
	require.NoError(t, err)
	assert.Equal(t, "out of flour", cancelled.CancelReason)
	assert.Equal(t, 10, f.stock(t, p1.ID))
}

func TestCancelPaidOrderFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, applied, err := f.svc.ApplyPayment(ctx, order.ID, models.GatewayPayment{OrderID: "order_9", PaymentID: "pay_9"})
	require.NoError(t, err)
	require.True(t, applied)

	cancelled, err := f.svc.CancelOrder(ctx, f.owner, order.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, cancelled.PaymentStatus)
}

func TestGetOrderEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	got, err := f.svc.GetOrder(ctx, f.owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)

	_, err = f.svc.GetOrder(ctx, f.admin, order.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, f.stranger, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetOrder(ctx, f.owner, primitive.NewObjectID())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	mine, err := f.svc.ListOrders(ctx, f.owner, store.Page{})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	theirs, err := f.svc.ListOrders(ctx, f.stranger, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.svc.ListAllOrders(ctx, f.owner, store.Page{})
	assert.ErrorIs(t, err, ErrForbidden)

	page, err := f.svc.ListAllOrders(ctx, f.admin, store.Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestAddReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, err := f.svc.AddReview(ctx, f.owner, order.ID, 5, "lovely")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusDelivered)
	require.NoError(t, err)

	_, err = f.svc.AddReview(ctx, f.owner, order.ID, 6, "")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "rating", verr.Field)

	_, err = f.svc.AddReview(ctx, f.admin, order.ID, 4, "")
	assert.ErrorIs(t, err, ErrForbidden)

	reviewed, err := f.svc.AddReview(ctx, f.owner, order.ID, 4, "  still warm  ")
	require.NoError(t, err)
	require.NotNil(t, reviewed.Rating)
	assert.Equal(t, 4, *reviewed.Rating)
	assert.Equal(t, "still warm", reviewed.Review)
	assert.Equal(t, models.StatusDelivered, reviewed.Status)
}

func TestApplyPaymentConfirmsPendingOrderOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	in := codInput(ItemInput{ProductID: p1.ID, Quantity: 1})
	in.PaymentMethod = models.PaymentUPI
	order := f.place(t, in)
	ref := models.GatewayPayment{OrderID: "order_1", PaymentID: "pay_1", Signature: "sig"}

	paid, applied, err := f.svc.ApplyPayment(ctx, order.ID, ref)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.StatusConfirmed, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
	assert.Equal(t, []bool{true, true, false, false, false}, completed(paid))
	assert.Equal(t, &ref, paid.Gateway)

	again, applied, err := f.svc.ApplyPayment(ctx, order.ID, ref)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, paid.Version, again.Version)

	assert.Equal(t, []events.Type{events.OrderCreated, events.PaymentCompleted}, f.pub.published())
}

func TestApplyPaymentKeepsLaterStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	_, err := f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusPreparing)
	require.NoError(t, err)

	paid, _, err := f.svc.ApplyPayment(ctx, order.ID, models.GatewayPayment{OrderID: "o", PaymentID: "p"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, paid.Status)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)
}

func TestApplyPaymentAfterCancellationFlagsRefund(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	_, err := f.svc.CancelOrder(ctx, f.owner, order.ID, "")
	require.NoError(t, err)

	late, applied, err := f.svc.ApplyPayment(ctx, order.ID, models.GatewayPayment{OrderID: "o", PaymentID: "p"})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.StatusCancelled, late.Status)
	assert.Equal(t, models.PaymentRefunded, late.PaymentStatus)
}

func TestRecordPaymentFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)
	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))

	_, err := f.svc.RecordPaymentFailure(ctx, f.stranger, order.ID, "card declined")
	assert.ErrorIs(t, err, ErrForbidden)

	failed, err := f.svc.RecordPaymentFailure(ctx, f.owner, order.ID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)
	assert.Equal(t, "card declined", failed.PaymentError)
	assert.Equal(t, models.StatusPending, failed.Status)

	_, _, err = f.svc.ApplyPayment(ctx, order.ID, models.GatewayPayment{OrderID: "o", PaymentID: "p"})
	require.NoError(t, err)

	settled, err := f.svc.RecordPaymentFailure(ctx, f.owner, order.ID, "late failure")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, settled.PaymentStatus)
	assert.Empty(t, settled.PaymentError)
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p1 := f.product("Croissant", 10)

	order := f.place(t, codInput(ItemInput{ProductID: p1.ID, Quantity: 1}))
	var g errgroup.Group
	g.Go(func() error {
		_, _, err := f.svc.ApplyPayment(ctx, order.ID, models.GatewayPayment{OrderID: "o", PaymentID: "p"})
		return err
	})
	g.Go(func() error {
		_, err := f.svc.TransitionStatus(ctx, f.admin, order.ID, models.StatusPreparing)
		return err
	})
	require.NoError(t, g.Wait())

	final, err := f.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPreparing, final.Status)
	assert.Equal(t, models.PaymentPaid, final.PaymentStatus)
	assert.Equal(t, []bool{true, true, true, false, false}, completed(final))
	assert.Equal(t, int64(2), final.Version)
}
