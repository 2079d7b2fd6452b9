// Package memstore implements the store ports in process memory with the
// same conditional-update semantics as the MongoDB stores.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"bakery/internal/models"
	"bakery/internal/store"
)

type Products struct {
	mu       sync.Mutex
	products map[primitive.ObjectID]models.Product
}

func NewProducts(products ...models.Product) *Products {
	p := &Products{products: make(map[primitive.ObjectID]models.Product)}
	for _, product := range products {
		p.Put(product)
	}
	return p
}

// Put inserts or replaces a product, assigning an id when missing.
func (p *Products) Put(product models.Product) models.Product {
	p.mu.Lock()
	defer p.mu.Unlock()
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	p.products[product.ID] = product
	return product
}

func (p *Products) FindByID(_ context.Context, id primitive.ObjectID) (*models.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	product, ok := p.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (p *Products) DecrementStock(_ context.Context, id primitive.ObjectID, qty int) (*models.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	product, ok := p.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !product.InStock || product.StockQuantity < qty {
		return nil, store.ErrConflict
	}
	product.StockQuantity -= qty
	if product.StockQuantity <= 0 {
		product.StockQuantity = 0
		product.InStock = false
	}
	p.products[id] = product
	return &product, nil
}

func (p *Products) IncrementStock(_ context.Context, id primitive.ObjectID, qty int) (*models.Product, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	product, ok := p.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	product.StockQuantity += qty
	if product.StockQuantity > 0 {
		product.InStock = true
	}
	p.products[id] = product
	return &product, nil
}

type Orders struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order
	// FailInsert, when set, is returned by Insert.
	FailInsert error
}

func NewOrders() *Orders {
	return &Orders{orders: make(map[primitive.ObjectID]models.Order)}
}

func (o *Orders) Insert(_ context.Context, order *models.Order) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.FailInsert != nil {
		return o.FailInsert
	}
	for _, existing := range o.orders {
		if existing.OrderNumber == order.OrderNumber {
			return store.ErrDuplicate
		}
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	o.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (o *Orders) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	order, ok := o.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := cloneOrder(order)
	return &clone, nil
}

func (o *Orders) FindByPaymentID(_ context.Context, paymentID string) (*models.Order, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, order := range o.orders {
		if order.Gateway != nil && order.Gateway.PaymentID == paymentID {
			clone := cloneOrder(order)
			return &clone, nil
		}
	}
	return nil, store.ErrNotFound
}

func (o *Orders) FindByUser(ctx context.Context, userID primitive.ObjectID, page store.Page) ([]models.Order, error) {
	return o.find(func(order models.Order) bool { return order.UserID == userID }, page), nil
}

func (o *Orders) FindAll(_ context.Context, page store.Page) ([]models.Order, error) {
	return o.find(func(models.Order) bool { return true }, page), nil
}

func (o *Orders) find(match func(models.Order) bool, page store.Page) []models.Order {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.Order, 0)
	for _, order := range o.orders {
		if match(order) {
			out = append(out, cloneOrder(order))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	skip := page.Skip()
	if skip >= int64(len(out)) {
		return []models.Order{}
	}
	out = out[skip:]
	if page.Limit > 0 && int64(len(out)) > page.Limit {
		out = out[:page.Limit]
	}
	return out
}

func (o *Orders) Update(_ context.Context, order *models.Order, expectedVersion int64) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	current, ok := o.orders[order.ID]
	if !ok {
		return store.ErrNotFound
	}
	if current.Version != expectedVersion {
		return store.ErrConflict
	}
	order.Version = expectedVersion + 1
	o.orders[order.ID] = cloneOrder(*order)
	return nil
}

func cloneOrder(order models.Order) models.Order {
	order.Items = append([]models.OrderItem(nil), order.Items...)
	if order.Gateway != nil {
		g := *order.Gateway
		order.Gateway = &g
	}
	if order.Rating != nil {
		r := *order.Rating
		order.Rating = &r
	}
	return order
}

type Carts struct {
	mu    sync.Mutex
	carts map[primitive.ObjectID]models.Cart
}

func NewCarts() *Carts {
	return &Carts{carts: make(map[primitive.ObjectID]models.Cart)}
}

func (c *Carts) Put(cart models.Cart) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts[cart.UserID] = cart
}

func (c *Carts) Get(_ context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart.Items = append([]models.CartItem(nil), cart.Items...)
	return &cart, nil
}

func (c *Carts) Clear(_ context.Context, userID primitive.ObjectID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cart, ok := c.carts[userID]
	if !ok {
		return nil
	}
	cart.Items = []models.CartItem{}
	cart.TotalAmount = 0
	cart.UpdatedAt = time.Now()
	c.carts[userID] = cart
	return nil
}
