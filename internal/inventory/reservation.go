// Package inventory validates and moves product stock for checkout and
// cancellation.
package inventory

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"bakery/internal/logger"
	"bakery/internal/models"
	"bakery/internal/store"
)

const (
	lookupConcurrency = 8

	// releaseTimeout bounds a release once it is detached from the caller.
	releaseTimeout = 5 * time.Second
)

type Request struct {
	ProductID primitive.ObjectID
	Quantity  int
}

type Engine struct {
	products store.ProductStore
	log      *zap.Logger
}

func NewEngine(products store.ProductStore, log *zap.Logger) *Engine {
	return &Engine{
		products: products,
		log:      logger.Component(log, "inventory"),
	}
}

// merge folds repeated products into one line, keeping first-seen order, so
// that validation sees the combined quantity.
func merge(reqs []Request) ([]Request, error) {
	index := make(map[primitive.ObjectID]int, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if r.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[r.ProductID]; ok {
			out[i].Quantity += r.Quantity
			continue
		}
		index[r.ProductID] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// Reserve validates every line before touching stock, then decrements each
// product with a conditional update. On any failure the lines already
// decremented are released again, so the caller sees all-or-nothing.
func (e *Engine) Reserve(ctx context.Context, reqs []Request) ([]models.OrderItem, error) {
	lines, err := merge(reqs)
	if err != nil {
		return nil, err
	}

	products, err := e.load(ctx, lines)
	if err != nil {
		return nil, err
	}

	var failures []ItemFailure
	for i, line := range lines {
		if f, ok := check(line, products[i]); !ok {
			failures = append(failures, f)
		}
	}
	if len(failures) > 0 {
		return nil, &StockError{Failures: failures}
	}

	manifest := make([]models.OrderItem, 0, len(lines))
	for i, line := range lines {
		updated, err := e.products.DecrementStock(ctx, line.ProductID, line.Quantity)
		if err != nil {
			e.Release(ctx, manifest)
			if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
				return nil, &StockError{Failures: []ItemFailure{e.recheck(ctx, line, products[i])}}
			}
			return nil, pkgerrors.Wrap(err, "decrement stock")
		}

		p := products[i]
		manifest = append(manifest, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.UnitPrice(),
			Quantity:  line.Quantity,
			Emoji:     p.Emoji,
		})
		e.log.Info("stock reserved",
			zap.String("productId", p.ID.Hex()),
			zap.String("product", p.Name),
			zap.Int("quantity", line.Quantity),
			zap.Int("remaining", updated.StockQuantity))
	}

	return manifest, nil
}

// load fetches every product concurrently; a missing product is returned as
// nil, any other store failure aborts.
func (e *Engine) load(ctx context.Context, lines []Request) ([]*models.Product, error) {
	products := make([]*models.Product, len(lines))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i, line := range lines {
		g.Go(func() error {
			p, err := e.products.FindByID(gctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return pkgerrors.Wrapf(err, "load product %s", line.ProductID.Hex())
			}
			products[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return products, nil
}

func check(line Request, p *models.Product) (ItemFailure, bool) {
	if p == nil {
		return ItemFailure{ProductID: line.ProductID, Kind: ProductNotFound, Requested: line.Quantity}, false
	}
	f := ItemFailure{
		ProductID:   p.ID,
		ProductName: p.Name,
		Available:   p.StockQuantity,
		Requested:   line.Quantity,
	}
	// A shortage is reported as such even when the flag is also cleared;
	// OutOfStock is left for products switched off with units on hand.
	switch {
	case p.StockQuantity < line.Quantity:
		f.Kind = InsufficientStock
		return f, false
	case !p.InStock:
		f.Kind = OutOfStock
		return f, false
	}
	return ItemFailure{}, true
}

// recheck describes a line whose conditional decrement lost a race.
func (e *Engine) recheck(ctx context.Context, line Request, seen *models.Product) ItemFailure {
	current, err := e.products.FindByID(ctx, line.ProductID)
	if err != nil {
		current = nil
		if !errors.Is(err, store.ErrNotFound) {
			e.log.Warn("stock recheck failed", zap.String("productId", line.ProductID.Hex()), zap.Error(err))
			current = seen
		}
	}
	if f, ok := check(line, current); !ok {
		return f
	}
	// Stock came back between the failed write and the re-read.
	return ItemFailure{
		ProductID:   line.ProductID,
		ProductName: seen.Name,
		Kind:        InsufficientStock,
		Available:   current.StockQuantity,
		Requested:   line.Quantity,
	}
}

// Release returns stock for every line. It never fails: a missing product or
// a store error is logged and the line skipped. Release runs to completion
// even when ctx is already cancelled or past its deadline.
func (e *Engine) Release(ctx context.Context, items []models.OrderItem) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		updated, err := e.products.IncrementStock(ctx, item.ProductID, item.Quantity)
		if errors.Is(err, store.ErrNotFound) {
			e.log.Warn("stock release skipped, product missing",
				zap.String("productId", item.ProductID.Hex()),
				zap.Int("quantity", item.Quantity))
			continue
		}
		if err != nil {
			e.log.Error("stock release failed",
				zap.String("productId", item.ProductID.Hex()),
				zap.Int("quantity", item.Quantity),
				zap.Error(err))
			continue
		}
		e.log.Info("stock restored",
			zap.String("productId", item.ProductID.Hex()),
			zap.String("product", updated.Name),
			zap.Int("restored", item.Quantity),
			zap.Int("stockQuantity", updated.StockQuantity))
	}
}
