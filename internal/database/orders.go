package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bakery/internal/models"
	"bakery/internal/store"
)

type OrderStore struct {
	coll *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{coll: db.Collection(ordersCollection)}
}

func (s *OrderStore) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.ErrDuplicate
		}
		return errors.Wrap(err, "insert order")
	}
	return nil
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order")
	}
	return &order, nil
}

func (s *OrderStore) FindByPaymentID(ctx context.Context, paymentID string) (*models.Order, error) {
	var order models.Order
	err := s.coll.FindOne(ctx, bson.M{"gateway.razorpayPaymentId": paymentID}).Decode(&order)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find order by payment")
	}
	return &order, nil
}

func (s *OrderStore) FindByUser(ctx context.Context, userID primitive.ObjectID, page store.Page) ([]models.Order, error) {
	return s.find(ctx, bson.M{"user": userID}, page)
}

func (s *OrderStore) FindAll(ctx context.Context, page store.Page) ([]models.Order, error) {
	return s.find(ctx, bson.M{}, page)
}

func (s *OrderStore) find(ctx context.Context, filter bson.M, page store.Page) ([]models.Order, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if page.Limit > 0 {
		findOptions.SetSkip(page.Skip()).SetLimit(page.Limit)
	}

	cursor, err := s.coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, errors.Wrap(err, "find orders")
	}
	defer cursor.Close(ctx)

	orders := make([]models.Order, 0)
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, errors.Wrap(err, "decode orders")
	}
	return orders, nil
}

func (s *OrderStore) Update(ctx context.Context, order *models.Order, expectedVersion int64) error {
	next := *order
	next.Version = expectedVersion + 1
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now()
	}

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": order.ID, "version": expectedVersion}, next)
	if err != nil {
		return errors.Wrap(err, "replace order")
	}
	if res.MatchedCount == 0 {
		count, err := s.coll.CountDocuments(ctx, bson.M{"_id": order.ID})
		if err != nil {
			return errors.Wrap(err, "count order")
		}
		if count == 0 {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}

	order.Version = next.Version
	order.UpdatedAt = next.UpdatedAt
	return nil
}
