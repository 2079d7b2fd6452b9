package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"bakery/internal/models"
	"bakery/internal/store"
)

type CartStore struct {
	coll *mongo.Collection
}

func NewCartStore(db *mongo.Database) *CartStore {
	return &CartStore{coll: db.Collection(cartsCollection)}
}

func (s *CartStore) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	err := s.coll.FindOne(ctx, bson.M{"user": userID}).Decode(&cart)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	return &cart, nil
}

func (s *CartStore) Clear(ctx context.Context, userID primitive.ObjectID) error {
	_, err := s.coll.UpdateOne(ctx, bson.M{"user": userID}, bson.M{
		"$set": bson.M{
			"items":       []models.CartItem{},
			"totalAmount": 0,
			"updatedAt":   time.Now(),
		},
	})
	if err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
