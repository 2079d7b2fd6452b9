package database

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bakery/internal/models"
	"bakery/internal/store"
)

type ProductStore struct {
	coll *mongo.Collection
}

func NewProductStore(db *mongo.Database) *ProductStore {
	return &ProductStore{coll: db.Collection(productsCollection)}
}

func (s *ProductStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if err == mongo.ErrNoDocuments {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find product")
	}
	return &product, nil
}

// decrementPipeline clamps at zero and derives inStock from the new quantity.
// The filter already guarantees inStock was true.
func decrementPipeline(qty int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "stockQuantity", Value: bson.D{{Key: "$max", Value: bson.A{
			0,
			bson.D{{Key: "$subtract", Value: bson.A{"$stockQuantity", qty}}},
		}}}}}}},
		{{Key: "$set", Value: bson.D{{Key: "inStock", Value: bson.D{{Key: "$gt", Value: bson.A{"$stockQuantity", 0}}}}}}},
	}
}

func incrementPipeline(qty int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "stockQuantity", Value: bson.D{{Key: "$add", Value: bson.A{"$stockQuantity", qty}}}}}}},
		{{Key: "$set", Value: bson.D{{Key: "inStock", Value: bson.D{{Key: "$or", Value: bson.A{
			"$inStock",
			bson.D{{Key: "$gt", Value: bson.A{"$stockQuantity", 0}}},
		}}}}}}},
	}
}

func (s *ProductStore) DecrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Product, error) {
	filter := bson.M{
		"_id":           id,
		"inStock":       true,
		"stockQuantity": bson.M{"$gte": qty},
	}
	return s.apply(ctx, id, filter, decrementPipeline(qty))
}

func (s *ProductStore) IncrementStock(ctx context.Context, id primitive.ObjectID, qty int) (*models.Product, error) {
	return s.apply(ctx, id, bson.M{"_id": id}, incrementPipeline(qty))
}

func (s *ProductStore) apply(ctx context.Context, id primitive.ObjectID, filter bson.M, update mongo.Pipeline) (*models.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var product models.Product
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&product)
	if err == nil {
		return &product, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, errors.Wrap(err, "update product stock")
	}

	count, err := s.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, errors.Wrap(err, "count product")
	}
	if count == 0 {
		return nil, store.ErrNotFound
	}
	return nil, store.ErrConflict
}
