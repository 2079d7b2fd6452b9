package database

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

func ensureIndex(db *mongo.Database, log *zap.Logger, collection string, model mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	name := ""
	if model.Options != nil && model.Options.Name != nil {
		name = *model.Options.Name
	}

	log.Debug("creating index", zap.String("collection", collection), zap.String("index", name))
	if _, err := db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
		log.Warn("index creation failed",
			zap.String("collection", collection),
			zap.String("index", name),
			zap.Error(err))
		return err
	}
	log.Info("index ready", zap.String("collection", collection), zap.String("index", name))
	return nil
}

func EnsureOrderIndexes(db *mongo.Database, log *zap.Logger) error {
	orderNumber := mongo.IndexModel{
		Keys: bson.D{{Key: "orderNumber", Value: 1}},
		Options: options.Index().
			SetName("orderNumber_unique").
			SetUnique(true),
	}
	if err := ensureIndex(db, log, ordersCollection, orderNumber); err != nil {
		return err
	}

	byUser := mongo.IndexModel{
		Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("user_createdAt"),
	}
	if err := ensureIndex(db, log, ordersCollection, byUser); err != nil {
		return err
	}

	byPayment := mongo.IndexModel{
		Keys: bson.D{{Key: "gateway.razorpayPaymentId", Value: 1}},
		Options: options.Index().
			SetName("gateway_paymentId").
			SetSparse(true),
	}
	return ensureIndex(db, log, ordersCollection, byPayment)
}

func EnsureCartIndexes(db *mongo.Database, log *zap.Logger) error {
	byUser := mongo.IndexModel{
		Keys: bson.D{{Key: "user", Value: 1}},
		Options: options.Index().
			SetName("user_unique").
			SetUnique(true),
	}
	return ensureIndex(db, log, cartsCollection, byUser)
}

func EnsureProductIndexes(db *mongo.Database, log *zap.Logger) error {
	lowStock := mongo.IndexModel{
		Keys:    bson.D{{Key: "inStock", Value: 1}, {Key: "stockQuantity", Value: 1}},
		Options: options.Index().SetName("inStock_stockQuantity"),
	}
	return ensureIndex(db, log, productsCollection, lowStock)
}
