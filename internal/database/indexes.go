package database

import (
	"context"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	OrdersCollection    = "orders"
	CartsCollection     = "carts"
	CustomersCollection = "customers"
)

// EnsureIndexes creates every index the service relies on. Failures are
// returned after all collections have been attempted.
func EnsureIndexes(ctx context.Context, log *slog.Logger, db *mongo.Database) error {
	var firstErr error
	for _, ensure := range []func(context.Context, *slog.Logger, *mongo.Database) error{
		EnsureCustomerIndexes,
		EnsureOrderIndexes,
	} {
		if err := ensure(ctx, log, db); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func EnsureCustomerIndexes(ctx context.Context, log *slog.Logger, db *mongo.Database) error {
	const op = "database.EnsureCustomerIndexes"
	log = log.With(slog.String("op", op))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	indexes := db.Collection(CustomersCollection).Indexes()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	log.Debug("creating email_unique index")
	if _, err := indexes.CreateOne(ctx, emailIndex); err != nil {
		log.Error("email index error", slog.String("error", err.Error()))
		return err
	}
	log.Info("email_unique index created")
	return nil
}

func EnsureOrderIndexes(ctx context.Context, log *slog.Logger, db *mongo.Database) error {
	const op = "database.EnsureOrderIndexes"
	log = log.With(slog.String("op", op))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	indexes := db.Collection(OrdersCollection).Indexes()

	model := mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		Options: options.Index().SetName("userId_createdAt"),
	}

	log.Debug("creating userId_createdAt index")
	if _, err := indexes.CreateOne(ctx, model); err != nil {
		log.Error("order index error", slog.String("error", err.Error()))
		return err
	}
	log.Info("userId_createdAt index created")
	return nil
}
