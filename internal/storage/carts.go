package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

type CartRepository struct {
	coll *mongo.Collection
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(database.CartsCollection)}
}

// Get returns the user's cart; a user without one gets an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	const op = "storage.CartRepository.Get"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	var cart models.Cart
	err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.Cart{UserID: userID, Items: []models.LineItem{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if cart.Items == nil {
		cart.Items = []models.LineItem{}
	}
	return &cart, nil
}

func (r *CartRepository) Save(ctx context.Context, cart *models.Cart) error {
	const op = "storage.CartRepository.Save"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	cart.UpdatedAt = time.Now().UTC()
	if cart.Items == nil {
		cart.Items = []models.LineItem{}
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := r.coll.ReplaceOne(ctx, bson.M{"_id": cart.UserID}, cart, opts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
