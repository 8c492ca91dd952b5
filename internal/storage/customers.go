package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/database"
	"storefront/internal/models"
)

type CustomerRepository struct {
	coll *mongo.Collection
}

func NewCustomerRepository(db *mongo.Database) *CustomerRepository {
	return &CustomerRepository{coll: db.Collection(database.CustomersCollection)}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	const op = "storage.CustomerRepository.Create"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	now := time.Now().UTC()
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	customer.CreatedAt = now
	customer.UpdatedAt = now
	if customer.Addresses == nil {
		customer.Addresses = []models.Address{}
	}

	if customer.ID.IsZero() {
		customer.ID = primitive.NewObjectID()
	}

	if _, err := r.coll.InsertOne(ctx, customer); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%s: %w", op, ErrDuplicate)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *CustomerRepository) FindByEmail(ctx context.Context, email string) (*models.Customer, error) {
	const op = "storage.CustomerRepository.FindByEmail"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	return r.findOne(ctx, op, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (r *CustomerRepository) FindByID(ctx context.Context, id string) (*models.Customer, error) {
	const op = "storage.CustomerRepository.FindByID"

	oid, err := objectID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	return r.findOne(ctx, op, bson.M{"_id": oid})
}

func (r *CustomerRepository) findOne(ctx context.Context, op string, filter bson.M) (*models.Customer, error) {
	var customer models.Customer
	if err := r.coll.FindOne(ctx, filter).Decode(&customer); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if customer.Addresses == nil {
		customer.Addresses = []models.Address{}
	}
	return &customer, nil
}

// AddAddress appends addr with a fresh id and returns the stored copy.
func (r *CustomerRepository) AddAddress(ctx context.Context, userID string, addr models.Address) (models.Address, error) {
	const op = "storage.CustomerRepository.AddAddress"

	oid, err := objectID(userID)
	if err != nil {
		return models.Address{}, fmt.Errorf("%s: %w", op, err)
	}

	addr.ID = uuid.NewString()

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	res, err := r.coll.UpdateByID(ctx, oid, bson.M{
		"$push": bson.M{"addresses": addr},
		"$set":  bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return models.Address{}, fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return models.Address{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return addr, nil
}

// UpdateAddress replaces the address with addr.ID in place.
func (r *CustomerRepository) UpdateAddress(ctx context.Context, userID string, addr models.Address) error {
	const op = "storage.CustomerRepository.UpdateAddress"

	oid, err := objectID(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "addresses.id": addr.ID},
		bson.M{"$set": bson.M{
			"addresses.$": addr,
			"updatedAt":   time.Now().UTC(),
		}},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (r *CustomerRepository) DeleteAddress(ctx context.Context, userID, addressID string) error {
	const op = "storage.CustomerRepository.DeleteAddress"

	oid, err := objectID(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "addresses.id": addressID},
		bson.M{
			"$pull": bson.M{"addresses": bson.M{"id": addressID}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

// FindAddress returns one saved address of the user.
func (r *CustomerRepository) FindAddress(ctx context.Context, userID, addressID string) (models.Address, error) {
	const op = "storage.CustomerRepository.FindAddress"

	customer, err := r.FindByID(ctx, userID)
	if err != nil {
		return models.Address{}, err
	}
	addr, ok := customer.FindAddress(addressID)
	if !ok {
		return models.Address{}, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return addr, nil
}
