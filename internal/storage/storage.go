// Package storage holds the MongoDB repositories for orders, carts and customers.
package storage

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrConflict  = errors.New("document changed concurrently")
	ErrDuplicate = errors.New("document already exists")
)

// objectID turns an opaque external id into a Mongo key. An id that cannot
// name any document is reported as not found.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}
