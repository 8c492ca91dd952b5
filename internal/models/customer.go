package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Address represents a saved shipping profile.
type Address struct {
	ID      string `bson:"id" json:"id"`
	Name    string `bson:"name" json:"name" validate:"required"`
	Address string `bson:"address" json:"address" validate:"required"`
	City    string `bson:"city" json:"city" validate:"required"`
	Country string `bson:"country" json:"country" validate:"required"`
	Phone   string `bson:"phone" json:"phone" validate:"required"`
}

// Customer is the account record behind a session.
type Customer struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email" json:"email"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	Role         string             `bson:"role" json:"role"`
	Addresses    []Address          `bson:"addresses" json:"addresses"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (c Customer) FindAddress(id string) (Address, bool) {
	for _, addr := range c.Addresses {
		if addr.ID == id {
			return addr, true
		}
	}
	return Address{}, false
}
