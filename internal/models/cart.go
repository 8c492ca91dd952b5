package models

import "time"

// Cart is the per-user mutable list of line items, keyed by user id.
type Cart struct {
	UserID    string     `bson:"_id" json:"userId"`
	Items     []LineItem `bson:"items" json:"items"`
	UpdatedAt time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// Add merges item into the cart, bumping the quantity of an existing line.
func (c *Cart) Add(item LineItem) {
	if item.Quantity < 1 {
		item.Quantity = 1
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// Adjust changes a line's quantity by delta. Reaching zero removes the line.
// It reports whether the product was in the cart.
func (c *Cart) Adjust(productID string, delta int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID != productID {
			continue
		}
		c.Items[i].Quantity += delta
		if c.Items[i].Quantity < 1 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		}
		return true
	}
	return false
}

func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return c.Adjust(productID, quantity-c.Items[i].Quantity)
		}
	}
	return false
}

func (c *Cart) Remove(productID string) bool {
	return c.SetQuantity(productID, 0)
}

func (c Cart) Total() Money {
	return Total(c.Items)
}
