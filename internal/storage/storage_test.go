package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"storefront/internal/models"
)

const ordersNS = "storefront.orders"

func toDoc(t *testing.T, v interface{}) bson.D {
	t.Helper()

	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func sampleOrder() models.Order {
	return models.Order{
		ID:     primitive.NewObjectID(),
		UserID: "user-1",
		Items: []models.LineItem{
			{ProductID: "p1", Title: "Tea", Price: models.NewMoney(10), Quantity: 2},
		},
		ShippingAddress: models.Address{Name: "Ann", Address: "1 Road", City: "Nairobi", Country: "KE", Phone: "0712345678"},
		PaymentMethod:   models.PaymentKindMobileMoney,
		Total:           models.NewMoney(20),
		PaymentStatus:   models.PaymentPending,
		CreatedAt:       time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func updated(n int32) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: n},
		bson.E{Key: "nModified", Value: n},
	)
}

func countResponse(n int32) bson.D {
	if n == 0 {
		return mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch)
	}
	return mtest.CreateCursorResponse(0, ordersNS, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}
