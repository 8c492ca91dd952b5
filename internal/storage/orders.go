package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/database"
	"storefront/internal/models"
)

const defaultQueryTimeout = 5 * time.Second

type OrderRepository struct {
	log  *slog.Logger
	coll *mongo.Collection
}

func NewOrderRepository(log *slog.Logger, db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		log:  log,
		coll: db.Collection(database.OrdersCollection),
	}
}

// Create inserts order and stores the generated id on it.
func (r *OrderRepository) Create(ctx context.Context, order *models.Order) error {
	const op = "storage.OrderRepository.Create"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Get loads and validates one order.
func (r *OrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	const op = "storage.OrderRepository.Get"

	oid, err := objectID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	return r.findOne(ctx, op, bson.M{"_id": oid})
}

func (r *OrderRepository) findOne(ctx context.Context, op string, filter bson.M) (*models.Order, error) {
	var order models.Order
	if err := r.coll.FindOne(ctx, filter).Decode(&order); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := order.Validate(); err != nil {
		return nil, fmt.Errorf("%s: order %s: %w", op, order.ID.Hex(), err)
	}
	return &order, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	const op = "storage.OrderRepository.ListByUser"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.coll.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	return r.decodeAll(ctx, op, cursor)
}

// ListAll pages over every order, newest first, and reports the total count.
func (r *OrderRepository) ListAll(ctx context.Context, page, limit int64) ([]models.Order, int64, error) {
	const op = "storage.OrderRepository.ListAll"

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}
	defer cursor.Close(ctx)

	orders, err := r.decodeAll(ctx, op, cursor)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// decodeAll skips documents that fail validation so one bad record does not
// hide the rest of a list.
func (r *OrderRepository) decodeAll(ctx context.Context, op string, cursor *mongo.Cursor) ([]models.Order, error) {
	orders := make([]models.Order, 0)
	for cursor.Next(ctx) {
		var order models.Order
		if err := cursor.Decode(&order); err != nil {
			r.log.Warn("skipping undecodable order", slog.String("op", op), slog.String("error", err.Error()))
			continue
		}
		if err := order.Validate(); err != nil {
			r.log.Warn("skipping malformed order",
				slog.String("op", op),
				slog.String("order_id", order.ID.Hex()),
				slog.String("error", err.Error()),
			)
			continue
		}
		orders = append(orders, order)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("%s: cursor: %w", op, err)
	}
	return orders, nil
}

// RecordDispatch stores the gateway correlation ids while the order is still
// awaiting payment.
func (r *OrderRepository) RecordDispatch(ctx context.Context, id string, dispatch models.PaymentDispatch) error {
	const op = "storage.OrderRepository.RecordDispatch"

	oid, err := objectID(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	set := bson.M{}
	if dispatch.IntentID != "" {
		set["payment.intentId"] = dispatch.IntentID
	}
	if dispatch.CheckoutRequestID != "" {
		set["payment.checkoutRequestId"] = dispatch.CheckoutRequestID
	}
	if dispatch.MerchantRequestID != "" {
		set["payment.merchantRequestId"] = dispatch.MerchantRequestID
	}
	if len(set) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	filter := bson.M{"_id": oid, "paymentStatus": bson.M{"$in": from}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, op, oid)
	}
	return nil
}

// ReopenPayment moves a PendingPayment or PaymentFailed order back to
// PendingPayment for another attempt.
func (r *OrderRepository) ReopenPayment(ctx context.Context, id string) error {
	const op = "storage.OrderRepository.ReopenPayment"

	oid, err := objectID(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	filter := bson.M{
		"_id":           oid,
		"paymentStatus": bson.M{"$in": bson.A{models.PaymentPending, models.PaymentFailed}},
	}
	update := bson.M{
		"$set":   bson.M{"paymentStatus": models.PaymentPending},
		"$unset": bson.M{"payment.failureReason": ""},
		"$inc":   bson.M{"payment.attempts": 1},
	}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return r.missOrConflict(ctx, op, oid)
	}
	return nil
}

// SettlePayment applies a terminal payment status. A failure only lands on a
// PendingPayment order; a completion also lands on a PaymentFailed one, since
// a success for an earlier attempt can arrive after a later attempt failed.
// It reports false when the order was not in a settleable state.
func (r *OrderRepository) SettlePayment(ctx context.Context, id string, s models.PaymentSettlement) (bool, error) {
	const op = "storage.OrderRepository.SettlePayment"

	oid, err := objectID(id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	set := bson.M{"paymentStatus": s.Status}
	update := bson.M{"$set": set}
	from := bson.A{models.PaymentPending}
	if s.Status == models.PaymentCompleted {
		set["paymentCompletedAt"] = s.At
		update["$unset"] = bson.M{"payment.failureReason": ""}
		from = append(from, models.PaymentFailed)
	}
	if s.Reference != "" {
		set["payment.receipt"] = s.Reference
	}
	if s.FailureReason != "" {
		set["payment.failureReason"] = s.FailureReason
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	filter := bson.M{"_id": oid, "paymentStatus": models.PaymentPending}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		if err := r.missOrConflict(ctx, op, oid); errors.Is(err, ErrNotFound) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// AdvanceFulfillment moves a Completed order from one fulfillment step to
// the next. It reports false when the order was not at from.
func (r *OrderRepository) AdvanceFulfillment(ctx context.Context, id string, from, to models.FulfillmentStatus, at time.Time) (bool, error) {
	const op = "storage.OrderRepository.AdvanceFulfillment"

	oid, err := objectID(id)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	filter := bson.M{"_id": oid, "paymentStatus": models.PaymentCompleted}
	if from == models.FulfillmentNone {
		filter["fulfillmentStatus"] = bson.M{"$in": bson.A{nil, ""}}
	} else {
		filter["fulfillmentStatus"] = from
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"fulfillmentStatus": to, "fulfillmentUpdatedAt": at}}
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return res.MatchedCount > 0, nil
}

func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	const op = "storage.OrderRepository.Delete"

	oid, err := objectID(id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func (r *OrderRepository) missOrConflict(ctx context.Context, op string, oid primitive.ObjectID) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, ErrConflict)
}

type changeEvent struct {
	OperationType string        `bson:"operationType"`
	FullDocument  *models.Order `bson:"fullDocument"`
}

// Watch streams changes to one order until ctx is cancelled, the order is
// deleted or the stream fails. The channel is closed when the stream ends.
func (r *OrderRepository) Watch(ctx context.Context, id string) (<-chan models.OrderChange, error) {
	const op = "storage.OrderRepository.Watch"

	oid, err := objectID(id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: oid}}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := r.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	changes := make(chan models.OrderChange)
	go func() {
		defer close(changes)
		defer stream.Close(context.Background())

		send := func(change models.OrderChange) bool {
			select {
			case changes <- change:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for stream.Next(ctx) {
			var event changeEvent
			if err := stream.Decode(&event); err != nil {
				send(models.OrderChange{Err: fmt.Errorf("%s: decode: %w", op, err)})
				return
			}

			switch event.OperationType {
			case "delete":
				send(models.OrderChange{Deleted: true})
				return
			case "insert", "update", "replace":
				if event.FullDocument == nil {
					continue
				}
				if err := event.FullDocument.Validate(); err != nil {
					if !send(models.OrderChange{Err: fmt.Errorf("%s: %w", op, err)}) {
						return
					}
					continue
				}
				if !send(models.OrderChange{Order: event.FullDocument}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil && ctx.Err() == nil {
			send(models.OrderChange{Err: fmt.Errorf("%s: %w", op, err)})
		}
	}()

	return changes, nil
}
