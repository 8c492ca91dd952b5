package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"storefront/internal/identity"
	"storefront/internal/logger"
	"storefront/internal/models"
)

// Subscription is a live view of one order: the current snapshot first,
// then every change, until Close, ctx cancellation, deletion or a stream
// failure. A finished subscription is restarted by subscribing again.
type Subscription struct {
	updates chan *models.Order
	cancel  context.CancelFunc
	done    chan struct{}

	mu  sync.Mutex
	err error
}

// Subscribe opens the change stream before reading the snapshot so no
// change between the two is missed.
func (s *Service) Subscribe(ctx context.Context, session identity.Session, orderID string) (*Subscription, error) {
	const op = "orders.Service.Subscribe"
	log := s.log.With(slog.String("op", op), slog.String("order_id", orderID))

	if !session.Authenticated() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotAuthenticated)
	}

	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.store.Watch(ctx, orderID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, mapStoreError(err))
	}

	snapshot, err := s.authorizedOrder(ctx, session, orderID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &Subscription{
		updates: make(chan *models.Order, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	sub.updates <- snapshot

	go sub.run(ctx, log, changes)
	return sub, nil
}

func (sub *Subscription) run(ctx context.Context, log *slog.Logger, changes <-chan models.OrderChange) {
	defer close(sub.done)
	defer close(sub.updates)

	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			switch {
			case change.Deleted:
				sub.fail(ErrOrderDeleted)
				return
			case errors.Is(change.Err, models.ErrMalformedOrder):
				log.WarnContext(ctx, "skipping malformed order change", logger.Err(change.Err))
				continue
			case change.Err != nil:
				sub.fail(change.Err)
				return
			}

			select {
			case sub.updates <- change.Order:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (sub *Subscription) fail(err error) {
	sub.mu.Lock()
	sub.err = err
	sub.mu.Unlock()
}

// Updates is closed when the subscription ends.
func (sub *Subscription) Updates() <-chan *models.Order {
	return sub.updates
}

// Err reports why the subscription ended: ErrOrderDeleted, a stream error,
// or nil after Close or cancellation.
func (sub *Subscription) Err() error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.err
}

// Close stops the subscription and waits for its goroutine to exit.
func (sub *Subscription) Close() {
	sub.cancel()
	<-sub.done
}
