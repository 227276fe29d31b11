package worker

import (
	"context"
	"errors"
	"log"

	"delivery-service/internal/broker"
	"delivery-service/internal/models"
)

// DeliveryReader loads deliveries for cache warming, satisfied by *store.Store.
type DeliveryReader interface {
	GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*models.Delivery, error)
}

// TrackingCache is the cache side of the worker, satisfied by
// *redisclient.Client.
type TrackingCache interface {
	SetDelivery(ctx context.Context, d *models.Delivery) error
	InvalidateDelivery(ctx context.Context, trackingNumber string) error
}

// TrackingWorker keeps the redis tracking cache in step with the delivery
// event stream, so public tracking lookups rarely touch the database.
type TrackingWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        DeliveryReader
	cache        TrackingCache
}

// NewTrackingWorker creates a new tracking worker
func NewTrackingWorker(consumer *broker.Consumer, store DeliveryReader, cache TrackingCache) *TrackingWorker {
	w := &TrackingWorker{
		consumer: consumer,
		store:    store,
		cache:    cache,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnDeliveryCreated(w.handleDeliveryCreated)
	eventHandler.OnDeliveryStatusChanged(w.handleDeliveryStatusChanged)
	eventHandler.OnDeliveryDeleted(w.handleDeliveryDeleted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *TrackingWorker) Start(ctx context.Context) error {
	log.Println("Starting tracking worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *TrackingWorker) Stop() error {
	log.Println("Stopping tracking worker...")
	return w.consumer.Close()
}

func (w *TrackingWorker) handleDeliveryCreated(ctx context.Context, event *models.DeliveryCreatedEvent) error {
	return w.warm(ctx, event.TrackingNumber)
}

func (w *TrackingWorker) handleDeliveryStatusChanged(ctx context.Context, event *models.DeliveryStatusChangedEvent) error {
	return w.warm(ctx, event.TrackingNumber)
}

func (w *TrackingWorker) handleDeliveryDeleted(ctx context.Context, event *models.DeliveryDeletedEvent) error {
	return w.cache.InvalidateDelivery(ctx, event.TrackingNumber)
}

// warm re-reads the delivery and refreshes its cache entry. A delivery that
// vanished between the event and the read just drops out of the cache.
func (w *TrackingWorker) warm(ctx context.Context, trackingNumber string) error {
	delivery, err := w.store.GetDeliveryByTracking(ctx, trackingNumber)
	if errors.Is(err, models.ErrNotFound) {
		return w.cache.InvalidateDelivery(ctx, trackingNumber)
	}
	if err != nil {
		return err
	}
	return w.cache.SetDelivery(ctx, delivery)
}
