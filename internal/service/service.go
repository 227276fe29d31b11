// Package service orchestrates the lifecycle rules against the stores and
// publishes domain events. Collaborators are consumed through narrow
// interfaces so the store, cache and broker can be swapped in tests.
package service

import (
	"context"
	"errors"
	"time"

	"delivery-service/internal/models"
)

// EventPublisher is the outbound event contract, satisfied by
// broker.EventPublisher. Publish failures are logged, never surfaced to the
// caller: the record write is the source of truth.
type EventPublisher interface {
	PublishDeliveryCreated(ctx context.Context, event *models.DeliveryCreatedEvent) error
	PublishDeliveryStatusChanged(ctx context.Context, event *models.DeliveryStatusChangedEvent) error
	PublishDeliveryDeleted(ctx context.Context, event *models.DeliveryDeletedEvent) error
	PublishProductAssigned(ctx context.Context, event *models.ProductAssignedEvent) error
	PublishProductStatusChanged(ctx context.Context, event *models.ProductStatusChangedEvent) error
	PublishUserDeleted(ctx context.Context, event *models.UserDeletedEvent) error
}

// UserGetter looks up single users, satisfied by *store.Store.
type UserGetter interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// TrackingCache is the delivery cache contract, satisfied by
// *redisclient.Client. Cache failures degrade to store reads.
type TrackingCache interface {
	SetDelivery(ctx context.Context, d *models.Delivery) error
	GetDelivery(ctx context.Context, trackingNumber string) (*models.Delivery, error)
	InvalidateDelivery(ctx context.Context, trackingNumber string) error
	SetDeliveryStats(ctx context.Context, stats *models.DeliveryStats) error
	GetDeliveryStats(ctx context.Context) (*models.DeliveryStats, error)
}

// CascadeLocker serializes user-deletion cascades across instances,
// satisfied by *redisclient.Client.
type CascadeLocker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// rejectReason labels a rejection for metrics.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrValidation):
		return "invalid"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
