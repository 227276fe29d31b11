package service

import (
	"context"
	"fmt"
	"time"

	"delivery-service/internal/authz"
	"delivery-service/internal/lifecycle"
	"delivery-service/internal/models"
	"delivery-service/internal/store"
	"delivery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeliveryStore is the delivery store contract, satisfied by *store.Store.
type DeliveryStore interface {
	CreateDelivery(ctx context.Context, d *models.Delivery) error
	GetDeliveryByID(ctx context.Context, id int64) (*models.Delivery, error)
	GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*models.Delivery, error)
	ListDeliveries(ctx context.Context, filter store.DeliveryFilter) ([]models.Delivery, int64, error)
	UpdateDeliveryState(ctx context.Context, d *models.Delivery) error
	DeleteDelivery(ctx context.Context, id int64) error
	GetDeliveryStats(ctx context.Context) (*models.DeliveryStats, error)
	CountActiveDeliveryPersons(ctx context.Context) (int64, error)
	CountUsersByRole(ctx context.Context, role models.Role) (int64, error)
}

// ProductGetter looks up single products, satisfied by *store.Store.
type ProductGetter interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// DeliveryService handles the delivery side of the lifecycle
type DeliveryService struct {
	store    DeliveryStore
	products ProductGetter
	users    UserGetter
	cache    TrackingCache
	events   EventPublisher
	logger   *zap.Logger
}

// NewDeliveryService creates a new delivery service
func NewDeliveryService(store DeliveryStore, products ProductGetter, users UserGetter, cache TrackingCache, events EventPublisher) *DeliveryService {
	return &DeliveryService{
		store:    store,
		products: products,
		users:    users,
		cache:    cache,
		events:   events,
		logger:   util.GetLogger(),
	}
}

// CreateDeliveryRequest represents a delivery being opened
type CreateDeliveryRequest struct {
	ProductID      int64          `json:"product_id" binding:"required"`
	ClientID       int64          `json:"client_id"`
	DeliveryPerson *int64         `json:"delivery_person"`
	Address        models.Address `json:"address" binding:"required"`
	Notes          string         `json:"notes"`
	Priority       string         `json:"priority"`
	DeliveryFee    float64        `json:"delivery_fee"`
	EstimatedTime  *time.Time     `json:"estimated_delivery_time"`
}

// DeliveryPage is one page of a delivery listing
type DeliveryPage struct {
	Items      []models.Delivery `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	Limit      int               `json:"limit"`
	TotalPages int64             `json:"total_pages"`
}

// CreateDelivery opens a delivery for a product. Clients open deliveries for
// their own products; admins may open one on behalf of any client. The
// referenced product and courier are checked before anything is written.
func (s *DeliveryService) CreateDelivery(ctx context.Context, caller authz.Caller, req *CreateDeliveryRequest) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.CreateDelivery")
	defer span.End()

	if err := authz.RequireRole(caller.Role, models.RoleAdmin, models.RoleClient); err != nil {
		return nil, err
	}

	product, err := s.products.GetProductByID(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}

	clientID := req.ClientID
	if caller.Role == models.RoleClient {
		clientID = caller.ID
		if product.ClientID != caller.ID {
			return nil, fmt.Errorf("product %d not owned by caller: %w", req.ProductID, models.ErrForbidden)
		}
	} else if clientID == 0 {
		clientID = product.ClientID
	} else {
		client, err := s.users.GetUserByID(ctx, clientID)
		if err != nil {
			return nil, err
		}
		if client.Role != models.RoleClient {
			return nil, fmt.Errorf("client %d not found: %w", clientID, models.ErrNotFound)
		}
	}

	if req.DeliveryPerson != nil {
		courier, err := s.users.GetUserByID(ctx, *req.DeliveryPerson)
		if err != nil {
			return nil, err
		}
		if courier.Role != models.RoleDelivery {
			return nil, fmt.Errorf("user %d is not a delivery person: %w", *req.DeliveryPerson, models.ErrValidation)
		}
	}

	delivery := &models.Delivery{
		ProductID:      req.ProductID,
		ClientID:       clientID,
		DeliveryPerson: req.DeliveryPerson,
		Address:        req.Address,
		Notes:          req.Notes,
		Priority:       req.Priority,
		DeliveryFee:    req.DeliveryFee,
		EstimatedTime:  req.EstimatedTime,
		CreatedBy:      caller.ID,
	}
	if err := lifecycle.NewDelivery(delivery, time.Now()); err != nil {
		return nil, err
	}

	if err := s.store.CreateDelivery(ctx, delivery); err != nil {
		return nil, fmt.Errorf("create delivery: %w", err)
	}

	util.DeliveriesCreatedTotal.Inc()
	s.logger.Info("Delivery created",
		zap.Int64("delivery_id", delivery.ID),
		zap.String("tracking_number", delivery.TrackingNumber),
		zap.String("status", delivery.Status))

	if err := s.cache.SetDelivery(ctx, delivery); err != nil {
		s.logger.Warn("Failed to warm tracking cache", zap.Error(err))
	}

	event := &models.DeliveryCreatedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDeliveryCreated,
			Timestamp: time.Now(),
		},
		DeliveryID:     delivery.ID,
		TrackingNumber: delivery.TrackingNumber,
		ClientID:       delivery.ClientID,
		Status:         delivery.Status,
		Priority:       delivery.Priority,
	}
	if err := s.events.PublishDeliveryCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish DeliveryCreated event", zap.Error(err))
	}

	return delivery, nil
}

// GetDelivery retrieves one delivery; admins see all, clients and couriers
// only deliveries that reference them.
func (s *DeliveryService) GetDelivery(ctx context.Context, caller authz.Caller, id int64) (*models.Delivery, error) {
	delivery, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch caller.Role {
	case models.RoleAdmin:
		return delivery, nil
	case models.RoleClient:
		if delivery.ClientID == caller.ID {
			return delivery, nil
		}
	case models.RoleDelivery:
		if delivery.DeliveryPerson != nil && *delivery.DeliveryPerson == caller.ID {
			return delivery, nil
		}
	}
	return nil, fmt.Errorf("delivery %d not visible to caller: %w", id, models.ErrForbidden)
}

// TrackDelivery resolves a tracking number, cache first. Cache failures fall
// back to the store; a store hit re-warms the cache.
func (s *DeliveryService) TrackDelivery(ctx context.Context, trackingNumber string) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.TrackDelivery")
	defer span.End()

	cached, err := s.cache.GetDelivery(ctx, trackingNumber)
	if err != nil {
		s.logger.Warn("Tracking cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	delivery, err := s.store.GetDeliveryByTracking(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetDelivery(ctx, delivery); err != nil {
		s.logger.Warn("Failed to warm tracking cache", zap.Error(err))
	}
	return delivery, nil
}

// ListDeliveries returns a filtered page of all deliveries. Admin only.
func (s *DeliveryService) ListDeliveries(ctx context.Context, caller authz.Caller, filter store.DeliveryFilter) (*DeliveryPage, error) {
	if err := authz.RequireRole(caller.Role, models.RoleAdmin); err != nil {
		return nil, err
	}
	return s.page(ctx, filter)
}

// ListUserDeliveries returns the caller's own deliveries: a client sees
// deliveries of their products, a courier the ones assigned to them.
func (s *DeliveryService) ListUserDeliveries(ctx context.Context, caller authz.Caller, filter store.DeliveryFilter) (*DeliveryPage, error) {
	switch caller.Role {
	case models.RoleClient:
		filter.ClientID = &caller.ID
		filter.DeliveryPerson = nil
	case models.RoleDelivery:
		filter.DeliveryPerson = &caller.ID
		filter.ClientID = nil
	default:
		return nil, fmt.Errorf("role %q has no delivery inbox: %w", caller.Role, models.ErrValidation)
	}
	return s.page(ctx, filter)
}

func (s *DeliveryService) page(ctx context.Context, filter store.DeliveryFilter) (*DeliveryPage, error) {
	if filter.Limit <= 0 {
		filter.Limit = 10
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	items, total, err := s.store.ListDeliveries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	if items == nil {
		items = []models.Delivery{}
	}
	totalPages := (total + int64(filter.Limit) - 1) / int64(filter.Limit)
	return &DeliveryPage{
		Items:      items,
		Total:      total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// UpdateDeliveryRequest carries the mutable delivery fields; nil means
// unchanged. TrackingNumber and CreatedBy have no place here on purpose.
type UpdateDeliveryRequest struct {
	Status         *string         `json:"status"`
	DeliveryPerson *int64          `json:"delivery_person"`
	Address        *models.Address `json:"address"`
	Notes          *string         `json:"notes"`
	Priority       *string         `json:"priority"`
	DeliveryFee    *float64        `json:"delivery_fee"`
	EstimatedTime  *time.Time      `json:"estimated_delivery_time"`
}

// UpdateDelivery applies a partial update: status transition first, then
// reassignment, then plain field changes, persisted as one write. Admins may
// change anything; a courier may only move the status of their own delivery.
func (s *DeliveryService) UpdateDelivery(ctx context.Context, caller authz.Caller, id int64, req *UpdateDeliveryRequest) (*models.Delivery, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.UpdateDelivery")
	defer span.End()

	delivery, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleDelivery:
		if delivery.DeliveryPerson == nil || *delivery.DeliveryPerson != caller.ID {
			return nil, fmt.Errorf("delivery %d not assigned to caller: %w", id, models.ErrForbidden)
		}
		if req.DeliveryPerson != nil || req.Address != nil || req.Notes != nil ||
			req.Priority != nil || req.DeliveryFee != nil || req.EstimatedTime != nil {
			return nil, fmt.Errorf("couriers may only update the status: %w", models.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("role %q may not update deliveries: %w", caller.Role, models.ErrForbidden)
	}

	now := time.Now()
	oldStatus := delivery.Status

	if req.Status != nil {
		if err := lifecycle.ApplyDeliveryStatus(delivery, *req.Status, now); err != nil {
			return nil, err
		}
	}
	if req.DeliveryPerson != nil {
		assignee, err := s.users.GetUserByID(ctx, *req.DeliveryPerson)
		if err != nil {
			return nil, err
		}
		if err := lifecycle.ReassignDeliveryPerson(delivery, assignee, now); err != nil {
			return nil, err
		}
	}
	if req.Address != nil {
		delivery.Address = *req.Address
	}
	if req.Notes != nil {
		delivery.Notes = *req.Notes
	}
	if req.Priority != nil {
		if !lifecycle.ValidPriority(*req.Priority) {
			return nil, fmt.Errorf("invalid priority %q: %w", *req.Priority, models.ErrValidation)
		}
		delivery.Priority = *req.Priority
	}
	if req.DeliveryFee != nil {
		if *req.DeliveryFee < 0 {
			return nil, fmt.Errorf("delivery fee must not be negative: %w", models.ErrValidation)
		}
		delivery.DeliveryFee = *req.DeliveryFee
	}
	if req.EstimatedTime != nil {
		delivery.EstimatedTime = req.EstimatedTime
	}

	if err := s.store.UpdateDeliveryState(ctx, delivery); err != nil {
		return nil, fmt.Errorf("persist delivery update: %w", err)
	}

	if err := s.cache.InvalidateDelivery(ctx, delivery.TrackingNumber); err != nil {
		s.logger.Warn("Failed to invalidate tracking cache", zap.Error(err))
	}

	if delivery.Status != oldStatus {
		util.DeliveryTransitionsTotal.WithLabelValues(delivery.Status).Inc()
		s.logger.Info("Delivery status changed",
			zap.Int64("delivery_id", id),
			zap.String("from", oldStatus),
			zap.String("to", delivery.Status))

		event := &models.DeliveryStatusChangedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeDeliveryStatusChanged,
				Timestamp: time.Now(),
			},
			DeliveryID:     id,
			TrackingNumber: delivery.TrackingNumber,
			OldStatus:      oldStatus,
			NewStatus:      delivery.Status,
			DeliveryPerson: delivery.DeliveryPerson,
		}
		if err := s.events.PublishDeliveryStatusChanged(ctx, event); err != nil {
			s.logger.Error("Failed to publish DeliveryStatusChanged event", zap.Error(err))
		}
	}

	return delivery, nil
}

// DeleteDelivery removes a delivery that never got moving. Only pending and
// cancelled deliveries may go; anything else is kept for the record.
func (s *DeliveryService) DeleteDelivery(ctx context.Context, caller authz.Caller, id int64) error {
	ctx, span := util.StartSpan(ctx, "DeliveryService.DeleteDelivery")
	defer span.End()

	if err := authz.RequireRole(caller.Role, models.RoleAdmin); err != nil {
		return err
	}

	delivery, err := s.store.GetDeliveryByID(ctx, id)
	if err != nil {
		return err
	}
	if !lifecycle.Deletable(delivery.Status) {
		return fmt.Errorf("delivery in status %q cannot be deleted: %w", delivery.Status, models.ErrConflict)
	}

	if err := s.store.DeleteDelivery(ctx, id); err != nil {
		return fmt.Errorf("delete delivery %d: %w", id, err)
	}

	util.DeliveriesDeletedTotal.Inc()
	s.logger.Info("Delivery deleted",
		zap.Int64("delivery_id", id),
		zap.String("tracking_number", delivery.TrackingNumber))

	if err := s.cache.InvalidateDelivery(ctx, delivery.TrackingNumber); err != nil {
		s.logger.Warn("Failed to invalidate tracking cache", zap.Error(err))
	}

	event := &models.DeliveryDeletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeDeliveryDeleted,
			Timestamp: time.Now(),
		},
		DeliveryID:     id,
		TrackingNumber: delivery.TrackingNumber,
	}
	if err := s.events.PublishDeliveryDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish DeliveryDeleted event", zap.Error(err))
	}

	return nil
}

// GetStats returns the delivery dashboard aggregate, briefly cached so a busy
// dashboard does not hammer the aggregate query.
func (s *DeliveryService) GetStats(ctx context.Context, caller authz.Caller) (*models.DeliveryStats, error) {
	ctx, span := util.StartSpan(ctx, "DeliveryService.GetStats")
	defer span.End()

	if err := authz.RequireRole(caller.Role, models.RoleAdmin); err != nil {
		return nil, err
	}

	cached, err := s.cache.GetDeliveryStats(ctx)
	if err != nil {
		s.logger.Warn("Stats cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	stats, err := s.store.GetDeliveryStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregate deliveries: %w", err)
	}
	if stats.DeliveryPersonCount, err = s.store.CountUsersByRole(ctx, models.RoleDelivery); err != nil {
		return nil, fmt.Errorf("count delivery persons: %w", err)
	}
	if stats.ActiveDeliveryPersons, err = s.store.CountActiveDeliveryPersons(ctx); err != nil {
		return nil, fmt.Errorf("count active delivery persons: %w", err)
	}

	if err := s.cache.SetDeliveryStats(ctx, stats); err != nil {
		s.logger.Warn("Failed to cache delivery stats", zap.Error(err))
	}
	return stats, nil
}
