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

// ProductStore is the catalog store contract, satisfied by *store.Store.
type ProductStore interface {
	CreateProduct(ctx context.Context, product *models.Product) error
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error)
	UpdateProductState(ctx context.Context, product *models.Product) error
}

// ProductService handles the product side of the lifecycle
type ProductService struct {
	store  ProductStore
	users  UserGetter
	events EventPublisher
	logger *zap.Logger
}

// NewProductService creates a new product service
func NewProductService(store ProductStore, users UserGetter, events EventPublisher) *ProductService {
	return &ProductService{
		store:  store,
		users:  users,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest represents a product being registered by a client
type CreateProductRequest struct {
	Name         string  `json:"name" binding:"required"`
	Price        float64 `json:"price"`
	BuyerName    string  `json:"buyer_name"`
	BuyerAddress string  `json:"buyer_address" binding:"required"`
	BuyerPhone   string  `json:"buyer_phone" binding:"required"`
}

// CreateProduct registers a product owned by the calling client. The QR
// payload is re-derived after the insert so it carries the assigned ID.
func (s *ProductService) CreateProduct(ctx context.Context, caller authz.Caller, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.CreateProduct")
	defer span.End()

	if err := authz.RequireRole(caller.Role, models.RoleClient); err != nil {
		return nil, err
	}

	product := &models.Product{
		Name:         req.Name,
		Price:        req.Price,
		BuyerName:    req.BuyerName,
		BuyerAddress: req.BuyerAddress,
		BuyerPhone:   req.BuyerPhone,
		ClientID:     caller.ID,
	}
	if err := lifecycle.NewProduct(product); err != nil {
		return nil, err
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	if err := lifecycle.RefreshQR(product); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProductState(ctx, product); err != nil {
		return nil, fmt.Errorf("persist qr payload: %w", err)
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.Int64("product_id", product.ID),
		zap.Int64("client_id", caller.ID))
	return product, nil
}

// ListProducts returns the products the caller is allowed to see: admins get
// everything (optionally narrowed to one client), clients their own,
// delivery persons what is assigned to them.
func (s *ProductService) ListProducts(ctx context.Context, caller authz.Caller, clientFilter *int64) ([]models.Product, error) {
	switch caller.Role {
	case models.RoleAdmin:
		return s.store.ListProducts(ctx, store.ProductFilter{ClientID: clientFilter})
	case models.RoleClient:
		return s.store.ListProducts(ctx, store.ProductFilter{ClientID: &caller.ID})
	case models.RoleDelivery:
		return s.store.ListProducts(ctx, store.ProductFilter{AssignedTo: &caller.ID})
	default:
		return nil, fmt.Errorf("role %q may not list products: %w", caller.Role, models.ErrForbidden)
	}
}

// GetProduct retrieves one product; admins see all, clients only their own.
func (s *ProductService) GetProduct(ctx context.Context, caller authz.Caller, id int64) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if caller.Role == models.RoleAdmin {
		return product, nil
	}
	if caller.Role == models.RoleClient && product.ClientID == caller.ID {
		return product, nil
	}
	return nil, fmt.Errorf("product %d not visible to caller: %w", id, models.ErrForbidden)
}

// AssignDeliveryPerson puts a courier on a product. The status is forced to
// "Out for Delivery" and the QR payload refreshed in the same write.
func (s *ProductService) AssignDeliveryPerson(ctx context.Context, productID, deliveryPersonID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.AssignDeliveryPerson")
	defer span.End()

	assignee, err := s.users.GetUserByID(ctx, deliveryPersonID)
	if err != nil {
		return nil, err
	}
	if assignee.Role != models.RoleDelivery {
		return nil, fmt.Errorf("user %d is not a delivery person: %w", deliveryPersonID, models.ErrValidation)
	}

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := lifecycle.AssignProduct(product, deliveryPersonID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProductState(ctx, product); err != nil {
		return nil, fmt.Errorf("persist assignment: %w", err)
	}

	util.ProductAssignmentsTotal.Inc()
	s.logger.Info("Product assigned",
		zap.Int64("product_id", productID),
		zap.Int64("delivery_person", deliveryPersonID))

	event := &models.ProductAssignedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProductAssigned,
			Timestamp: time.Now(),
		},
		ProductID:      productID,
		DeliveryPerson: deliveryPersonID,
		ClientID:       product.ClientID,
	}
	if err := s.events.PublishProductAssigned(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductAssigned event", zap.Error(err))
	}

	return product, nil
}

// UpdateStatus moves a product to a new status on behalf of caller, subject
// to the self-status rule for delivery-role callers.
func (s *ProductService) UpdateStatus(ctx context.Context, caller authz.Caller, productID int64, status string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.UpdateStatus")
	defer span.End()

	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	oldStatus := product.Status

	if err := lifecycle.UpdateProductStatus(product, caller, status); err != nil {
		util.ProductUpdatesRejected.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}
	if err := s.store.UpdateProductState(ctx, product); err != nil {
		return nil, fmt.Errorf("persist status: %w", err)
	}

	util.ProductStatusUpdatesTotal.WithLabelValues(status).Inc()
	s.logger.Info("Product status updated",
		zap.Int64("product_id", productID),
		zap.String("from", oldStatus),
		zap.String("to", status))

	event := &models.ProductStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProductStatusChanged,
			Timestamp: time.Now(),
		},
		ProductID: productID,
		OldStatus: oldStatus,
		NewStatus: status,
	}
	if err := s.events.PublishProductStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductStatusChanged event", zap.Error(err))
	}

	return product, nil
}
