package service

import (
	"context"
	"fmt"

	"delivery-service/internal/authz"
	"delivery-service/internal/models"
	"delivery-service/internal/util"
)

// StatsStore is the dashboard counting contract, satisfied by *store.Store.
type StatsStore interface {
	CountProducts(ctx context.Context, status *string) (int64, error)
	CountProductsNotInStock(ctx context.Context) (int64, error)
	CountUsersByRole(ctx context.Context, role models.Role) (int64, error)
}

// StatsService produces the admin product dashboard
type StatsService struct {
	store StatsStore
}

// NewStatsService creates a new stats service
func NewStatsService(store StatsStore) *StatsService {
	return &StatsService{store: store}
}

// GetDashboard aggregates the product-side dashboard numbers. Admin only.
func (s *StatsService) GetDashboard(ctx context.Context, caller authz.Caller) (*models.ProductStats, error) {
	ctx, span := util.StartSpan(ctx, "StatsService.GetDashboard")
	defer span.End()

	if err := authz.RequireRole(caller.Role, models.RoleAdmin); err != nil {
		return nil, err
	}

	var stats models.ProductStats
	var err error

	if stats.TotalProducts, err = s.store.CountProducts(ctx, nil); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}
	if stats.TotalDeliveries, err = s.store.CountProductsNotInStock(ctx); err != nil {
		return nil, fmt.Errorf("count moving products: %w", err)
	}
	if stats.TotalClients, err = s.store.CountUsersByRole(ctx, models.RoleClient); err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}
	if stats.DeliveryPersons, err = s.store.CountUsersByRole(ctx, models.RoleDelivery); err != nil {
		return nil, fmt.Errorf("count delivery persons: %w", err)
	}

	for status, dst := range map[string]*int64{
		models.ProductStatusPicked:         &stats.Breakdown.Picked,
		models.ProductStatusOutForDelivery: &stats.Breakdown.OutForDelivery,
		models.ProductStatusDelivered:      &stats.Breakdown.Delivered,
		models.ProductStatusProblem:        &stats.Breakdown.Problem,
	} {
		st := status
		if *dst, err = s.store.CountProducts(ctx, &st); err != nil {
			return nil, fmt.Errorf("count %q products: %w", status, err)
		}
	}

	return &stats, nil
}
