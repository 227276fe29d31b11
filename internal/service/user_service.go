package service

import (
	"context"
	"fmt"
	"time"

	"delivery-service/internal/auth"
	"delivery-service/internal/authz"
	"delivery-service/internal/models"
	"delivery-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserStore is the identity store contract, satisfied by *store.Store.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, role *models.Role) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteAdmin(ctx context.Context, id int64) error
	DeleteClientCascade(ctx context.Context, id int64) (int64, error)
	DeleteDeliveryPersonCascade(ctx context.Context, id int64) (int64, error)
}

// UserService handles account management and the deletion cascade
type UserService struct {
	store  UserStore
	locker CascadeLocker
	events EventPublisher
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore, locker CascadeLocker, events EventPublisher) *UserService {
	return &UserService{
		store:  store,
		locker: locker,
		events: events,
		logger: util.GetLogger(),
	}
}

// CreateUserRequest represents a request to register a user
type CreateUserRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

// CreateUser registers a new account with a hashed password.
func (s *UserService) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.CreateUser")
	defer span.End()

	role, err := authz.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, fmt.Errorf("check existing email: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("email already registered: %w", models.ErrConflict)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info("User created",
		zap.Int64("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return user, nil
}

// GetUser retrieves a user by ID
func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.store.GetUserByID(ctx, id)
}

// ListUsers retrieves users, optionally filtered by role. An unknown role
// filter is rejected rather than silently matching nothing.
func (s *UserService) ListUsers(ctx context.Context, roleFilter string) ([]models.User, error) {
	if roleFilter == "" {
		return s.store.ListUsers(ctx, nil)
	}
	role, err := authz.ParseRole(roleFilter)
	if err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, &role)
}

// UpdateUserRequest carries the mutable account fields; nil means unchanged
type UpdateUserRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Role  *string `json:"role"`
}

// UpdateUser applies partial account updates.
func (s *UserService) UpdateUser(ctx context.Context, id int64, req *UpdateUserRequest) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "UserService.UpdateUser")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		user.Name = *req.Name
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Role != nil {
		role, err := authz.ParseRole(*req.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}

	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

// DeleteUserResult reports what the deletion cascade touched
type DeleteUserResult struct {
	Role             models.Role `json:"role"`
	AffectedProducts int64       `json:"affected_products"`
}

// DeleteUser removes an account together with its cascade: a client takes
// their products (and deliveries) with them, a delivery person's products
// roll back to "In Stock". The dependent mutations and the user removal
// commit as one unit; a failure leaves everything in place.
func (s *UserService) DeleteUser(ctx context.Context, id int64) (*DeleteUserResult, error) {
	ctx, span := util.StartSpan(ctx, "UserService.DeleteUser")
	defer span.End()

	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	lockKey := fmt.Sprintf("user-delete:%d", id)
	acquired, err := s.locker.AcquireLock(ctx, lockKey, 30*time.Second)
	if err != nil {
		s.logger.Warn("Cascade lock unavailable, proceeding", zap.Error(err))
	} else if !acquired {
		return nil, fmt.Errorf("deletion already in progress for user %d: %w", id, models.ErrConflict)
	} else {
		defer func() {
			if err := s.locker.ReleaseLock(context.Background(), lockKey); err != nil {
				s.logger.Warn("Failed to release cascade lock", zap.Error(err))
			}
		}()
	}

	start := time.Now()
	var affected int64
	switch user.Role {
	case models.RoleClient:
		affected, err = s.store.DeleteClientCascade(ctx, id)
	case models.RoleDelivery:
		affected, err = s.store.DeleteDeliveryPersonCascade(ctx, id)
	case models.RoleAdmin:
		err = s.store.DeleteAdmin(ctx, id)
	default:
		err = fmt.Errorf("unknown role %q: %w", user.Role, models.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("delete user %d: %w", id, err)
	}

	util.CascadeLatency.Observe(time.Since(start).Seconds())
	util.UsersDeletedTotal.WithLabelValues(string(user.Role)).Inc()
	s.logger.Info("User deleted",
		zap.Int64("user_id", id),
		zap.String("role", string(user.Role)),
		zap.Int64("affected_products", affected))

	event := &models.UserDeletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeUserDeleted,
			Timestamp: time.Now(),
		},
		UserID:   id,
		Role:     string(user.Role),
		Affected: affected,
	}
	if err := s.events.PublishUserDeleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish UserDeleted event", zap.Error(err))
	}

	return &DeleteUserResult{Role: user.Role, AffectedProducts: affected}, nil
}
