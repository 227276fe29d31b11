package store

import (
	"context"
	"database/sql"
	"fmt"

	"delivery-service/internal/lifecycle"
	"delivery-service/internal/models"
)

// CreateUser inserts a new user. Duplicate emails surface as ErrConflict.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (name, email, password_hash, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, user, query,
		user.Name, user.Email, user.PasswordHash, user.Role)
	if err != nil {
		return mapUnique(err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email, nil when absent
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListUsers retrieves users, optionally restricted to one role
func (s *Store) ListUsers(ctx context.Context, role *models.Role) ([]models.User, error) {
	var users []models.User
	var err error
	if role != nil {
		err = s.db.SelectContext(ctx, &users,
			"SELECT * FROM users WHERE role = $1 ORDER BY created_at DESC", *role)
	} else {
		err = s.db.SelectContext(ctx, &users,
			"SELECT * FROM users ORDER BY created_at DESC")
	}
	return users, err
}

// UpdateUser updates mutable user fields
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET name = $1, email = $2, role = $3, updated_at = NOW() WHERE id = $4",
		user.Name, user.Email, user.Role, user.ID)
	if err != nil {
		return mapUnique(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", user.ID, models.ErrNotFound)
	}
	return nil
}

// CountUsersByRole counts users holding a role
func (s *Store) CountUsersByRole(ctx context.Context, role models.Role) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE role = $1", role)
	return count, err
}

// DeleteAdmin removes an admin user. No dependent records exist for admins.
func (s *Store) DeleteAdmin(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("user %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// DeleteClientCascade removes a client together with every product the
// client owns and every delivery opened for them, all in one transaction.
// Returns the number of products removed.
func (s *Store) DeleteClientCascade(ctx context.Context, id int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM deliveries WHERE client_id = $1", id); err != nil {
		return 0, fmt.Errorf("delete client deliveries: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM products WHERE client_id = $1", id)
	if err != nil {
		return 0, fmt.Errorf("delete client products: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id); err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}

	return removed, tx.Commit()
}

// DeleteDeliveryPersonCascade removes a delivery person, rolls every product
// assigned to them back to "In Stock" with the QR payload re-derived, and
// clears them from deliveries. One transaction; callers never observe the
// half-done state. Returns the number of products updated.
func (s *Store) DeleteDeliveryPersonCascade(ctx context.Context, id int64) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var products []models.Product
	err = tx.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE assigned_to = $1 FOR UPDATE", id)
	if err != nil {
		return 0, fmt.Errorf("lock assigned products: %w", err)
	}

	for i := range products {
		p := &products[i]
		if err := lifecycle.UnassignProduct(p); err != nil {
			return 0, err
		}
		_, err = tx.ExecContext(ctx,
			"UPDATE products SET status = $1, assigned_to = NULL, qr_data = $2, updated_at = NOW() WHERE id = $3",
			p.Status, p.QRData, p.ID)
		if err != nil {
			return 0, fmt.Errorf("unassign product %d: %w", p.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE deliveries SET delivery_person = NULL, updated_at = NOW() WHERE delivery_person = $1", id); err != nil {
		return 0, fmt.Errorf("clear delivery assignments: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id); err != nil {
		return 0, fmt.Errorf("delete user: %w", err)
	}

	return int64(len(products)), tx.Commit()
}
