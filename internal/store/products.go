package store

import (
	"context"
	"database/sql"
	"fmt"

	"delivery-service/internal/models"
)

// ProductFilter narrows product listings. Nil fields are ignored.
type ProductFilter struct {
	ClientID   *int64
	AssignedTo *int64
}

// CreateProduct inserts a new product
func (s *Store) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (name, price, buyer_name, buyer_address, buyer_phone, status, qr_data, client_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, product, query,
		product.Name, product.Price, product.BuyerName, product.BuyerAddress,
		product.BuyerPhone, product.Status, product.QRData, product.ClientID)
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("product %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// ListProducts retrieves products matching the filter
func (s *Store) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := "SELECT * FROM products WHERE 1=1"
	args := []interface{}{}

	if filter.ClientID != nil {
		args = append(args, *filter.ClientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		query += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var products []models.Product
	err := s.db.SelectContext(ctx, &products, query, args...)
	return products, err
}

// UpdateProductState persists the mutable lifecycle fields of a product:
// status, assignment and the derived QR payload, together in one write.
func (s *Store) UpdateProductState(ctx context.Context, product *models.Product) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE products SET status = $1, assigned_to = $2, qr_data = $3, updated_at = NOW() WHERE id = $4",
		product.Status, product.AssignedTo, product.QRData, product.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("product %d: %w", product.ID, models.ErrNotFound)
	}
	return nil
}

// CountProducts counts products, optionally restricted to one status
func (s *Store) CountProducts(ctx context.Context, status *string) (int64, error) {
	var count int64
	var err error
	if status != nil {
		err = s.db.GetContext(ctx, &count,
			"SELECT COUNT(*) FROM products WHERE status = $1", *status)
	} else {
		err = s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM products")
	}
	return count, err
}

// CountProductsNotInStock counts products that have entered the delivery
// pipeline (anything past "In Stock").
func (s *Store) CountProductsNotInStock(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM products WHERE status <> $1", models.ProductStatusInStock)
	return count, err
}
