package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"delivery-service/internal/models"
)

// DeliveryFilter narrows delivery listings. Nil/empty fields are ignored.
type DeliveryFilter struct {
	Status         string
	ClientID       *int64
	DeliveryPerson *int64
	ProductID      *int64
	Priority       string
	Search         string
	SortBy         string
	SortOrder      string
	Page           int
	Limit          int
}

var deliverySortColumns = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"status":       true,
	"priority":     true,
	"delivery_fee": true,
}

// CreateDelivery inserts a new delivery. A tracking-number collision
// surfaces as ErrConflict via the unique constraint.
func (s *Store) CreateDelivery(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO deliveries (
			product_id, client_id, delivery_person, status, assigned_at,
			street, city, postal_code, country, lat, lng,
			notes, tracking_number, estimated_delivery_time, priority, delivery_fee, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, d, query,
		d.ProductID, d.ClientID, d.DeliveryPerson, d.Status, d.AssignedAt,
		d.Street, d.City, d.PostalCode, d.Country, d.Lat, d.Lng,
		d.Notes, d.TrackingNumber, d.EstimatedTime, d.Priority, d.DeliveryFee, d.CreatedBy)
	if err != nil {
		return mapUnique(err)
	}
	return nil
}

// GetDeliveryByID retrieves a delivery by ID
func (s *Store) GetDeliveryByID(ctx context.Context, id int64) (*models.Delivery, error) {
	var d models.Delivery
	err := s.db.GetContext(ctx, &d, "SELECT * FROM deliveries WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("delivery %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeliveryByTracking retrieves a delivery by tracking number
func (s *Store) GetDeliveryByTracking(ctx context.Context, trackingNumber string) (*models.Delivery, error) {
	var d models.Delivery
	err := s.db.GetContext(ctx, &d, "SELECT * FROM deliveries WHERE tracking_number = $1", trackingNumber)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("tracking number %s: %w", trackingNumber, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDeliveries retrieves a page of deliveries matching the filter and the
// total count for pagination.
func (s *Store) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]models.Delivery, int64, error) {
	where := "WHERE 1=1"
	args := []interface{}{}

	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where += fmt.Sprintf(" AND "+clause, len(args))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.ClientID != nil {
		add("client_id = $%d", *filter.ClientID)
	}
	if filter.DeliveryPerson != nil {
		add("delivery_person = $%d", *filter.DeliveryPerson)
	}
	if filter.ProductID != nil {
		add("product_id = $%d", *filter.ProductID)
	}
	if filter.Priority != "" {
		add("priority = $%d", filter.Priority)
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where += fmt.Sprintf(
			" AND (tracking_number ILIKE $%d OR notes ILIKE $%d OR street ILIKE $%d OR city ILIKE $%d)",
			n, n, n, n)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM deliveries "+where, args...); err != nil {
		return nil, 0, err
	}

	sortBy := filter.SortBy
	if !deliverySortColumns[sortBy] {
		sortBy = "created_at"
	}
	order := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		order = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, limit, (page-1)*limit)

	query := fmt.Sprintf("SELECT * FROM deliveries %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		where, sortBy, order, len(args)-1, len(args))

	var deliveries []models.Delivery
	if err := s.db.SelectContext(ctx, &deliveries, query, args...); err != nil {
		return nil, 0, err
	}
	return deliveries, total, nil
}

// UpdateDeliveryState persists the mutable fields of a delivery. The
// tracking number and createdBy columns are deliberately absent.
func (s *Store) UpdateDeliveryState(ctx context.Context, d *models.Delivery) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE deliveries SET
			delivery_person = $1, status = $2, assigned_at = $3, started_at = $4,
			delivered_at = $5, street = $6, city = $7, postal_code = $8, country = $9,
			lat = $10, lng = $11, notes = $12, estimated_delivery_time = $13,
			actual_delivery_time = $14, priority = $15, delivery_fee = $16, updated_at = NOW()
		WHERE id = $17`,
		d.DeliveryPerson, d.Status, d.AssignedAt, d.StartedAt,
		d.DeliveredAt, d.Street, d.City, d.PostalCode, d.Country,
		d.Lat, d.Lng, d.Notes, d.EstimatedTime,
		d.ActualTime, d.Priority, d.DeliveryFee, d.ID)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("delivery %d: %w", d.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteDelivery removes a delivery row
func (s *Store) DeleteDelivery(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM deliveries WHERE id = $1", id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("delivery %d: %w", id, models.ErrNotFound)
	}
	return nil
}

// GetDeliveryStats aggregates the dashboard numbers over all deliveries.
func (s *Store) GetDeliveryStats(ctx context.Context) (*models.DeliveryStats, error) {
	var row struct {
		Total     int64   `db:"total"`
		Pending   int64   `db:"pending"`
		Assigned  int64   `db:"assigned"`
		InTransit int64   `db:"in_transit"`
		Delivered int64   `db:"delivered"`
		Cancelled int64   `db:"cancelled"`
		Failed    int64   `db:"failed"`
		High      int64   `db:"high"`
		Urgent    int64   `db:"urgent"`
		Revenue   float64 `db:"revenue"`
		AvgFee    float64 `db:"avg_fee"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*)                                          AS total,
			COUNT(*) FILTER (WHERE status = 'pending')        AS pending,
			COUNT(*) FILTER (WHERE status = 'assigned')       AS assigned,
			COUNT(*) FILTER (WHERE status = 'in_transit')     AS in_transit,
			COUNT(*) FILTER (WHERE status = 'delivered')      AS delivered,
			COUNT(*) FILTER (WHERE status = 'cancelled')      AS cancelled,
			COUNT(*) FILTER (WHERE status = 'failed')         AS failed,
			COUNT(*) FILTER (WHERE priority = 'high')         AS high,
			COUNT(*) FILTER (WHERE priority = 'urgent')       AS urgent,
			COALESCE(SUM(delivery_fee), 0)                    AS revenue,
			COALESCE(AVG(delivery_fee), 0)                    AS avg_fee
		FROM deliveries`)
	if err != nil {
		return nil, err
	}
	return &models.DeliveryStats{
		TotalDeliveries:     row.Total,
		PendingDeliveries:   row.Pending,
		AssignedDeliveries:  row.Assigned,
		InTransitDeliveries: row.InTransit,
		DeliveredDeliveries: row.Delivered,
		CancelledDeliveries: row.Cancelled,
		FailedDeliveries:    row.Failed,
		HighPriority:        row.High,
		UrgentPriority:      row.Urgent,
		TotalRevenue:        row.Revenue,
		AverageDeliveryFee:  row.AvgFee,
	}, nil
}

// CountActiveDeliveryPersons counts couriers with work in flight.
func (s *Store) CountActiveDeliveryPersons(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(DISTINCT delivery_person) FROM deliveries
		WHERE status IN ('assigned', 'in_transit') AND delivery_person IS NOT NULL`)
	return count, err
}
