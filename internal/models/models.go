package models

import "time"

// Role is the closed set of user roles. Every role-gated branch matches
// exhaustively against these three values; anything else is rejected at
// parse time.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleClient   Role = "client"
	RoleDelivery Role = "delivery"
)

// User is an account record. PasswordHash holds a bcrypt hash; plaintext is
// never persisted.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         Role      `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Product statuses
const (
	ProductStatusInStock        = "In Stock"
	ProductStatusPicked         = "Picked"
	ProductStatusOutForDelivery = "Out for Delivery"
	ProductStatusDelivered      = "Delivered"
	ProductStatusProblem        = "Problem"
	ProductStatusFailed         = "Failed/Returned"
)

// Product is a parcel registered by a client. AssignedTo references the
// delivery person currently responsible for it, QRData the serialized
// scannable snapshot of its state.
type Product struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Price        float64   `db:"price" json:"price"`
	BuyerName    string    `db:"buyer_name" json:"buyer_name,omitempty"`
	BuyerAddress string    `db:"buyer_address" json:"buyer_address"`
	BuyerPhone   string    `db:"buyer_phone" json:"buyer_phone"`
	Status       string    `db:"status" json:"status"`
	AssignedTo   *int64    `db:"assigned_to" json:"assigned_to,omitempty"`
	QRData       string    `db:"qr_data" json:"qr_data"`
	ClientID     int64     `db:"client_id" json:"client_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Delivery statuses
const (
	DeliveryStatusPending   = "pending"
	DeliveryStatusAssigned  = "assigned"
	DeliveryStatusInTransit = "in_transit"
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusCancelled = "cancelled"
	DeliveryStatusFailed    = "failed"
)

// Delivery priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Address is where a delivery is headed. Coordinates are optional.
type Address struct {
	Street     string   `db:"street" json:"street"`
	City       string   `db:"city" json:"city"`
	PostalCode string   `db:"postal_code" json:"postal_code"`
	Country    string   `db:"country" json:"country"`
	Lat        *float64 `db:"lat" json:"lat,omitempty"`
	Lng        *float64 `db:"lng" json:"lng,omitempty"`
}

// Delivery records one physical handoff of a product. TrackingNumber and
// CreatedBy are set at creation and never change.
type Delivery struct {
	ID             int64      `db:"id" json:"id"`
	ProductID      int64      `db:"product_id" json:"product_id"`
	ClientID       int64      `db:"client_id" json:"client_id"`
	DeliveryPerson *int64     `db:"delivery_person" json:"delivery_person,omitempty"`
	Status         string     `db:"status" json:"status"`
	AssignedAt     *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	DeliveredAt    *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	Address        `json:"address"`
	Notes          string     `db:"notes" json:"notes,omitempty"`
	TrackingNumber string     `db:"tracking_number" json:"tracking_number"`
	EstimatedTime  *time.Time `db:"estimated_delivery_time" json:"estimated_delivery_time,omitempty"`
	ActualTime     *time.Time `db:"actual_delivery_time" json:"actual_delivery_time,omitempty"`
	Priority       string     `db:"priority" json:"priority"`
	DeliveryFee    float64    `db:"delivery_fee" json:"delivery_fee"`
	CreatedBy      int64      `db:"created_by" json:"created_by"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// DeliveryStats is the admin dashboard aggregate over deliveries.
type DeliveryStats struct {
	TotalDeliveries       int64   `json:"totalDeliveries"`
	PendingDeliveries     int64   `json:"pendingDeliveries"`
	AssignedDeliveries    int64   `json:"assignedDeliveries"`
	InTransitDeliveries   int64   `json:"inTransitDeliveries"`
	DeliveredDeliveries   int64   `json:"deliveredDeliveries"`
	CancelledDeliveries   int64   `json:"cancelledDeliveries"`
	FailedDeliveries      int64   `json:"failedDeliveries"`
	HighPriority          int64   `json:"highPriorityDeliveries"`
	UrgentPriority        int64   `json:"urgentDeliveries"`
	TotalRevenue          float64 `json:"totalRevenue"`
	AverageDeliveryFee    float64 `json:"averageDeliveryFee"`
	DeliveryPersonCount   int64   `json:"deliveryPersonCount"`
	ActiveDeliveryPersons int64   `json:"activeDeliveryPersons"`
}

// ProductStats is the admin dashboard aggregate over products and users.
type ProductStats struct {
	TotalProducts   int64 `json:"totalProducts"`
	TotalDeliveries int64 `json:"totalDeliveries"`
	TotalClients    int64 `json:"totalClients"`
	DeliveryPersons int64 `json:"deliveryPersons"`
	Breakdown       struct {
		Picked         int64 `json:"picked"`
		OutForDelivery int64 `json:"outForDelivery"`
		Delivered      int64 `json:"delivered"`
		Problem        int64 `json:"problem"`
	} `json:"breakdown"`
}
