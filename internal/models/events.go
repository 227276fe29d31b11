package models

import "time"

// Event types
const (
	EventTypeDeliveryCreated       = "DELIVERY_CREATED"
	EventTypeDeliveryStatusChanged = "DELIVERY_STATUS_CHANGED"
	EventTypeDeliveryDeleted       = "DELIVERY_DELETED"
	EventTypeProductAssigned       = "PRODUCT_ASSIGNED"
	EventTypeProductStatusChanged  = "PRODUCT_STATUS_CHANGED"
	EventTypeUserDeleted           = "USER_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// DeliveryCreatedEvent published when a delivery is opened
type DeliveryCreatedEvent struct {
	BaseEvent
	DeliveryID     int64  `json:"delivery_id"`
	TrackingNumber string `json:"tracking_number"`
	ClientID       int64  `json:"client_id"`
	Status         string `json:"status"`
	Priority       string `json:"priority"`
}

// DeliveryStatusChangedEvent published on every delivery status transition
type DeliveryStatusChangedEvent struct {
	BaseEvent
	DeliveryID     int64  `json:"delivery_id"`
	TrackingNumber string `json:"tracking_number"`
	OldStatus      string `json:"old_status"`
	NewStatus      string `json:"new_status"`
	DeliveryPerson *int64 `json:"delivery_person,omitempty"`
}

// DeliveryDeletedEvent published when a pending/cancelled delivery is removed
type DeliveryDeletedEvent struct {
	BaseEvent
	DeliveryID     int64  `json:"delivery_id"`
	TrackingNumber string `json:"tracking_number"`
}

// ProductAssignedEvent published when a delivery person is assigned
type ProductAssignedEvent struct {
	BaseEvent
	ProductID      int64 `json:"product_id"`
	DeliveryPerson int64 `json:"delivery_person"`
	ClientID       int64 `json:"client_id"`
}

// ProductStatusChangedEvent published on product status updates
type ProductStatusChangedEvent struct {
	BaseEvent
	ProductID int64  `json:"product_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// UserDeletedEvent published after a user delete and its cascade commit
type UserDeletedEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	Role     string `json:"role"`
	Affected int64  `json:"affected_products"`
}
