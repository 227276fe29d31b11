package lifecycle

import (
	"fmt"
	"math/rand"
	"time"

	"delivery-service/internal/models"
)

var deliveryStatuses = map[string]bool{
	models.DeliveryStatusPending:   true,
	models.DeliveryStatusAssigned:  true,
	models.DeliveryStatusInTransit: true,
	models.DeliveryStatusDelivered: true,
	models.DeliveryStatusCancelled: true,
	models.DeliveryStatusFailed:    true,
}

var priorities = map[string]bool{
	models.PriorityLow:    true,
	models.PriorityMedium: true,
	models.PriorityHigh:   true,
	models.PriorityUrgent: true,
}

// ValidDeliveryStatus reports whether s is in the fixed delivery status set.
func ValidDeliveryStatus(s string) bool {
	return deliveryStatuses[s]
}

// ValidPriority reports whether p is in the fixed priority set.
func ValidPriority(p string) bool {
	return priorities[p]
}

const trackingAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// NewTrackingNumber derives a tracking token: "KD" prefix, millisecond
// timestamp, four random characters. Uniqueness for the lifetime of the
// store is enforced by a unique constraint, not re-derived here.
func NewTrackingNumber(now time.Time) string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = trackingAlphabet[rand.Intn(len(trackingAlphabet))]
	}
	return fmt.Sprintf("KD%d%s", now.UnixMilli(), suffix)
}

// NewDelivery validates a delivery being opened and stamps its initial
// state: tracking number, priority default, and "assigned" with assignedAt
// when a delivery person is supplied at creation, otherwise "pending".
func NewDelivery(d *models.Delivery, now time.Time) error {
	if d.ProductID == 0 || d.ClientID == 0 {
		return fmt.Errorf("product and client are required: %w", models.ErrValidation)
	}
	if d.Street == "" || d.City == "" || d.PostalCode == "" || d.Country == "" {
		return fmt.Errorf("delivery address is required: %w", models.ErrValidation)
	}
	if d.Priority == "" {
		d.Priority = models.PriorityMedium
	}
	if !ValidPriority(d.Priority) {
		return fmt.Errorf("invalid priority %q: %w", d.Priority, models.ErrValidation)
	}

	d.TrackingNumber = NewTrackingNumber(now)
	if d.DeliveryPerson != nil {
		d.Status = models.DeliveryStatusAssigned
		assignedAt := now
		d.AssignedAt = &assignedAt
	} else {
		d.Status = models.DeliveryStatusPending
		d.AssignedAt = nil
	}
	return nil
}

// ApplyDeliveryStatus moves a delivery to newStatus and applies the
// transition's timestamp side effects. Moving into a status the delivery is
// already in is a no-op for the timestamps.
func ApplyDeliveryStatus(d *models.Delivery, newStatus string, now time.Time) error {
	if !ValidDeliveryStatus(newStatus) {
		return fmt.Errorf("invalid delivery status %q: %w", newStatus, models.ErrValidation)
	}
	if newStatus == d.Status {
		return nil
	}

	switch newStatus {
	case models.DeliveryStatusAssigned:
		at := now
		d.AssignedAt = &at
	case models.DeliveryStatusInTransit:
		at := now
		d.StartedAt = &at
	case models.DeliveryStatusDelivered:
		at := now
		d.DeliveredAt = &at
		d.ActualTime = &at
	}

	d.Status = newStatus
	return nil
}

// ReassignDeliveryPerson points the delivery at a different courier. The
// assignee must hold the delivery role; assignedAt is stamped, and a pending
// delivery auto-promotes to assigned.
func ReassignDeliveryPerson(d *models.Delivery, assignee *models.User, now time.Time) error {
	if assignee == nil || assignee.Role != models.RoleDelivery {
		return fmt.Errorf("delivery person not found: %w", models.ErrNotFound)
	}

	d.DeliveryPerson = &assignee.ID
	at := now
	d.AssignedAt = &at
	if d.Status == models.DeliveryStatusPending {
		d.Status = models.DeliveryStatusAssigned
	}
	return nil
}

// Deletable reports whether a delivery in the given status may be removed.
// Anything in progress or completed must stay for the record.
func Deletable(status string) bool {
	return status == models.DeliveryStatusPending || status == models.DeliveryStatusCancelled
}
