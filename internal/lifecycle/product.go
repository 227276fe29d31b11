// Package lifecycle holds the transition rules for products and deliveries.
// Everything here is a pure function over domain records: callers load the
// record, apply a rule, and persist the result. Rules validate before they
// mutate, so a rejected call leaves the record untouched.
package lifecycle

import (
	"encoding/json"
	"fmt"

	"delivery-service/internal/authz"
	"delivery-service/internal/models"
)

var productStatuses = map[string]bool{
	models.ProductStatusInStock:        true,
	models.ProductStatusPicked:         true,
	models.ProductStatusOutForDelivery: true,
	models.ProductStatusDelivered:      true,
	models.ProductStatusProblem:        true,
	models.ProductStatusFailed:         true,
}

// ValidProductStatus reports whether s is in the fixed product status set.
func ValidProductStatus(s string) bool {
	return productStatuses[s]
}

// qrPayload is the externally scannable snapshot of a product. It must always
// match the persisted status and assignment, so every mutating rule below
// re-derives it before returning.
type qrPayload struct {
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	BuyerAddress string  `json:"buyerAddress"`
	BuyerPhone   string  `json:"buyerPhone"`
	Status       string  `json:"status"`
	ID           int64   `json:"id"`
	AssignedTo   *int64  `json:"assignedTo,omitempty"`
}

// EncodeQR derives the QR payload from the product's current state. This is
// the single source of truth for the payload contents.
func EncodeQR(p *models.Product) (string, error) {
	data, err := json.Marshal(qrPayload{
		Name:         p.Name,
		Price:        p.Price,
		BuyerAddress: p.BuyerAddress,
		BuyerPhone:   p.BuyerPhone,
		Status:       p.Status,
		ID:           p.ID,
		AssignedTo:   p.AssignedTo,
	})
	if err != nil {
		return "", fmt.Errorf("encode qr payload: %w", err)
	}
	return string(data), nil
}

// RefreshQR re-derives and stores the QR payload on the product. Callers that
// change the persisted ID after an insert use it to keep the snapshot honest.
func RefreshQR(p *models.Product) error {
	qr, err := EncodeQR(p)
	if err != nil {
		return err
	}
	p.QRData = qr
	return nil
}

// NewProduct validates a freshly registered product, stamps the initial
// status and derives the QR payload.
func NewProduct(p *models.Product) error {
	if p.Name == "" || p.BuyerAddress == "" || p.BuyerPhone == "" {
		return fmt.Errorf("name, buyer address and buyer phone are required: %w", models.ErrValidation)
	}
	if p.Price < 0 {
		return fmt.Errorf("price must not be negative: %w", models.ErrValidation)
	}
	p.Status = models.ProductStatusInStock
	return RefreshQR(p)
}

// AssignProduct records a delivery person on the product. Assignment always
// forces the status to "Out for Delivery", whatever it was before.
func AssignProduct(p *models.Product, deliveryPersonID int64) error {
	p.AssignedTo = &deliveryPersonID
	p.Status = models.ProductStatusOutForDelivery
	return RefreshQR(p)
}

// UnassignProduct rolls a product back to its pre-assignment state: the
// assignee is cleared and the status returns to "In Stock". Used when the
// assigned delivery person is deleted.
func UnassignProduct(p *models.Product) error {
	p.AssignedTo = nil
	p.Status = models.ProductStatusInStock
	return RefreshQR(p)
}

// UpdateProductStatus applies a status change requested by caller. Admins may
// move any product to any valid status; a delivery-role caller may only touch
// products currently assigned to them. Other roles are rejected.
func UpdateProductStatus(p *models.Product, caller authz.Caller, status string) error {
	if !ValidProductStatus(status) {
		return fmt.Errorf("invalid product status %q: %w", status, models.ErrValidation)
	}

	switch caller.Role {
	case models.RoleAdmin:
	case models.RoleDelivery:
		if p.AssignedTo == nil || *p.AssignedTo != caller.ID {
			return fmt.Errorf("product not assigned to caller: %w", models.ErrForbidden)
		}
	default:
		return fmt.Errorf("role %q may not update product status: %w", caller.Role, models.ErrForbidden)
	}

	p.Status = status
	return RefreshQR(p)
}
