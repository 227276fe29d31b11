// Package authz implements the role-based access gate. Checks are pure
// functions of the caller's role and the operation's allowed-role list; no
// state is read or mutated.
package authz

import (
	"fmt"

	"delivery-service/internal/models"
)

// Caller is the authenticated identity attached to a request, as verified by
// the token layer.
type Caller struct {
	ID   int64
	Role models.Role
}

// ParseRole maps a raw string onto the closed role enum.
func ParseRole(raw string) (models.Role, error) {
	switch models.Role(raw) {
	case models.RoleAdmin:
		return models.RoleAdmin, nil
	case models.RoleClient:
		return models.RoleClient, nil
	case models.RoleDelivery:
		return models.RoleDelivery, nil
	default:
		return "", fmt.Errorf("unknown role %q: %w", raw, models.ErrValidation)
	}
}

// RequireRole returns ErrForbidden unless the caller's role is in the
// allowed list.
func RequireRole(caller models.Role, allowed ...models.Role) error {
	for _, role := range allowed {
		if caller == role {
			return nil
		}
	}
	return fmt.Errorf("role %q not permitted: %w", caller, models.ErrForbidden)
}
