// Package services holds the business operations behind the HTTP handlers.
// Every operation runs against a *gorm.DB scoped to the caller's context and
// reports failures as *apperr.Error so handlers can pick a status code.
package services

import (
	"errors"
	"fmt"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Actor identifies the authenticated user performing an operation
type Actor struct {
	UserID uint
	Role   models.Role
}

// OTPPolicy configures delivery code lifetime and retry budget
type OTPPolicy struct {
	Expire      time.Duration
	MaxAttempts int
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error for resource and wraps anything else
func notFoundOr(err error, resource string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource)
	}
	return fmt.Errorf("load %s: %w", resource, err)
}

// lockOrder loads an order holding a row lock for the rest of tx.
// Dialects without row locks (sqlite) drop the clause; their writers are already serialized.
func lockOrder(tx *gorm.DB, orderID uint) (*models.Order, error) {
	var order models.Order
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&order, orderID).Error; err != nil {
		return nil, notFoundOr(err, "Order")
	}
	return &order, nil
}

// authorizeOrderWork enforces who may move an order: admins always, team members only when assigned
func authorizeOrderWork(order *models.Order, actor Actor) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTeamMember:
		if !order.IsAssignedTo(actor.UserID) {
			return apperr.Forbidden("order is not assigned to you")
		}
		return nil
	case models.RoleCustomer:
		return apperr.Forbidden("customers cannot change order status")
	}
	return apperr.Forbidden("unknown role")
}
