package statemachine

import (
	"strings"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"
)

// Transition defines a valid state change and who can perform it
type Transition struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Actor models.Role
}

// validTransitions is the authoritative state machine definition.
// Team members may only act on orders assigned to them; that check belongs to the caller.
var validTransitions = []Transition{
	{From: models.StatusPending, To: models.StatusConfirmed, Actor: models.RoleTeamMember},
	{From: models.StatusPending, To: models.StatusConfirmed, Actor: models.RoleAdmin},
	{From: models.StatusConfirmed, To: models.StatusPreparing, Actor: models.RoleTeamMember},
	{From: models.StatusConfirmed, To: models.StatusPreparing, Actor: models.RoleAdmin},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery, Actor: models.RoleTeamMember},
	{From: models.StatusPreparing, To: models.StatusOutForDelivery, Actor: models.RoleAdmin},
	// Reached only through delivery OTP verification
	{From: models.StatusOutForDelivery, To: models.StatusDelivered, Actor: models.RoleTeamMember},
	{From: models.StatusOutForDelivery, To: models.StatusDelivered, Actor: models.RoleAdmin},

	{From: models.StatusPending, To: models.StatusCancelled, Actor: models.RoleTeamMember},
	{From: models.StatusPending, To: models.StatusCancelled, Actor: models.RoleAdmin},
	{From: models.StatusConfirmed, To: models.StatusCancelled, Actor: models.RoleTeamMember},
	{From: models.StatusConfirmed, To: models.StatusCancelled, Actor: models.RoleAdmin},
	{From: models.StatusPreparing, To: models.StatusCancelled, Actor: models.RoleTeamMember},
	{From: models.StatusPreparing, To: models.StatusCancelled, Actor: models.RoleAdmin},
	{From: models.StatusOutForDelivery, To: models.StatusCancelled, Actor: models.RoleTeamMember},
	{From: models.StatusOutForDelivery, To: models.StatusCancelled, Actor: models.RoleAdmin},
}

type transitionKey struct {
	From  models.OrderStatus
	To    models.OrderStatus
	Actor models.Role
}

var transitionMap = func() map[transitionKey]bool {
	m := make(map[transitionKey]bool)
	for _, t := range validTransitions {
		m[transitionKey{t.From, t.To, t.Actor}] = true
	}
	return m
}()

// ValidTransitionsFrom returns all valid next states from a given state
func ValidTransitionsFrom(status models.OrderStatus) []models.OrderStatus {
	var nexts []models.OrderStatus
	seen := map[models.OrderStatus]bool{}
	for _, t := range validTransitions {
		if t.From == status && !seen[t.To] {
			nexts = append(nexts, t.To)
			seen[t.To] = true
		}
	}
	return nexts
}

// Next returns the single forward successor of status, or false for terminal states
func Next(status models.OrderStatus) (models.OrderStatus, bool) {
	for _, t := range validTransitions {
		if t.From == status && t.To != models.StatusCancelled {
			return t.To, true
		}
	}
	return "", false
}

// CanTransition checks if a given actor can move from one state to another.
// Illegal moves are Validation errors; a role that may never move orders gets Forbidden.
func CanTransition(from, to models.OrderStatus, actor models.Role) error {
	if !actor.IsStaff() {
		return apperr.Forbidden("role '" + string(actor) + "' cannot change order status")
	}
	if transitionMap[transitionKey{From: from, To: to, Actor: actor}] {
		return nil
	}
	return apperr.Validation(
		"invalid transition: %s → %s is not allowed. Valid transitions from %s are: %s",
		from, to, from, describeValidFrom(from),
	).WithDetail("current_status", from).
		WithDetail("requested", to).
		WithDetail("valid_next_states", ValidTransitionsFrom(from))
}

func describeValidFrom(status models.OrderStatus) string {
	nexts := ValidTransitionsFrom(status)
	if len(nexts) == 0 {
		return "none (terminal state)"
	}
	names := make([]string, len(nexts))
	for i, s := range nexts {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

// TimestampColumn names the orders column stamped when an order enters status
func TimestampColumn(status models.OrderStatus) string {
	switch status {
	case models.StatusConfirmed:
		return "confirmed_at"
	case models.StatusPreparing:
		return "prepared_at"
	case models.StatusOutForDelivery:
		return "out_for_delivery_at"
	case models.StatusDelivered:
		return "delivered_at"
	case models.StatusCancelled:
		return "cancelled_at"
	}
	return ""
}

// GetAllTransitions returns the full state machine for documentation
func GetAllTransitions() []Transition {
	return validTransitions
}
