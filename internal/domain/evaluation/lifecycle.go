package evaluation

import (
	"fmt"

	"evalhub/internal/domain/auth"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted, StatusArchived},
	StatusSubmitted: {StatusReviewed, StatusArchived},
	StatusReviewed:  {StatusArchived},
	StatusArchived:  nil,
}

// triggeredBy names the role whose action moves a record into each state.
var triggeredBy = map[Status]auth.Role{
	StatusSubmitted: auth.RoleEmployee,
	StatusReviewed:  auth.RoleManager,
	StatusArchived:  auth.RoleAdmin,
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func Transition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// AuthorizeTransition requires the caller to hold the triggering role itself;
// the role hierarchy does not apply to lifecycle actions.
func AuthorizeTransition(id auth.Identity, to Status) error {
	role, ok := triggeredBy[to]
	if !ok || !id.HasRole(role) {
		return ErrForbidden
	}
	return nil
}

// EffectiveStatus is the status shown on read paths. A submitted record that
// already has manager input reads as REVIEWED even though the stored status
// stays SUBMITTED until the review is finalized.
func EffectiveStatus(e Evaluation) Status {
	if e.Status == StatusSubmitted && HasManagerInput(e) {
		return StatusReviewed
	}
	return e.Status
}

func HasManagerInput(e Evaluation) bool {
	if e.ManagerOverall != nil {
		return true
	}
	for _, score := range e.ManagerRatings {
		if InRange(score) {
			return true
		}
	}
	return false
}
