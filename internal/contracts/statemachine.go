package contracts

import (
	"github.com/google/uuid"

	"github.com/timegarden/backend/internal/httputil"
	"github.com/timegarden/backend/internal/models"
)

type role int

const (
	roleRequester role = 1 << iota
	roleProvider
	roleEither = roleRequester | roleProvider
)

type transition struct {
	from []models.ContractStatus
	to   models.ContractStatus
	by   role
}

// transitions lists the status changes that move no funds. Completion and cancellation go
// through Release and Refund.
var transitions = []transition{
	{from: []models.ContractStatus{models.ContractActive}, to: models.ContractInProgress, by: roleProvider},
	{from: []models.ContractStatus{models.ContractActive, models.ContractInProgress}, to: models.ContractAwaitingReview, by: roleProvider},
	{from: []models.ContractStatus{models.ContractAwaitingReview}, to: models.ContractInProgress, by: roleRequester},
	{from: []models.ContractStatus{models.ContractActive, models.ContractInProgress, models.ContractAwaitingReview}, to: models.ContractDisputed, by: roleEither},
}

func roleOf(c *models.Contract, callerID uuid.UUID) role {
	switch callerID {
	case c.RequesterID:
		return roleRequester
	case c.ProviderID:
		return roleProvider
	}
	return 0
}

// checkTransition validates a non-fund status change for callerID.
func checkTransition(c *models.Contract, callerID uuid.UUID, to models.ContractStatus) error {
	r := roleOf(c, callerID)
	if r == 0 {
		return ErrNotAuthorized
	}
	if c.Status.Terminal() {
		return ErrInvalidTransition
	}
	for _, t := range transitions {
		if t.to != to || !contains(t.from, c.Status) {
			continue
		}
		if t.by&r == 0 {
			return ErrNotAuthorized
		}
		return nil
	}
	return ErrInvalidTransition
}

func contains(list []models.ContractStatus, s models.ContractStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DisplayStatus is the string clients see for a status.
func DisplayStatus(s models.ContractStatus) string {
	return httputil.DisplayStatus(string(s))
}

// ParseStatus accepts both the canonical and the display form.
func ParseStatus(s string) (models.ContractStatus, bool) {
	if s == "in-progress" {
		return models.ContractInProgress, true
	}
	st := models.ContractStatus(s)
	return st, st.Valid()
}
