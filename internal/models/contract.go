package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ContractStatus is the canonical lifecycle state. Display strings live in the handlers.
type ContractStatus string

const (
	ContractActive         ContractStatus = "active"
	ContractInProgress     ContractStatus = "in_progress"
	ContractAwaitingReview ContractStatus = "awaiting_review"
	ContractCompleted      ContractStatus = "completed"
	ContractDisputed       ContractStatus = "disputed"
	ContractCancelled      ContractStatus = "cancelled"
)

// Terminal reports whether no fund operation may run against the contract any more.
func (s ContractStatus) Terminal() bool {
	return s == ContractCompleted || s == ContractCancelled
}

// Valid reports whether s is one of the known states.
func (s ContractStatus) Valid() bool {
	switch s {
	case ContractActive, ContractInProgress, ContractAwaitingReview, ContractCompleted, ContractDisputed, ContractCancelled:
		return true
	}
	return false
}

// Contract is created atomically with the escrow lock. Amount never changes after creation.
type Contract struct {
	ID             uuid.UUID       `json:"id"`
	ProposalID     uuid.UUID       `json:"proposal_id"`
	TaskID         uuid.UUID       `json:"task_id"`
	RequesterID    uuid.UUID       `json:"requester_id"`
	ProviderID     uuid.UUID       `json:"provider_id"`
	Amount         decimal.Decimal `json:"amount"`
	ReleasedAmount decimal.Decimal `json:"released_amount"`
	Status         ContractStatus  `json:"status"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
}

// Remaining is the amount still held in escrow for this contract.
func (c *Contract) Remaining() decimal.Decimal {
	return c.Amount.Sub(c.ReleasedAmount)
}

// IsParty reports whether userID is the requester or the provider.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return userID == c.RequesterID || userID == c.ProviderID
}
