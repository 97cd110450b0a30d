package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Proposal status enums. A proposal leaves pending exactly once.
const (
	ProposalStatusPending  = "pending"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)

type Proposal struct {
	ID          uuid.UUID       `json:"id"`
	TaskID      uuid.UUID       `json:"task_id"`
	ApplicantID uuid.UUID       `json:"applicant_id"`
	Amount      decimal.Decimal `json:"amount"`
	Message     string          `json:"message"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
