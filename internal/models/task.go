package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Task status enums. Only open tasks accept proposals.
const (
	TaskStatusOpen       = "open"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
	TaskStatusCancelled  = "cancelled"
)

type Task struct {
	ID             uuid.UUID       `json:"id"`
	PosterID       uuid.UUID       `json:"poster_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Budget         decimal.Decimal `json:"budget"`
	Category       string          `json:"category"`
	Skills         []string        `json:"skills"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
	Status         string          `json:"status"`
	ProposalsCount int             `json:"proposals_count"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
