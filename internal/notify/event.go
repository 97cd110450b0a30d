// Package notify delivers best-effort contract and message events to the users involved.
// Delivery never influences the outcome of the fund operation that produced the event.
package notify

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventContractCreated  = "contract_created"
	EventPaymentReleased  = "payment_released"
	EventContractRefunded = "contract_refunded"
	EventStatusChanged    = "contract_status_changed"
	EventProposalRejected = "proposal_rejected"
	EventMessageSent      = "message_sent"
	EventMessageDeleted   = "message_deleted"
)

// Event is what subscribers receive. Amount is a decimal string. Message events carry the
// thread and message IDs and leave the contract fields zero.
type Event struct {
	Type       string      `json:"type"`
	ContractID uuid.UUID   `json:"contract_id"`
	ProposalID uuid.UUID   `json:"proposal_id"`
	TaskID     uuid.UUID   `json:"task_id"`
	Status     string      `json:"status,omitempty"`
	Amount     string      `json:"amount,omitempty"`
	ThreadID   uuid.UUID   `json:"thread_id,omitzero"`
	MessageID  uuid.UUID   `json:"message_id,omitzero"`
	Text       string      `json:"text,omitempty"`
	Recipients []uuid.UUID `json:"recipients"`
	OccurredAt time.Time   `json:"occurred_at"`
}
