package models

import (
	"time"

	"github.com/google/uuid"
)

// Thread participant roles.
const (
	ThreadRolePoster    = "poster"
	ThreadRoleApplicant = "applicant"
)

// Thread is a conversation between two users about one task.
type Thread struct {
	ID            uuid.UUID `json:"id"`
	TaskID        uuid.UUID `json:"task_id"`
	LastMessageAt time.Time `json:"last_message_at"`
	CreatedAt     time.Time `json:"created_at"`
}

type ThreadParticipant struct {
	ThreadID uuid.UUID `json:"thread_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
}

// ThreadSummary is a thread as seen by one participant in their inbox.
type ThreadSummary struct {
	Thread
	TaskTitle   string    `json:"task_title"`
	PartnerID   uuid.UUID `json:"partner_id"`
	PartnerName string    `json:"partner_name"`
	LastMessage string    `json:"last_message"`
}

type Message struct {
	ID         uuid.UUID `json:"id"`
	ThreadID   uuid.UUID `json:"thread_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"created_at"`
}
