package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is keyed by its owner; wallet_id in the transaction log is the owner's user ID.
type Wallet struct {
	UserID    uuid.UUID       `json:"user_id"`
	Available decimal.Decimal `json:"available"`
	Escrow    decimal.Decimal `json:"escrow"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Total is available + escrow.
func (w *Wallet) Total() decimal.Decimal {
	return w.Available.Add(w.Escrow)
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
