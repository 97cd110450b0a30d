package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction log type enums.
const (
	TxTypeEscrowLock    = "escrow_lock"
	TxTypeEscrowRelease = "escrow_release"
	TxTypeRefund        = "refund"
	TxTypeDebit         = "debit"
	TxTypeCredit        = "credit"

	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// Balance buckets of a wallet.
const (
	BucketAvailable = "available"
	BucketEscrow    = "escrow"
)

// Transaction is an immutable ledger row. Amount is signed: negative for debits.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	WalletID    uuid.UUID       `json:"wallet_id"`
	ContractID  *uuid.UUID      `json:"contract_id,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	Bucket      string          `json:"bucket"`
	Type        string          `json:"type"`
	Status      string          `json:"status"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ValidAmount reports whether d is a positive Time Coin amount with at most two decimals.
func ValidAmount(d decimal.Decimal) bool {
	return d.IsPositive() && d.Equal(d.Round(2))
}
