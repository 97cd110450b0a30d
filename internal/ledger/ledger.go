// Package ledger moves Time Coins between the available and escrow balances of wallets and
// records every movement in the transaction log. All entry points must run inside the
// caller's transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/models"
)

var (
	// ErrInsufficientFunds is returned when the payer's available balance is below the lock amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvariantViolation means stored balances disagree with contract state; the transaction must abort.
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrWalletNotFound     = errors.New("wallet not found")
)

// WalletRepo is the minimal wallet repository interface for the ledger.
type WalletRepo interface {
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error)
	ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, availableDelta, escrowDelta decimal.Decimal) (*models.Wallet, error)
}

// TransactionRepo is the append-only transaction log.
type TransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

type Ledger struct {
	wallets WalletRepo
	txlog   TransactionRepo
}

func New(wallets WalletRepo, txlog TransactionRepo) *Ledger {
	return &Ledger{wallets: wallets, txlog: txlog}
}

// Lock moves amount from the payer's available balance into their escrow balance.
func (l *Ledger) Lock(ctx context.Context, tx pgx.Tx, payerID, contractID uuid.UUID, amount decimal.Decimal, description string) error {
	if !models.ValidAmount(amount) {
		return ErrInvalidAmount
	}
	w, err := l.lockWallets(ctx, tx, payerID)
	if err != nil {
		return err
	}
	if w[payerID].Available.LessThan(amount) {
		return ErrInsufficientFunds
	}
	if _, err := l.wallets.ApplyDelta(ctx, tx, payerID, amount.Neg(), amount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientFunds
		}
		return fmt.Errorf("debit available: %w", err)
	}
	return l.record(ctx, tx, contractID, models.TxTypeEscrowLock, description,
		entry{payerID, models.BucketAvailable, amount.Neg()},
		entry{payerID, models.BucketEscrow, amount},
	)
}

// Release pays amount out of the requester's escrow into the provider's available balance.
func (l *Ledger) Release(ctx context.Context, tx pgx.Tx, c *models.Contract, amount decimal.Decimal) error {
	if !models.ValidAmount(amount) {
		return ErrInvalidAmount
	}
	return l.moveFromEscrow(ctx, tx, c, amount, c.ProviderID, models.TxTypeEscrowRelease, "Payment released for contract")
}

// Refund returns amount from the requester's escrow to target's available balance.
func (l *Ledger) Refund(ctx context.Context, tx pgx.Tx, c *models.Contract, amount decimal.Decimal, targetID uuid.UUID) error {
	if !models.ValidAmount(amount) {
		return ErrInvalidAmount
	}
	return l.moveFromEscrow(ctx, tx, c, amount, targetID, models.TxTypeRefund, "Escrow refunded for contract")
}

func (l *Ledger) moveFromEscrow(ctx context.Context, tx pgx.Tx, c *models.Contract, amount decimal.Decimal, toID uuid.UUID, txType, description string) error {
	w, err := l.lockWallets(ctx, tx, c.RequesterID, toID)
	if err != nil {
		return err
	}
	if held := w[c.RequesterID].Escrow; held.LessThan(amount) {
		return fmt.Errorf("%w: wallet %s holds %s in escrow, contract %s needs %s",
			ErrInvariantViolation, c.RequesterID, held, c.ID, amount)
	}
	if _, err := l.wallets.ApplyDelta(ctx, tx, c.RequesterID, decimal.Zero, amount.Neg()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: escrow debit rejected for wallet %s", ErrInvariantViolation, c.RequesterID)
		}
		return fmt.Errorf("debit escrow: %w", err)
	}
	if _, err := l.wallets.ApplyDelta(ctx, tx, toID, amount, decimal.Zero); err != nil {
		return fmt.Errorf("credit available: %w", err)
	}
	return l.record(ctx, tx, c.ID, txType, description,
		entry{c.RequesterID, models.BucketEscrow, amount.Neg()},
		entry{toID, models.BucketAvailable, amount},
	)
}

// lockWallets takes row locks on the given wallets in UUID order so two
// operations touching the same pair cannot deadlock.
func (l *Ledger) lockWallets(ctx context.Context, tx pgx.Tx, ids ...uuid.UUID) (map[uuid.UUID]*models.Wallet, error) {
	seen := make(map[uuid.UUID]bool, len(ids))
	ordered := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })

	out := make(map[uuid.UUID]*models.Wallet, len(ordered))
	for _, id := range ordered {
		w, err := l.wallets.GetByUserIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("%w: %s", ErrWalletNotFound, id)
			}
			return nil, err
		}
		out[id] = w
	}
	return out, nil
}

type entry struct {
	walletID uuid.UUID
	bucket   string
	amount   decimal.Decimal
}

func (l *Ledger) record(ctx context.Context, tx pgx.Tx, contractID uuid.UUID, txType, description string, entries ...entry) error {
	for _, e := range entries {
		cid := contractID
		if err := l.txlog.Append(ctx, tx, &models.Transaction{
			ID:          uuid.New(),
			WalletID:    e.walletID,
			ContractID:  &cid,
			Amount:      e.amount,
			Bucket:      e.bucket,
			Type:        txType,
			Status:      models.TxStatusSuccess,
			Description: description,
		}); err != nil {
			return fmt.Errorf("append transaction: %w", err)
		}
	}
	return nil
}
