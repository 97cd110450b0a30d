package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/models"
)

type WalletRepo struct {
	pool *pgxpool.Pool
}

func NewWalletRepo(pool *pgxpool.Pool) *WalletRepo {
	return &WalletRepo{pool: pool}
}

// CreateTx inserts a wallet inside the given transaction.
func (r *WalletRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error {
	return tx.QueryRow(ctx, `
		INSERT INTO wallets (user_id, available, escrow)
		VALUES ($1, $2, $3)
		RETURNING updated_at
	`, w.UserID, w.Available, w.Escrow).Scan(&w.UpdatedAt)
}

func (r *WalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := r.pool.QueryRow(ctx, `
		SELECT user_id, available, escrow, updated_at FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.UserID, &w.Available, &w.Escrow, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByUserIDForUpdate locks the wallet row. Call within a transaction.
func (r *WalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		SELECT user_id, available, escrow, updated_at FROM wallets WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&w.UserID, &w.Available, &w.Escrow, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ApplyDelta adds the deltas to both balances only if neither would go negative.
// Returns pgx.ErrNoRows when the wallet is missing or the guard rejects the update.
func (r *WalletRepo) ApplyDelta(ctx context.Context, tx pgx.Tx, userID uuid.UUID, availableDelta, escrowDelta decimal.Decimal) (*models.Wallet, error) {
	var w models.Wallet
	err := tx.QueryRow(ctx, `
		UPDATE wallets
		SET available = available + $2, escrow = escrow + $3, updated_at = now()
		WHERE user_id = $1 AND available + $2 >= 0 AND escrow + $3 >= 0
		RETURNING user_id, available, escrow, updated_at
	`, userID, availableDelta, escrowDelta).Scan(&w.UserID, &w.Available, &w.Escrow, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}
