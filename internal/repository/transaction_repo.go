package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timegarden/backend/internal/models"
)

// TransactionRepo is append-only: there is no update or delete.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, wallet_id, contract_id, amount, bucket, type, status, description, created_at`

// Append inserts a ledger row inside the given transaction.
func (r *TransactionRepo) Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error {
	return tx.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, contract_id, amount, bucket, type, status, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`, t.ID, t.WalletID, t.ContractID, t.Amount, t.Bucket, t.Type, t.Status, t.Description).Scan(&t.CreatedAt)
}

func (r *TransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE wallet_id = $1 ORDER BY created_at DESC, id`, walletID)
}

func (r *TransactionRepo) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE contract_id = $1 ORDER BY created_at DESC, id`, contractID)
}

func (r *TransactionRepo) list(ctx context.Context, sql string, arg uuid.UUID) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.WalletID, &t.ContractID, &t.Amount, &t.Bucket, &t.Type, &t.Status, &t.Description, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}
