package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/repository"
)

type UserRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type WalletRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *models.Wallet) error
}

type TransactionRepo interface {
	Append(ctx context.Context, tx pgx.Tx, t *models.Transaction) error
}

// Repository creates accounts: a user row, its wallet and the opening credit in one unit.
type Repository struct {
	db      repository.TxBeginner
	users   UserRepo
	wallets WalletRepo
	txlog   TransactionRepo
}

func NewRepository(db repository.TxBeginner, users UserRepo, wallets WalletRepo, txlog TransactionRepo) *Repository {
	return &Repository{db: db, users: users, wallets: wallets, txlog: txlog}
}

// Create inserts the user and a wallet holding startingBalance.
func (r *Repository) Create(ctx context.Context, u *models.User, startingBalance decimal.Decimal) (*models.Wallet, error) {
	w := &models.Wallet{UserID: u.ID, Available: startingBalance}
	err := repository.WithAtomicUnit(ctx, r.db, func(tx pgx.Tx) error {
		if err := r.users.CreateTx(ctx, tx, u); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateEmail
			}
			return fmt.Errorf("insert user: %w", err)
		}
		if err := r.wallets.CreateTx(ctx, tx, w); err != nil {
			return fmt.Errorf("insert wallet: %w", err)
		}
		if !startingBalance.IsPositive() {
			return nil
		}
		return r.txlog.Append(ctx, tx, &models.Transaction{
			ID:          uuid.New(),
			WalletID:    u.ID,
			Amount:      startingBalance,
			Bucket:      models.BucketAvailable,
			Type:        models.TxTypeCredit,
			Status:      models.TxStatusSuccess,
			Description: "Welcome bonus",
		})
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetByEmail returns nil when no user has the address.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := r.users.GetByEmail(ctx, email)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	return u, err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.users.GetByID(ctx, id)
}
