// Package wallet exposes a user's balances and transaction history.
package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/repository"
)

var ErrWalletNotFound = errors.New("wallet not found")

type WalletRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
}

type TransactionRepo interface {
	ListByWallet(ctx context.Context, walletID uuid.UUID) ([]*models.Transaction, error)
}

type Service struct {
	wallets WalletRepo
	txlog   TransactionRepo
}

func NewService(wallets WalletRepo, txlog TransactionRepo) *Service {
	return &Service{wallets: wallets, txlog: txlog}
}

func (s *Service) Get(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	w, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return w, nil
}

// Transactions lists the user's ledger rows, newest first.
func (s *Service) Transactions(ctx context.Context, userID uuid.UUID) ([]*models.Transaction, error) {
	return s.txlog.ListByWallet(ctx, userID)
}
