// Package contracts owns the contract lifecycle: accepting a proposal into an escrow-backed
// contract, releasing payment, refunding, and the status changes in between.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/ledger"
	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/repository"
)

var (
	ErrContractNotFound  = errors.New("contract not found")
	ErrProposalNotFound  = errors.New("proposal not found")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrAlreadyDecided    = errors.New("proposal already decided")
	ErrAlreadyCompleted  = errors.New("contract already completed")
	ErrNotRefundable     = errors.New("contract is not in a refundable state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTaskNotOpen       = errors.New("task is not open")
	ErrInvalidAmount     = errors.New("invalid release amount")
)

type ContractRepo interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error)
	UpdateStateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error)
}

type ProposalRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

type TaskRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
}

// History lists the transaction log rows written for a contract, newest first.
type History interface {
	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Transaction, error)
}

// Ledger is the subset of *ledger.Ledger the contract lifecycle drives.
type Ledger interface {
	Lock(ctx context.Context, tx pgx.Tx, payerID, contractID uuid.UUID, amount decimal.Decimal, description string) error
	Release(ctx context.Context, tx pgx.Tx, c *models.Contract, amount decimal.Decimal) error
	Refund(ctx context.Context, tx pgx.Tx, c *models.Contract, amount decimal.Decimal, targetID uuid.UUID) error
}

type Service struct {
	db        repository.TxBeginner
	contracts ContractRepo
	proposals ProposalRepo
	tasks     TaskRepo
	ledger    Ledger
	history   History
	notifier  notify.Notifier
	log       *slog.Logger
	now       func() time.Time
}

func NewService(db repository.TxBeginner, contracts ContractRepo, proposals ProposalRepo, tasks TaskRepo, l Ledger, history History, n notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		db: db, contracts: contracts, proposals: proposals, tasks: tasks,
		ledger: l, history: history, notifier: n, log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// LockFundsForAcceptedProposal accepts a pending proposal on an open task posted by callerID.
// The contract is created, the proposal amount moves into the poster's escrow, the proposal is
// marked accepted and the task leaves the open pool, all in one atomic unit. Requester,
// provider and amount come from the locked rows, not from the caller.
func (s *Service) LockFundsForAcceptedProposal(ctx context.Context, proposalID, callerID uuid.UUID) (*models.Contract, error) {
	var c *models.Contract
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		p, err := s.proposals.GetByIDForUpdate(ctx, tx, proposalID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrProposalNotFound
			}
			return fmt.Errorf("lock proposal: %w", err)
		}
		task, err := s.tasks.GetByIDForUpdate(ctx, tx, p.TaskID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrProposalNotFound
			}
			return fmt.Errorf("lock task: %w", err)
		}
		if task.PosterID != callerID {
			return ErrNotAuthorized
		}
		if p.Status != models.ProposalStatusPending {
			return ErrAlreadyDecided
		}
		if task.Status != models.TaskStatusOpen {
			return ErrTaskNotOpen
		}
		if p.ApplicantID == task.PosterID {
			return ErrNotAuthorized
		}

		c = &models.Contract{
			ID:             uuid.New(),
			ProposalID:     p.ID,
			TaskID:         task.ID,
			RequesterID:    task.PosterID,
			ProviderID:     p.ApplicantID,
			Amount:         p.Amount,
			ReleasedAmount: decimal.Zero,
			Status:         models.ContractActive,
			StartDate:      s.now(),
		}
		if err := s.contracts.CreateTx(ctx, tx, c); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrAlreadyDecided
			}
			return fmt.Errorf("create contract: %w", err)
		}
		if err := s.ledger.Lock(ctx, tx, c.RequesterID, c.ID, c.Amount, "Escrow for task: "+task.Title); err != nil {
			return err
		}
		if err := s.proposals.UpdateStatusTx(ctx, tx, p.ID, models.ProposalStatusAccepted); err != nil {
			return fmt.Errorf("accept proposal: %w", err)
		}
		if err := s.tasks.UpdateStatusTx(ctx, tx, task.ID, models.TaskStatusInProgress); err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.classify(err, "accept proposal", "proposal_id", proposalID, "caller_id", callerID)
	}
	s.emit(ctx, notify.EventContractCreated, c, c.Amount)
	return c, nil
}

// ReleaseContractPayment pays releaseAmount (the whole remaining escrow when nil) to the provider.
// Only the requester may release. The contract completes once everything has been released.
func (s *Service) ReleaseContractPayment(ctx context.Context, contractID, callerID uuid.UUID, releaseAmount *decimal.Decimal) (models.ContractStatus, error) {
	var (
		c   *models.Contract
		amt decimal.Decimal
	)
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		if c, err = s.lockContract(ctx, tx, contractID); err != nil {
			return err
		}
		if callerID != c.RequesterID {
			return ErrNotAuthorized
		}
		switch c.Status {
		case models.ContractCompleted:
			return ErrAlreadyCompleted
		case models.ContractCancelled:
			return ErrInvalidTransition
		}
		remaining := c.Remaining()
		amt = remaining
		if releaseAmount != nil {
			amt = *releaseAmount
		}
		if !models.ValidAmount(amt) || amt.GreaterThan(remaining) {
			return ErrInvalidAmount
		}
		return s.release(ctx, tx, c, amt)
	})
	if err != nil {
		return "", s.classify(err, "release payment", "contract_id", contractID, "caller_id", callerID)
	}
	s.emit(ctx, notify.EventPaymentReleased, c, amt)
	return c.Status, nil
}

// RefundContract returns the remaining escrow to the requester and cancels the contract.
// Either party may cancel while the contract is not terminal.
func (s *Service) RefundContract(ctx context.Context, contractID, callerID uuid.UUID) (models.ContractStatus, error) {
	var (
		c   *models.Contract
		amt decimal.Decimal
	)
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		if c, err = s.lockContract(ctx, tx, contractID); err != nil {
			return err
		}
		if !c.IsParty(callerID) {
			return ErrNotAuthorized
		}
		if c.Status.Terminal() {
			return ErrNotRefundable
		}
		amt = c.Remaining()
		return s.refund(ctx, tx, c, amt)
	})
	if err != nil {
		return "", s.classify(err, "refund contract", "contract_id", contractID, "caller_id", callerID)
	}
	s.emit(ctx, notify.EventContractRefunded, c, amt)
	return c.Status, nil
}

// UpdateContractStatus applies a status change requested by a party. Asking for completed
// releases the remaining escrow; asking for cancelled refunds it.
func (s *Service) UpdateContractStatus(ctx context.Context, contractID, callerID uuid.UUID, to models.ContractStatus) (models.ContractStatus, error) {
	switch to {
	case models.ContractCompleted:
		return s.ReleaseContractPayment(ctx, contractID, callerID, nil)
	case models.ContractCancelled:
		return s.RefundContract(ctx, contractID, callerID)
	}
	var c *models.Contract
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		if c, err = s.lockContract(ctx, tx, contractID); err != nil {
			return err
		}
		if err := checkTransition(c, callerID, to); err != nil {
			return err
		}
		c.Status = to
		return s.contracts.UpdateStateTx(ctx, tx, c)
	})
	if err != nil {
		return "", s.classify(err, "update contract status", "contract_id", contractID, "caller_id", callerID)
	}
	s.emit(ctx, notify.EventStatusChanged, c, decimal.Zero)
	return c.Status, nil
}

// Get returns a contract visible to callerID.
func (s *Service) Get(ctx context.Context, contractID, callerID uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByID(ctx, contractID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}
	if !c.IsParty(callerID) {
		return nil, ErrNotAuthorized
	}
	return c, nil
}

// History returns the ledger trail of a contract visible to callerID.
func (s *Service) History(ctx context.Context, contractID, callerID uuid.UUID) ([]*models.Transaction, error) {
	if _, err := s.Get(ctx, contractID, callerID); err != nil {
		return nil, err
	}
	return s.history.ListByContract(ctx, contractID)
}

func (s *Service) ListMine(ctx context.Context, callerID uuid.UUID) ([]*models.Contract, error) {
	return s.contracts.ListByUser(ctx, callerID)
}

func (s *Service) lockContract(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	c, err := s.contracts.GetByIDForUpdate(ctx, tx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrContractNotFound
		}
		return nil, fmt.Errorf("lock contract: %w", err)
	}
	return c, nil
}

func (s *Service) release(ctx context.Context, tx pgx.Tx, c *models.Contract, amt decimal.Decimal) error {
	if err := s.ledger.Release(ctx, tx, c, amt); err != nil {
		return err
	}
	c.ReleasedAmount = c.ReleasedAmount.Add(amt)
	if c.ReleasedAmount.Equal(c.Amount) {
		end := s.now()
		c.Status = models.ContractCompleted
		c.EndDate = &end
		if err := s.tasks.UpdateStatusTx(ctx, tx, c.TaskID, models.TaskStatusCompleted); err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
	}
	if err := s.contracts.UpdateStateTx(ctx, tx, c); err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	return nil
}

func (s *Service) refund(ctx context.Context, tx pgx.Tx, c *models.Contract, amt decimal.Decimal) error {
	if amt.IsPositive() {
		if err := s.ledger.Refund(ctx, tx, c, amt, c.RequesterID); err != nil {
			return err
		}
	}
	end := s.now()
	c.Status = models.ContractCancelled
	c.EndDate = &end
	if err := s.contracts.UpdateStateTx(ctx, tx, c); err != nil {
		return fmt.Errorf("update contract: %w", err)
	}
	if err := s.tasks.UpdateStatusTx(ctx, tx, c.TaskID, models.TaskStatusCancelled); err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

// classify logs faults and passes business errors through untouched.
func (s *Service) classify(err error, op string, attrs ...any) error {
	switch {
	case errors.Is(err, ledger.ErrInvariantViolation):
		s.log.Error("ledger invariant violation", append(attrs, "op", op, "error", err)...)
	case isBusiness(err):
	default:
		s.log.Error(op+" failed", append(attrs, "error", err)...)
	}
	return err
}

func isBusiness(err error) bool {
	for _, target := range []error{
		ErrContractNotFound, ErrProposalNotFound, ErrNotAuthorized, ErrAlreadyDecided,
		ErrAlreadyCompleted, ErrNotRefundable, ErrInvalidTransition, ErrTaskNotOpen, ErrInvalidAmount,
		ledger.ErrInsufficientFunds, ledger.ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// emit notifies both parties in the background once the atomic unit has committed.
func (s *Service) emit(ctx context.Context, kind string, c *models.Contract, amount decimal.Decimal) {
	if s.notifier == nil {
		return
	}
	ev := notify.Event{
		Type:       kind,
		ContractID: c.ID,
		ProposalID: c.ProposalID,
		TaskID:     c.TaskID,
		Status:     string(c.Status),
		Recipients: []uuid.UUID{c.RequesterID, c.ProviderID},
		OccurredAt: s.now(),
	}
	if amount.IsPositive() {
		ev.Amount = amount.StringFixed(2)
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Warn("contract notification failed", "contract_id", c.ID, "type", kind, "error", err)
		}
	}()
}
