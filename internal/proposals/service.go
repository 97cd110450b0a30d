// Package proposals handles bids on tasks: submission, listing, rejection and withdrawal.
// Accepting a proposal belongs to the contracts package because it moves funds.
package proposals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/contracts"
	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/repository"
)

var (
	ErrTaskNotFound      = errors.New("task not found")
	ErrTaskNotOpen       = errors.New("task is not accepting proposals")
	ErrOwnTask           = errors.New("you cannot submit a proposal on your own task")
	ErrDuplicateProposal = errors.New("you have already submitted a proposal for this task")
	ErrInvalidAmount     = errors.New("amount must be greater than 0")
	ErrNotPending        = errors.New("proposal is no longer pending")
	ErrHasContract       = errors.New("cannot delete accepted proposal with active contract")
)

type ProposalRepo interface {
	Create(ctx context.Context, p *models.Proposal) error
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error)
	ExistsForApplicant(ctx context.Context, taskID, applicantID uuid.UUID) (bool, error)
	UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
	ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*models.Proposal, error)
	ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Proposal, error)
	ListReceived(ctx context.Context, posterID uuid.UUID) ([]*models.Proposal, error)
}

type TaskRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
}

type ContractChecker interface {
	ExistsForProposal(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID) (bool, error)
}

type Service struct {
	db        repository.TxBeginner
	proposals ProposalRepo
	tasks     TaskRepo
	contracts ContractChecker
	notifier  notify.Notifier
	log       *slog.Logger
}

func NewService(db repository.TxBeginner, proposals ProposalRepo, tasks TaskRepo, contracts ContractChecker, n notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, proposals: proposals, tasks: tasks, contracts: contracts, notifier: n, log: log}
}

// Submit records a pending proposal from callerID on an open task someone else posted.
func (s *Service) Submit(ctx context.Context, callerID, taskID uuid.UUID, amount decimal.Decimal, message string) (*models.Proposal, error) {
	if !models.ValidAmount(amount) {
		return nil, ErrInvalidAmount
	}
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	if task.PosterID == callerID {
		return nil, ErrOwnTask
	}
	if task.Status != models.TaskStatusOpen {
		return nil, ErrTaskNotOpen
	}
	exists, err := s.proposals.ExistsForApplicant(ctx, taskID, callerID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return nil, ErrDuplicateProposal
	}
	p := &models.Proposal{
		ID:          uuid.New(),
		TaskID:      taskID,
		ApplicantID: callerID,
		Amount:      amount,
		Message:     message,
		Status:      models.ProposalStatusPending,
	}
	if err := s.proposals.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateProposal
		}
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	return p, nil
}

// Reject moves a pending proposal to rejected. No funds move.
func (s *Service) Reject(ctx context.Context, proposalID, callerID uuid.UUID) (*models.Proposal, error) {
	var p *models.Proposal
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		p, err = s.proposals.GetByIDForUpdate(ctx, tx, proposalID)
		if err != nil {
			if repository.IsNotFound(err) {
				return contracts.ErrProposalNotFound
			}
			return err
		}
		task, err := s.tasks.GetByIDForUpdate(ctx, tx, p.TaskID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrTaskNotFound
			}
			return err
		}
		if task.PosterID != callerID {
			return contracts.ErrNotAuthorized
		}
		if p.Status != models.ProposalStatusPending {
			return contracts.ErrAlreadyDecided
		}
		p.Status = models.ProposalStatusRejected
		return s.proposals.UpdateStatusTx(ctx, tx, p.ID, p.Status)
	})
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		ev := notify.Event{
			Type:       notify.EventProposalRejected,
			ProposalID: p.ID,
			TaskID:     p.TaskID,
			Status:     p.Status,
			Recipients: []uuid.UUID{p.ApplicantID},
			OccurredAt: time.Now().UTC(),
		}
		ctx = context.WithoutCancel(ctx)
		go func() {
			if err := s.notifier.Notify(ctx, ev); err != nil {
				s.log.Warn("proposal notification failed", "proposal_id", ev.ProposalID, "error", err)
			}
		}()
	}
	return p, nil
}

// Delete withdraws a pending proposal. Only the applicant may delete it.
func (s *Service) Delete(ctx context.Context, proposalID, callerID uuid.UUID) error {
	return repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		p, err := s.proposals.GetByIDForUpdate(ctx, tx, proposalID)
		if err != nil {
			if repository.IsNotFound(err) {
				return contracts.ErrProposalNotFound
			}
			return err
		}
		if p.ApplicantID != callerID {
			return contracts.ErrNotAuthorized
		}
		hasContract, err := s.contracts.ExistsForProposal(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		if hasContract {
			return ErrHasContract
		}
		if p.Status != models.ProposalStatusPending {
			return ErrNotPending
		}
		return s.proposals.DeleteTx(ctx, tx, p.ID)
	})
}

func (s *Service) ListMine(ctx context.Context, callerID uuid.UUID) ([]*models.Proposal, error) {
	return s.proposals.ListByApplicant(ctx, callerID)
}

func (s *Service) ListReceived(ctx context.Context, callerID uuid.UUID) ([]*models.Proposal, error) {
	return s.proposals.ListReceived(ctx, callerID)
}

// ListForTask returns the proposals on a task. Only the poster may see them.
func (s *Service) ListForTask(ctx context.Context, taskID, callerID uuid.UUID) ([]*models.Proposal, error) {
	task, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	if task.PosterID != callerID {
		return nil, contracts.ErrNotAuthorized
	}
	return s.proposals.ListByTask(ctx, taskID)
}
