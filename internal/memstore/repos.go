package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/repository"
)

// --- users ---

type UserRepo struct{ s *Store }

func (r *UserRepo) CreateTx(_ context.Context, tx pgx.Tx, u *models.User) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, taken := st.emails[u.Email]; taken {
		return repository.ErrDuplicate
	}
	u.CreatedAt = time.Now().UTC()
	st.users[u.ID] = *u
	st.emails[u.Email] = u.ID
	return nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	var (
		u  models.User
		ok bool
	)
	r.s.read(func(st *state) {
		var id uuid.UUID
		if id, ok = st.emails[email]; ok {
			u = st.users[id]
		}
	})
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	var (
		u  models.User
		ok bool
	)
	r.s.read(func(st *state) { u, ok = st.users[id] })
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

// --- wallets ---

type WalletRepo struct{ s *Store }

func (r *WalletRepo) CreateTx(_ context.Context, tx pgx.Tx, w *models.Wallet) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, exists := st.wallets[w.UserID]; exists {
		return repository.ErrDuplicate
	}
	if w.Available.IsNegative() || w.Escrow.IsNegative() {
		return fmt.Errorf("memstore: wallet %s: negative balance", w.UserID)
	}
	w.UpdatedAt = time.Now().UTC()
	st.wallets[w.UserID] = *w
	return nil
}

func (r *WalletRepo) GetByUserID(_ context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var (
		w  models.Wallet
		ok bool
	)
	r.s.read(func(st *state) { w, ok = st.wallets[userID] })
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &w, nil
}

func (r *WalletRepo) GetByUserIDForUpdate(_ context.Context, tx pgx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &w, nil
}

func (r *WalletRepo) ApplyDelta(_ context.Context, tx pgx.Tx, userID uuid.UUID, availableDelta, escrowDelta decimal.Decimal) (*models.Wallet, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	w, ok := st.wallets[userID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	available := w.Available.Add(availableDelta)
	escrow := w.Escrow.Add(escrowDelta)
	if available.IsNegative() || escrow.IsNegative() {
		return nil, pgx.ErrNoRows
	}
	w.Available, w.Escrow, w.UpdatedAt = available, escrow, time.Now().UTC()
	st.wallets[userID] = w
	return &w, nil
}

// --- transaction log ---

type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) Append(_ context.Context, tx pgx.Tx, t *models.Transaction) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.wallets[t.WalletID]; !ok {
		return fmt.Errorf("memstore: transaction references missing wallet %s", t.WalletID)
	}
	if t.ContractID != nil {
		if _, ok := st.contracts[*t.ContractID]; !ok {
			return fmt.Errorf("memstore: transaction references missing contract %s", *t.ContractID)
		}
	}
	t.CreatedAt = time.Now().UTC()
	st.txs = append(st.txs, *t)
	return nil
}

func (r *TransactionRepo) ListByWallet(_ context.Context, walletID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(func(t *models.Transaction) bool { return t.WalletID == walletID }), nil
}

func (r *TransactionRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]*models.Transaction, error) {
	return r.list(func(t *models.Transaction) bool { return t.ContractID != nil && *t.ContractID == contractID }), nil
}

// list returns matching rows newest first.
func (r *TransactionRepo) list(match func(*models.Transaction) bool) []*models.Transaction {
	out := []*models.Transaction{}
	r.s.read(func(st *state) {
		for i := len(st.txs) - 1; i >= 0; i-- {
			t := st.txs[i]
			if match(&t) {
				out = append(out, &t)
			}
		}
	})
	return out
}

// --- tasks ---

type TaskRepo struct{ s *Store }

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.s.write(ctx, func(st *state) error {
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		cp := *t
		cp.Skills = slices.Clone(t.Skills)
		st.tasks[t.ID] = cp
		return nil
	})
}

func (r *TaskRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	var (
		t  *models.Task
		ok bool
	)
	r.s.read(func(st *state) {
		var row models.Task
		if row, ok = st.tasks[id]; ok {
			t = taskView(st, row)
		}
	})
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return t, nil
}

func (r *TaskRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	row, ok := st.tasks[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return taskView(st, row), nil
}

func (r *TaskRepo) UpdateStatusTx(_ context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	row, ok := st.tasks[id]
	if !ok {
		return nil
	}
	row.Status, row.UpdatedAt = status, time.Now().UTC()
	st.tasks[id] = row
	return nil
}

func (r *TaskRepo) ListOpen(_ context.Context) ([]*models.Task, error) {
	return r.list(func(t models.Task) bool { return t.Status == models.TaskStatusOpen }), nil
}

func (r *TaskRepo) ListByPoster(_ context.Context, posterID uuid.UUID) ([]*models.Task, error) {
	return r.list(func(t models.Task) bool { return t.PosterID == posterID }), nil
}

func (r *TaskRepo) list(match func(models.Task) bool) []*models.Task {
	out := []*models.Task{}
	r.s.read(func(st *state) {
		for _, row := range st.tasks {
			if match(row) {
				out = append(out, taskView(st, row))
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Task) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

func taskView(st *state, row models.Task) *models.Task {
	row.Skills = slices.Clone(row.Skills)
	row.ProposalsCount = 0
	for _, p := range st.proposals {
		if p.TaskID == row.ID {
			row.ProposalsCount++
		}
	}
	return &row
}

// --- proposals ---

type ProposalRepo struct{ s *Store }

func (r *ProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	return r.s.write(ctx, func(st *state) error {
		if _, ok := st.tasks[p.TaskID]; !ok {
			return fmt.Errorf("memstore: proposal references missing task %s", p.TaskID)
		}
		for _, existing := range st.proposals {
			if existing.TaskID == p.TaskID && existing.ApplicantID == p.ApplicantID {
				return repository.ErrDuplicate
			}
		}
		p.CreatedAt = time.Now().UTC()
		st.proposals[p.ID] = *p
		return nil
	})
}

func (r *ProposalRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Proposal, error) {
	var (
		p  models.Proposal
		ok bool
	)
	r.s.read(func(st *state) { p, ok = st.proposals[id] })
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *ProposalRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	p, ok := st.proposals[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &p, nil
}

func (r *ProposalRepo) ExistsForApplicant(_ context.Context, taskID, applicantID uuid.UUID) (bool, error) {
	found := false
	r.s.read(func(st *state) {
		for _, p := range st.proposals {
			if p.TaskID == taskID && p.ApplicantID == applicantID {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *ProposalRepo) UpdateStatusTx(_ context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	p, ok := st.proposals[id]
	if !ok {
		return nil
	}
	p.Status = status
	st.proposals[id] = p
	return nil
}

func (r *ProposalRepo) DeleteTx(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	delete(st.proposals, id)
	return nil
}

func (r *ProposalRepo) ListByApplicant(_ context.Context, applicantID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(func(_ *state, p models.Proposal) bool { return p.ApplicantID == applicantID }), nil
}

func (r *ProposalRepo) ListByTask(_ context.Context, taskID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(func(_ *state, p models.Proposal) bool { return p.TaskID == taskID }), nil
}

func (r *ProposalRepo) ListReceived(_ context.Context, posterID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(func(st *state, p models.Proposal) bool { return st.tasks[p.TaskID].PosterID == posterID }), nil
}

func (r *ProposalRepo) list(match func(*state, models.Proposal) bool) []*models.Proposal {
	out := []*models.Proposal{}
	r.s.read(func(st *state) {
		for _, p := range st.proposals {
			if match(st, p) {
				out = append(out, &p)
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Proposal) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out
}

// --- contracts ---

type ContractRepo struct{ s *Store }

func (r *ContractRepo) CreateTx(_ context.Context, tx pgx.Tx, c *models.Contract) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if c.RequesterID == c.ProviderID {
		return fmt.Errorf("memstore: contract %s: requester and provider are the same user", c.ID)
	}
	for _, existing := range st.contracts {
		if existing.ProposalID == c.ProposalID {
			return repository.ErrDuplicate
		}
	}
	st.contracts[c.ID] = *c
	return nil
}

func (r *ContractRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Contract, error) {
	var (
		c  models.Contract
		ok bool
	)
	r.s.read(func(st *state) { c, ok = st.contracts[id] })
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *ContractRepo) GetByIDForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	c, ok := st.contracts[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &c, nil
}

func (r *ContractRepo) ExistsForProposal(_ context.Context, tx pgx.Tx, proposalID uuid.UUID) (bool, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return false, err
	}
	for _, c := range st.contracts {
		if c.ProposalID == proposalID {
			return true, nil
		}
	}
	return false, nil
}

func (r *ContractRepo) UpdateStateTx(_ context.Context, tx pgx.Tx, c *models.Contract) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	row, ok := st.contracts[c.ID]
	if !ok {
		return nil
	}
	if c.ReleasedAmount.IsNegative() || c.ReleasedAmount.GreaterThan(row.Amount) {
		return fmt.Errorf("memstore: contract %s: released amount out of range", c.ID)
	}
	row.Status, row.ReleasedAmount, row.EndDate = c.Status, c.ReleasedAmount, c.EndDate
	st.contracts[c.ID] = row
	return nil
}

func (r *ContractRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	out := []*models.Contract{}
	r.s.read(func(st *state) {
		for _, c := range st.contracts {
			if c.IsParty(userID) {
				out = append(out, &c)
			}
		}
	})
	slices.SortFunc(out, func(a, b *models.Contract) int { return b.StartDate.Compare(a.StartDate) })
	return out, nil
}
