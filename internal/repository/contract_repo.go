package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timegarden/backend/internal/models"
)

type ContractRepo struct {
	pool *pgxpool.Pool
}

func NewContractRepo(pool *pgxpool.Pool) *ContractRepo {
	return &ContractRepo{pool: pool}
}

const contractColumns = `id, proposal_id, task_id, requester_id, provider_id, amount, released_amount, status, start_date, end_date`

func scanContract(row pgx.Row) (*models.Contract, error) {
	var c models.Contract
	err := row.Scan(&c.ID, &c.ProposalID, &c.TaskID, &c.RequesterID, &c.ProviderID, &c.Amount, &c.ReleasedAmount, &c.Status, &c.StartDate, &c.EndDate)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateTx inserts the contract inside the given transaction.
func (r *ContractRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO contracts (id, proposal_id, task_id, requester_id, provider_id, amount, released_amount, status, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING start_date
	`, c.ID, c.ProposalID, c.TaskID, c.RequesterID, c.ProviderID, c.Amount, c.ReleasedAmount, c.Status, c.StartDate, c.EndDate).Scan(&c.StartDate)
	return mapUniqueViolation(err)
}

func (r *ContractRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	return scanContract(r.pool.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1`, id))
}

// GetByIDForUpdate locks the contract row; concurrent fund operations on one contract queue here.
func (r *ContractRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Contract, error) {
	return scanContract(tx.QueryRow(ctx, `SELECT `+contractColumns+` FROM contracts WHERE id = $1 FOR UPDATE`, id))
}

// ExistsForProposal reports whether a contract was created from the proposal.
func (r *ContractRepo) ExistsForProposal(ctx context.Context, tx pgx.Tx, proposalID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE proposal_id = $1)`, proposalID).Scan(&exists)
	return exists, err
}

// UpdateStateTx writes the mutable lifecycle fields. Amount is never written after creation.
func (r *ContractRepo) UpdateStateTx(ctx context.Context, tx pgx.Tx, c *models.Contract) error {
	_, err := tx.Exec(ctx, `
		UPDATE contracts SET status = $2, released_amount = $3, end_date = $4 WHERE id = $1
	`, c.ID, c.Status, c.ReleasedAmount, c.EndDate)
	return err
}

// ListByUser returns contracts where the user is requester or provider, newest first.
func (r *ContractRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Contract, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+contractColumns+` FROM contracts
		WHERE requester_id = $1 OR provider_id = $1
		ORDER BY start_date DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Contract{}
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}
