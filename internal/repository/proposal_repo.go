package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timegarden/backend/internal/models"
)

type ProposalRepo struct {
	pool *pgxpool.Pool
}

func NewProposalRepo(pool *pgxpool.Pool) *ProposalRepo {
	return &ProposalRepo{pool: pool}
}

const proposalColumns = `id, task_id, applicant_id, amount, message, status, created_at`

func scanProposal(row pgx.Row) (*models.Proposal, error) {
	var p models.Proposal
	if err := row.Scan(&p.ID, &p.TaskID, &p.ApplicantID, &p.Amount, &p.Message, &p.Status, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a pending proposal. A second proposal by the same applicant returns ErrDuplicate.
func (r *ProposalRepo) Create(ctx context.Context, p *models.Proposal) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO proposals (id, task_id, applicant_id, amount, message, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, p.TaskID, p.ApplicantID, p.Amount, p.Message, p.Status).Scan(&p.CreatedAt)
	return mapUniqueViolation(err)
}

func (r *ProposalRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Proposal, error) {
	return scanProposal(r.pool.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id))
}

// GetByIDForUpdate locks the proposal row. Call within a transaction.
func (r *ProposalRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Proposal, error) {
	return scanProposal(tx.QueryRow(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE id = $1 FOR UPDATE`, id))
}

func (r *ProposalRepo) ExistsForApplicant(ctx context.Context, taskID, applicantID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM proposals WHERE task_id = $1 AND applicant_id = $2)
	`, taskID, applicantID).Scan(&exists)
	return exists, err
}

func (r *ProposalRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE proposals SET status = $2 WHERE id = $1`, id, status)
	return err
}

func (r *ProposalRepo) DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `DELETE FROM proposals WHERE id = $1`, id)
	return err
}

func (r *ProposalRepo) ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE applicant_id = $1 ORDER BY created_at DESC`, applicantID)
}

func (r *ProposalRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(ctx, `SELECT `+proposalColumns+` FROM proposals WHERE task_id = $1 ORDER BY created_at DESC`, taskID)
}

// ListReceived returns proposals on every task posted by posterID.
func (r *ProposalRepo) ListReceived(ctx context.Context, posterID uuid.UUID) ([]*models.Proposal, error) {
	return r.list(ctx, `
		SELECT p.id, p.task_id, p.applicant_id, p.amount, p.message, p.status, p.created_at
		FROM proposals p JOIN tasks t ON t.id = p.task_id
		WHERE t.poster_id = $1
		ORDER BY p.created_at DESC
	`, posterID)
}

func (r *ProposalRepo) list(ctx context.Context, sql string, arg uuid.UUID) ([]*models.Proposal, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Proposal{}
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
