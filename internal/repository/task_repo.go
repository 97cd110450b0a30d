package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timegarden/backend/internal/models"
)

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

const taskColumns = `t.id, t.poster_id, t.title, t.description, t.budget, t.category, t.skills, t.deadline, t.status, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM proposals p WHERE p.task_id = t.id)`

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.PosterID, &t.Title, &t.Description, &t.Budget, &t.Category, &t.Skills, &t.Deadline, &t.Status, &t.CreatedAt, &t.UpdatedAt, &t.ProposalsCount)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *models.Task) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO tasks (id, poster_id, title, description, budget, category, skills, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, t.ID, t.PosterID, t.Title, t.Description, t.Budget, t.Category, t.Skills, t.Deadline, t.Status).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id))
}

// GetByIDForUpdate locks the task row. Call within a transaction.
func (r *TaskRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error) {
	return scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1 FOR UPDATE OF t`, id))
}

func (r *TaskRepo) UpdateStatusTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	_, err := tx.Exec(ctx, `UPDATE tasks SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	return err
}

// ListOpen returns tasks still accepting proposals.
func (r *TaskRepo) ListOpen(ctx context.Context) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.status = 'open' ORDER BY t.created_at DESC`)
}

func (r *TaskRepo) ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Task, error) {
	return r.list(ctx, `SELECT `+taskColumns+` FROM tasks t WHERE t.poster_id = $1 ORDER BY t.created_at DESC`, posterID)
}

func (r *TaskRepo) list(ctx context.Context, sql string, args ...any) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}
