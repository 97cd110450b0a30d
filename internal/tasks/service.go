// Package tasks lets users post work for Time Coins and browse what others have posted.
package tasks

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/repository"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrInvalidBudget = errors.New("budget must be greater than 0 with at most two decimals")
	ErrMissingFields = errors.New("title, description, and budget are required")
)

type Repo interface {
	Create(ctx context.Context, t *models.Task) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	ListOpen(ctx context.Context) ([]*models.Task, error)
	ListByPoster(ctx context.Context, posterID uuid.UUID) ([]*models.Task, error)
}

type Service struct {
	repo Repo
}

func NewService(repo Repo) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	Title       string
	Description string
	Budget      decimal.Decimal
	Category    string
	Skills      []string
	Deadline    *time.Time
}

func (s *Service) Create(ctx context.Context, posterID uuid.UUID, in CreateInput) (*models.Task, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" || strings.TrimSpace(in.Description) == "" {
		return nil, ErrMissingFields
	}
	if !models.ValidAmount(in.Budget) {
		return nil, ErrInvalidBudget
	}
	skills := make([]string, 0, len(in.Skills))
	seen := make(map[string]bool, len(in.Skills))
	for _, sk := range in.Skills {
		sk = strings.TrimSpace(sk)
		if sk == "" || seen[strings.ToLower(sk)] {
			continue
		}
		seen[strings.ToLower(sk)] = true
		skills = append(skills, sk)
	}
	t := &models.Task{
		ID:          uuid.New(),
		PosterID:    posterID,
		Title:       title,
		Description: in.Description,
		Budget:      in.Budget,
		Category:    in.Category,
		Skills:      skills,
		Deadline:    in.Deadline,
		Status:      models.TaskStatusOpen,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListOpen returns the tasks still accepting proposals, newest first.
func (s *Service) ListOpen(ctx context.Context) ([]*models.Task, error) {
	return s.repo.ListOpen(ctx)
}

func (s *Service) ListMine(ctx context.Context, posterID uuid.UUID) ([]*models.Task, error) {
	return s.repo.ListByPoster(ctx, posterID)
}
