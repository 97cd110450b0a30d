// Package messages runs the task conversations between a poster and the people bidding on
// their task. Message delivery to connected clients goes through notify.
package messages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/timegarden/backend/internal/models"
	"github.com/timegarden/backend/internal/notify"
	"github.com/timegarden/backend/internal/repository"
)

// OpeningMessage is posted by the initiator when a thread is created.
const OpeningMessage = "Started a new conversation about this task."

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrPartnerNotFound = errors.New("partner not found")
	ErrSelfThread      = errors.New("you cannot start a conversation with yourself")
	ErrNotTaskParty    = errors.New("conversations must include the task poster")
	ErrNotParticipant  = errors.New("not a participant in this conversation")
	ErrEmptyMessage    = errors.New("message text is required")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotSender       = errors.New("you can only delete your own messages")
)

type Repo interface {
	FindThreadTx(ctx context.Context, tx pgx.Tx, taskID, userA, userB uuid.UUID) (uuid.UUID, bool, error)
	CreateThreadTx(ctx context.Context, tx pgx.Tx, t *models.Thread, participants []models.ThreadParticipant) error
	Participants(ctx context.Context, threadID uuid.UUID) ([]uuid.UUID, error)
	ListThreads(ctx context.Context, userID uuid.UUID) ([]*models.ThreadSummary, error)
	ListMessages(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error)
	CreateMessageTx(ctx context.Context, tx pgx.Tx, m *models.Message) error
	GetMessageForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Message, error)
	DeleteMessageTx(ctx context.Context, tx pgx.Tx, m *models.Message) error
}

type TaskRepo interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Task, error)
}

type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type Service struct {
	db       repository.TxBeginner
	repo     Repo
	tasks    TaskRepo
	users    UserRepo
	notifier notify.Notifier
	log      *slog.Logger
}

func NewService(db repository.TxBeginner, repo Repo, tasks TaskRepo, users UserRepo, n notify.Notifier, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, repo: repo, tasks: tasks, users: users, notifier: n, log: log}
}

// Initiate returns the thread between callerID and partnerID about taskID, creating it with an
// opening message when none exists. The task row is locked so two concurrent calls agree on one thread.
func (s *Service) Initiate(ctx context.Context, callerID, taskID, partnerID uuid.UUID) (uuid.UUID, bool, error) {
	if callerID == partnerID {
		return uuid.Nil, false, ErrSelfThread
	}
	if _, err := s.users.GetByID(ctx, partnerID); err != nil {
		if repository.IsNotFound(err) {
			return uuid.Nil, false, ErrPartnerNotFound
		}
		return uuid.Nil, false, fmt.Errorf("load partner: %w", err)
	}

	var (
		threadID uuid.UUID
		isNew    bool
	)
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		task, err := s.tasks.GetByIDForUpdate(ctx, tx, taskID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrTaskNotFound
			}
			return err
		}
		if task.PosterID != callerID && task.PosterID != partnerID {
			return ErrNotTaskParty
		}
		id, found, err := s.repo.FindThreadTx(ctx, tx, taskID, callerID, partnerID)
		if err != nil {
			return err
		}
		if found {
			threadID = id
			return nil
		}

		t := &models.Thread{ID: uuid.New(), TaskID: taskID}
		parts := []models.ThreadParticipant{
			{UserID: callerID, Role: roleOf(task, callerID)},
			{UserID: partnerID, Role: roleOf(task, partnerID)},
		}
		if err := s.repo.CreateThreadTx(ctx, tx, t, parts); err != nil {
			return err
		}
		opening := &models.Message{ID: uuid.New(), ThreadID: t.ID, SenderID: callerID, Body: OpeningMessage}
		if err := s.repo.CreateMessageTx(ctx, tx, opening); err != nil {
			return err
		}
		threadID, isNew = t.ID, true
		return nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return threadID, isNew, nil
}

func roleOf(task *models.Task, userID uuid.UUID) string {
	if task.PosterID == userID {
		return models.ThreadRolePoster
	}
	return models.ThreadRoleApplicant
}

// Send posts text to a thread the caller takes part in and pushes it to every participant.
func (s *Service) Send(ctx context.Context, callerID, threadID uuid.UUID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	participants, err := s.participants(ctx, threadID, callerID)
	if err != nil {
		return nil, err
	}
	m := &models.Message{ID: uuid.New(), ThreadID: threadID, SenderID: callerID, Body: text}
	if err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		return s.repo.CreateMessageTx(ctx, tx, m)
	}); err != nil {
		return nil, err
	}
	s.emit(ctx, notify.EventMessageSent, m, participants)
	return m, nil
}

// Messages returns a thread's messages oldest first. Only participants may read them.
func (s *Service) Messages(ctx context.Context, callerID, threadID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.participants(ctx, threadID, callerID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, threadID)
}

func (s *Service) Threads(ctx context.Context, callerID uuid.UUID) ([]*models.ThreadSummary, error) {
	return s.repo.ListThreads(ctx, callerID)
}

// Delete removes one of the caller's own messages.
func (s *Service) Delete(ctx context.Context, callerID, messageID uuid.UUID) error {
	var m *models.Message
	err := repository.WithAtomicUnit(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		m, err = s.repo.GetMessageForUpdate(ctx, tx, messageID)
		if err != nil {
			if repository.IsNotFound(err) {
				return ErrMessageNotFound
			}
			return err
		}
		if m.SenderID != callerID {
			return ErrNotSender
		}
		return s.repo.DeleteMessageTx(ctx, tx, m)
	})
	if err != nil {
		return err
	}
	participants, err := s.repo.Participants(ctx, m.ThreadID)
	if err != nil {
		s.log.Warn("load participants for delete notification", "thread_id", m.ThreadID, "error", err)
		return nil
	}
	m.Body = ""
	s.emit(ctx, notify.EventMessageDeleted, m, participants)
	return nil
}

// participants returns the thread's members, or ErrNotParticipant when callerID is not one of them.
// An unknown thread has no members.
func (s *Service) participants(ctx context.Context, threadID, callerID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.repo.Participants(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	if !slices.Contains(ids, callerID) {
		return nil, ErrNotParticipant
	}
	return ids, nil
}

func (s *Service) emit(ctx context.Context, kind string, m *models.Message, recipients []uuid.UUID) {
	if s.notifier == nil {
		return
	}
	ev := notify.Event{
		Type:       kind,
		ThreadID:   m.ThreadID,
		MessageID:  m.ID,
		Text:       m.Body,
		Recipients: recipients,
		OccurredAt: time.Now().UTC(),
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.log.Warn("message notification failed", "thread_id", ev.ThreadID, "type", kind, "error", err)
		}
	}()
}
