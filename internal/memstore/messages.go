package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/timegarden/backend/internal/models"
)

type MessageRepo struct{ s *Store }

func (r *MessageRepo) FindThreadTx(_ context.Context, tx pgx.Tx, taskID, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return uuid.Nil, false, err
	}
	for id, t := range st.threads {
		if t.TaskID == taskID && isParticipant(st, id, userA) && isParticipant(st, id, userB) {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (r *MessageRepo) CreateThreadTx(_ context.Context, tx pgx.Tx, t *models.Thread, participants []models.ThreadParticipant) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	if _, ok := st.tasks[t.TaskID]; !ok {
		return fmt.Errorf("memstore: thread references missing task %s", t.TaskID)
	}
	now := time.Now().UTC()
	t.CreatedAt, t.LastMessageAt = now, now
	st.threads[t.ID] = *t
	for _, p := range participants {
		p.ThreadID = t.ID
		st.participants = append(st.participants, p)
	}
	return nil
}

func (r *MessageRepo) Participants(_ context.Context, threadID uuid.UUID) ([]uuid.UUID, error) {
	out := []uuid.UUID{}
	r.s.read(func(st *state) {
		for _, p := range st.participants {
			if p.ThreadID == threadID {
				out = append(out, p.UserID)
			}
		}
	})
	return out, nil
}

func (r *MessageRepo) ListThreads(_ context.Context, userID uuid.UUID) ([]*models.ThreadSummary, error) {
	out := []*models.ThreadSummary{}
	r.s.read(func(st *state) {
		for id, t := range st.threads {
			if !isParticipant(st, id, userID) {
				continue
			}
			sum := &models.ThreadSummary{Thread: t, TaskTitle: st.tasks[t.TaskID].Title, PartnerName: "Unknown"}
			for _, p := range st.participants {
				if p.ThreadID == id && p.UserID != userID {
					sum.PartnerID = p.UserID
					if u, ok := st.users[p.UserID]; ok {
						sum.PartnerName = u.DisplayName
					}
				}
			}
			for _, m := range st.messages {
				if m.ThreadID == id {
					sum.LastMessage = m.Body
				}
			}
			out = append(out, sum)
		}
	})
	slices.SortStableFunc(out, func(a, b *models.ThreadSummary) int { return b.LastMessageAt.Compare(a.LastMessageAt) })
	return out, nil
}

func (r *MessageRepo) ListMessages(_ context.Context, threadID uuid.UUID) ([]*models.Message, error) {
	out := []*models.Message{}
	r.s.read(func(st *state) {
		for _, m := range st.messages {
			if m.ThreadID == threadID {
				m.SenderName = st.users[m.SenderID].DisplayName
				out = append(out, &m)
			}
		}
	})
	return out, nil
}

func (r *MessageRepo) CreateMessageTx(_ context.Context, tx pgx.Tx, m *models.Message) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	t, ok := st.threads[m.ThreadID]
	if !ok {
		return fmt.Errorf("memstore: message references missing thread %s", m.ThreadID)
	}
	m.CreatedAt = time.Now().UTC()
	m.SenderName = st.users[m.SenderID].DisplayName
	st.messages = append(st.messages, *m)
	t.LastMessageAt = m.CreatedAt
	st.threads[t.ID] = t
	return nil
}

func (r *MessageRepo) GetMessageForUpdate(_ context.Context, tx pgx.Tx, id uuid.UUID) (*models.Message, error) {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return nil, err
	}
	for _, m := range st.messages {
		if m.ID == id {
			m.SenderName = st.users[m.SenderID].DisplayName
			return &m, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MessageRepo) DeleteMessageTx(_ context.Context, tx pgx.Tx, m *models.Message) error {
	st, err := r.s.stateOf(tx)
	if err != nil {
		return err
	}
	st.messages = slices.DeleteFunc(st.messages, func(row models.Message) bool { return row.ID == m.ID })
	t, ok := st.threads[m.ThreadID]
	if !ok {
		return nil
	}
	t.LastMessageAt = time.Now().UTC()
	for _, row := range st.messages {
		if row.ThreadID == t.ID {
			t.LastMessageAt = row.CreatedAt
		}
	}
	st.threads[t.ID] = t
	return nil
}

func isParticipant(st *state, threadID, userID uuid.UUID) bool {
	return slices.ContainsFunc(st.participants, func(p models.ThreadParticipant) bool {
		return p.ThreadID == threadID && p.UserID == userID
	})
}
