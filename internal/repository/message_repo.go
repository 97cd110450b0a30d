package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/timegarden/backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

// FindThreadTx returns the thread about taskID that both users take part in.
func (r *MessageRepo) FindThreadTx(ctx context.Context, tx pgx.Tx, taskID, userA, userB uuid.UUID) (uuid.UUID, bool, error) {
	var id uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT t.id
		FROM threads t
		JOIN thread_participants a ON a.thread_id = t.id AND a.user_id = $2
		JOIN thread_participants b ON b.thread_id = t.id AND b.user_id = $3
		WHERE t.task_id = $1
		LIMIT 1
	`, taskID, userA, userB).Scan(&id)
	if IsNotFound(err) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// CreateThreadTx inserts the thread and its participants.
func (r *MessageRepo) CreateThreadTx(ctx context.Context, tx pgx.Tx, t *models.Thread, participants []models.ThreadParticipant) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO threads (id, task_id) VALUES ($1, $2)
		RETURNING last_message_at, created_at
	`, t.ID, t.TaskID).Scan(&t.LastMessageAt, &t.CreatedAt)
	if err != nil {
		return err
	}
	for _, p := range participants {
		if _, err := tx.Exec(ctx, `
			INSERT INTO thread_participants (thread_id, user_id, role) VALUES ($1, $2, $3)
		`, t.ID, p.UserID, p.Role); err != nil {
			return err
		}
	}
	return nil
}

// Participants returns the user IDs taking part in a thread. An unknown thread has none.
func (r *MessageRepo) Participants(ctx context.Context, threadID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM thread_participants WHERE thread_id = $1`, threadID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListThreads returns userID's threads, most recently active first.
func (r *MessageRepo) ListThreads(ctx context.Context, userID uuid.UUID) ([]*models.ThreadSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.task_id, t.last_message_at, t.created_at, task.title,
		       COALESCE(partner.user_id, '00000000-0000-0000-0000-000000000000'::uuid),
		       COALESCE(u.display_name, 'Unknown'),
		       COALESCE((SELECT m.body FROM messages m WHERE m.thread_id = t.id
		                 ORDER BY m.created_at DESC LIMIT 1), '')
		FROM threads t
		JOIN thread_participants me ON me.thread_id = t.id AND me.user_id = $1
		JOIN tasks task ON task.id = t.task_id
		LEFT JOIN thread_participants partner ON partner.thread_id = t.id AND partner.user_id <> $1
		LEFT JOIN users u ON u.id = partner.user_id
		ORDER BY t.last_message_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.ThreadSummary{}
	for rows.Next() {
		var s models.ThreadSummary
		if err := rows.Scan(&s.ID, &s.TaskID, &s.LastMessageAt, &s.CreatedAt, &s.TaskTitle,
			&s.PartnerID, &s.PartnerName, &s.LastMessage); err != nil {
			return nil, err
		}
		list = append(list, &s)
	}
	return list, rows.Err()
}

const messageColumns = `m.id, m.thread_id, m.sender_id, u.display_name, m.body, m.created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	if err := row.Scan(&m.ID, &m.ThreadID, &m.SenderID, &m.SenderName, &m.Body, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns a thread's messages, oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, threadID uuid.UUID) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.thread_id = $1
		ORDER BY m.created_at, m.id
	`, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []*models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// CreateMessageTx inserts m, fills in the sender name and moves the thread's activity time.
func (r *MessageRepo) CreateMessageTx(ctx context.Context, tx pgx.Tx, m *models.Message) error {
	err := tx.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO messages (id, thread_id, sender_id, body) VALUES ($1, $2, $3, $4)
			RETURNING created_at
		)
		SELECT ins.created_at, u.display_name FROM ins, users u WHERE u.id = $3
	`, m.ID, m.ThreadID, m.SenderID, m.Body).Scan(&m.CreatedAt, &m.SenderName)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `UPDATE threads SET last_message_at = $2 WHERE id = $1`, m.ThreadID, m.CreatedAt)
	return err
}

// GetMessageForUpdate locks the message row. Call within a transaction.
func (r *MessageRepo) GetMessageForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Message, error) {
	return scanMessage(tx.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m JOIN users u ON u.id = m.sender_id
		WHERE m.id = $1
		FOR UPDATE OF m
	`, id))
}

// DeleteMessageTx removes a message and resets the thread's activity time to its newest remaining message.
func (r *MessageRepo) DeleteMessageTx(ctx context.Context, tx pgx.Tx, m *models.Message) error {
	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, m.ID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		UPDATE threads
		SET last_message_at = COALESCE((SELECT max(created_at) FROM messages WHERE thread_id = $1), now())
		WHERE id = $1
	`, m.ThreadID)
	return err
}
