package database

import (
	"chatcore/internal/models"
	"context"
	"database/sql"
	"slices"
	"time"
)

// Cursor selects messages strictly older than Before. BeforeID breaks ties
// between messages sharing the same timestamp, 0 compares on time only.
type Cursor struct {
	Before   time.Time
	BeforeID int64
}

const messageColumns = `m.id, m.chat_id, m.sender_id, m.content, m.reply_to_id, m.file_ref,
	m.edited, m.deleted, m.created_at, m.updated_at, u.username, u.avatar`

const messageFrom = " FROM messages m JOIN users u ON u.id = m.sender_id "

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var m models.Message
	var replyTo sql.NullInt64
	var fileRef sql.NullString
	var createdAt, updatedAt int64
	sender := &models.UserSummary{}

	err := row.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.Content, &replyTo, &fileRef,
		&m.Edited, &m.Deleted, &createdAt, &updatedAt, &sender.Username, &sender.Avatar)
	if err != nil {
		return models.Message{}, notFound(err)
	}

	m.ReplyToID = replyTo.Int64
	m.FileRef = fileRef.String
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	sender.ID = m.SenderID
	m.Sender = sender
	m.Reactions = []models.Reaction{}
	return m, nil
}

func (q *Queries) InsertMessage(ctx context.Context, m *models.Message) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, content, reply_to_id, file_ref, edited, deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.SenderID, m.Content, nullID(m.ReplyToID), nullString(m.FileRef),
		m.Edited, m.Deleted, toMillis(m.CreatedAt), toMillis(m.UpdatedAt))
	return err
}

func (q *Queries) MessageByID(ctx context.Context, id int64) (models.Message, error) {
	return scanMessage(q.q.QueryRowContext(ctx, "SELECT "+messageColumns+messageFrom+"WHERE m.id = ?", id))
}

// UpdateMessage writes back the mutable part of a message: content and the edited/deleted flags.
func (q *Queries) UpdateMessage(ctx context.Context, m *models.Message) error {
	_, err := q.q.ExecContext(ctx,
		"UPDATE messages SET content = ?, file_ref = ?, edited = ?, deleted = ?, updated_at = ? WHERE id = ?",
		m.Content, nullString(m.FileRef), m.Edited, m.Deleted, toMillis(m.UpdatedAt), m.ID)
	return err
}

// ListMessages selects the newest limit messages before the cursor and
// returns them oldest first.
func (q *Queries) ListMessages(ctx context.Context, chatID int64, limit int, cursor *Cursor) ([]models.Message, error) {
	query := "SELECT " + messageColumns + messageFrom + "WHERE m.chat_id = ?"
	args := []any{chatID}

	if cursor != nil {
		before := toMillis(cursor.Before)
		if cursor.BeforeID == 0 {
			query += " AND m.created_at < ?"
			args = append(args, before)
		} else {
			query += " AND (m.created_at < ? OR (m.created_at = ? AND m.id < ?))"
			args = append(args, before, before, cursor.BeforeID)
		}
	}

	query += " ORDER BY m.created_at DESC, m.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := q.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(messages)
	return messages, nil
}

func (q *Queries) MessagesByIDs(ctx context.Context, ids []int64) (map[int64]models.Message, error) {
	messages := make(map[int64]models.Message, len(ids))
	if len(ids) == 0 {
		return messages, nil
	}

	rows, err := q.q.QueryContext(ctx, "SELECT "+messageColumns+messageFrom+"WHERE m.id IN ("+placeholders(len(ids))+")", idArgs(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages[m.ID] = m
	}
	return messages, rows.Err()
}
