package database

import (
	"chatcore/internal/models"
	"context"
)

func (q *Queries) InsertReaction(ctx context.Context, r *models.Reaction) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO reactions (id, message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.MessageID, r.UserID, r.Emoji, toMillis(r.CreatedAt))
	return err
}

func (q *Queries) ReactionExists(ctx context.Context, messageID int64, userID int64, emoji string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?)",
		messageID, userID, emoji).Scan(&exists)
	return exists, err
}

// DeleteReaction reports whether a reaction was removed.
func (q *Queries) DeleteReaction(ctx context.Context, messageID int64, userID int64, emoji string) (bool, error) {
	result, err := q.q.ExecContext(ctx,
		"DELETE FROM reactions WHERE message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	return affected > 0, err
}

func (q *Queries) ReactionsForMessages(ctx context.Context, messageIDs []int64) (map[int64][]models.Reaction, error) {
	reactions := make(map[int64][]models.Reaction, len(messageIDs))
	if len(messageIDs) == 0 {
		return reactions, nil
	}

	rows, err := q.q.QueryContext(ctx,
		"SELECT id, message_id, user_id, emoji, created_at FROM reactions WHERE message_id IN ("+placeholders(len(messageIDs))+") ORDER BY created_at, id",
		idArgs(messageIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r models.Reaction
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Emoji, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = fromMillis(createdAt)
		reactions[r.MessageID] = append(reactions[r.MessageID], r)
	}
	return reactions, rows.Err()
}
