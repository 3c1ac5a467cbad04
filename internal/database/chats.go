package database

import (
	"chatcore/internal/models"
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PrivateKey is the value of the unique chats.private_key column for a pair of
// users. The smaller id comes first so both orders map to the same chat.
func PrivateKey(a int64, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%d", a, b)
}

const chatColumns = "id, is_group, name, creator_id, pinned_message_id, last_message_id, last_message_at, created_at"

func scanChat(row interface{ Scan(...any) error }) (models.Chat, error) {
	var c models.Chat
	var pinned, lastID, lastAt sql.NullInt64
	var createdAt int64

	err := row.Scan(&c.ID, &c.IsGroup, &c.Name, &c.CreatorID, &pinned, &lastID, &lastAt, &createdAt)
	if err != nil {
		return models.Chat{}, notFound(err)
	}

	c.PinnedMessageID = pinned.Int64
	c.LastMessageID = lastID.Int64
	if lastAt.Valid {
		at := fromMillis(lastAt.Int64)
		c.LastMessageAt = &at
	}
	c.CreatedAt = fromMillis(createdAt)
	return c, nil
}

// InsertChat stores the chat row. privateKey is empty for group chats.
func (q *Queries) InsertChat(ctx context.Context, c *models.Chat, privateKey string) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO chats (id, is_group, name, creator_id, private_key, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		c.ID, c.IsGroup, c.Name, c.CreatorID, nullString(privateKey), toMillis(c.CreatedAt))
	return err
}

func (q *Queries) ChatByID(ctx context.Context, id int64) (models.Chat, error) {
	return scanChat(q.q.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chats WHERE id = ?", id))
}

func (q *Queries) ChatByPrivateKey(ctx context.Context, key string) (models.Chat, error) {
	return scanChat(q.q.QueryRowContext(ctx, "SELECT "+chatColumns+" FROM chats WHERE private_key = ?", key))
}

// ChatsForUser lists the chats the user is a member of, most recently active first.
func (q *Queries) ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT c.id, c.is_group, c.name, c.creator_id, c.pinned_message_id, c.last_message_id, c.last_message_at, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = ?
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []models.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (q *Queries) InsertChatMember(ctx context.Context, m models.ChatMember) error {
	_, err := q.q.ExecContext(ctx,
		"INSERT INTO chat_members (chat_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		m.ChatID, m.UserID, m.Role, toMillis(m.JoinedAt))
	return err
}

// ChatMember returns nil when the user is not a member.
func (q *Queries) ChatMember(ctx context.Context, chatID int64, userID int64) (*models.ChatMember, error) {
	var m models.ChatMember
	var joinedAt int64
	err := q.q.QueryRowContext(ctx,
		"SELECT chat_id, user_id, role, joined_at FROM chat_members WHERE chat_id = ? AND user_id = ?", chatID, userID).
		Scan(&m.ChatID, &m.UserID, &m.Role, &joinedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	m.JoinedAt = fromMillis(joinedAt)
	return &m, nil
}

func (q *Queries) ChatMembers(ctx context.Context, chatID int64) ([]models.ChatMember, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT cm.chat_id, cm.user_id, cm.role, cm.joined_at, u.username, u.avatar
		FROM chat_members cm
		JOIN users u ON u.id = cm.user_id
		WHERE cm.chat_id = ?
		ORDER BY cm.joined_at, cm.user_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := []models.ChatMember{}
	for rows.Next() {
		var m models.ChatMember
		var joinedAt int64
		user := &models.UserSummary{}
		if err := rows.Scan(&m.ChatID, &m.UserID, &m.Role, &joinedAt, &user.Username, &user.Avatar); err != nil {
			return nil, err
		}
		user.ID = m.UserID
		m.User = user
		m.JoinedAt = fromMillis(joinedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

func (q *Queries) SetLastMessage(ctx context.Context, chatID int64, messageID int64, at time.Time) error {
	_, err := q.q.ExecContext(ctx, "UPDATE chats SET last_message_id = ?, last_message_at = ? WHERE id = ?", messageID, toMillis(at), chatID)
	return err
}

// SetPinnedMessage pins messageID, or unpins when it is 0.
func (q *Queries) SetPinnedMessage(ctx context.Context, chatID int64, messageID int64) error {
	_, err := q.q.ExecContext(ctx, "UPDATE chats SET pinned_message_id = ? WHERE id = ?", nullID(messageID), chatID)
	return err
}
