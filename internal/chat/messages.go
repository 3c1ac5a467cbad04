package chat

import (
	"chatcore/internal/apperr"
	"chatcore/internal/authz"
	"chatcore/internal/database"
	"chatcore/internal/hub"
	"chatcore/internal/models"
	"chatcore/internal/validator"
	"context"
	"errors"
)

type MessageInput struct {
	Content   string
	ReplyToID int64
	FileRef   string
}

type ReactionRemovedPayload struct {
	MessageID int64  `json:"messageId,string"`
	UserID    int64  `json:"userId,string"`
	Emoji     string `json:"emoji"`
}

type PinPayload struct {
	ChatID    int64           `json:"chatId,string"`
	MessageID int64           `json:"messageId,string"`
	Message   *models.Message `json:"message,omitempty"`
}

// SendMessage stores a message, moves the last message pointer of the chat
// and emits message.created to the chat room.
func (e *Engine) SendMessage(ctx context.Context, actor int64, chatID int64, input MessageInput) (message models.Message, err error) {
	defer e.finish("sendMessage", &err)

	if err := invalid(validator.Content(input.Content, input.FileRef != "")); err != nil {
		return models.Message{}, err
	}

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeChat(ctx, &tx.Queries, actor, chatID, authz.SendMessage); err != nil {
			return nil, err
		}

		var replyTo *models.Message
		if input.ReplyToID != 0 {
			target, err := tx.MessageByID(ctx, input.ReplyToID)
			if errors.Is(err, database.ErrNotFound) || (err == nil && target.ChatID != chatID) {
				return nil, apperr.Validation("reply target is not a message of this chat")
			} else if err != nil {
				return nil, err
			}
			replyTo = &target
		}

		id, err := e.newID()
		if err != nil {
			return nil, err
		}
		now := e.timestamp()
		m := models.Message{
			ID:        id,
			ChatID:    chatID,
			SenderID:  actor,
			Content:   input.Content,
			ReplyToID: input.ReplyToID,
			FileRef:   input.FileRef,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertMessage(ctx, &m); err != nil {
			return nil, err
		}
		if err := tx.SetLastMessage(ctx, chatID, id, now); err != nil {
			return nil, err
		}

		if message, err = tx.MessageByID(ctx, id); err != nil {
			return nil, err
		}
		message.ReplyTo = replyTo

		return []delivery{{hub.ChatRoom(chatID), hub.ChatEvent(hub.MessageCreated, chatID, message)}}, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// ListMessages returns up to limit messages older than cursor, oldest first.
// A nil cursor selects the newest page.
func (e *Engine) ListMessages(ctx context.Context, actor int64, chatID int64, limit int, cursor *database.Cursor) (messages []models.Message, err error) {
	defer e.finish("listMessages", &err)

	if limit <= 0 {
		limit = DefaultPageSize
	} else if limit > MaxPageSize {
		limit = MaxPageSize
	}

	if _, _, err := authorizeChat(ctx, &e.store.Queries, actor, chatID, authz.View); err != nil {
		return nil, err
	}

	messages, err = e.store.ListMessages(ctx, chatID, limit, cursor)
	if err != nil {
		return nil, err
	}
	if err := decorate(ctx, &e.store.Queries, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// decorate attaches reactions and reply targets to messages in place.
func decorate(ctx context.Context, q *database.Queries, messages []models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(messages))
	replyIDs := []int64{}
	for _, m := range messages {
		ids = append(ids, m.ID)
		if m.ReplyToID != 0 {
			replyIDs = append(replyIDs, m.ReplyToID)
		}
	}

	reactions, err := q.ReactionsForMessages(ctx, ids)
	if err != nil {
		return err
	}
	replies, err := q.MessagesByIDs(ctx, replyIDs)
	if err != nil {
		return err
	}

	for i := range messages {
		if r, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = r
		}
		if reply, ok := replies[messages[i].ReplyToID]; ok {
			messages[i].ReplyTo = &reply
		}
	}
	return nil
}

// chatOfMessage finds the chat a message belongs to, which selects the lock
// its mutations run under. The chat of a message never changes. Missing
// messages and messages of chats the actor isn't in fail the same way, so
// message ids of foreign chats are indistinguishable from missing ones.
func (e *Engine) chatOfMessage(ctx context.Context, actor int64, messageID int64) (int64, error) {
	hidden := apperr.Authorization("message not found or not accessible")

	m, err := e.store.MessageByID(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return 0, hidden
	} else if err != nil {
		return 0, err
	}

	membership, err := e.store.ChatMember(ctx, m.ChatID, actor)
	if err != nil {
		return 0, err
	}
	if membership == nil {
		return 0, hidden
	}
	return m.ChatID, nil
}

// EditMessage replaces the content of a message of actor and marks it edited.
func (e *Engine) EditMessage(ctx context.Context, actor int64, messageID int64, content string) (message models.Message, err error) {
	defer e.finish("editMessage", &err)

	chatID, err := e.chatOfMessage(ctx, actor, messageID)
	if err != nil {
		return models.Message{}, err
	}

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		m, err := loadMessage(ctx, &tx.Queries, messageID)
		if err != nil {
			return nil, err
		}
		membership, err := chatMembership(ctx, &tx.Queries, m.ChatID, actor)
		if err != nil {
			return nil, err
		}
		if err := authz.OwnMessage(actor, membership, authz.EditOwnMessage, m.SenderID); err != nil {
			return nil, err
		}
		if m.Deleted {
			return nil, apperr.Conflict("a deleted message can't be edited")
		}
		if err := invalid(validator.Content(content, m.FileRef != "")); err != nil {
			return nil, err
		}

		m.Content = content
		m.Edited = true
		m.UpdatedAt = e.timestamp()
		if err := tx.UpdateMessage(ctx, &m); err != nil {
			return nil, err
		}

		page := []models.Message{m}
		if err := decorate(ctx, &tx.Queries, page); err != nil {
			return nil, err
		}
		message = page[0]

		return []delivery{{hub.ChatRoom(m.ChatID), hub.ChatEvent(hub.MessageEdited, m.ChatID, message)}}, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

// DeleteMessage soft deletes a message of actor. The row keeps its id,
// sender and position, the content becomes the tombstone.
func (e *Engine) DeleteMessage(ctx context.Context, actor int64, messageID int64) (message models.Message, err error) {
	defer e.finish("deleteMessage", &err)

	chatID, err := e.chatOfMessage(ctx, actor, messageID)
	if err != nil {
		return models.Message{}, err
	}

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		m, err := loadMessage(ctx, &tx.Queries, messageID)
		if err != nil {
			return nil, err
		}
		membership, err := chatMembership(ctx, &tx.Queries, m.ChatID, actor)
		if err != nil {
			return nil, err
		}
		if err := authz.OwnMessage(actor, membership, authz.DeleteOwnMessage, m.SenderID); err != nil {
			return nil, err
		}
		if m.Deleted {
			return nil, apperr.Conflict("message is already deleted")
		}

		m.Content = models.Tombstone
		m.FileRef = ""
		m.Deleted = true
		m.UpdatedAt = e.timestamp()
		if err := tx.UpdateMessage(ctx, &m); err != nil {
			return nil, err
		}

		page := []models.Message{m}
		if err := decorate(ctx, &tx.Queries, page); err != nil {
			return nil, err
		}
		message = page[0]

		return []delivery{{hub.ChatRoom(m.ChatID), hub.ChatEvent(hub.MessageDeleted, m.ChatID, message)}}, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (e *Engine) AddReaction(ctx context.Context, actor int64, messageID int64, emoji string) (reaction models.Reaction, err error) {
	defer e.finish("addReaction", &err)

	if err := invalid(validator.Emoji(emoji)); err != nil {
		return models.Reaction{}, err
	}
	chatID, err := e.chatOfMessage(ctx, actor, messageID)
	if err != nil {
		return models.Reaction{}, err
	}

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		m, err := loadMessage(ctx, &tx.Queries, messageID)
		if err != nil {
			return nil, err
		}
		membership, err := chatMembership(ctx, &tx.Queries, m.ChatID, actor)
		if err != nil {
			return nil, err
		}
		if err := authz.Chat(actor, membership, authz.View); err != nil {
			return nil, err
		}
		if m.Deleted {
			return nil, apperr.Conflict("can't react to a deleted message")
		}

		exists, err := tx.ReactionExists(ctx, messageID, actor, emoji)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Conflict("you already reacted with %s", emoji)
		}

		id, err := e.newID()
		if err != nil {
			return nil, err
		}
		reaction = models.Reaction{ID: id, MessageID: messageID, UserID: actor, Emoji: emoji, CreatedAt: e.timestamp()}
		if err := tx.InsertReaction(ctx, &reaction); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, apperr.Conflict("you already reacted with %s", emoji)
			}
			return nil, err
		}

		return []delivery{{hub.ChatRoom(m.ChatID), hub.ChatEvent(hub.ReactionAdded, m.ChatID, reaction)}}, nil
	})
	if err != nil {
		return models.Reaction{}, err
	}
	return reaction, nil
}

// RemoveReaction also works on deleted messages.
func (e *Engine) RemoveReaction(ctx context.Context, actor int64, messageID int64, emoji string) (err error) {
	defer e.finish("removeReaction", &err)

	if err := invalid(validator.Emoji(emoji)); err != nil {
		return err
	}
	chatID, err := e.chatOfMessage(ctx, actor, messageID)
	if err != nil {
		return err
	}

	return e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		m, err := loadMessage(ctx, &tx.Queries, messageID)
		if err != nil {
			return nil, err
		}
		membership, err := chatMembership(ctx, &tx.Queries, m.ChatID, actor)
		if err != nil {
			return nil, err
		}
		if err := authz.Chat(actor, membership, authz.View); err != nil {
			return nil, err
		}

		removed, err := tx.DeleteReaction(ctx, messageID, actor, emoji)
		if err != nil {
			return nil, err
		}
		if !removed {
			return nil, apperr.NotFound("reaction not found")
		}

		payload := ReactionRemovedPayload{MessageID: messageID, UserID: actor, Emoji: emoji}
		return []delivery{{hub.ChatRoom(m.ChatID), hub.ChatEvent(hub.ReactionRemoved, m.ChatID, payload)}}, nil
	})
}

// PinMessage pins a message of the chat, replacing any previous pin.
func (e *Engine) PinMessage(ctx context.Context, actor int64, chatID int64, messageID int64) (message models.Message, err error) {
	defer e.finish("pinMessage", &err)

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		if _, _, err := authorizeChat(ctx, &tx.Queries, actor, chatID, authz.PinMessage); err != nil {
			return nil, err
		}

		m, err := loadMessage(ctx, &tx.Queries, messageID)
		if err != nil {
			return nil, err
		}
		if m.ChatID != chatID {
			return nil, apperr.Validation("message does not belong to this chat")
		}
		if m.Deleted {
			return nil, apperr.Conflict("a deleted message can't be pinned")
		}

		if err := tx.SetPinnedMessage(ctx, chatID, messageID); err != nil {
			return nil, err
		}

		page := []models.Message{m}
		if err := decorate(ctx, &tx.Queries, page); err != nil {
			return nil, err
		}
		message = page[0]

		payload := PinPayload{ChatID: chatID, MessageID: messageID, Message: &message}
		return []delivery{{hub.ChatRoom(chatID), hub.ChatEvent(hub.MessagePinned, chatID, payload)}}, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (e *Engine) UnpinMessage(ctx context.Context, actor int64, chatID int64) (err error) {
	defer e.finish("unpinMessage", &err)

	return e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		chat, _, err := authorizeChat(ctx, &tx.Queries, actor, chatID, authz.PinMessage)
		if err != nil {
			return nil, err
		}
		if chat.PinnedMessageID == 0 {
			return nil, apperr.Conflict("no message is pinned")
		}

		if err := tx.SetPinnedMessage(ctx, chatID, 0); err != nil {
			return nil, err
		}

		payload := PinPayload{ChatID: chatID, MessageID: chat.PinnedMessageID}
		return []delivery{{hub.ChatRoom(chatID), hub.ChatEvent(hub.MessageUnpinned, chatID, payload)}}, nil
	})
}
