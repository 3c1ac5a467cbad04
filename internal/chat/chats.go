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
	"fmt"
	"strings"
)

// CreatePrivateChat returns the private chat between actor and targetID,
// creating it with both users as members the first time.
func (e *Engine) CreatePrivateChat(ctx context.Context, actor int64, targetID int64) (chat models.Chat, err error) {
	defer e.finish("createPrivateChat", &err)

	if targetID == actor {
		return models.Chat{}, apperr.Validation("can't start a private chat with yourself")
	}
	key := database.PrivateKey(actor, targetID)

	err = e.mutate(ctx, "private:"+key, func(tx *database.Tx) ([]delivery, error) {
		existing, err := tx.ChatByPrivateKey(ctx, key)
		if err == nil {
			existing.Members, err = tx.ChatMembers(ctx, existing.ID)
			chat = existing
			return nil, err
		} else if !errors.Is(err, database.ErrNotFound) {
			return nil, err
		}

		if err := loadUser(ctx, &tx.Queries, targetID); err != nil {
			return nil, err
		}

		id, err := e.newID()
		if err != nil {
			return nil, err
		}
		now := e.timestamp()
		chat = models.Chat{ID: id, CreatorID: actor, CreatedAt: now}
		if err := tx.InsertChat(ctx, &chat, key); err != nil {
			return nil, err
		}
		for _, userID := range []int64{actor, targetID} {
			member := models.ChatMember{ChatID: id, UserID: userID, Role: models.ChatRoleMember, JoinedAt: now}
			if err := tx.InsertChatMember(ctx, member); err != nil {
				return nil, err
			}
		}
		if chat.Members, err = tx.ChatMembers(ctx, id); err != nil {
			return nil, err
		}

		return []delivery{
			{hub.UserRoom(actor), hub.ChatEvent(hub.ChatCreated, id, chat)},
			{hub.UserRoom(targetID), hub.ChatEvent(hub.ChatCreated, id, chat)},
		}, nil
	})

	if database.IsUniqueViolation(err) {
		// created concurrently by another node, the constraint kept it unique
		chat, err = e.store.ChatByPrivateKey(ctx, key)
		if err != nil {
			return models.Chat{}, err
		}
		chat.Members, err = e.store.ChatMembers(ctx, chat.ID)
	}
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// CreateGroupChat creates a group chat with actor as ADMIN and memberIDs as MEMBER.
func (e *Engine) CreateGroupChat(ctx context.Context, actor int64, name string, memberIDs []int64) (chat models.Chat, err error) {
	defer e.finish("createGroupChat", &err)

	name = strings.TrimSpace(name)
	if name != "" {
		if err := invalid(validator.Name(name)); err != nil {
			return models.Chat{}, err
		}
	}

	seen := map[int64]bool{actor: true}
	members := []int64{}
	for _, id := range memberIDs {
		if !seen[id] {
			seen[id] = true
			members = append(members, id)
		}
	}
	if len(members) == 0 {
		return models.Chat{}, apperr.Validation("a group chat needs at least one other member")
	}

	id, err := e.newID()
	if err != nil {
		return models.Chat{}, err
	}

	err = e.mutate(ctx, chatLock(id), func(tx *database.Tx) ([]delivery, error) {
		for _, userID := range members {
			if err := loadUser(ctx, &tx.Queries, userID); err != nil {
				return nil, err
			}
		}

		now := e.timestamp()
		chat = models.Chat{ID: id, IsGroup: true, Name: name, CreatorID: actor, CreatedAt: now}
		if err := tx.InsertChat(ctx, &chat, ""); err != nil {
			return nil, err
		}

		admin := models.ChatMember{ChatID: id, UserID: actor, Role: models.ChatRoleAdmin, JoinedAt: now}
		if err := tx.InsertChatMember(ctx, admin); err != nil {
			return nil, err
		}
		for _, userID := range members {
			member := models.ChatMember{ChatID: id, UserID: userID, Role: models.ChatRoleMember, JoinedAt: now}
			if err := tx.InsertChatMember(ctx, member); err != nil {
				return nil, err
			}
		}

		var err error
		if chat.Members, err = tx.ChatMembers(ctx, id); err != nil {
			return nil, err
		}

		deliveries := make([]delivery, 0, len(chat.Members))
		for _, m := range chat.Members {
			deliveries = append(deliveries, delivery{hub.UserRoom(m.UserID), hub.ChatEvent(hub.ChatCreated, id, chat)})
		}
		return deliveries, nil
	})
	if err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// AddChatMember adds userID to a group chat, only chat admins may do so.
func (e *Engine) AddChatMember(ctx context.Context, actor int64, chatID int64, userID int64) (member models.ChatMember, err error) {
	defer e.finish("addChatMember", &err)

	err = e.mutate(ctx, chatLock(chatID), func(tx *database.Tx) ([]delivery, error) {
		chat, err := loadChat(ctx, &tx.Queries, chatID)
		if err != nil {
			return nil, err
		}
		membership, err := chatMembership(ctx, &tx.Queries, chatID, actor)
		if err != nil {
			return nil, err
		}
		if err := authz.ChatAdmin(actor, membership); err != nil {
			return nil, err
		}
		if !chat.IsGroup {
			return nil, apperr.Validation("members can't be added to a private chat")
		}
		if err := loadUser(ctx, &tx.Queries, userID); err != nil {
			return nil, err
		}

		existing, err := tx.ChatMember(ctx, chatID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, apperr.Conflict("user is already a member of this chat")
		}

		member = models.ChatMember{ChatID: chatID, UserID: userID, Role: models.ChatRoleMember, JoinedAt: e.timestamp()}
		if err := tx.InsertChatMember(ctx, member); err != nil {
			return nil, err
		}

		if chat.Members, err = tx.ChatMembers(ctx, chatID); err != nil {
			return nil, err
		}
		for _, m := range chat.Members {
			if m.UserID == userID {
				member = m
			}
		}

		return []delivery{
			{hub.ChatRoom(chatID), hub.Event{Type: hub.MemberAdded, ChatID: chatID, UserID: userID, Payload: member}},
			{hub.UserRoom(userID), hub.ChatEvent(hub.ChatCreated, chatID, chat)},
		}, nil
	})
	if err != nil {
		return models.ChatMember{}, err
	}
	return member, nil
}

// ListChats returns the chats of actor with their last message, most recently active first.
func (e *Engine) ListChats(ctx context.Context, actor int64) (chats []models.Chat, err error) {
	defer e.finish("listChats", &err)

	chats, err = e.store.ChatsForUser(ctx, actor)
	if err != nil {
		return nil, err
	}

	lastIDs := make([]int64, 0, len(chats))
	for _, c := range chats {
		if c.LastMessageID != 0 {
			lastIDs = append(lastIDs, c.LastMessageID)
		}
	}
	last, err := e.store.MessagesByIDs(ctx, lastIDs)
	if err != nil {
		return nil, err
	}
	for i := range chats {
		if m, ok := last[chats[i].LastMessageID]; ok {
			chats[i].LastMessage = &m
		}
	}
	return chats, nil
}

// GetChat returns the chat with its members and pinned message.
func (e *Engine) GetChat(ctx context.Context, actor int64, chatID int64) (chat models.Chat, err error) {
	defer e.finish("getChat", &err)

	chat, _, err = authorizeChat(ctx, &e.store.Queries, actor, chatID, authz.View)
	if err != nil {
		return models.Chat{}, err
	}

	if chat.Members, err = e.store.ChatMembers(ctx, chatID); err != nil {
		return models.Chat{}, err
	}
	for i := range chat.Members {
		chat.Members[i].Online = e.isOnline(ctx, chat.Members[i].UserID)
	}

	if chat.PinnedMessageID != 0 {
		pinned, err := e.store.MessageByID(ctx, chat.PinnedMessageID)
		if err != nil {
			return models.Chat{}, fmt.Errorf("loading pinned message: %w", err)
		}
		page := []models.Message{pinned}
		if err := decorate(ctx, &e.store.Queries, page); err != nil {
			return models.Chat{}, err
		}
		chat.PinnedMessage = &page[0]
	}
	return chat, nil
}

func (e *Engine) isOnline(ctx context.Context, userID int64) bool {
	if e.presence == nil {
		return false
	}
	online, err := e.presence.IsOnline(ctx, userID)
	if err != nil {
		e.sugar.Warnf("Couldn't read presence of user ID %d: %v", userID, err)
		return false
	}
	return online
}
