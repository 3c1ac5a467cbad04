// Package chat implements the chat, message, server and role operations.
// Every mutation loads the actor's membership inside its transaction, checks
// it with authz, writes, commits and only then publishes its events.
package chat

import (
	"chatcore/internal/apperr"
	"chatcore/internal/authz"
	"chatcore/internal/database"
	"chatcore/internal/hub"
	"chatcore/internal/metrics"
	"chatcore/internal/models"
	"chatcore/internal/snowflake"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Publisher hands events to the realtime layer, either the local hub or the
// relay that fans out to every node.
type Publisher interface {
	Publish(ctx context.Context, room hub.Room, ev hub.Event)
}

type Presence interface {
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

type Engine struct {
	store    *database.Store
	ids      *snowflake.Generator
	pub      Publisher
	presence Presence
	sugar    *zap.SugaredLogger
	locks    *keyedMutex
	now      func() time.Time
}

// New creates the engine. presence may be nil, then every member is reported offline.
func New(store *database.Store, ids *snowflake.Generator, pub Publisher, presence Presence, sugar *zap.SugaredLogger) *Engine {
	return &Engine{
		store:    store,
		ids:      ids,
		pub:      pub,
		presence: presence,
		sugar:    sugar,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

type delivery struct {
	room  hub.Room
	event hub.Event
}

// mutate runs fn in a transaction while holding the lock of lockKey and
// publishes the returned deliveries once the transaction committed.
func (e *Engine) mutate(ctx context.Context, lockKey string, fn func(tx *database.Tx) ([]delivery, error)) error {
	unlock := e.locks.lock(lockKey)
	defer unlock()

	var deliveries []delivery
	err := e.store.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		deliveries, err = fn(tx)
		return err
	})
	if err != nil {
		return err
	}

	publishCtx := context.WithoutCancel(ctx)
	for _, d := range deliveries {
		e.pub.Publish(publishCtx, d.room, d.event)
	}
	return nil
}

// finish classifies the error of an operation and records its outcome.
func (e *Engine) finish(operation string, errp *error) {
	result := "ok"
	if *errp != nil {
		*errp = e.classify(operation, *errp)
		result = apperr.KindOf(*errp).String()
	}
	metrics.EngineOperations.WithLabelValues(operation, result).Inc()
}

func (e *Engine) classify(operation string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, database.ErrNotFound) {
		return apperr.NotFound("not found")
	}

	e.sugar.Errorf("Operation %s failed: %v", operation, err)
	return apperr.Infrastructure(err)
}

func (e *Engine) newID() (int64, error) {
	return e.ids.Generate()
}

// timestamp is truncated to milliseconds, the precision the store keeps
func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation("%v", err)
}

func chatLock(chatID int64) string {
	return string(hub.ChatRoom(chatID))
}

func serverLock(serverID int64) string {
	return string(hub.ServerRoom(serverID))
}

func loadChat(ctx context.Context, q *database.Queries, chatID int64) (models.Chat, error) {
	chat, err := q.ChatByID(ctx, chatID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Chat{}, apperr.NotFound("chat not found")
	}
	return chat, err
}

func loadMessage(ctx context.Context, q *database.Queries, messageID int64) (models.Message, error) {
	message, err := q.MessageByID(ctx, messageID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Message{}, apperr.NotFound("message not found")
	}
	return message, err
}

func loadServer(ctx context.Context, q *database.Queries, serverID int64) (models.Server, error) {
	server, err := q.ServerByID(ctx, serverID)
	if errors.Is(err, database.ErrNotFound) {
		return models.Server{}, apperr.NotFound("server not found")
	}
	return server, err
}

func loadUser(ctx context.Context, q *database.Queries, userID int64) error {
	exists, err := q.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !exists {
		return apperr.NotFound("user not found")
	}
	return nil
}

// chatMembership returns nil when the user is not a member.
func chatMembership(ctx context.Context, q *database.Queries, chatID int64, userID int64) (*authz.ChatMembership, error) {
	member, err := q.ChatMember(ctx, chatID, userID)
	if err != nil || member == nil {
		return nil, err
	}
	return &authz.ChatMembership{UserID: member.UserID, Role: member.Role}, nil
}

func serverMembership(ctx context.Context, q *database.Queries, serverID int64, userID int64) (*authz.ServerMembership, error) {
	member, err := q.ServerMember(ctx, serverID, userID)
	if err != nil || member == nil {
		return nil, err
	}
	return &authz.ServerMembership{UserID: member.UserID, Roles: member.Roles}, nil
}

// authorizeChat loads the chat and checks the actor may exercise capability on it.
func authorizeChat(ctx context.Context, q *database.Queries, actor int64, chatID int64, capability authz.Capability) (models.Chat, *authz.ChatMembership, error) {
	chat, err := loadChat(ctx, q, chatID)
	if err != nil {
		return models.Chat{}, nil, err
	}
	membership, err := chatMembership(ctx, q, chatID, actor)
	if err != nil {
		return models.Chat{}, nil, err
	}
	if err := authz.Chat(actor, membership, capability); err != nil {
		return models.Chat{}, nil, err
	}
	return chat, membership, nil
}

func authorizeServer(ctx context.Context, q *database.Queries, actor int64, serverID int64, capability authz.Capability) (models.Server, *authz.ServerMembership, error) {
	server, err := loadServer(ctx, q, serverID)
	if err != nil {
		return models.Server{}, nil, err
	}
	membership, err := serverMembership(ctx, q, serverID, actor)
	if err != nil {
		return models.Server{}, nil, err
	}
	if err := authz.Server(actor, membership, capability); err != nil {
		return models.Server{}, nil, err
	}
	return server, membership, nil
}

// CanJoin decides whether a realtime connection of userID may join room.
func (e *Engine) CanJoin(ctx context.Context, userID int64, room hub.Room) (err error) {
	defer e.finish("canJoin", &err)

	kind, id, err := hub.ParseRoom(string(room))
	if err != nil {
		return apperr.Validation("%v", err)
	}

	switch kind {
	case hub.RoomUser:
		if id != userID {
			return apperr.Authorization("can't join the room of another user")
		}
		return nil
	case hub.RoomChat:
		_, _, err := authorizeChat(ctx, &e.store.Queries, userID, id, authz.View)
		return err
	case hub.RoomServer:
		_, _, err := authorizeServer(ctx, &e.store.Queries, userID, id, authz.View)
		return err
	}
	return apperr.Validation("unknown room kind")
}
