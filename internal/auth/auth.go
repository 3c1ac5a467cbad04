// Package auth registers users, logs them in and keeps their refresh sessions.
package auth

import (
	"chatcore/internal/apperr"
	"chatcore/internal/database"
	"chatcore/internal/jwt"
	"chatcore/internal/keyValue"
	"chatcore/internal/metrics"
	"chatcore/internal/models"
	"chatcore/internal/snowflake"
	"chatcore/internal/validator"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultCost   = 12
	maxAvatarSize = 2048
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthenticated    = errors.New("not logged in")
)

type Presence interface {
	SetOnline(ctx context.Context, userID int64) error
	SetOffline(ctx context.Context, userID int64) error
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    int64
	SessionID string
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// ProfileUpdate changes only the fields that are set.
type ProfileUpdate struct {
	Avatar *string
	Bio    *string
}

type Service struct {
	store    *database.Store
	kv       *keyValue.Store
	tokens   *jwt.Manager
	ids      *snowflake.Generator
	presence Presence
	sugar    *zap.SugaredLogger

	cost int
	now  func() time.Time
}

// New returns the service. cost is the bcrypt cost, DefaultCost when out of range.
func New(store *database.Store, kv *keyValue.Store, tokens *jwt.Manager, ids *snowflake.Generator, presence Presence, sugar *zap.SugaredLogger, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Service{
		store:    store,
		kv:       kv,
		tokens:   tokens,
		ids:      ids,
		presence: presence,
		sugar:    sugar,
		cost:     cost,
		now:      time.Now,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func DefaultAvatar(username string) string {
	return "https://api.dicebear.com/6.x/initials/svg?seed=" + url.QueryEscape(username)
}

func count(action string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		result = "denied"
	default:
		result = apperr.KindOf(err).String()
	}
	metrics.AuthAttempts.WithLabelValues(action, result).Inc()
}

func field(name string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.Validation("%s: %v", name, err)
}

// Register creates the user and logs them in.
func (s *Service) Register(ctx context.Context, input RegisterInput) (user models.User, pair jwt.Pair, err error) {
	defer func() { count("register", err) }()

	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	if err := field("username", validator.Username(input.Username)); err != nil {
		return models.User{}, jwt.Pair{}, err
	}
	if err := field("email", validator.Email(input.Email)); err != nil {
		return models.User{}, jwt.Pair{}, err
	}
	if err := field("password", validator.Password(input.Password)); err != nil {
		return models.User{}, jwt.Pair{}, err
	}

	usernameTaken, emailTaken, err := s.store.UsernameOrEmailTaken(ctx, input.Username, input.Email)
	if err != nil {
		return models.User{}, jwt.Pair{}, apperr.Infrastructure(err)
	}
	if usernameTaken {
		return models.User{}, jwt.Pair{}, apperr.Conflict("username is taken")
	}
	if emailTaken {
		return models.User{}, jwt.Pair{}, apperr.Conflict("email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return models.User{}, jwt.Pair{}, apperr.Infrastructure(err)
	}

	id, err := s.ids.Generate()
	if err != nil {
		return models.User{}, jwt.Pair{}, apperr.Infrastructure(err)
	}

	user = models.User{
		ID:        id,
		Username:  input.Username,
		Email:     input.Email,
		Password:  hash,
		Avatar:    DefaultAvatar(input.Username),
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	if err := s.store.InsertUser(ctx, &user); err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, jwt.Pair{}, apperr.Conflict("username or email is taken")
		}
		return models.User{}, jwt.Pair{}, apperr.Infrastructure(err)
	}
	s.sugar.Infof("Registered user ID %d as %s", user.ID, user.Username)

	pair, err = s.startSession(ctx, user.ID)
	if err != nil {
		return models.User{}, jwt.Pair{}, err
	}
	return user, pair, nil
}

func (s *Service) Login(ctx context.Context, email string, password string) (user models.User, pair jwt.Pair, err error) {
	defer func() { count("login", err) }()

	user, err = s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, jwt.Pair{}, ErrInvalidCredentials
	} else if err != nil {
		return models.User{}, jwt.Pair{}, apperr.Infrastructure(err)
	}

	if err := bcrypt.CompareHashAndPassword(user.Password, []byte(password)); err != nil {
		s.sugar.Debugf("Wrong password for user ID %d", user.ID)
		return models.User{}, jwt.Pair{}, ErrInvalidCredentials
	}

	pair, err = s.startSession(ctx, user.ID)
	if err != nil {
		return models.User{}, jwt.Pair{}, err
	}
	return user, pair, nil
}

func (s *Service) startSession(ctx context.Context, userID int64) (jwt.Pair, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return jwt.Pair{}, apperr.Infrastructure(err)
	}

	pair, err := s.tokens.CreatePair(userID, sessionID.String())
	if err != nil {
		return jwt.Pair{}, apperr.Infrastructure(err)
	}

	err = s.kv.Set(ctx, sessionKey(sessionID.String()), strconv.FormatInt(userID, 10), s.tokens.RefreshTTL())
	if err != nil {
		return jwt.Pair{}, apperr.Infrastructure(err)
	}

	if err := s.presence.SetOnline(ctx, userID); err != nil {
		s.sugar.Warnf("Couldn't set user ID %d online: %v", userID, err)
	}
	return pair, nil
}

// Refresh trades a refresh token for a new pair. The old session is consumed,
// so a refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (pair jwt.Pair, err error) {
	defer func() { count("refresh", err) }()

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		s.sugar.Debugf("Rejected refresh token: %v", err)
		return jwt.Pair{}, ErrUnauthenticated
	}

	owner, err := s.kv.GetDel(ctx, sessionKey(claims.SessionID))
	if err != nil {
		return jwt.Pair{}, apperr.Infrastructure(err)
	}
	if owner != strconv.FormatInt(claims.UserID, 10) {
		return jwt.Pair{}, ErrUnauthenticated
	}

	return s.startSession(ctx, claims.UserID)
}

// Authenticate verifies an access token and checks its session wasn't logged out.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (Identity, error) {
	claims, err := s.tokens.VerifyAccess(accessToken)
	if err != nil {
		return Identity{}, ErrUnauthenticated
	}

	owner, err := s.kv.Get(ctx, sessionKey(claims.SessionID))
	if err != nil {
		return Identity{}, apperr.Infrastructure(err)
	}
	if owner != strconv.FormatInt(claims.UserID, 10) {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

func (s *Service) Logout(ctx context.Context, id Identity) error {
	if err := s.kv.Del(ctx, sessionKey(id.SessionID)); err != nil {
		return apperr.Infrastructure(err)
	}
	if err := s.presence.SetOffline(ctx, id.UserID); err != nil {
		s.sugar.Warnf("Couldn't set user ID %d offline: %v", id.UserID, err)
	}
	return nil
}

func (s *Service) Me(ctx context.Context, userID int64) (models.User, error) {
	user, err := s.store.UserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		return models.User{}, apperr.NotFound("user not found")
	} else if err != nil {
		return models.User{}, apperr.Infrastructure(err)
	}
	return user, nil
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, update ProfileUpdate) (models.User, error) {
	user, err := s.Me(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	if update.Avatar != nil {
		avatar := strings.TrimSpace(*update.Avatar)
		if avatar == "" {
			avatar = DefaultAvatar(user.Username)
		} else if len(avatar) > maxAvatarSize {
			return models.User{}, apperr.Validation("avatar: long_avatar")
		}
		user.Avatar = avatar
	}
	if update.Bio != nil {
		if err := field("bio", validator.Bio(*update.Bio)); err != nil {
			return models.User{}, err
		}
		user.Bio = *update.Bio
	}

	if err := s.store.UpdateUserProfile(ctx, userID, user.Avatar, user.Bio); err != nil {
		return models.User{}, apperr.Infrastructure(err)
	}
	return user, nil
}
