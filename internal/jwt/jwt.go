package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

type UserToken struct {
	UserID    int64  `json:"userID"`
	SessionID string `json:"sid"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}

// Manager signs access and refresh tokens with separate secrets, so a refresh
// token can never be used as an access token and the other way around.
type Manager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func New(accessSecret string, refreshSecret string, accessTTL time.Duration, refreshTTL time.Duration) *Manager {
	if refreshSecret == "" {
		refreshSecret = accessSecret + ":refresh"
	}
	return &Manager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (m *Manager) RefreshTTL() time.Duration {
	return m.refreshTTL
}

func (m *Manager) CreatePair(userID int64, sessionID string) (Pair, error) {
	currentTime := m.now().UTC()

	accessExpires := currentTime.Add(m.accessTTL)
	accessToken, err := m.sign(m.accessSecret, UserToken{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(accessExpires),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	refreshExpires := currentTime.Add(m.refreshTTL)
	refreshToken, err := m.sign(m.refreshSecret, UserToken{
		UserID:    userID,
		SessionID: sessionID,
		Kind:      kindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(refreshExpires),
		},
	})
	if err != nil {
		return Pair{}, err
	}

	return Pair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpires,
		RefreshExpiresAt: refreshExpires,
	}, nil
}

func (m *Manager) sign(secret []byte, claims UserToken) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(secret)
}

func (m *Manager) VerifyAccess(tokenString string) (UserToken, error) {
	return m.verify(tokenString, m.accessSecret, kindAccess)
}

func (m *Manager) VerifyRefresh(tokenString string) (UserToken, error) {
	return m.verify(tokenString, m.refreshSecret, kindRefresh)
}

func (m *Manager) verify(tokenString string, secret []byte, kind string) (UserToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserToken{}, func(token *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithTimeFunc(m.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return UserToken{}, ErrTokenExpired
		}
		return UserToken{}, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*UserToken)
	if !ok || !token.Valid || claims.Kind != kind || claims.UserID == 0 {
		return UserToken{}, ErrTokenInvalid
	}
	return *claims, nil
}

// ExtractBearer reads the token out of an Authorization header value.
func ExtractBearer(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
