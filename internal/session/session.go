// Package session keeps the logged-in identity and backend token for each
// dashboard console.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/model"
	"dilution-ops-backend/internal/pharmacy"
)

// Session is the logged-in identity.
type Session struct {
	ID        string        `json:"sessionId"`
	UserID    int64         `json:"userId"`
	Username  string        `json:"username"`
	Role      pharmacy.Role `json:"role"`
	Token     string        `json:"-"`
	ExpiresAt time.Time     `json:"expiresAt"`
	CreatedAt time.Time     `json:"createdAt"`
}

// AccessToken implements backend.Credentials.
func (s *Session) AccessToken() string {
	if s == nil {
		return ""
	}
	return s.Token
}

// AuthHeader is the Authorization header value, or "" without a token.
func (s *Session) AuthHeader() string {
	if token := s.AccessToken(); token != "" {
		return "Bearer " + token
	}
	return ""
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Authenticator exchanges credentials for a backend token.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error)
}

// Persister stores sessions across restarts.
type Persister interface {
	SaveSession(ctx context.Context, s *model.Session) error
	FindSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// Manager creates, resolves and destroys sessions.
type Manager struct {
	auth  Authenticator
	store Persister
	cache *cache.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a session manager. ttl caps the session lifetime when the
// backend token carries no earlier expiry.
func NewManager(auth Authenticator, store Persister, ttl time.Duration) *Manager {
	return &Manager{
		auth:  auth,
		store: store,
		cache: cache.New(ttl, 10*time.Minute),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Login authenticates against the backend and opens a new session.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, apperr.Invalid("credentials", "username and password are required")
	}

	resp, err := m.auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	if !resp.Role.Valid() {
		zap.S().Warnf("user %s logged in with unknown role %q", resp.Username, resp.Role)
	}

	now := m.now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    resp.UserID,
		Username:  resp.Username,
		Role:      resp.Role,
		Token:     resp.AccessToken,
		CreatedAt: now,
		ExpiresAt: tokenExpiry(resp.AccessToken, now.Add(m.ttl)),
	}

	if err := m.store.SaveSession(ctx, toModel(s)); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	m.cache.Set(s.ID, s, s.ExpiresAt.Sub(now))
	zap.S().Infow("session opened", "user", s.Username, "role", s.Role, "expires_at", s.ExpiresAt)
	return s, nil
}

// Get resolves a session id. Missing or expired sessions yield ErrUnauthenticated.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperr.ErrUnauthenticated
	}
	now := m.now()
	if cached, found := m.cache.Get(id); found {
		s := cached.(*Session)
		if !s.Expired(now) {
			return s, nil
		}
	}

	row, err := m.store.FindSession(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	s := fromModel(row)
	if s.Expired(now) {
		if err := m.Logout(ctx, id); err != nil {
			zap.S().Warnf("failed to drop expired session %s: %v", id, err)
		}
		return nil, apperr.ErrUnauthenticated
	}
	m.cache.Set(s.ID, s, s.ExpiresAt.Sub(now))
	return s, nil
}

// Logout destroys the session in memory and in the store.
func (m *Manager) Logout(ctx context.Context, id string) error {
	m.cache.Delete(id)
	if err := m.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// tokenExpiry returns the token's exp claim when it is earlier than fallback.
// The claim is read without verification; the backend remains the authority.
func tokenExpiry(token string, fallback time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	if exp.Time.Before(fallback) {
		return exp.Time.UTC()
	}
	return fallback
}

func toModel(s *Session) *model.Session {
	return &model.Session{
		ID:        s.ID,
		UserID:    s.UserID,
		Username:  s.Username,
		Role:      string(s.Role),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}

func fromModel(m *model.Session) *Session {
	return &Session{
		ID:        m.ID,
		UserID:    m.UserID,
		Username:  m.Username,
		Role:      pharmacy.Role(m.Role),
		Token:     m.Token,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}
