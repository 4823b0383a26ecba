package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"dilution-ops-backend/internal/apperr"
	"dilution-ops-backend/internal/model"
	"dilution-ops-backend/internal/pharmacy"
)

type mockAuth struct {
	LoginFunc func(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error)
	calls     int
}

func (m *mockAuth) Login(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
	m.calls++
	return m.LoginFunc(ctx, username, password)
}

type memStore struct {
	rows map[string]model.Session
}

func newMemStore() *memStore { return &memStore{rows: map[string]model.Session{}} }

func (m *memStore) SaveSession(ctx context.Context, s *model.Session) error {
	m.rows[s.ID] = *s
	return nil
}

func (m *memStore) FindSession(ctx context.Context, id string) (*model.Session, error) {
	row, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &row, nil
}

func (m *memStore) DeleteSession(ctx context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

func signedToken(t *testing.T, exp time.Time) string {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": 7,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestManager_LoginRequiresCredentials(t *testing.T) {
	auth := &mockAuth{}
	m := NewManager(auth, newMemStore(), time.Hour)

	_, err := m.Login(context.Background(), "alice", "")

	var vErr *apperr.ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, 0, auth.calls, "no backend call on invalid input")
}

func TestManager_LoginUsesTokenExpiry(t *testing.T) {
	exp := time.Now().Add(20 * time.Minute).Truncate(time.Second)
	auth := &mockAuth{LoginFunc: func(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
		return &pharmacy.LoginResponse{UserID: 7, Username: username, Role: pharmacy.RolePharmacist, AccessToken: signedToken(t, exp)}, nil
	}}
	store := newMemStore()
	m := NewManager(auth, store, 12*time.Hour)

	s, err := m.Login(context.Background(), "alice", "pw")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, int64(7), s.UserID)
	assert.True(t, s.ExpiresAt.Equal(exp.UTC()), "expiry taken from the token exp claim")
	assert.Equal(t, "Bearer "+s.Token, s.AuthHeader())
	assert.Contains(t, store.rows, s.ID)
}

func TestManager_LoginOpaqueTokenFallsBackToTTL(t *testing.T) {
	auth := &mockAuth{LoginFunc: func(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
		return &pharmacy.LoginResponse{UserID: 1, Username: username, Role: pharmacy.RoleAdmin, AccessToken: "opaque"}, nil
	}}
	m := NewManager(auth, newMemStore(), time.Hour)
	before := time.Now()

	s, err := m.Login(context.Background(), "root", "pw")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), s.ExpiresAt, 5*time.Second)
}

func TestManager_GetSurvivesRestart(t *testing.T) {
	auth := &mockAuth{LoginFunc: func(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
		return &pharmacy.LoginResponse{UserID: 3, Username: username, Role: pharmacy.RoleDoctor, AccessToken: "tok"}, nil
	}}
	store := newMemStore()
	s, err := NewManager(auth, store, time.Hour).Login(context.Background(), "doc", "pw")
	require.NoError(t, err)

	restarted := NewManager(auth, store, time.Hour)
	got, err := restarted.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc", got.Username)
	assert.Equal(t, "tok", got.AccessToken())
}

func TestManager_GetExpiredOrMissing(t *testing.T) {
	store := newMemStore()
	store.rows["old"] = model.Session{ID: "old", Token: "t", ExpiresAt: time.Now().Add(-time.Minute)}
	m := NewManager(&mockAuth{}, store, time.Hour)

	_, err := m.Get(context.Background(), "old")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	assert.NotContains(t, store.rows, "old", "expired session is removed")

	_, err = m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = m.Get(context.Background(), "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestManager_Logout(t *testing.T) {
	auth := &mockAuth{LoginFunc: func(ctx context.Context, username, password string) (*pharmacy.LoginResponse, error) {
		return &pharmacy.LoginResponse{UserID: 3, Username: username, Role: pharmacy.RoleDoctor, AccessToken: "tok"}, nil
	}}
	m := NewManager(auth, newMemStore(), time.Hour)
	s, err := m.Login(context.Background(), "doc", "pw")
	require.NoError(t, err)

	require.NoError(t, m.Logout(context.Background(), s.ID))
	_, err = m.Get(context.Background(), s.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestSession_EmptyTokenNoHeader(t *testing.T) {
	var s *Session
	assert.Equal(t, "", s.AuthHeader())
	assert.Equal(t, "", (&Session{}).AuthHeader())
}
