package user

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minicart-io/minicart/pkg/schemas/common"
	"github.com/minicart-io/minicart/pkg/schemas/users"
)

type memStore struct {
	byEmail map[string]*User
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{byEmail: make(map[string]*User)}
}

func (s *memStore) Create(_ context.Context, u *User) error {
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	s.nextID++
	u.ID = s.nextID
	cp := *u
	s.byEmail[u.Email] = &cp
	return nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type memPublisher struct {
	events []common.Envelope
	keys   []string
}

func (p *memPublisher) Publish(_ context.Context, _, routingKey string, env common.Envelope) error {
	p.events = append(p.events, env)
	p.keys = append(p.keys, routingKey)
	return nil
}

func (p *memPublisher) Close() error { return nil }

func newTestService() (*Service, *memStore, *memPublisher) {
	store := newMemStore()
	pub := &memPublisher{}
	svc := NewService(store, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store, pub
}

func TestRegister(t *testing.T) {
	svc, store, pub := newTestService()

	u, err := svc.Register(context.Background(), RegisterInput{
		Name: "Kim", Email: "kim@example.com", Password: "hunter2",
	})
	require.NoError(t, err)

	assert.NotZero(t, u.ID)
	assert.Equal(t, "customer", u.Role)
	assert.NotEqual(t, "hunter2", u.PasswordHash, "password is never stored in the clear")

	stored, err := store.GetByEmail(context.Background(), "kim@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, stored.ID)

	require.Len(t, pub.events, 1)
	assert.Equal(t, users.EventRegistered, pub.keys[0])

	var data users.RegisteredData
	require.NoError(t, pub.events[0].DecodeData(&data))
	assert.Equal(t, u.ID, data.UserID)
	assert.Equal(t, "kim@example.com", data.Email)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "kim@example.com", Password: "a"})
	require.NoError(t, err)
	_, err = svc.Register(context.Background(), RegisterInput{Email: "kim@example.com", Password: "b"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc, _, pub := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{
		Name: "Kim", Email: "kim@example.com", Password: "hunter2",
	})
	require.NoError(t, err)

	u, err := svc.Login(context.Background(), "kim@example.com", "hunter2", "10.0.0.9", "curl/8.0")
	require.NoError(t, err)
	assert.Equal(t, "kim@example.com", u.Email)

	require.Len(t, pub.events, 2)
	assert.Equal(t, users.EventLoggedIn, pub.keys[1])

	var data users.LoggedInData
	require.NoError(t, pub.events[1].DecodeData(&data))
	assert.Equal(t, "10.0.0.9", data.IPAddress)
	assert.Equal(t, "curl/8.0", data.UserAgent)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, _, pub := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "kim@example.com", Password: "hunter2"})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "kim@example.com", "wrong", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(context.Background(), "ghost@example.com", "hunter2", "", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials, "unknown email is indistinguishable from a bad password")

	assert.Len(t, pub.events, 1, "failed logins publish nothing")
}

func TestVerifyPassword(t *testing.T) {
	hash := hashPassword("hunter2")
	assert.True(t, verifyPassword(hash, "hunter2"))
	assert.False(t, verifyPassword(hash, "hunter3"))
	assert.False(t, verifyPassword("", "hunter2"))
}
