package user

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/minicart-io/minicart/pkg/pubsub"
	"github.com/minicart-io/minicart/pkg/schemas/common"
	"github.com/minicart-io/minicart/pkg/schemas/users"
)

// Service registers and authenticates users, publishing an event after each
// committed mutation. Publish failures degrade to "event not sent".
type Service struct {
	store     Store
	publisher pubsub.Publisher
	log       *slog.Logger
}

func NewService(store Store, publisher pubsub.Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, log: logger}
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	now := time.Now().UTC()
	u := &User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		Role:         "customer",
		PasswordHash: hashPassword(in.Password),
		CreatedAt:    now,
	}
	if err := s.store.Create(ctx, u); err != nil {
		return nil, err
	}

	s.publish(ctx, users.EventRegistered, users.RegisteredData{
		UserID:       u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Phone:        u.Phone,
		Role:         u.Role,
		RegisteredAt: now,
	})
	return u, nil
}

// Login verifies credentials and announces the login. The remote address and
// user agent ride along for the notification service's login alert.
func (s *Service) Login(ctx context.Context, email, password, ipAddress, userAgent string) (*User, error) {
	u, err := s.store.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !verifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	s.publish(ctx, users.EventLoggedIn, users.LoggedInData{
		UserID:     u.ID,
		Email:      u.Email,
		Name:       u.Name,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		LoggedInAt: time.Now().UTC(),
	})
	return u, nil
}

func (s *Service) publish(ctx context.Context, event string, data any) {
	env, err := common.New(event, data)
	if err == nil {
		err = s.publisher.Publish(ctx, users.Exchange, event, env)
	}
	if err != nil {
		s.log.Warn("failed to publish user event",
			slog.String("event", event), slog.Any("error", err))
	}
}
