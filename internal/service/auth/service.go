package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/mailer"
	"github.com/splax/healthmatters/internal/repository"
	"github.com/splax/healthmatters/internal/session"
	"github.com/splax/healthmatters/internal/validate"
	"github.com/splax/healthmatters/pkg/config"
	"github.com/splax/healthmatters/pkg/crypto"
)

const (
	msgEmailTaken   = "Email already registered"
	msgBadLogin     = "Incorrect email or password"
	msgNotLoggedIn  = "Not logged in"
	msgInvalidReset = "Invalid or expired reset token"
)

// Service handles account and session workflows.
type Service struct {
	users    repository.UserRepository
	tokens   repository.ResetTokenRepository
	sessions session.Store
	mail     mailer.Sender
	logger   *slog.Logger
	cfg      config.APIConfig
	now      func() time.Time
	pending  *sync.WaitGroup
}

// New constructs a Service.
func New(users repository.UserRepository, tokens repository.ResetTokenRepository, sessions session.Store, mail mailer.Sender, logger *slog.Logger, cfg config.APIConfig) Service {
	if logger == nil {
		logger = slog.Default()
	}
	if mail == nil {
		mail = mailer.Disabled{}
	}
	return Service{users: users, tokens: tokens, sessions: sessions, mail: mail, logger: logger, cfg: cfg, now: time.Now, pending: &sync.WaitGroup{}}
}

// Credentials is the registration payload.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// LoginInput is the login payload. Length rules are not enforced so every failure reads the same.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an account and opens a session for it.
func (s Service) Register(ctx context.Context, in Credentials) (*domain.User, domain.Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, domain.Session{}, err
	}
	hash, err := crypto.HashPassword(in.Password)
	if err != nil {
		return nil, domain.Session{}, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        in.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.Session{}, apperr.Conflict(msgEmailTaken)
		}
		return nil, domain.Session{}, fmt.Errorf("create user: %w", err)
	}
	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, sess, nil
}

// Login verifies credentials and opens a session. Unknown emails and wrong passwords are
// indistinguishable to the caller.
func (s Service) Login(ctx context.Context, in LoginInput) (*domain.User, domain.Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return nil, domain.Session{}, err
	}
	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Session{}, fmt.Errorf("lookup user: %w", err)
		}
		_ = crypto.ComparePassword(crypto.DummyHash(), in.Password)
		return nil, domain.Session{}, apperr.Auth(msgBadLogin)
	}
	if err := crypto.ComparePassword(user.PasswordHash, in.Password); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable", "user_id", user.ID, "error", err)
		}
		return nil, domain.Session{}, apperr.Auth(msgBadLogin)
	}
	sess, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, sess, nil
}

// Logout destroys the session. Unknown sessions are ignored.
func (s Service) Logout(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CurrentUser resolves the account behind a session.
func (s Service) CurrentUser(ctx context.Context, sessionID string) (*domain.User, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, apperr.NotAuthenticated(msgNotLoggedIn)
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, apperr.NotAuthenticated(msgNotLoggedIn)
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	user, err := s.users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.sessions.Delete(ctx, sessionID)
			return nil, apperr.NotAuthenticated(msgNotLoggedIn)
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
