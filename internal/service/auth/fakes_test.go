package auth

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryRepo backs users and reset tokens with maps guarded by one mutex, mirroring the
// row-level guarantees of the SQL implementation.
type memoryRepo struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	tokens map[string]*domain.PasswordResetToken

	lookupErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:  make(map[string]*domain.User),
		tokens: make(map[string]*domain.PasswordResetToken),
	}
}

func (m *memoryRepo) CreateUser(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return repository.ErrConflict
		}
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memoryRepo) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryRepo) GetUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memoryRepo) CreateResetToken(_ context.Context, token *domain.PasswordResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.UserID == token.UserID && !existing.Used {
			existing.Used = true
			usedAt := token.CreatedAt
			existing.UsedAt = &usedAt
		}
	}
	copied := *token
	m.tokens[token.TokenHash] = &copied
	return nil
}

func (m *memoryRepo) ConsumeResetToken(_ context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[tokenHash]
	if !ok || !token.Valid(now) {
		return "", repository.ErrNotFound
	}
	token.Used = true
	token.UsedAt = &now
	user, ok := m.users[token.UserID]
	if !ok {
		return "", repository.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return token.UserID, nil
}

func (m *memoryRepo) DeleteExpiredResetTokens(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for hash, token := range m.tokens {
		if token.ExpiresAt.Before(before) || (token.Used && token.UsedAt != nil && token.UsedAt.Before(before)) {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (m *memoryRepo) tokenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

type sentMail struct {
	to   string
	link string
}

type mailerMock struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	sent  []sentMail
}

func (m *mailerMock) SendPasswordReset(ctx context.Context, to, link string) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

func (m *mailerMock) last() (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}
