// Package session stores server-side login sessions keyed by an opaque random id.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/splax/healthmatters/internal/domain"
)

// ErrNotFound is returned for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, userID string) (domain.Session, error)
	Get(ctx context.Context, id string) (domain.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, userID string) error
	Close()
}

const idBytes = 32

func newID() (string, error) {
	buf := make([]byte, idBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func newSession(userID string, now time.Time, ttl time.Duration) (domain.Session, error) {
	if userID == "" {
		return domain.Session{}, errors.New("session: empty user id")
	}
	id, err := newID()
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{ID: id, UserID: userID, CreatedAt: now, ExpiresAt: now.Add(ttl)}, nil
}
