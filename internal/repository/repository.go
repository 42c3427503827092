package repository

import (
	"context"
	"time"

	"github.com/splax/healthmatters/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// ResetTokenRepository manages password reset tokens.
type ResetTokenRepository interface {
	// CreateResetToken retires the user's outstanding tokens and stores the new one.
	CreateResetToken(ctx context.Context, token *domain.PasswordResetToken) error
	// ConsumeResetToken marks a valid token used and sets the owner's password hash in one
	// transaction. Unknown, used or expired tokens yield ErrNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error)
	DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error)
}

// HealthProfileRepository stores the single profile of each user.
type HealthProfileRepository interface {
	GetHealthProfile(ctx context.Context, userID string) (*domain.HealthProfile, error)
	UpsertHealthProfile(ctx context.Context, profile *domain.HealthProfile) error
}

// LabResultRepository stores analysed lab reports.
type LabResultRepository interface {
	CreateLabResult(ctx context.Context, result *domain.LabResult) error
	ListLabResults(ctx context.Context, userID string) ([]domain.LabResult, error)
	GetLabResult(ctx context.Context, userID, id string) (*domain.LabResult, error)
}
