package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
)

const (
	resetTokenRetire = `UPDATE password_reset_tokens
		SET used = TRUE, used_at = $2
		WHERE user_id = $1 AND used = FALSE`
	resetTokenInsert = `INSERT INTO password_reset_tokens (id, user_id, token_hash, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`
	resetTokenConsume = `UPDATE password_reset_tokens
		SET used = TRUE,
			used_at = $2
		WHERE token_hash = $1
			AND used = FALSE
			AND expires_at > $2
		RETURNING user_id`
	resetTokenSetPassword = `UPDATE users SET password_hash = $2 WHERE id = $1`
	resetTokenPurge       = `DELETE FROM password_reset_tokens WHERE expires_at < $1 OR (used = TRUE AND used_at < $1)`
)

// CreateResetToken retires the user's unused tokens and stores the new one in a single transaction.
func (r *Repository) CreateResetToken(ctx context.Context, token *domain.PasswordResetToken) error {
	if token == nil || strings.TrimSpace(token.TokenHash) == "" || strings.TrimSpace(token.UserID) == "" {
		return repository.ErrInvalidArgument
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset token tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, resetTokenRetire, token.UserID, token.CreatedAt); err != nil {
		return fmt.Errorf("retire reset tokens: %w", err)
	}
	if _, err := tx.Exec(ctx, resetTokenInsert, token.ID, token.UserID, token.TokenHash, token.ExpiresAt.UTC(), token.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert reset token: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit reset token: %w", err)
	}
	return nil
}

// ConsumeResetToken redeems the token identified by tokenHash and stores passwordHash for its owner.
// The conditional UPDATE guarantees at most one caller observes a row for a given token.
func (r *Repository) ConsumeResetToken(ctx context.Context, tokenHash, passwordHash string, now time.Time) (string, error) {
	tokenHash = strings.TrimSpace(tokenHash)
	if tokenHash == "" || passwordHash == "" {
		return "", repository.ErrInvalidArgument
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin consume tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID string
	if err := tx.QueryRow(ctx, resetTokenConsume, tokenHash, now.UTC()).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", repository.ErrNotFound
		}
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	tag, err := tx.Exec(ctx, resetTokenSetPassword, userID, passwordHash)
	if err != nil {
		return "", fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", repository.ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit consume: %w", err)
	}
	return userID, nil
}

// DeleteExpiredResetTokens removes tokens that expired, or were used, before the cutoff.
func (r *Repository) DeleteExpiredResetTokens(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, resetTokenPurge, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
