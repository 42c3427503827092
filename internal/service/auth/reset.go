package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
	"github.com/splax/healthmatters/internal/validate"
	"github.com/splax/healthmatters/pkg/crypto"
)

const (
	resetTokenBytes   = 32
	tokenRetention    = 24 * time.Hour
	resetIssueTimeout = time.Minute
)

// ResetRequest asks for a reset link.
type ResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResetVerify redeems a reset token.
type ResetVerify struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8,max=128"`
}

// RequestPasswordReset emails a reset link when the address belongs to an account. The reply is
// the same whether or not it does. Token issuance and delivery run in the background after the
// lookup; only lookup failures are reported.
func (s Service) RequestPasswordReset(ctx context.Context, in ResetRequest) error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validate.Struct(in); err != nil {
		return err
	}
	user, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		issueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetIssueTimeout)
		defer cancel()
		s.issueReset(issueCtx, user)
	}()
	return nil
}

// WaitPending blocks until background reset issuance started so far has finished.
func (s Service) WaitPending() {
	s.pending.Wait()
}

func (s Service) issueReset(ctx context.Context, user *domain.User) {
	secret, err := newResetSecret()
	if err != nil {
		s.logger.Error("password reset not issued", "user_id", user.ID, "error", err)
		return
	}
	now := s.now().UTC()
	token := &domain.PasswordResetToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: hashToken(secret),
		ExpiresAt: now.Add(s.resetTTL()),
		CreatedAt: now,
	}
	if err := s.tokens.CreateResetToken(ctx, token); err != nil {
		s.logger.Error("password reset token not stored", "user_id", user.ID, "error", err)
		return
	}

	link := s.cfg.AppBaseURL + "/reset-password?token=" + url.QueryEscape(secret)
	if err := s.mail.SendPasswordReset(ctx, user.Email, link); err != nil {
		s.logger.Warn("password reset email not delivered", "user_id", user.ID, "error", err)
		return
	}
	s.logger.Info("password reset issued", "user_id", user.ID, "expires_at", token.ExpiresAt)
}

// VerifyPasswordReset sets a new password if the token is unused and unexpired, then signs the user
// out everywhere. Redemption is atomic: concurrent calls with one token succeed at most once.
func (s Service) VerifyPasswordReset(ctx context.Context, in ResetVerify) error {
	in.Token = strings.TrimSpace(in.Token)
	if err := validate.Struct(in); err != nil {
		return err
	}
	if !wellFormedSecret(in.Token) {
		return apperr.InvalidToken(msgInvalidReset)
	}
	hash, err := crypto.HashPassword(in.NewPassword)
	if err != nil {
		return err
	}
	userID, err := s.tokens.ConsumeResetToken(ctx, hashToken(in.Token), hash, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrInvalidArgument) {
			return apperr.InvalidToken(msgInvalidReset)
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	if err := s.sessions.DeleteUser(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke sessions after password reset", "user_id", userID, "error", err)
	}
	s.logger.Info("password reset completed", "user_id", userID)
	return nil
}

// RunJanitor periodically deletes reset tokens that expired or were used more than a day ago.
func (s Service) RunJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeResetTokens(ctx)
		}
	}
}

func (s Service) purgeResetTokens(ctx context.Context) {
	removed, err := s.tokens.DeleteExpiredResetTokens(ctx, s.now().UTC().Add(-tokenRetention))
	if err != nil {
		s.logger.Error("reset token purge failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("reset tokens purged", "count", removed)
	}
}

func (s Service) resetTTL() time.Duration {
	if s.cfg.ResetTokenTTL > 0 {
		return s.cfg.ResetTokenTTL
	}
	return time.Hour
}

func newResetSecret() (string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func wellFormedSecret(token string) bool {
	if len(token) != resetTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
