package domain

import "time"

// PasswordResetToken is a single-use credential allowing a password change. Only the SHA-256 digest
// of the secret sent to the user is stored.
type PasswordResetToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Valid reports whether the token can still be redeemed at now.
func (t PasswordResetToken) Valid(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
