package domain

import "time"

// User represents a registered account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// PublicUser is the projection of a user that may leave the server.
type PublicUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Public strips credential material from the user.
func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}
