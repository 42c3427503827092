package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
)

// DB is the subset of *pgxpool.Pool used by the repository.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	db DB
}

// New constructs a Repository.
func New(db DB) *Repository {
	return &Repository{db: db}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.UserRepository          = (*Repository)(nil)
	_ repository.ResetTokenRepository    = (*Repository)(nil)
	_ repository.HealthProfileRepository = (*Repository)(nil)
	_ repository.LabResultRepository     = (*Repository)(nil)
)

// CreateUser inserts a user. Emails are stored lower-cased; a duplicate yields ErrConflict.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return repository.ErrInvalidArgument
	}
	const query = `INSERT INTO users (id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`
	user.Email = normalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail fetches a user by email, ignoring case.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE LOWER(email) = $1`
	return scanUser(r.db.QueryRow(ctx, query, normalizeEmail(email)))
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, strings.TrimSpace(id)))
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23514", "22P02", "22007", "22008":
		return true
	}
	return false
}
