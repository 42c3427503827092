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
	profileColumns = `id, user_id, birthdate, sex, height_feet, height_inches, weight_pounds,
		medical_conditions, medications, created_at, updated_at`
	profileSelect = `SELECT ` + profileColumns + ` FROM health_profiles WHERE user_id = $1`
	profileUpsert = `INSERT INTO health_profiles (id, user_id, birthdate, sex, height_feet, height_inches,
			weight_pounds, medical_conditions, medications, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			birthdate = EXCLUDED.birthdate,
			sex = EXCLUDED.sex,
			height_feet = EXCLUDED.height_feet,
			height_inches = EXCLUDED.height_inches,
			weight_pounds = EXCLUDED.weight_pounds,
			medical_conditions = EXCLUDED.medical_conditions,
			medications = EXCLUDED.medications,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + profileColumns
)

// GetHealthProfile returns the profile of userID or ErrNotFound.
func (r *Repository) GetHealthProfile(ctx context.Context, userID string) (*domain.HealthProfile, error) {
	return scanProfile(r.db.QueryRow(ctx, profileSelect, strings.TrimSpace(userID)))
}

// UpsertHealthProfile creates or replaces the user's profile and refreshes profile from the stored row.
func (r *Repository) UpsertHealthProfile(ctx context.Context, profile *domain.HealthProfile) error {
	if profile == nil || strings.TrimSpace(profile.UserID) == "" {
		return repository.ErrInvalidArgument
	}
	birthdate, err := time.Parse(domain.BirthdateLayout, profile.Birthdate)
	if err != nil {
		return repository.ErrInvalidArgument
	}
	now := time.Now().UTC()
	row := r.db.QueryRow(ctx, profileUpsert,
		profile.ID,
		profile.UserID,
		birthdate,
		profile.Sex,
		profile.HeightFeet,
		profile.HeightInches,
		profile.WeightPounds,
		nonNil(profile.MedicalConditions),
		nonNil(profile.Medications),
		now,
	)
	stored, err := scanProfile(row)
	if err != nil {
		if isCheckViolation(err) {
			return repository.ErrInvalidArgument
		}
		return fmt.Errorf("upsert health profile: %w", err)
	}
	*profile = *stored
	return nil
}

func scanProfile(row pgx.Row) (*domain.HealthProfile, error) {
	var (
		p         domain.HealthProfile
		birthdate time.Time
	)
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&birthdate,
		&p.Sex,
		&p.HeightFeet,
		&p.HeightInches,
		&p.WeightPounds,
		&p.MedicalConditions,
		&p.Medications,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	p.Birthdate = birthdate.Format(domain.BirthdateLayout)
	p.MedicalConditions = nonNil(p.MedicalConditions)
	p.Medications = nonNil(p.Medications)
	return &p, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
