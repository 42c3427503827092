package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
	"github.com/splax/healthmatters/internal/validate"
)

// MsgProfileRequired is returned when an operation needs a profile the user has not created.
const MsgProfileRequired = "Please complete your health profile first"

// Service manages health profiles.
type Service struct {
	repo   repository.HealthProfileRepository
	logger *slog.Logger
	now    func() time.Time
}

// New constructs a Service.
func New(repo repository.HealthProfileRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{repo: repo, logger: logger, now: time.Now}
}

// Input is the editable part of a profile.
type Input struct {
	Birthdate         string   `json:"birthdate" validate:"required,datetime=2006-01-02"`
	Sex               string   `json:"sex" validate:"required,oneof=male female"`
	HeightFeet        int      `json:"heightFeet" validate:"gte=1,lte=8"`
	HeightInches      int      `json:"heightInches" validate:"gte=0,lte=11"`
	WeightPounds      int      `json:"weightPounds" validate:"gte=1,lte=1000"`
	MedicalConditions []string `json:"medicalConditions" validate:"max=50,dive,max=200"`
	Medications       []string `json:"medications" validate:"max=50,dive,max=200"`
}

// BMIResult is the computed body mass index of a profile.
type BMIResult struct {
	BMI      float64 `json:"bmi"`
	Category string  `json:"category"`
}

// Get returns the user's profile, or nil when none exists.
func (s Service) Get(ctx context.Context, userID string) (*domain.HealthProfile, error) {
	p, err := s.repo.GetHealthProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load health profile: %w", err)
	}
	return p, nil
}

// Require returns the user's profile or a not-found error asking the user to complete it.
func (s Service) Require(ctx context.Context, userID string) (*domain.HealthProfile, error) {
	p, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound(MsgProfileRequired)
	}
	return p, nil
}

// Save creates or replaces the user's profile.
func (s Service) Save(ctx context.Context, userID string, in Input) (*domain.HealthProfile, error) {
	in.Sex = strings.ToLower(strings.TrimSpace(in.Sex))
	in.Birthdate = strings.TrimSpace(in.Birthdate)
	in.MedicalConditions = cleanList(in.MedicalConditions)
	in.Medications = cleanList(in.Medications)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	born, _ := time.Parse(domain.BirthdateLayout, in.Birthdate)
	if born.After(s.now()) {
		return nil, apperr.Validation("birthdate must not be in the future")
	}

	p := &domain.HealthProfile{
		ID:                uuid.NewString(),
		UserID:            userID,
		Birthdate:         in.Birthdate,
		Sex:               in.Sex,
		HeightFeet:        in.HeightFeet,
		HeightInches:      in.HeightInches,
		WeightPounds:      in.WeightPounds,
		MedicalConditions: in.MedicalConditions,
		Medications:       in.Medications,
	}
	if err := s.repo.UpsertHealthProfile(ctx, p); err != nil {
		if errors.Is(err, repository.ErrInvalidArgument) {
			return nil, apperr.Validation("Invalid health profile")
		}
		return nil, fmt.Errorf("save health profile: %w", err)
	}
	s.logger.Info("health profile saved", "user_id", userID)
	return p, nil
}

// BMI computes the BMI of the user's profile.
func (s Service) BMI(ctx context.Context, userID string) (BMIResult, error) {
	p, err := s.Require(ctx, userID)
	if err != nil {
		return BMIResult{}, err
	}
	bmi := p.BMI()
	return BMIResult{BMI: bmi, Category: domain.BMICategory(bmi)}, nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
