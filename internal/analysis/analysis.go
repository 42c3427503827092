// Package analysis turns extracted lab report text into structured interpretations using a
// language model.
package analysis

import (
	"context"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
)

// Analyzer interprets lab reports and produces wellness tips.
type Analyzer interface {
	AnalyzeLabs(ctx context.Context, req LabRequest) (domain.LabAnalysis, error)
	HealthTips(ctx context.Context, req TipsRequest) ([]string, error)
}

// LabRequest is the input of one lab analysis.
type LabRequest struct {
	Profile     domain.HealthProfile
	Age         int
	BMI         float64
	BMICategory string
	Previous    []domain.LabAnalysis
	Text        string
}

// TipsRequest describes the person tips are generated for.
type TipsRequest struct {
	Age               int      `json:"age"`
	Sex               string   `json:"sex"`
	BMI               float64  `json:"bmi"`
	MedicalConditions []string `json:"medicalConditions"`
	Medications       []string `json:"medications"`
}

// Disabled is used when no AI provider is configured.
type Disabled struct{}

func (Disabled) AnalyzeLabs(context.Context, LabRequest) (domain.LabAnalysis, error) {
	return domain.LabAnalysis{}, apperr.Upstream("AI analysis is not configured", nil)
}

func (Disabled) HealthTips(context.Context, TipsRequest) ([]string, error) {
	return nil, apperr.Upstream("AI analysis is not configured", nil)
}
