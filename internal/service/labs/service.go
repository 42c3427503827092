package labs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/splax/healthmatters/internal/analysis"
	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/pdftext"
	"github.com/splax/healthmatters/internal/report"
	"github.com/splax/healthmatters/internal/repository"
	"github.com/splax/healthmatters/internal/uploads"
	"github.com/splax/healthmatters/internal/validate"
)

const (
	msgPDFOnly      = "Only PDF files are allowed"
	msgNoText       = "Unable to read text from PDF"
	defaultFileName = "lab-results.pdf"
)

// ErrNotFound is returned when a lab result does not exist for the user.
var ErrNotFound = errors.New("labs: lab result not found")

// Profiles resolves the health profile an operation depends on.
type Profiles interface {
	Get(ctx context.Context, userID string) (*domain.HealthProfile, error)
	Require(ctx context.Context, userID string) (*domain.HealthProfile, error)
}

// Extractor returns the text content of a stored PDF.
type Extractor func(ctx context.Context, path string) (string, error)

// Service runs the upload, analysis and retrieval workflows for lab results.
type Service struct {
	results  repository.LabResultRepository
	profiles Profiles
	files    *uploads.Manager
	analyzer analysis.Analyzer
	extract  Extractor
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs a Service. maxBytes bounds the size of an uploaded file.
func New(results repository.LabResultRepository, profiles Profiles, files *uploads.Manager, analyzer analysis.Analyzer, maxBytes int64, logger *slog.Logger) Service {
	if analyzer == nil {
		analyzer = analysis.Disabled{}
	}
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return Service{
		results:  results,
		profiles: profiles,
		files:    files,
		analyzer: analyzer,
		extract:  pdftext.Extract,
		maxBytes: maxBytes,
		logger:   logger,
		now:      time.Now,
	}
}

// Upload is one submitted lab report.
type Upload struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// Upload validates, stages, extracts and analyses a lab report and stores the analysis. The staged
// file is removed before returning on every path.
func (s Service) Upload(ctx context.Context, userID string, up Upload) (*domain.LabResult, error) {
	if up.Body == nil {
		return nil, apperr.Validation("No file uploaded")
	}
	if !declaredPDF(up.ContentType) {
		return nil, apperr.Validation(msgPDFOnly)
	}
	body := bufio.NewReaderSize(up.Body, uploads.SniffLen)
	head, err := body.Peek(uploads.SniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !uploads.IsPDF(head) {
		return nil, apperr.Validation(msgPDFOnly)
	}

	profile, err := s.profiles.Require(ctx, userID)
	if err != nil {
		return nil, err
	}

	path, size, err := s.files.Store(body, s.maxBytes)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.files.Cleanup(path); err != nil {
			s.logger.Error("failed to remove staged upload", "path", path, "error", err)
		}
	}()

	text, err := s.extract(ctx, path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation(msgNoText)
	}

	previous, err := s.results.ListLabResults(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load previous lab results: %w", err)
	}
	history := make([]domain.LabAnalysis, 0, len(previous))
	for _, r := range previous {
		history = append(history, r.Analysis)
	}

	bmi := profile.BMI()
	category := domain.BMICategory(bmi)
	started := s.now()
	result, err := s.analyzer.AnalyzeLabs(ctx, analysis.LabRequest{
		Profile:     *profile,
		Age:         profile.Age(started),
		BMI:         bmi,
		BMICategory: category,
		Previous:    history,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}
	result.BMI = bmiReading(bmi, category, previous)

	record := &domain.LabResult{
		ID:         uuid.NewString(),
		UserID:     userID,
		FileName:   cleanFileName(up.FileName),
		Analysis:   result,
		UploadedAt: s.now().UTC(),
	}
	if err := s.results.CreateLabResult(ctx, record); err != nil {
		return nil, fmt.Errorf("store lab result: %w", err)
	}
	s.logger.Info("lab result analysed",
		"user_id", userID,
		"result_id", record.ID,
		"bytes", size,
		"tests", len(result.Analysis),
		"duration", s.now().Sub(started),
	)
	return record, nil
}

// List returns the user's lab results oldest first.
func (s Service) List(ctx context.Context, userID string) ([]domain.LabResult, error) {
	results, err := s.results.ListLabResults(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	return results, nil
}

// Get returns one of the user's lab results.
func (s Service) Get(ctx context.Context, userID, id string) (*domain.LabResult, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	result, err := s.results.GetLabResult(ctx, userID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load lab result: %w", err)
	}
	return result, nil
}

// Report renders one of the user's lab results as PDF into w.
func (s Service) Report(ctx context.Context, userID, id string, w io.Writer) error {
	result, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	return report.RenderLabReport(w, *result)
}

// TipsInput overrides profile facts for tip generation. Absent fields come from the profile.
type TipsInput struct {
	Age               *int     `json:"age" validate:"omitempty,gte=0,lte=130"`
	Sex               *string  `json:"sex" validate:"omitempty,oneof=male female"`
	BMI               *float64 `json:"bmi" validate:"omitempty,gt=0,lte=200"`
	MedicalConditions []string `json:"medicalConditions" validate:"max=50,dive,max=200"`
	Medications       []string `json:"medications" validate:"max=50,dive,max=200"`
}

// Tips generates health tips for the user.
func (s Service) Tips(ctx context.Context, userID string, in TipsInput) ([]string, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	req := analysis.TipsRequest{MedicalConditions: in.MedicalConditions, Medications: in.Medications}
	if in.Age == nil || in.Sex == nil || in.BMI == nil {
		profile, err := s.profiles.Require(ctx, userID)
		if err != nil {
			return nil, err
		}
		req.Age = profile.Age(s.now())
		req.Sex = profile.Sex
		req.BMI = profile.BMI()
		if req.MedicalConditions == nil {
			req.MedicalConditions = profile.MedicalConditions
		}
		if req.Medications == nil {
			req.Medications = profile.Medications
		}
	}
	if in.Age != nil {
		req.Age = *in.Age
	}
	if in.Sex != nil {
		req.Sex = *in.Sex
	}
	if in.BMI != nil {
		req.BMI = *in.BMI
	}
	return s.analyzer.HealthTips(ctx, req)
}

// bmiReading replaces whatever BMI the model reported with the computed value and its change
// against the most recent stored result.
func bmiReading(bmi float64, category string, previous []domain.LabResult) *domain.BMIReading {
	reading := &domain.BMIReading{Score: domain.Number(bmi), Category: category}
	if len(previous) == 0 {
		return reading
	}
	last := previous[len(previous)-1].Analysis.BMI
	if last == nil || last.Score <= 0 {
		return reading
	}
	change := math.Round((bmi-last.Score.Float())*10) / 10
	reading.Trend = &domain.Trend{Change: domain.Number(change), Interpretation: describeChange(change)}
	return reading
}

func describeChange(change float64) string {
	switch {
	case change > 0:
		return fmt.Sprintf("BMI increased by %.1f since the previous result", change)
	case change < 0:
		return fmt.Sprintf("BMI decreased by %.1f since the previous result", -change)
	default:
		return "BMI unchanged since the previous result"
	}
}

func declaredPDF(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.EqualFold(mediaType, uploads.MIMEPDF)
}

func cleanFileName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return defaultFileName
	}
	if runes := []rune(name); len(runes) > 255 {
		name = string(runes[:255])
	}
	return name
}
