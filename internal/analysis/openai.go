package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/splax/healthmatters/internal/apperr"
	"github.com/splax/healthmatters/internal/domain"
)

const (
	msgAnalysisFailed = "Failed to analyze lab results"
	msgBadStructure   = "Invalid response structure from AI provider"
	msgTipsFailed     = "Failed to generate health tips"

	maxReportRunes = 24000
)

// Config configures the OpenAI analyzer.
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
}

// OpenAI implements Analyzer on the chat completions API.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger
}

// NewOpenAI builds an analyzer. Requests are paced client side to RequestsPerMinute.
func NewOpenAI(cfg Config, log *slog.Logger) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if base := strings.TrimRight(cfg.BaseURL, "/"); base != "" {
		clientCfg.BaseURL = base
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &OpenAI{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		timeout: timeout,
		log:     log,
	}
}

const labSystemPrompt = `You are an expert medical data analyst specializing in laboratory result interpretation.
Your task is to:
1. Analyze lab results comprehensively
2. Compare with historical data to identify trends
3. Provide detailed interpretations and actionable recommendations
4. Highlight significant changes and areas of concern
5. Categorize severity levels for each test result
6. Generate specific questions for healthcare providers
7. Consider the patient's medical conditions and medications when analyzing`

const labResponseShape = `{
  "date": "YYYY-MM-DD",
  "bmi": {"score": number, "category": string, "trend": {"change": number, "interpretation": string}},
  "analysis": [
    {
      "testName": string,
      "purpose": string,
      "result": string,
      "interpretation": string,
      "normalRange": string,
      "unit": string,
      "severity": "normal" | "moderate" | "severe",
      "trend": {"change": number, "interpretation": string, "recommendation": string},
      "historicalData": [{"date": string, "value": number}]
    }
  ],
  "questions": string[],
  "recommendations": string[],
  "summary": {"overview": string, "significantChanges": string[], "actionItems": string[]}
}`

type promptProfile struct {
	Birthdate         string   `json:"birthdate"`
	Sex               string   `json:"sex"`
	Age               int      `json:"age"`
	HeightFeet        int      `json:"heightFeet"`
	HeightInches      int      `json:"heightInches"`
	WeightPounds      int      `json:"weightPounds"`
	MedicalConditions []string `json:"medicalConditions"`
	Medications       []string `json:"medications"`
	BMI               float64  `json:"bmi"`
	BMICategory       string   `json:"bmiCategory"`
}

// AnalyzeLabs sends the report text with the profile and earlier analyses to the model and decodes
// its JSON answer.
func (o *OpenAI) AnalyzeLabs(ctx context.Context, req LabRequest) (domain.LabAnalysis, error) {
	prompt, err := buildLabPrompt(req)
	if err != nil {
		return domain.LabAnalysis{}, apperr.Upstream(msgAnalysisFailed, err)
	}
	content, err := o.complete(ctx, labSystemPrompt, prompt, 2000)
	if err != nil {
		return domain.LabAnalysis{}, apperr.Upstream(msgAnalysisFailed, err)
	}
	analysis, err := decodeLabAnalysis(content)
	if err != nil {
		o.log.Warn("unusable lab analysis response", "error", err, "bytes", len(content))
		return domain.LabAnalysis{}, apperr.Upstream(msgBadStructure, err)
	}
	return analysis, nil
}

// HealthTips asks the model for short personalised wellness tips.
func (o *OpenAI) HealthTips(ctx context.Context, req TipsRequest) ([]string, error) {
	body, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return nil, apperr.Upstream(msgTipsFailed, err)
	}
	prompt := "Provide 3 to 5 short, practical health tips for this person:\n\n" + string(body) +
		"\n\nReturn a JSON object of the form {\"tips\": string[]}."
	content, err := o.complete(ctx, "You are a careful health coach. Give general wellness guidance, never a diagnosis.", prompt, 500)
	if err != nil {
		return nil, apperr.Upstream(msgTipsFailed, err)
	}
	var out struct {
		Tips []string `json:"tips"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, apperr.Upstream(msgBadStructure, err)
	}
	tips := make([]string, 0, len(out.Tips))
	for _, tip := range out.Tips {
		if tip = strings.TrimSpace(tip); tip != "" {
			tips = append(tips, tip)
		}
	}
	if len(tips) == 0 {
		return nil, apperr.Upstream(msgBadStructure, errors.New("no tips returned"))
	}
	return tips, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		Temperature:    0.7,
		MaxTokens:      maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	o.log.Debug("chat completion finished", "model", o.model, "duration", time.Since(started), "total_tokens", resp.Usage.TotalTokens)
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("no response content")
	}
	return resp.Choices[0].Message.Content, nil
}

func buildLabPrompt(req LabRequest) (string, error) {
	p := req.Profile
	profile, err := json.MarshalIndent(promptProfile{
		Birthdate:         p.Birthdate,
		Sex:               p.Sex,
		Age:               req.Age,
		HeightFeet:        p.HeightFeet,
		HeightInches:      p.HeightInches,
		WeightPounds:      p.WeightPounds,
		MedicalConditions: p.MedicalConditions,
		Medications:       p.Medications,
		BMI:               req.BMI,
		BMICategory:       req.BMICategory,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}

	var b strings.Builder
	b.WriteString("Analyze these laboratory results with historical context:\n\nHealth Profile:\n")
	b.Write(profile)
	b.WriteString("\n\n")
	if len(req.Previous) > 0 {
		previous, err := json.MarshalIndent(req.Previous, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode previous results: %w", err)
		}
		b.WriteString("Previous Results:\n")
		b.Write(previous)
		b.WriteString("\n\n")
	}
	b.WriteString("Current Lab Results:\n")
	b.WriteString(truncateRunes(req.Text, maxReportRunes))
	b.WriteString("\n\nReturn a JSON object with exactly this structure:\n")
	b.WriteString(labResponseShape)
	return b.String(), nil
}

func decodeLabAnalysis(content string) (domain.LabAnalysis, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return domain.LabAnalysis{}, fmt.Errorf("decode response: %w", err)
	}
	for _, key := range []string{"analysis", "questions"} {
		raw, ok := probe[key]
		if !ok || !strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			return domain.LabAnalysis{}, fmt.Errorf("missing array %q", key)
		}
	}
	var analysis domain.LabAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return domain.LabAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if strings.TrimSpace(analysis.Date) == "" {
		return domain.LabAnalysis{}, errors.New("missing date")
	}
	if analysis.Recommendations == nil {
		analysis.Recommendations = []string{}
	}
	return analysis, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
