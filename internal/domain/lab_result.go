package domain

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Test severities.
const (
	SeverityNormal   = "normal"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
)

// LabResult is a stored analysis of one uploaded lab report.
type LabResult struct {
	ID         string      `json:"id"`
	UserID     string      `json:"userId"`
	FileName   string      `json:"fileName"`
	Analysis   LabAnalysis `json:"analysis"`
	UploadedAt time.Time   `json:"uploadedAt"`
}

// LabAnalysis is the structured interpretation returned by the analyzer.
type LabAnalysis struct {
	Date            string      `json:"date"`
	BMI             *BMIReading `json:"bmi,omitempty"`
	Analysis        []LabTest   `json:"analysis"`
	Questions       []string    `json:"questions"`
	Recommendations []string    `json:"recommendations"`
	Summary         *LabSummary `json:"summary,omitempty"`
}

// BMIReading carries the BMI at the time of the analysis.
type BMIReading struct {
	Score    Number `json:"score"`
	Category string `json:"category"`
	Trend    *Trend `json:"trend,omitempty"`
}

// Trend compares a value with the previous analysis.
type Trend struct {
	Change         Number `json:"change"`
	Interpretation string `json:"interpretation"`
	Recommendation string `json:"recommendation,omitempty"`
}

// LabTest is one interpreted test line.
type LabTest struct {
	TestName       string            `json:"testName"`
	Purpose        string            `json:"purpose,omitempty"`
	Result         string            `json:"result"`
	Interpretation string            `json:"interpretation"`
	NormalRange    string            `json:"normalRange,omitempty"`
	Unit           string            `json:"unit,omitempty"`
	Severity       string            `json:"severity,omitempty"`
	Trend          *Trend            `json:"trend,omitempty"`
	HistoricalData []HistoricalValue `json:"historicalData,omitempty"`
}

// HistoricalValue is an earlier reading of the same test.
type HistoricalValue struct {
	Date  string `json:"date"`
	Value Number `json:"value"`
}

// LabSummary condenses the analysis.
type LabSummary struct {
	Overview           string   `json:"overview"`
	SignificantChanges []string `json:"significantChanges"`
	ActionItems        []string `json:"actionItems"`
}

// Number is a float that also decodes from numeric strings. Unparseable values decode as zero.
type Number float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		v, err := strconv.ParseFloat(strings.TrimPrefix(s, "+"), 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = Number(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

// Float returns n as a float64.
func (n Number) Float() float64 { return float64(n) }
