// Package report renders stored lab analyses as printable PDF documents.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/phpdave11/gofpdf"

	"github.com/splax/healthmatters/internal/domain"
)

var testColumns = []float64{40, 28, 34, 22, 58}

// RenderLabReport writes a PDF summary of result to w.
func RenderLabReport(w io.Writer, result domain.LabResult) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(14, 14, 14)
	pdf.SetAutoPageBreak(true, 14)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	a := result.Analysis

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 20, 20)
	pdf.Cell(0, 10, "Lab Results Analysis")
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(80, 80, 80)
	date := a.Date
	if date == "" {
		date = result.UploadedAt.Format("2006-01-02")
	}
	pdf.Cell(0, 6, tr("Report date: "+date))
	pdf.Ln(5)
	if result.FileName != "" {
		pdf.Cell(0, 6, tr("Source file: "+result.FileName))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	if a.BMI != nil {
		heading(pdf, "Body Mass Index")
		line := fmt.Sprintf("BMI %.1f (%s)", a.BMI.Score.Float(), a.BMI.Category)
		if t := a.BMI.Trend; t != nil {
			line += fmt.Sprintf(", change %+.1f", t.Change.Float())
		}
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 6, tr(line), "", "L", false)
		if t := a.BMI.Trend; t != nil && t.Interpretation != "" {
			pdf.MultiCell(0, 6, tr(t.Interpretation), "", "L", false)
		}
		pdf.Ln(3)
	}

	if len(a.Analysis) > 0 {
		heading(pdf, "Test Results")
		tableHeader(pdf)
		pdf.SetFont("Helvetica", "", 9)
		for _, test := range a.Analysis {
			if pdf.GetY() > 260 {
				pdf.AddPage()
				tableHeader(pdf)
				pdf.SetFont("Helvetica", "", 9)
			}
			value := strings.TrimSpace(test.Result + " " + test.Unit)
			cells := []string{test.TestName, value, test.NormalRange, test.Severity}
			x, y := pdf.GetX(), pdf.GetY()
			offset := 0.0
			for i, text := range cells {
				pdf.SetXY(x+offset, y)
				pdf.MultiCell(testColumns[i], 6, tr(text), "", "L", false)
				offset += testColumns[i]
			}
			pdf.SetXY(x+offset, y)
			pdf.MultiCell(testColumns[4], 6, tr(test.Interpretation), "", "L", false)
			bottom := pdf.GetY()
			pdf.SetDrawColor(220, 220, 220)
			pdf.Line(x, bottom, x+sum(testColumns), bottom)
			pdf.SetXY(x, bottom+1)
		}
		pdf.Ln(3)
	}

	bulletSection(pdf, tr, "Questions for Your Doctor", a.Questions)
	bulletSection(pdf, tr, "Recommendations", a.Recommendations)

	if s := a.Summary; s != nil {
		heading(pdf, "Summary")
		pdf.SetFont("Helvetica", "", 10)
		if s.Overview != "" {
			pdf.MultiCell(0, 6, tr(s.Overview), "", "L", false)
			pdf.Ln(2)
		}
		bulletSection(pdf, tr, "Significant Changes", s.SignificantChanges)
		bulletSection(pdf, tr, "Action Items", s.ActionItems)
	}

	pdf.SetY(-20)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 4, "This report is informational and does not replace advice from a medical professional.", "", "C", false)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render lab report: %w", err)
	}
	return nil
}

func heading(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(20, 20, 20)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
}

func tableHeader(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(245, 245, 245)
	pdf.SetDrawColor(200, 200, 200)
	for i, label := range []string{"TEST", "RESULT", "NORMAL RANGE", "SEVERITY", "INTERPRETATION"} {
		ln := 0
		if i == len(testColumns)-1 {
			ln = 1
		}
		pdf.CellFormat(testColumns[i], 7, label, "1", ln, "L", true, 0, "")
	}
}

func bulletSection(pdf *gofpdf.Fpdf, tr func(string) string, title string, items []string) {
	if len(items) == 0 {
		return
	}
	heading(pdf, title)
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.MultiCell(0, 6, tr("- "+item), "", "L", false)
	}
	pdf.Ln(3)
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}
