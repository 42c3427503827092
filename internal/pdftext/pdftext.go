// Package pdftext extracts plain text from PDF documents.
package pdftext

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/splax/healthmatters/internal/apperr"
)

const msgUnreadable = "Unable to read text from PDF"

// Extract returns the text of every page of the PDF at path, pages joined by a space.
func Extract(ctx context.Context, path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", &apperr.Error{Kind: apperr.KindValidation, Message: msgUnreadable, Err: fmt.Errorf("pdf parser panic: %v", r)}
		}
	}()

	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", &apperr.Error{Kind: apperr.KindValidation, Message: msgUnreadable, Err: err}
	}
	defer f.Close()

	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", &apperr.Error{Kind: apperr.KindValidation, Message: msgUnreadable, Err: fmt.Errorf("page %d: %w", i, err)}
		}
		if content = strings.TrimSpace(content); content != "" {
			pages = append(pages, content)
		}
	}
	return strings.Join(pages, " "), nil
}
