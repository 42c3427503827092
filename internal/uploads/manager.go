// Package uploads stages uploaded files on local disk for the duration of a request.
package uploads

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/splax/healthmatters/internal/apperr"
)

// MIMEPDF is the media type of accepted lab reports.
const MIMEPDF = "application/pdf"

// SniffLen is how many leading bytes Sniff needs to classify content.
const SniffLen = 3072

// Manager owns staged upload files under a common root.
type Manager struct {
	root string
}

// New ensures the upload root exists and is accessible.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("upload root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve upload root: %w", err)
	}
	return &Manager{root: abs}, nil
}

// Root returns the absolute upload directory.
func (m *Manager) Root() string { return m.root }

// Store streams r into a new uniquely named file. Content beyond limit bytes aborts the write,
// removes the partial file and yields a too-large error.
func (m *Manager) Store(r io.Reader, limit int64) (string, int64, error) {
	path := filepath.Join(m.root, "pdf-"+uuid.NewString()+".pdf")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	written, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	switch {
	case copyErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write upload file: %w", copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("close upload file: %w", closeErr)
	case limit > 0 && written > limit:
		_ = os.Remove(path)
		return "", 0, TooLarge(limit)
	}
	return path, written, nil
}

// Cleanup removes a staged file. Paths outside the root are refused; missing files are ignored.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve upload path: %w", err)
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to cleanup path outside upload root")
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove upload file: %w", err)
	}
	return nil
}

// Sniff reports the media type detected from the leading bytes of a file.
func Sniff(head []byte) string {
	return mimetype.Detect(head).String()
}

// IsPDF reports whether head starts a PDF document.
func IsPDF(head []byte) bool {
	return mimetype.Detect(head).Is(MIMEPDF)
}

// TooLarge builds the error returned for uploads over limit bytes.
func TooLarge(limit int64) error {
	return apperr.TooLarge(fmt.Sprintf("File too large. Maximum size is %dMB", limit>>20))
}
