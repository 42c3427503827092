package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/splax/healthmatters/internal/domain"
	"github.com/splax/healthmatters/internal/repository"
)

const (
	labResultInsert = `INSERT INTO lab_results (id, user_id, file_name, analysis, uploaded_at)
		VALUES ($1, $2, $3, $4, $5)`
	labResultList = `SELECT id, user_id, file_name, analysis, uploaded_at FROM lab_results
		WHERE user_id = $1
		ORDER BY uploaded_at ASC, id ASC`
	labResultSelect = `SELECT id, user_id, file_name, analysis, uploaded_at FROM lab_results
		WHERE user_id = $1 AND id = $2`
)

// CreateLabResult stores an analysed lab report.
func (r *Repository) CreateLabResult(ctx context.Context, result *domain.LabResult) error {
	if result == nil || strings.TrimSpace(result.UserID) == "" {
		return repository.ErrInvalidArgument
	}
	payload, err := json.Marshal(result.Analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	if result.UploadedAt.IsZero() {
		result.UploadedAt = time.Now().UTC()
	}
	if _, err := r.db.Exec(ctx, labResultInsert, result.ID, result.UserID, result.FileName, payload, result.UploadedAt); err != nil {
		return fmt.Errorf("insert lab result: %w", err)
	}
	return nil
}

// ListLabResults returns the user's results oldest first.
func (r *Repository) ListLabResults(ctx context.Context, userID string) ([]domain.LabResult, error) {
	rows, err := r.db.Query(ctx, labResultList, strings.TrimSpace(userID))
	if err != nil {
		return nil, fmt.Errorf("list lab results: %w", err)
	}
	defer rows.Close()

	results := make([]domain.LabResult, 0)
	for rows.Next() {
		result, err := scanLabResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// GetLabResult returns one result owned by userID.
func (r *Repository) GetLabResult(ctx context.Context, userID, id string) (*domain.LabResult, error) {
	return scanLabResult(r.db.QueryRow(ctx, labResultSelect, strings.TrimSpace(userID), strings.TrimSpace(id)))
}

func scanLabResult(row pgx.Row) (*domain.LabResult, error) {
	var (
		result  domain.LabResult
		payload []byte
	)
	if err := row.Scan(&result.ID, &result.UserID, &result.FileName, &payload, &result.UploadedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &result.Analysis); err != nil {
			return nil, fmt.Errorf("decode analysis %s: %w", result.ID, err)
		}
	}
	return &result, nil
}
