package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/proptrust/backend/internal/domain"
)

// TamperRepository implements domain.TamperRepository using PostgreSQL.
type TamperRepository struct {
	db *sql.DB
}

// NewTamperRepository creates a new tamper check repository.
func NewTamperRepository(db *sql.DB) *TamperRepository {
	return &TamperRepository{db: db}
}

// Create stores a tamper check.
func (r *TamperRepository) Create(ctx context.Context, check *domain.TamperCheck) error {
	warningsJSON, err := json.Marshal(warningsOrEmpty(check.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tamper_checks
			(tamper_check_id, property_id, anchored_fingerprint, recomputed_fingerprint,
			 hash_matched, risk_score_delta, status, warnings, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, check.TamperCheckID, check.PropertyID, check.AnchoredFingerprint, check.RecomputedFingerprint,
		check.HashMatched, check.RiskScoreDelta, check.Status, warningsJSON, check.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tamper check: %w", err)
	}
	return nil
}

// ListByProperty retrieves checks for a property, newest first.
func (r *TamperRepository) ListByProperty(ctx context.Context, propertyID string, limit int) ([]*domain.TamperCheck, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tamper_check_id, property_id, anchored_fingerprint, recomputed_fingerprint,
		       hash_matched, risk_score_delta, status, warnings, created_at
		FROM tamper_checks
		WHERE property_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list tamper checks: %w", err)
	}
	defer rows.Close()

	var out []*domain.TamperCheck
	for rows.Next() {
		check := &domain.TamperCheck{}
		var warningsJSON []byte
		err := rows.Scan(&check.TamperCheckID, &check.PropertyID, &check.AnchoredFingerprint,
			&check.RecomputedFingerprint, &check.HashMatched, &check.RiskScoreDelta,
			&check.Status, &warningsJSON, &check.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan tamper check: %w", err)
		}
		if err := json.Unmarshal(warningsJSON, &check.Warnings); err != nil {
			return nil, fmt.Errorf("unmarshal warnings: %w", err)
		}
		out = append(out, check)
	}
	return out, rows.Err()
}

// CountByStatus returns a histogram of tamper outcomes.
func (r *TamperRepository) CountByStatus(ctx context.Context) (map[domain.TamperStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM tamper_checks GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("tamper histogram: %w", err)
	}
	defer rows.Close()

	out := map[domain.TamperStatus]int64{}
	for rows.Next() {
		var status domain.TamperStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan histogram: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

// Count returns the total number of tamper checks.
func (r *TamperRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tamper_checks`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tamper checks: %w", err)
	}
	return count, nil
}
