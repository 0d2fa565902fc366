// Package repositories implements the domain repository interfaces using
// PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/proptrust/backend/internal/domain"
)

// PropertyRepository implements domain.PropertyRepository using PostgreSQL.
type PropertyRepository struct {
	db *sql.DB
}

// NewPropertyRepository creates a new property repository.
func NewPropertyRepository(db *sql.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// Upsert inserts a property or refreshes its denormalized search columns.
func (r *PropertyRepository) Upsert(ctx context.Context, p *domain.Property) error {
	query := `
		INSERT INTO properties (property_id, document_type, last_seen_owner, last_seen_survey, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (property_id) DO UPDATE
		SET document_type = EXCLUDED.document_type,
		    last_seen_owner = EXCLUDED.last_seen_owner,
		    last_seen_survey = EXCLUDED.last_seen_survey
	`
	_, err := r.db.ExecContext(ctx, query, p.PropertyID, p.DocumentType, p.LastSeenOwner, p.LastSeenSurvey, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}
	return nil
}

// GetByID retrieves a property by id.
func (r *PropertyRepository) GetByID(ctx context.Context, propertyID string) (*domain.Property, error) {
	p := &domain.Property{}
	query := `
		SELECT property_id, document_type, last_seen_owner, last_seen_survey, created_at
		FROM properties
		WHERE property_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, propertyID).
		Scan(&p.PropertyID, &p.DocumentType, &p.LastSeenOwner, &p.LastSeenSurvey, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get property: %w", err)
	}
	return p, nil
}

// Search filters properties over the denormalized columns.
func (r *PropertyRepository) Search(ctx context.Context, filter domain.PropertyFilter, limit, offset int) ([]*domain.Property, int, error) {
	where := "WHERE 1=1"
	args := []any{}
	idx := 1

	if filter.Owner != "" {
		where += fmt.Sprintf(" AND last_seen_owner ILIKE $%d", idx)
		args = append(args, "%"+filter.Owner+"%")
		idx++
	}
	if filter.SurveyNumber != "" {
		where += fmt.Sprintf(" AND last_seen_survey = $%d", idx)
		args = append(args, filter.SurveyNumber)
		idx++
	}
	if filter.DocumentType != nil {
		where += fmt.Sprintf(" AND document_type = $%d", idx)
		args = append(args, *filter.DocumentType)
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM properties "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count properties: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT property_id, document_type, last_seen_owner, last_seen_survey, created_at
		FROM properties %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search properties: %w", err)
	}
	defer rows.Close()

	var out []*domain.Property
	for rows.Next() {
		p := &domain.Property{}
		if err := rows.Scan(&p.PropertyID, &p.DocumentType, &p.LastSeenOwner, &p.LastSeenSurvey, &p.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

// Delete removes a property and cascades to its verification records,
// details and tamper checks. Ledger entries are never touched.
func (r *PropertyRepository) Delete(ctx context.Context, propertyID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	// Tamper checks carry no FK so NOT_FOUND checks can persist without
	// a property row; cascade by hand.
	if _, err := tx.ExecContext(ctx, `DELETE FROM tamper_checks WHERE property_id = $1`, propertyID); err != nil {
		return fmt.Errorf("delete tamper checks: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM properties WHERE property_id = $1`, propertyID)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}

	return tx.Commit()
}

// Count returns the total number of properties.
func (r *PropertyRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM properties`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count properties: %w", err)
	}
	return count, nil
}
