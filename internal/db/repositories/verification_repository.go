package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/proptrust/backend/internal/domain"
)

// VerificationRepository implements domain.VerificationRepository using
// PostgreSQL.
type VerificationRepository struct {
	db *sql.DB
}

// NewVerificationRepository creates a new verification repository.
func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Create upserts the property and stores the record and its detail in
// one transaction.
func (r *VerificationRepository) Create(ctx context.Context, property *domain.Property, record *domain.VerificationRecord, detail *domain.VerificationDetail) error {
	entitiesJSON, err := json.Marshal(detail.Entities)
	if err != nil {
		return fmt.Errorf("marshal entities: %w", err)
	}
	statsJSON, err := json.Marshal(detail.Stats)
	if err != nil {
		return fmt.Errorf("marshal ocr stats: %w", err)
	}
	warningsJSON, err := json.Marshal(warningsOrEmpty(detail.Warnings))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create verification: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO properties (property_id, document_type, last_seen_owner, last_seen_survey, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (property_id) DO UPDATE
		SET document_type = EXCLUDED.document_type,
		    last_seen_owner = EXCLUDED.last_seen_owner,
		    last_seen_survey = EXCLUDED.last_seen_survey
	`, property.PropertyID, property.DocumentType, property.LastSeenOwner, property.LastSeenSurvey, property.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert property: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_records
			(verification_id, property_id, risk_score, risk_level, classification_label,
			 classification_confidence, fingerprint, anchor_reference, anchor_block_height,
			 anchor_timestamp, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, record.VerificationID, record.PropertyID, record.RiskScore, record.RiskLevel,
		record.ClassificationLabel, record.ClassificationConfidence, record.Fingerprint,
		record.AnchorReference, record.AnchorBlockHeight, record.AnchorTimestamp, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO verification_details (verification_id, entities, text_preview, ocr_stats, warnings)
		VALUES ($1, $2, $3, $4, $5)
	`, detail.VerificationID, entitiesJSON, detail.TextPreview, statsJSON, warningsJSON)
	if err != nil {
		return fmt.Errorf("insert verification detail: %w", err)
	}

	return tx.Commit()
}

const recordColumns = `
	verification_id, property_id, risk_score, risk_level, classification_label,
	classification_confidence, fingerprint, anchor_reference, anchor_block_height,
	anchor_timestamp, created_at`

func scanRecord(row interface{ Scan(...any) error }) (*domain.VerificationRecord, error) {
	rec := &domain.VerificationRecord{}
	err := row.Scan(&rec.VerificationID, &rec.PropertyID, &rec.RiskScore, &rec.RiskLevel,
		&rec.ClassificationLabel, &rec.ClassificationConfidence, &rec.Fingerprint,
		&rec.AnchorReference, &rec.AnchorBlockHeight, &rec.AnchorTimestamp, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID retrieves a record and its detail.
func (r *VerificationRepository) GetByID(ctx context.Context, verificationID string) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verification_records WHERE verification_id = $1`,
		verificationID)
	return r.withDetail(ctx, row)
}

// GetLatestByProperty retrieves the newest record and detail for a property.
func (r *VerificationRepository) GetLatestByProperty(ctx context.Context, propertyID string) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM verification_records
		WHERE property_id = $1
		ORDER BY created_at DESC, verification_id DESC
		LIMIT 1
	`, propertyID)
	return r.withDetail(ctx, row)
}

func (r *VerificationRepository) withDetail(ctx context.Context, row interface{ Scan(...any) error }) (*domain.VerificationRecord, *domain.VerificationDetail, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan verification record: %w", err)
	}

	detail := &domain.VerificationDetail{VerificationID: rec.VerificationID}
	var entitiesJSON, statsJSON, warningsJSON []byte
	err = r.db.QueryRowContext(ctx, `
		SELECT entities, text_preview, ocr_stats, warnings
		FROM verification_details WHERE verification_id = $1
	`, rec.VerificationID).Scan(&entitiesJSON, &detail.TextPreview, &statsJSON, &warningsJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("get verification detail: %w", err)
	}

	if err := json.Unmarshal(entitiesJSON, &detail.Entities); err != nil {
		return nil, nil, fmt.Errorf("unmarshal entities: %w", err)
	}
	if err := json.Unmarshal(statsJSON, &detail.Stats); err != nil {
		return nil, nil, fmt.Errorf("unmarshal ocr stats: %w", err)
	}
	if err := json.Unmarshal(warningsJSON, &detail.Warnings); err != nil {
		return nil, nil, fmt.Errorf("unmarshal warnings: %w", err)
	}

	return rec, detail, nil
}

// ListByProperty retrieves all records for a property, newest first.
func (r *VerificationRepository) ListByProperty(ctx context.Context, propertyID string) ([]*domain.VerificationRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM verification_records
		WHERE property_id = $1
		ORDER BY created_at DESC, verification_id DESC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	var out []*domain.VerificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateAnchor sets the anchor fields after a successful ledger put.
func (r *VerificationRepository) UpdateAnchor(ctx context.Context, verificationID, anchorRef string, blockHeight int64, anchoredAt time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE verification_records
		SET anchor_reference = $1, anchor_block_height = $2, anchor_timestamp = $3
		WHERE verification_id = $4
	`, anchorRef, blockHeight, anchoredAt, verificationID)
	if err != nil {
		return fmt.Errorf("update anchor: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountByRiskLevel returns a histogram of persisted risk levels.
func (r *VerificationRepository) CountByRiskLevel(ctx context.Context) (map[domain.RiskLevel]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT risk_level, COUNT(*) FROM verification_records GROUP BY risk_level
	`)
	if err != nil {
		return nil, fmt.Errorf("risk histogram: %w", err)
	}
	defer rows.Close()

	out := map[domain.RiskLevel]int64{}
	for rows.Next() {
		var level domain.RiskLevel
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, fmt.Errorf("scan histogram: %w", err)
		}
		out[level] = count
	}
	return out, rows.Err()
}

// Count returns the total number of verification records.
func (r *VerificationRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verification_records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count verifications: %w", err)
	}
	return count, nil
}

func warningsOrEmpty(w []string) []string {
	if w == nil {
		return []string{}
	}
	return w
}
