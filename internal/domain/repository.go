// Package domain contains core business entities and repository interfaces.
package domain

import (
	"context"
	"time"
)

// PropertyRepository defines the interface for property persistence.
type PropertyRepository interface {
	// Upsert inserts a property or refreshes its denormalized
	// last-seen owner/survey columns.
	Upsert(ctx context.Context, property *Property) error

	// GetByID retrieves a property by its id.
	GetByID(ctx context.Context, propertyID string) (*Property, error)

	// Search filters properties by last-seen owner (case-insensitive
	// substring) and survey number (exact match) with pagination.
	// Returns the page and the total match count.
	Search(ctx context.Context, filter PropertyFilter, limit, offset int) ([]*Property, int, error)

	// Delete removes a property, cascading to its verification records,
	// details and tamper checks. The ledger is never touched.
	Delete(ctx context.Context, propertyID string) error

	// Count returns the total number of properties.
	Count(ctx context.Context) (int64, error)
}

// PropertyFilter specifies filtering options for property search.
type PropertyFilter struct {
	Owner        string
	SurveyNumber string
	DocumentType *DocumentType
}

// VerificationRepository persists verification records and their details.
type VerificationRepository interface {
	// Create upserts the property and stores the record and its detail
	// in a single transaction.
	Create(ctx context.Context, property *Property, record *VerificationRecord, detail *VerificationDetail) error

	// GetByID retrieves a record and its detail by verification id.
	GetByID(ctx context.Context, verificationID string) (*VerificationRecord, *VerificationDetail, error)

	// GetLatestByProperty retrieves the newest record and detail for a
	// property.
	GetLatestByProperty(ctx context.Context, propertyID string) (*VerificationRecord, *VerificationDetail, error)

	// ListByProperty retrieves all records for a property, newest first.
	ListByProperty(ctx context.Context, propertyID string) ([]*VerificationRecord, error)

	// UpdateAnchor sets the anchor fields after a successful ledger put.
	UpdateAnchor(ctx context.Context, verificationID, anchorRef string, blockHeight int64, anchoredAt time.Time) error

	// CountByRiskLevel returns a histogram of persisted risk levels.
	CountByRiskLevel(ctx context.Context) (map[RiskLevel]int64, error)

	// Count returns the total number of verification records.
	Count(ctx context.Context) (int64, error)
}

// TamperRepository persists tamper check results.
type TamperRepository interface {
	// Create stores a tamper check.
	Create(ctx context.Context, check *TamperCheck) error

	// ListByProperty retrieves checks for a property, newest first.
	ListByProperty(ctx context.Context, propertyID string, limit int) ([]*TamperCheck, error)

	// CountByStatus returns a histogram of tamper outcomes.
	CountByStatus(ctx context.Context) (map[TamperStatus]int64, error)

	// Count returns the total number of tamper checks.
	Count(ctx context.Context) (int64, error)
}

// AuditRepository appends to and reads the audit trail.
type AuditRepository interface {
	// Append adds one entry. The trail is append-only.
	Append(ctx context.Context, entry *AuditLog) error

	// ListRecent retrieves the newest entries.
	ListRecent(ctx context.Context, limit int) ([]*AuditLog, error)
}
