package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proptrust/backend/internal/domain"
)

// AuditRepository implements domain.AuditRepository using PostgreSQL.
// The table is append-only; there is deliberately no update or delete.
type AuditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append adds one entry.
func (r *AuditRepository) Append(ctx context.Context, entry *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, operation, property_id, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.Operation, entry.PropertyID, entry.Status, entry.Message, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// ListRecent retrieves the newest entries.
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, operation, property_id, status, message, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		entry := &domain.AuditLog{}
		if err := rows.Scan(&entry.ID, &entry.Operation, &entry.PropertyID, &entry.Status, &entry.Message, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
