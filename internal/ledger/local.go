package ledger

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proptrust/backend/internal/db"
)

// heightLockKey is the transaction-scoped advisory lock serializing
// block-height allocation. The height counter is global across all
// properties, so concurrent puts — even for unrelated properties — must
// not race on MAX(block_height); the lock makes allocation sequential
// while reads stay lock-free.
const heightLockKey = 874523001

// Local is the reference SQL-backed ledger. Entries live in a dedicated
// ledger_entries table in the same relational store as the persistence
// layer, with a monotonic block height across all properties.
type Local struct {
	db       *db.DB
	identity string
	logger   *slog.Logger
}

// NewLocal creates the SQL-backed local ledger.
func NewLocal(database *db.DB, identity string, logger *slog.Logger) *Local {
	return &Local{db: database, identity: identity, logger: logger}
}

// Put appends an entry. Height allocation takes the advisory lock and
// the surrounding transaction retries transient conflicts, so parallel
// callers each get a unique height instead of colliding on the primary
// key.
func (l *Local) Put(ctx context.Context, propertyID string, fingerprint []byte, riskScore int) (*Receipt, error) {
	if propertyID == "" || len(fingerprint) == 0 {
		return nil, ErrRejected
	}

	var receipt *Receipt
	err := l.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, heightLockKey); err != nil {
			return fmt.Errorf("%w: height lock: %v", ErrUnavailable, err)
		}

		var prevHeight sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT MAX(block_height) FROM ledger_entries WHERE property_id = $1`,
			propertyID,
		).Scan(&prevHeight)
		if err != nil {
			return fmt.Errorf("%w: read head: %v", ErrUnavailable, err)
		}

		var nextHeight int64
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(block_height), $1) + 1 FROM ledger_entries`,
			int64(genesisBlockHeight-1),
		).Scan(&nextHeight)
		if err != nil {
			return fmt.Errorf("%w: allocate height: %v", ErrUnavailable, err)
		}

		now := time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (property_id, fingerprint, risk_score, verifier_identity, block_height, ledger_timestamp, prev_block_height)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, propertyID, fingerprint, riskScore, l.identity, nextHeight, now, nullableHeight(prevHeight))
		if err != nil {
			return fmt.Errorf("%w: insert: %v", ErrRejected, err)
		}

		receipt = &Receipt{
			Handle:      fmt.Sprintf("local-%d", nextHeight),
			BlockHeight: nextHeight,
			Timestamp:   now,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: put: %v", ErrUnavailable, err)
	}

	l.logger.Info("ledger entry appended",
		"property_id", propertyID,
		"block_height", receipt.BlockHeight,
	)
	return receipt, nil
}

// Get returns the latest entry for a property.
func (l *Local) Get(ctx context.Context, propertyID string) (*Entry, error) {
	entry := &Entry{}
	err := l.db.QueryRowContext(ctx, `
		SELECT property_id, fingerprint, risk_score, verifier_identity, block_height, ledger_timestamp
		FROM ledger_entries
		WHERE property_id = $1
		ORDER BY block_height DESC
		LIMIT 1
	`, propertyID).Scan(&entry.PropertyID, &entry.Fingerprint, &entry.RiskScore, &entry.VerifierIdentity, &entry.BlockHeight, &entry.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}
	return entry, nil
}

// History returns superseded fingerprints, oldest first.
func (l *Local) History(ctx context.Context, propertyID string) ([][]byte, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT fingerprint FROM ledger_entries
		WHERE property_id = $1
		  AND block_height < (SELECT MAX(block_height) FROM ledger_entries WHERE property_id = $1)
		ORDER BY block_height ASC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var fp []byte
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", ErrUnavailable, err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

// Verify compares fingerprint against the latest entry.
func (l *Local) Verify(ctx context.Context, propertyID string, fingerprint []byte) (bool, error) {
	entry, err := l.Get(ctx, propertyID)
	if err != nil {
		return false, err
	}
	return bytes.Equal(entry.Fingerprint, fingerprint), nil
}

// Status reports connectivity and the chain head.
func (l *Local) Status(ctx context.Context) (*Status, error) {
	var height sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT MAX(block_height) FROM ledger_entries`).Scan(&height)
	if err != nil {
		return &Status{Backend: "local", Available: false}, nil
	}
	h := int64(genesisBlockHeight - 1)
	if height.Valid {
		h = height.Int64
	}
	return &Status{Backend: "local", Available: true, BlockHeight: h}, nil
}

// Close is a no-op; the shared pool is owned by the persistence layer.
func (l *Local) Close() error { return nil }

func nullableHeight(h sql.NullInt64) any {
	if h.Valid {
		return h.Int64
	}
	return nil
}
