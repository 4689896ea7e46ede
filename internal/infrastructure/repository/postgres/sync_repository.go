package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mailpipe/mailpipe/internal/core/domain"
)

// SyncRepository is the dedup and cursor store. State is partitioned by
// provider account id, so concurrent poll cycles never contend.
type SyncRepository struct {
	db *sql.DB
}

func NewSyncRepository(db *sql.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

// HasSeen reports whether the (provider, external id) pair has been
// durably persisted, regardless of rule or extraction outcome.
func (r *SyncRepository) HasSeen(ctx context.Context, providerID, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS (
	SELECT 1 FROM messages WHERE provider_id = $1 AND external_id = $2
)
`, providerID, externalID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("dedup existence check: %w", err)
	}
	return exists, nil
}

func (r *SyncRepository) GetCursor(ctx context.Context, providerID string) (*time.Time, error) {
	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx, `
SELECT last_sync FROM provider_accounts WHERE id = $1
`, providerID).Scan(&lastSync)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrAccountNotFound, "get cursor", err)
		}
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	if !lastSync.Valid {
		return nil, nil
	}
	t := lastSync.Time
	return &t, nil
}

// AdvanceCursor moves the watermark forward. The guard keeps it
// monotonically non-decreasing under concurrent writers.
func (r *SyncRepository) AdvanceCursor(ctx context.Context, providerID string, t time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE provider_accounts
SET last_sync = $2
WHERE id = $1 AND (last_sync IS NULL OR last_sync <= $2)
`, providerID, t)
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance cursor rows affected: %w", err)
	}
	if rows == 0 {
		// Either the account is gone or a newer cursor is already in
		// place; both leave the watermark untouched.
		return nil
	}
	return nil
}
