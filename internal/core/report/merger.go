package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Store is the durable home of the weekly tables: one mutable current
// table plus an archive of frozen past weeks addressed by week and year.
type Store interface {
	// Load returns the current table, or (nil, nil) when none exists yet.
	// An unreadable current table returns a non-nil error.
	Load(ctx context.Context) (*Table, error)
	Save(ctx context.Context, t *Table) error
	// Archive freezes the current table under its week+year name.
	Archive(ctx context.Context, week, year int) error
	// ArchiveUnreadable moves a corrupt current table aside as a backup.
	ArchiveUnreadable(ctx context.Context) error
}

// Merger owns the load→merge→save critical section over the current
// table. Extraction runs for the same store must not interleave, so the
// whole read-modify-write cycle holds one mutex.
type Merger struct {
	store  Store
	logger *slog.Logger

	mu sync.Mutex
}

func NewMerger(store Store, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Merger{store: store, logger: logger}
}

// MergeBatch materializes one extraction run into the current weekly
// table, rolling the table over when the ISO week has advanced and
// recovering from an unreadable table by archiving it as a backup.
func (m *Merger) MergeBatch(ctx context.Context, batch Batch, now time.Time) error {
	if len(batch) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.targetTable(ctx, now)
	if err != nil {
		return err
	}

	Merge(table, batch, now)

	if err := m.store.Save(ctx, table); err != nil {
		return fmt.Errorf("save report table: %w", err)
	}
	return nil
}

func (m *Merger) targetTable(ctx context.Context, now time.Time) (*Table, error) {
	week, year := WeekOf(now)

	table, err := m.store.Load(ctx)
	if err != nil {
		// Corrupt table: keep it as a backup and start fresh. No data is
		// lost beyond the unreadable file.
		m.logger.Error("current report table unreadable, archiving as backup", "error", err)
		if archiveErr := m.store.ArchiveUnreadable(ctx); archiveErr != nil {
			return nil, fmt.Errorf("archive unreadable report table: %w", archiveErr)
		}
		return NewTable(week, year), nil
	}
	if table == nil {
		return NewTable(week, year), nil
	}

	if table.Week != week || table.Year != year {
		m.logger.Info("report week advanced, archiving previous table",
			"previous_week", table.Week,
			"previous_year", table.Year,
			"week", week,
			"year", year,
		)
		if err := m.store.Archive(ctx, table.Week, table.Year); err != nil {
			return nil, fmt.Errorf("archive report table week %d: %w", table.Week, err)
		}
		return NewTable(week, year), nil
	}

	return table, nil
}
