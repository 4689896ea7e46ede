package report

import (
	"sort"
	"time"
)

// Fixed columns present in every weekly report table, in order.
const (
	ColThreadID       = "Thread ID"
	ColEmailSubject   = "Email Subject"
	ColEmailSender    = "Email Sender"
	ColExtractionDate = "Extraction Date"
)

func FixedColumns() []string {
	return []string{ColThreadID, ColEmailSubject, ColEmailSender, ColExtractionDate}
}

// ExtractionDateLayout matches the timestamp format written into report cells.
const ExtractionDateLayout = "2006-01-02 15:04:05"

// Row is one thread's accumulated extraction state for the current week.
type Row struct {
	ThreadID    string
	Subject     string
	Sender      string
	ExtractedAt string
	Entities    map[string]string
}

// Table is the current week's one-row-per-thread report. Rows keep
// insertion order; entity columns are kept as a consistently sorted set.
type Table struct {
	Week int
	Year int

	entityColumns []string
	columnSet     map[string]bool
	order         []string
	rows          map[string]*Row
}

func NewTable(week, year int) *Table {
	return &Table{
		Week:      week,
		Year:      year,
		columnSet: make(map[string]bool),
		rows:      make(map[string]*Row),
	}
}

// WeekOf returns the ISO week number and year for an instant.
func WeekOf(t time.Time) (week, year int) {
	y, w := t.ISOWeek()
	return w, y
}

// Headers returns the fixed columns followed by the sorted entity columns.
func (t *Table) Headers() []string {
	headers := FixedColumns()
	return append(headers, t.entityColumns...)
}

// EntityColumns returns the sorted entity column names seen so far.
func (t *Table) EntityColumns() []string {
	out := make([]string, len(t.entityColumns))
	copy(out, t.entityColumns)
	return out
}

// Rows returns rows in insertion order.
func (t *Table) Rows() []*Row {
	out := make([]*Row, 0, len(t.order))
	for _, threadID := range t.order {
		out = append(out, t.rows[threadID])
	}
	return out
}

func (t *Table) Len() int { return len(t.order) }

// Get returns the row for a thread, or nil.
func (t *Table) Get(threadID string) *Row {
	return t.rows[threadID]
}

// AddEntityColumns unions new column names into the sorted set. Existing
// rows need no touch-up: a missing key reads as the empty cell.
func (t *Table) AddEntityColumns(names []string) {
	changed := false
	for _, name := range names {
		if name == "" || t.columnSet[name] {
			continue
		}
		t.columnSet[name] = true
		t.entityColumns = append(t.entityColumns, name)
		changed = true
	}
	if changed {
		sort.Strings(t.entityColumns)
	}
}

// Upsert merges one thread's aggregate into the table. An existing row
// keeps its populated cells unless the batch supplies a non-empty
// replacement; the extraction date always moves forward to now.
func (t *Table) Upsert(agg ThreadAggregate, now time.Time) {
	stamp := now.Format(ExtractionDateLayout)

	row, ok := t.rows[agg.ThreadID]
	if !ok {
		row = &Row{
			ThreadID: agg.ThreadID,
			Subject:  agg.Subject,
			Sender:   agg.Sender,
			Entities: make(map[string]string),
		}
		t.rows[agg.ThreadID] = row
		t.order = append(t.order, agg.ThreadID)
	}
	row.ExtractedAt = stamp

	for name, value := range agg.Entities {
		if value == "" {
			continue
		}
		row.Entities[name] = value
	}
}

// ThreadAggregate is one thread's entity values collected during a single
// extraction run. It is built fresh per run and discarded after the merge.
type ThreadAggregate struct {
	ThreadID string
	Subject  string
	Sender   string
	Entities map[string]string
}

// Batch accumulates per-thread aggregates for one extraction run.
type Batch map[string]*ThreadAggregate

// Add merges namespaced entity values for a thread into the batch,
// skipping empty values so they can never clear prior report cells.
func (b Batch) Add(threadID, subject, sender string, entities map[string]string) {
	agg, ok := b[threadID]
	if !ok {
		agg = &ThreadAggregate{
			ThreadID: threadID,
			Subject:  subject,
			Sender:   sender,
			Entities: make(map[string]string),
		}
		b[threadID] = agg
	}
	for name, value := range entities {
		if value == "" {
			continue
		}
		agg.Entities[name] = value
	}
}

// Merge folds an extraction batch into the table: new entity columns are
// appended to the sorted header set and every touched thread is upserted.
// Merging the same batch twice leaves the table unchanged apart from the
// extraction date. Threads are merged in sorted order for determinism.
func Merge(t *Table, batch Batch, now time.Time) {
	columns := make([]string, 0, 8)
	for _, agg := range batch {
		for name := range agg.Entities {
			columns = append(columns, name)
		}
	}
	t.AddEntityColumns(columns)

	threadIDs := make([]string, 0, len(batch))
	for threadID := range batch {
		threadIDs = append(threadIDs, threadID)
	}
	sort.Strings(threadIDs)

	for _, threadID := range threadIDs {
		t.Upsert(*batch[threadID], now)
	}
}
