package excel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mailpipe/mailpipe/internal/core/report"
)

const (
	currentFileName = "current_week_extracts.xlsx"
	sheetTitleFmt   = "Week %d"
)

// Store persists weekly report tables as xlsx workbooks in one directory:
// a single mutable current file plus frozen per-week archives. The week
// number lives in the sheet title and the year in the workbook subject,
// so a table's identity survives restarts.
type Store struct {
	dir string
	now func() time.Time
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &Store{dir: dir, now: time.Now}, nil
}

func (s *Store) currentPath() string {
	return filepath.Join(s.dir, currentFileName)
}

func (s *Store) archivePath(week, year int) string {
	return filepath.Join(s.dir, fmt.Sprintf("extracts_week%d_%d.xlsx", week, year))
}

func (s *Store) Load(_ context.Context) (*report.Table, error) {
	f, err := excelize.OpenFile(s.currentPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open report workbook: %w", err)
	}
	defer f.Close()

	return decodeTable(f)
}

func decodeTable(f *excelize.File) (*report.Table, error) {
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("report workbook has no sheet")
	}

	var week int
	if _, err := fmt.Sscanf(sheet, sheetTitleFmt, &week); err != nil {
		return nil, fmt.Errorf("parse week from sheet title %q: %w", sheet, err)
	}

	props, err := f.GetDocProps()
	if err != nil {
		return nil, fmt.Errorf("read workbook properties: %w", err)
	}
	year, err := strconv.Atoi(props.Subject)
	if err != nil {
		return nil, fmt.Errorf("parse year from workbook subject %q: %w", props.Subject, err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}

	table := report.NewTable(week, year)
	if len(rows) == 0 {
		return table, nil
	}

	headers := rows[0]
	fixed := len(report.FixedColumns())
	if len(headers) < fixed {
		return nil, fmt.Errorf("sheet header has %d columns, want at least %d", len(headers), fixed)
	}
	table.AddEntityColumns(headers[fixed:])

	for _, cells := range rows[1:] {
		if len(cells) == 0 || cells[0] == "" {
			continue
		}
		agg := report.ThreadAggregate{
			ThreadID: cells[0],
			Subject:  cell(cells, 1),
			Sender:   cell(cells, 2),
			Entities: make(map[string]string),
		}
		for i, name := range headers[fixed:] {
			agg.Entities[name] = cell(cells, fixed+i)
		}
		stamp, err := time.Parse(report.ExtractionDateLayout, cell(cells, 3))
		if err != nil {
			return nil, fmt.Errorf("parse extraction date for thread %s: %w", agg.ThreadID, err)
		}
		table.Upsert(agg, stamp)
	}
	return table, nil
}

func cell(cells []string, i int) string {
	if i < len(cells) {
		return cells[i]
	}
	return ""
}

func (s *Store) Save(_ context.Context, t *report.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := fmt.Sprintf(sheetTitleFmt, t.Week)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name report sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{Subject: strconv.Itoa(t.Year)}); err != nil {
		return fmt.Errorf("set workbook properties: %w", err)
	}

	headers := t.Headers()
	if err := writeRow(f, sheet, 1, headers); err != nil {
		return err
	}

	entityColumns := t.EntityColumns()
	for i, row := range t.Rows() {
		cells := []string{row.ThreadID, row.Subject, row.Sender, row.ExtractedAt}
		for _, name := range entityColumns {
			cells = append(cells, row.Entities[name])
		}
		if err := writeRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.SaveAs(s.currentPath()); err != nil {
		return fmt.Errorf("save report workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, rowNum int, cells []string) error {
	values := make([]any, len(cells))
	for i, c := range cells {
		values[i] = c
	}
	if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", rowNum), &values); err != nil {
		return fmt.Errorf("write sheet row %d: %w", rowNum, err)
	}
	return nil
}

func (s *Store) Archive(_ context.Context, week, year int) error {
	target := s.archivePath(week, year)
	if err := os.Rename(s.currentPath(), target); err != nil {
		return fmt.Errorf("archive report workbook: %w", err)
	}
	return nil
}

func (s *Store) ArchiveUnreadable(_ context.Context) error {
	stamp := s.now().UTC().Format("20060102T150405")
	target := filepath.Join(s.dir, fmt.Sprintf("current_week_extracts.backup-%s.xlsx", stamp))
	if err := os.Rename(s.currentPath(), target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("backup unreadable report workbook: %w", err)
	}
	return nil
}
