// Package xlsx reads spreadsheet exhibits into filing tables.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/filing-qa/internal/core/domain"
)

// ExhibitSection is the section title given to workbook tables.
const ExhibitSection = "Financial Statement Exhibits"

// ReadTables returns one table per non-empty sheet. The first non-empty row of
// a sheet is its header; the sheet name becomes the caption.
func ReadTables(r io.Reader, idPrefix string) ([]domain.Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer f.Close()

	var tables []domain.Table
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		rows = compact(rows)
		if len(rows) == 0 {
			continue
		}
		t := domain.Table{
			TableID: fmt.Sprintf("%s%d", idPrefix, len(tables)+1),
			Section: ExhibitSection,
			Caption: sheet,
		}
		if len(rows) > 1 {
			t.Header = rows[0]
			t.Rows = rows[1:]
		} else {
			t.Rows = rows
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func compact(rows [][]string) [][]string {
	out := rows[:0]
	for _, row := range rows {
		cells := make([]string, len(row))
		empty := true
		for i, c := range row {
			cells[i] = strings.TrimSpace(c)
			if cells[i] != "" {
				empty = false
			}
		}
		if !empty {
			out = append(out, cells)
		}
	}
	return out
}
