// Package filingjson loads stored filings and structures their tables.
package filingjson

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/infrastructure/extractor/htmltable"
	"github.com/kirillkom/filing-qa/internal/infrastructure/extractor/xlsx"
)

const unknownSection = "Unknown"

type Loader struct {
	storage ports.ObjectStorage
}

func NewLoader(storage ports.ObjectStorage) *Loader {
	return &Loader{storage: storage}
}

func (l *Loader) Load(ctx context.Context, rec domain.FilingRecord) (domain.Filing, error) {
	reader, err := l.storage.Open(ctx, rec.StoragePath)
	if err != nil {
		return domain.Filing{}, fmt.Errorf("open stored filing: %w", err)
	}
	defer reader.Close()

	var filing domain.Filing
	if err := json.NewDecoder(reader).Decode(&filing); err != nil {
		return domain.Filing{}, domain.WrapError(domain.ErrInvalidInput, "decode stored filing", err)
	}
	if err := filing.Validate(); err != nil {
		return domain.Filing{}, err
	}
	filing.Ticker = strings.ToUpper(filing.Ticker)

	tables := make([]domain.Table, 0, len(filing.Tables))
	for i, t := range filing.Tables {
		if t.TableID == "" {
			t.TableID = fmt.Sprintf("T%d", i+1)
		}
		if t.Section == "" {
			t.Section = unknownSection
		}
		structured, err := htmltable.Structure(t)
		if err != nil {
			return domain.Filing{}, err
		}
		structured.Markup = ""
		tables = append(tables, structured)
	}

	if rec.WorkbookPath != "" {
		exhibits, err := l.loadWorkbook(ctx, rec.WorkbookPath)
		if err != nil {
			return domain.Filing{}, err
		}
		tables = append(tables, exhibits...)
	}
	filing.Tables = tables
	return filing, nil
}

func (l *Loader) loadWorkbook(ctx context.Context, path string) ([]domain.Table, error) {
	reader, err := l.storage.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer reader.Close()

	tables, err := xlsx.ReadTables(reader, "X")
	if err != nil {
		return nil, fmt.Errorf("read workbook %s: %w", path, err)
	}
	return tables, nil
}
