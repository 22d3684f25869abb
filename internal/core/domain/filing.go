package domain

import (
	"fmt"
	"strings"
	"time"
)

// Filing is one annual report identified by ticker and fiscal year.
type Filing struct {
	Ticker     string    `json:"ticker"`
	FiscalYear int       `json:"fiscal_year"`
	Sections   []Section `json:"sections"`
	Tables     []Table   `json:"tables"`
}

type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Table arrives either pre-structured (Header + Rows) or as raw Markup.
type Table struct {
	TableID string     `json:"table_id"`
	Section string     `json:"section"`
	Caption string     `json:"caption,omitempty"`
	Header  []string   `json:"header,omitempty"`
	Rows    [][]string `json:"rows,omitempty"`
	Markup  string     `json:"html,omitempty"`
}

func (f Filing) Key() FilingKey {
	return FilingKey{Ticker: f.Ticker, FiscalYear: f.FiscalYear}
}

func (f Filing) Validate() error {
	if strings.TrimSpace(f.Ticker) == "" {
		return WrapError(ErrInvalidInput, "validate filing", fmt.Errorf("ticker is required"))
	}
	if f.FiscalYear < 1900 || f.FiscalYear > 2200 {
		return WrapError(ErrInvalidInput, "validate filing", fmt.Errorf("fiscal year %d out of range", f.FiscalYear))
	}
	return nil
}

type FilingKey struct {
	Ticker     string `json:"ticker"`
	FiscalYear int    `json:"fiscal_year"`
}

func (k FilingKey) String() string {
	return fmt.Sprintf("%s/%d", strings.ToUpper(k.Ticker), k.FiscalYear)
}

// StorageKey is where the raw filing payload lives in object storage.
func (k FilingKey) StorageKey() string {
	return fmt.Sprintf("filings/%s/%d.json", strings.ToUpper(k.Ticker), k.FiscalYear)
}

type FilingStatus string

const (
	FilingIngested FilingStatus = "ingested"
	FilingIndexed  FilingStatus = "indexed"
	FilingFailed   FilingStatus = "failed"
)

// FilingRecord is the registry row for an ingested filing.
type FilingRecord struct {
	FilingKey
	StoragePath  string       `json:"storage_path"`
	WorkbookPath string       `json:"workbook_path,omitempty"`
	Status       FilingStatus `json:"status"`
	SectionCount int          `json:"section_count"`
	TableCount   int          `json:"table_count"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// IndexBuild records one published corpus snapshot.
type IndexBuild struct {
	Version   string    `json:"version"`
	Corpus    Corpus    `json:"corpus"`
	Kind      string    `json:"kind"`
	Size      int       `json:"size"`
	BuiltAt   time.Time `json:"built_at"`
	Filings   int       `json:"filings"`
	Persisted bool      `json:"persisted"`
}

// TextChunk is a bounded word window over section content.
type TextChunk struct {
	Text      string
	StartWord int
	EndWord   int
}
