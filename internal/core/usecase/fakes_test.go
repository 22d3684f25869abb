package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type embedderFake struct {
	mu      sync.Mutex
	vector  []float32
	err     error
	queries []string
	batches [][]string
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.batches = append(f.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{0.1, 0.2}, nil
}

type corpusIndexFake struct {
	mu      sync.Mutex
	units   []domain.Unit
	dense   []domain.DenseHit
	lexical []float64
	denseK  int
	err     error
}

func (f *corpusIndexFake) Version() string { return "v-test" }
func (f *corpusIndexFake) Len() int        { return len(f.units) }

func (f *corpusIndexFake) Unit(position int) (domain.Unit, bool) {
	if position < 0 || position >= len(f.units) {
		return domain.Unit{}, false
	}
	return f.units[position], true
}

func (f *corpusIndexFake) SearchDense(_ []float32, k int) ([]domain.DenseHit, error) {
	f.mu.Lock()
	f.denseK = k
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.dense[:min(k, len(f.dense))], nil
}

func (f *corpusIndexFake) SearchLexical([]string) []float64 {
	if f.lexical == nil {
		return make([]float64, len(f.units))
	}
	return f.lexical
}

func (f *corpusIndexFake) Tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

func (f *corpusIndexFake) InSections(position int, refs []domain.SectionRef) bool {
	unit, ok := f.Unit(position)
	if !ok {
		return false
	}
	for _, ref := range refs {
		if unit.Metadata.SectionRef() == ref {
			return true
		}
	}
	return false
}

type indexReaderFake map[domain.Corpus]*corpusIndexFake

func (f indexReaderFake) Corpus(c domain.Corpus) ports.CorpusIndex {
	if idx, ok := f[c]; ok {
		return idx
	}
	return &corpusIndexFake{}
}

type observerFake struct {
	mu            sync.Mutex
	routes        []domain.RouteDecision
	fallbacks     int
	retrievals    []domain.Corpus
	verifications []domain.VerificationStatus
}

func (o *observerFake) ObserveRoute(route domain.RouteDecision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, route)
}

func (o *observerFake) ObserveTableFallback() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fallbacks++
}

func (o *observerFake) ObserveRetrieval(c domain.Corpus, _ time.Duration, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retrievals = append(o.retrievals, c)
}

func (o *observerFake) ObserveVerification(status domain.VerificationStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verifications = append(o.verifications, status)
}

func textUnit(text, section string) domain.Unit {
	return domain.Unit{
		Text: text,
		Metadata: domain.UnitMetadata{
			Ticker:       "ACME",
			FiscalYear:   2023,
			ContentType:  domain.ContentText,
			SectionTitle: section,
		},
	}
}

func tableUnit(text, section, tableID string, row int) domain.Unit {
	return domain.Unit{
		Text: text,
		Metadata: domain.UnitMetadata{
			Ticker:       "ACME",
			FiscalYear:   2023,
			ContentType:  domain.ContentTable,
			SectionTitle: section,
			TableID:      tableID,
			RowIdx:       &row,
		},
	}
}

func sectionUnit(title string) domain.Unit {
	return domain.Unit{
		Text: title + ". abstract",
		Metadata: domain.UnitMetadata{
			Ticker:       "ACME",
			FiscalYear:   2023,
			ContentType:  domain.ContentSection,
			SectionTitle: title,
		},
	}
}

type statusCall struct {
	key     domain.FilingKey
	status  domain.FilingStatus
	message string
}

type filingRepoFake struct {
	records   map[domain.FilingKey]domain.FilingRecord
	statuses  []statusCall
	builds    []domain.IndexBuild
	upsertErr error
	listErr   error
}

func newFilingRepoFake(recs ...domain.FilingRecord) *filingRepoFake {
	f := &filingRepoFake{records: make(map[domain.FilingKey]domain.FilingRecord)}
	for _, rec := range recs {
		f.records[rec.FilingKey] = rec
	}
	return f
}

func (f *filingRepoFake) Upsert(_ context.Context, rec *domain.FilingRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[rec.FilingKey] = *rec
	return nil
}

func (f *filingRepoFake) GetByKey(_ context.Context, key domain.FilingKey) (*domain.FilingRecord, error) {
	rec, ok := f.records[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get filing", errors.New("no rows"))
	}
	return &rec, nil
}

func (f *filingRepoFake) ListByStatus(_ context.Context, statuses ...domain.FilingStatus) ([]domain.FilingRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.FilingRecord
	for _, rec := range f.records {
		if slices.Contains(statuses, rec.Status) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.FilingRecord) int { return strings.Compare(a.String(), b.String()) })
	return out, nil
}

func (f *filingRepoFake) UpdateStatus(_ context.Context, key domain.FilingKey, status domain.FilingStatus, msg string) error {
	f.statuses = append(f.statuses, statusCall{key: key, status: status, message: msg})
	if rec, ok := f.records[key]; ok {
		rec.Status = status
		rec.Error = msg
		f.records[key] = rec
	}
	return nil
}

func (f *filingRepoFake) RecordIndexBuild(_ context.Context, build domain.IndexBuild) error {
	f.builds = append(f.builds, build)
	return nil
}

type storageFake struct {
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: make(map[string][]byte)}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.objects[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "open object", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	published []domain.FilingKey
	err       error
}

func (f *queueFake) PublishFilingIngested(_ context.Context, key domain.FilingKey) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, key)
	return nil
}

func (f *queueFake) SubscribeFilingIngested(context.Context, func(context.Context, domain.FilingKey) error) error {
	return errors.New("not implemented")
}
