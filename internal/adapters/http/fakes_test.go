package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type routerFake struct{}

func (routerFake) Route(query string) domain.RouteDecision {
	return domain.RouteDecision{QueryType: domain.QueryNumericTable, IsTableCentric: true, RequiresMath: true, Confidence: 0.9}
}

type retrieverFake struct {
	lastOpts ports.RetrieveOptions
	err      error
}

func (f *retrieverFake) Retrieve(_ context.Context, _ string, _ domain.RouteDecision, opts ports.RetrieveOptions) (domain.RetrievalResult, error) {
	f.lastOpts = opts
	if f.err != nil {
		return domain.RetrievalResult{}, f.err
	}
	return domain.RetrievalResult{
		ContentCorpus: domain.CorpusTables,
		Content: []domain.EvidencePiece{{
			Content:  "Revenue: 383285 394328",
			Metadata: domain.UnitMetadata{Ticker: "AAPL", FiscalYear: 2023, ContentType: domain.ContentTable},
			Score:    0.9,
		}},
	}, nil
}

type answersFake struct {
	lastQuestion string
	err          error
}

func (f *answersFake) Answer(_ context.Context, question string, _ ports.RetrieveOptions) (*domain.Answer, error) {
	f.lastQuestion = question
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Question: question, Text: "Revenue was 383,285 (Table T1, Row 0)", Confidence: 0.8}, nil
}

type verifierFake struct{}

func (verifierFake) Verify(answer string, evidence []domain.EvidencePiece, _ string) domain.Verdict {
	if len(evidence) == 0 {
		return domain.Verdict{Status: domain.VerificationNoNumbers}
	}
	return domain.Verdict{Status: domain.VerificationVerified, Message: answer}
}

type searcherFake struct {
	err error
}

func (f searcherFake) Search(_ context.Context, corpus domain.Corpus, _ string, _ int) ([]domain.SearchHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.SearchHit{{Content: "Net sales", Metadata: domain.UnitMetadata{Ticker: "AAPL"}, Score: 0.03}}, nil
}

type ingestorFake struct {
	payload []byte
	err     error
}

func (f *ingestorFake) Register(_ context.Context, payload io.Reader) (*domain.FilingRecord, error) {
	raw, err := io.ReadAll(payload)
	if err != nil {
		return nil, err
	}
	f.payload = raw
	if f.err != nil {
		return nil, f.err
	}
	return &domain.FilingRecord{
		FilingKey: domain.FilingKey{Ticker: "AAPL", FiscalYear: 2023},
		Status:    domain.FilingIngested,
	}, nil
}

type workbooksFake struct {
	key  domain.FilingKey
	size int
}

func (f *workbooksFake) AttachWorkbook(_ context.Context, key domain.FilingKey, workbook io.Reader) (*domain.FilingRecord, error) {
	raw, err := io.ReadAll(workbook)
	if err != nil {
		return nil, err
	}
	f.key = key
	f.size = len(raw)
	return &domain.FilingRecord{FilingKey: key, WorkbookPath: "filings/AAPL/2023.xlsx"}, nil
}

type filingsFake struct{}

func (filingsFake) GetByKey(_ context.Context, key domain.FilingKey) (*domain.FilingRecord, error) {
	if key.Ticker != "AAPL" {
		return nil, domain.WrapError(domain.ErrNotFound, "get filing", io.EOF)
	}
	return &domain.FilingRecord{FilingKey: key, Status: domain.FilingIndexed}, nil
}

type rebuilderFake struct {
	err error
}

func (f rebuilderFake) RebuildAll(context.Context) ([]domain.IndexBuild, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.IndexBuild{{Corpus: domain.CorpusTables, Kind: "flat", Size: 3}}, nil
}

type testDeps struct {
	retriever *retrieverFake
	answers   *answersFake
	ingestor  *ingestorFake
	workbooks *workbooksFake
}

func newTestDeps() *testDeps {
	return &testDeps{
		retriever: &retrieverFake{},
		answers:   &answersFake{},
		ingestor:  &ingestorFake{},
		workbooks: &workbooksFake{},
	}
}

func (d *testDeps) services() Services {
	return Services{
		Router:    routerFake{},
		Retriever: d.retriever,
		Answers:   d.answers,
		Verifier:  verifierFake{},
		Searcher:  searcherFake{},
		Ingestor:  d.ingestor,
		Workbooks: d.workbooks,
		Filings:   filingsFake{},
		Rebuilder: rebuilderFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, svc Services) http.Handler {
	t.Helper()
	handler, err := NewRouter(cfg, svc, nil, nil).Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return handler
}
