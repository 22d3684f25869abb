package httpadapter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kirillkom/filing-qa/internal/config"
	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
	"github.com/kirillkom/filing-qa/internal/observability/metrics"
)

const serviceName = "filing-api"

// WorkbookAttacher stores a spreadsheet exhibit for a registered filing.
type WorkbookAttacher interface {
	AttachWorkbook(ctx context.Context, key domain.FilingKey, workbook io.Reader) (*domain.FilingRecord, error)
}

type FilingLookup interface {
	GetByKey(ctx context.Context, key domain.FilingKey) (*domain.FilingRecord, error)
}

type BuildLog interface {
	LatestBuilds(ctx context.Context) ([]domain.IndexBuild, error)
}

// Services are the use cases behind the API. Nil entries answer 503.
type Services struct {
	Router    ports.QueryRouter
	Retriever ports.EvidenceRetriever
	Answers   ports.AnswerService
	Verifier  ports.AnswerVerifier
	Searcher  ports.CorpusSearcher
	Ingestor  ports.FilingIngestor
	Workbooks WorkbookAttacher
	Filings   FilingLookup
	Builds    BuildLog
	Rebuilder ports.IndexRebuilder
}

type Router struct {
	cfg     config.Config
	svc     Services
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
}

func NewRouter(cfg config.Config, svc Services, httpMetrics *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		cfg:     cfg,
		svc:     svc,
		metrics: httpMetrics,
		logger:  logger,
	}
}

// Handler assembles routes and middleware. It fails only if the embedded
// OpenAPI document is broken.
func (rt *Router) Handler() (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.HandleFunc("POST /v1/route", rt.routeQuestion)
	mux.HandleFunc("POST /v1/retrieve", rt.retrieveEvidence)
	mux.HandleFunc("POST /v1/query", rt.answerQuestion)
	mux.HandleFunc("POST /v1/verify", rt.verifyAnswer)
	mux.HandleFunc("POST /v1/search", rt.searchCorpus)
	mux.HandleFunc("POST /v1/filings", rt.registerFiling)
	mux.HandleFunc("GET /v1/filings/{ticker}/{fiscal_year}", rt.getFiling)
	mux.HandleFunc("PUT /v1/filings/{ticker}/{fiscal_year}/workbook", rt.attachWorkbook)
	mux.HandleFunc("POST /v1/index/rebuild", rt.rebuildIndices)
	mux.HandleFunc("GET /v1/index/builds", rt.listIndexBuilds)

	doc, err := loadOpenAPI(context.Background())
	if err != nil {
		return nil, err
	}
	var handler http.Handler
	handler, err = openAPIValidationMiddleware(doc, mux)
	if err != nil {
		return nil, err
	}
	handler = bodyLimitMiddleware(handler, rt.cfg.APIMaxBodyBytes)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	handler = requestIDMiddleware(handler)
	return handler, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Stage     string `json:"stage,omitempty"`
	RequestID string `json:"request_id"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message, RequestID: requestIDFromContext(r.Context())})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := classifyError(err)
	requestID := requestIDFromContext(r.Context())
	if apiErr.Status >= http.StatusInternalServerError {
		rt.logger.Error(op+" failed", "request_id", requestID, "code", apiErr.Code, "stage", apiErr.Stage, "error", err)
	}
	if apiErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(apiErr.RetryAfter))
	}
	writeJSON(w, apiErr.Status, errorResponse{
		Error:     err.Error(),
		Code:      apiErr.Code,
		Stage:     apiErr.Stage,
		RequestID: requestID,
	})
}
