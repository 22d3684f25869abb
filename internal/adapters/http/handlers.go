package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

type questionRequest struct {
	Question     string `json:"question"`
	TopKSections int    `json:"top_k_sections"`
	TopKContent  int    `json:"top_k_content"`
	UseHybrid    *bool  `json:"use_hybrid"`
}

func (q questionRequest) options(defaultHybrid bool) ports.RetrieveOptions {
	hybrid := defaultHybrid
	if q.UseHybrid != nil {
		hybrid = *q.UseHybrid
	}
	return ports.RetrieveOptions{
		TopKSections: q.TopKSections,
		TopKContent:  q.TopKContent,
		UseHybrid:    hybrid,
	}
}

type retrieveResponse struct {
	Route domain.RouteDecision `json:"route"`
	domain.RetrievalResult
}

type verifyRequest struct {
	Answer   string                 `json:"answer"`
	Question string                 `json:"question"`
	Evidence []domain.EvidencePiece `json:"evidence"`
}

type searchRequest struct {
	Corpus string `json:"corpus"`
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
}

var errServiceDisabled = domain.WrapError(domain.ErrUnavailable, "http", errors.New("service is not configured"))

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}

func requireQuestion(q string) error {
	if strings.TrimSpace(q) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", fmt.Errorf("question is required"))
	}
	return nil
}

func (rt *Router) routeQuestion(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Router == nil {
		rt.writeDomainError(w, r, "route", errServiceDisabled)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeDomainError(w, r, "route", err)
		return
	}
	if err := requireQuestion(req.Question); err != nil {
		rt.writeDomainError(w, r, "route", err)
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Router.Route(req.Question))
}

func (rt *Router) retrieveEvidence(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Router == nil || rt.svc.Retriever == nil {
		rt.writeDomainError(w, r, "retrieve", errServiceDisabled)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeDomainError(w, r, "retrieve", err)
		return
	}
	if err := requireQuestion(req.Question); err != nil {
		rt.writeDomainError(w, r, "retrieve", err)
		return
	}

	route := rt.svc.Router.Route(req.Question)
	result, err := rt.svc.Retriever.Retrieve(r.Context(), req.Question, route, req.options(rt.cfg.UseHybrid))
	if err != nil {
		rt.writeDomainError(w, r, "retrieve", err)
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Route: route, RetrievalResult: result})
}

func (rt *Router) answerQuestion(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Answers == nil {
		rt.writeDomainError(w, r, "query", errServiceDisabled)
		return
	}
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeDomainError(w, r, "query", err)
		return
	}

	answer, err := rt.svc.Answers.Answer(r.Context(), req.Question, req.options(rt.cfg.UseHybrid))
	if err != nil {
		rt.writeDomainError(w, r, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) verifyAnswer(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Verifier == nil {
		rt.writeDomainError(w, r, "verify", errServiceDisabled)
		return
	}
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeDomainError(w, r, "verify", err)
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Verifier.Verify(req.Answer, req.Evidence, req.Question))
}

func (rt *Router) searchCorpus(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Searcher == nil {
		rt.writeDomainError(w, r, "search", errServiceDisabled)
		return
	}
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		rt.writeDomainError(w, r, "search", err)
		return
	}

	hits, err := rt.svc.Searcher.Search(r.Context(), domain.Corpus(req.Corpus), req.Query, req.Limit)
	if err != nil {
		rt.writeDomainError(w, r, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"corpus": req.Corpus, "hits": hits})
}

func (rt *Router) registerFiling(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingestor == nil {
		rt.writeDomainError(w, r, "register filing", errServiceDisabled)
		return
	}
	rec, err := rt.svc.Ingestor.Register(r.Context(), r.Body)
	if err != nil {
		rt.writeDomainError(w, r, "register filing", err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (rt *Router) getFiling(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Filings == nil {
		rt.writeDomainError(w, r, "get filing", errServiceDisabled)
		return
	}
	key, err := filingKeyFromPath(r)
	if err != nil {
		rt.writeDomainError(w, r, "get filing", err)
		return
	}
	rec, err := rt.svc.Filings.GetByKey(r.Context(), key)
	if err != nil {
		rt.writeDomainError(w, r, "get filing", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (rt *Router) attachWorkbook(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Workbooks == nil {
		rt.writeDomainError(w, r, "attach workbook", errServiceDisabled)
		return
	}
	key, err := filingKeyFromPath(r)
	if err != nil {
		rt.writeDomainError(w, r, "attach workbook", err)
		return
	}
	rec, err := rt.svc.Workbooks.AttachWorkbook(r.Context(), key, r.Body)
	if err != nil {
		rt.writeDomainError(w, r, "attach workbook", err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (rt *Router) rebuildIndices(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Rebuilder == nil {
		rt.writeDomainError(w, r, "rebuild", errServiceDisabled)
		return
	}
	builds, err := rt.svc.Rebuilder.RebuildAll(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, "rebuild", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func (rt *Router) listIndexBuilds(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Builds == nil {
		rt.writeDomainError(w, r, "list builds", errServiceDisabled)
		return
	}
	builds, err := rt.svc.Builds.LatestBuilds(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, "list builds", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"builds": builds})
}

func filingKeyFromPath(r *http.Request) (domain.FilingKey, error) {
	ticker := strings.ToUpper(strings.TrimSpace(r.PathValue("ticker")))
	year, err := strconv.Atoi(r.PathValue("fiscal_year"))
	if ticker == "" || err != nil {
		return domain.FilingKey{}, domain.WrapError(domain.ErrInvalidInput, "filing key", fmt.Errorf("ticker and numeric fiscal_year are required"))
	}
	return domain.FilingKey{Ticker: ticker, FiscalYear: year}, nil
}
