// Package mcpadapter exposes filing question answering as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

const (
	serverName      = "filing-qa"
	toolAnswer      = "answer_filing_question"
	toolSearch      = "search_filing_corpus"
	toolRoute       = "route_filing_question"
	maxSearchResult = 100
)

type handlers struct {
	answers  ports.AnswerService
	searcher ports.CorpusSearcher
	router   ports.QueryRouter
	defaults ports.RetrieveOptions
	logger   *slog.Logger
}

// NewServer registers the tools whose services are non-nil.
func NewServer(
	version string,
	answers ports.AnswerService,
	searcher ports.CorpusSearcher,
	router ports.QueryRouter,
	defaults ports.RetrieveOptions,
	logger *slog.Logger,
) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		answers:  answers,
		searcher: searcher,
		router:   router,
		defaults: defaults,
		logger:   logger,
	}

	s := server.NewMCPServer(serverName, version, server.WithToolCapabilities(false))
	if answers != nil {
		s.AddTool(answerTool(), h.answer)
	}
	if searcher != nil {
		s.AddTool(searchTool(), h.search)
	}
	if router != nil {
		s.AddTool(routeTool(), h.route)
	}
	return s
}

func answerTool() mcp.Tool {
	return mcp.NewTool(toolAnswer,
		mcp.WithDescription("Answer a question about ingested 10-K filings with cited evidence and numeric verification."),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural language question, e.g. 'What was Apple revenue growth in FY2023?'")),
		mcp.WithNumber("top_k_sections", mcp.Description("Sections selected in the first stage.")),
		mcp.WithNumber("top_k_content", mcp.Description("Evidence pieces returned from the content corpus.")),
		mcp.WithBoolean("use_hybrid", mcp.Description("Fuse BM25 with dense similarity.")),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool(toolSearch,
		mcp.WithDescription("Hybrid search over one corpus: sections, text or tables."),
		mcp.WithString("corpus", mcp.Required(), mcp.Enum("sections", "text", "tables")),
		mcp.WithString("query", mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum hits, 1 to 100.")),
	)
}

func routeTool() mcp.Tool {
	return mcp.NewTool(toolRoute,
		mcp.WithDescription("Classify a question as table or text centric and detect arithmetic."),
		mcp.WithString("question", mcp.Required()),
	)
}

func (h *handlers) answer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := ports.RetrieveOptions{
		TopKSections: req.GetInt("top_k_sections", h.defaults.TopKSections),
		TopKContent:  req.GetInt("top_k_content", h.defaults.TopKContent),
		UseHybrid:    req.GetBool("use_hybrid", h.defaults.UseHybrid),
	}

	answer, err := h.answers.Answer(ctx, question, opts)
	if err != nil {
		h.logger.Warn("mcp answer failed", "error", err)
		return mcp.NewToolResultErrorFromErr("answer failed", err), nil
	}
	return jsonResult(answer)
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rawCorpus, err := req.RequireString("corpus")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	corpus, ok := domain.ParseCorpus(rawCorpus)
	if !ok {
		return mcp.NewToolResultError("corpus must be one of sections, text, tables"), nil
	}
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := min(max(req.GetInt("limit", 10), 1), maxSearchResult)

	hits, err := h.searcher.Search(ctx, corpus, query, limit)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("search failed", err), nil
	}
	return jsonResult(map[string]any{"corpus": corpus, "hits": hits})
}

func (h *handlers) route(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(h.router.Route(question))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
