package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cast"

	"github.com/FranksOps/searchmcp/internal/notify"
	"github.com/FranksOps/searchmcp/internal/scholar"
	"github.com/FranksOps/searchmcp/internal/serp"
)

// ServerName is advertised during the MCP handshake.
const ServerName = "ddg-search-sse"

// NewServer returns an MCP server with the tools of svc registered.
func NewServer(svc *Service, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)
	Register(s, svc, logger)
	return s
}

// Register adds search, fetch_content and scholar_search to s.
func Register(s *server.MCPServer, svc *Service, logger *slog.Logger) {
	h := &handlers{svc: svc, logger: logger}

	s.AddTool(mcp.NewTool(ToolSearch,
		mcp.WithDescription("Search DuckDuckGo and return formatted results."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query string")),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d, at most %d)", serp.DefaultMaxResults, serp.MaxResultsCap)),
			mcp.DefaultNumber(serp.DefaultMaxResults),
		),
	), h.search)

	s.AddTool(mcp.NewTool(ToolFetchContent,
		mcp.WithDescription("Fetch and parse content from a webpage URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("The webpage URL to fetch content from")),
	), h.fetchContent)

	s.AddTool(mcp.NewTool(ToolScholarSearch,
		mcp.WithDescription("Search Google Scholar and return formatted results."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The search query string")),
		mcp.WithNumber("max_results",
			mcp.Description(fmt.Sprintf("Maximum number of results to return (default: %d)", scholar.DefaultMaxResults)),
			mcp.DefaultNumber(scholar.DefaultMaxResults),
		),
		mcp.WithNumber("year_low", mcp.Description("Minimum year of publication")),
		mcp.WithNumber("year_high", mcp.Description("Maximum year of publication")),
		mcp.WithString("sort_by",
			mcp.Description("'relevance' or 'date' (default: relevance)"),
			mcp.Enum(string(scholar.SortRelevance), string(scholar.SortDate)),
			mcp.DefaultString(string(scholar.SortRelevance)),
		),
		mcp.WithNumber("start_index",
			mcp.Description("Starting index of list of publications (default: 0)"),
			mcp.DefaultNumber(0),
		),
		mcp.WithString("format",
			mcp.Description("Output format, either 'text' or 'bibtex' (default: bibtex)"),
			mcp.Enum("text", "bibtex"),
			mcp.DefaultString("bibtex"),
		),
	), h.scholarSearch)
}

type handlers struct {
	svc    *Service
	logger *slog.Logger
}

func (h *handlers) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sink := notify.NewMCPSink(ctx, h.logger)
	text := h.svc.Search(ctx, sink, cast.ToString(args["query"]), intArg(args, "max_results", serp.DefaultMaxResults))
	return mcp.NewToolResultText(text), nil
}

func (h *handlers) fetchContent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sink := notify.NewMCPSink(ctx, h.logger)
	return mcp.NewToolResultText(h.svc.FetchContent(ctx, sink, cast.ToString(args["url"]))), nil
}

func (h *handlers) scholarSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	sink := notify.NewMCPSink(ctx, h.logger)
	text := h.svc.ScholarSearch(ctx, sink, ScholarArgs{
		Query:      cast.ToString(args["query"]),
		MaxResults: intArg(args, "max_results", scholar.DefaultMaxResults),
		YearLow:    optionalInt(args, "year_low"),
		YearHigh:   optionalInt(args, "year_high"),
		SortBy:     cast.ToString(args["sort_by"]),
		StartIndex: intArg(args, "start_index", 0),
		Format:     cast.ToString(args["format"]),
	})
	return mcp.NewToolResultText(text), nil
}

// intArg reads a loosely typed integer; JSON numbers arrive as float64 and
// some clients send strings.
func intArg(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func optionalInt(args map[string]any, key string) *int {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return nil
	}
	return &n
}
