package mcp

import (
	"cmp"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/lorerank/internal/config"
	"github.com/Aman-CERP/lorerank/internal/corpus"
	"github.com/Aman-CERP/lorerank/internal/search"
	"github.com/Aman-CERP/lorerank/internal/telemetry"
	"github.com/Aman-CERP/lorerank/pkg/version"
)

// ServerName is the implementation name reported to MCP clients.
const ServerName = "lorerank"

// maxTopK caps the passages a single tool call may request.
const maxTopK = 50

// SearchEngine is the part of search.Engine the server needs.
type SearchEngine interface {
	Search(ctx context.Context, query string, opts search.SearchOptions) ([]*search.SearchResult, error)
	Stats() *search.EngineStats
	Corpus() *corpus.Corpus
	SectionBias() search.SectionBias
}

var _ SearchEngine = (*search.Engine)(nil)

// Server is the MCP server for lorerank.
type Server struct {
	mcp    *mcp.Server
	engine SearchEngine
	config *config.Config
	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// NewServer creates a new MCP server over engine.
func NewServer(engine SearchEngine, cfg *config.Config) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		engine: engine,
		config: cfg,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return s, nil
}

// SetMetrics attaches query telemetry and registers the query_metrics resource.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: "search_passages",
		Description: "Hybrid semantic and keyword search over the passage corpus. " +
			"Returns ranked passages with [n] citation anchors, a context block ready to quote, " +
			"and a numbered reference list. Set explain to see how each score was built.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "corpus_info",
		Description: "Describe the loaded corpus: passage count, embedding model and dimension, vocabulary size, and per-section passage counts with ranking multipliers.",
	}, s.mcpCorpusInfoHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 2))
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchPassagesInput) (
	*mcp.CallToolResult,
	SearchPassagesOutput,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchPassagesOutput{}, NewInvalidParamsError("query parameter is required and must not be blank")
	}

	requestID := generateRequestID()
	opts := search.SearchOptions{
		FinalTopK:   clampLimit(input.TopK, s.config.Search.FinalTopK, maxTopK),
		LexicalOnly: input.LexicalOnly,
		Explain:     input.Explain,
	}

	start := time.Now()
	results, err := s.engine.Search(ctx, input.Query, opts)
	if err != nil {
		s.logger.Warn("tool_search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchPassagesOutput{}, MapError(err)
	}

	s.logger.Info("tool_search_complete",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))

	output := SearchPassagesOutput{
		Results:    make([]PassageOutput, 0, len(results)),
		Context:    search.BuildContext(results),
		References: search.References(results),
	}
	for _, r := range results {
		output.Results = append(output.Results, ToPassageOutput(r))
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatPassages(input.Query, results)}},
	}, output, nil
}

func (s *Server) mcpCorpusInfoHandler(_ context.Context, _ *mcp.CallToolRequest, _ CorpusInfoInput) (
	*mcp.CallToolResult,
	CorpusInfoOutput,
	error,
) {
	return nil, s.corpusInfo(), nil
}

// corpusInfo joins engine stats with per-section counts. Sections in the
// bias table with no passages are listed with zero documents.
func (s *Server) corpusInfo() CorpusInfoOutput {
	stats := s.engine.Stats()
	bias := s.engine.SectionBias()

	out := CorpusInfoOutput{
		Documents:      stats.Documents,
		Dimensions:     stats.Dimensions,
		VocabularySize: stats.VocabularySize,
		AvgDocLength:   stats.AvgDocLength,
		ModelName:      stats.ModelName,
		RRFConstant:    stats.RRFConstant,
		Sections:       []SectionInfo{},
	}

	seen := make(map[string]bool)
	for _, sc := range s.engine.Corpus().SectionCounts() {
		if sc.Section == "" {
			continue
		}
		seen[sc.Section] = true
		out.Sections = append(out.Sections, SectionInfo{
			Name:       sc.Section,
			Documents:  sc.Count,
			Multiplier: bias.Multiplier(sc.Section),
		})
	}
	for _, name := range bias.Sections() {
		if !seen[name] {
			out.Sections = append(out.Sections, SectionInfo{Name: name, Multiplier: bias.Multiplier(name)})
		}
	}
	slices.SortStableFunc(out.Sections, func(a, b SectionInfo) int {
		if c := cmp.Compare(b.Documents, a.Documents); c != 0 {
			return c
		}
		return cmp.Compare(a.Name, b.Name)
	})
	return out
}

// Serve runs the server on transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "", "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
