package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/lorerank/internal/telemetry"
)

// QueryMetricsURI identifies the query_metrics resource.
const QueryMetricsURI = "lorerank://query_metrics"

// QueryMetricsOutput is the JSON structure for the query_metrics resource.
type QueryMetricsOutput struct {
	Summary             QueryMetricsSummary   `json:"summary"`
	ModeCounts          map[string]int64      `json:"mode_counts"`
	SectionHits         map[string]int64      `json:"section_hits"`
	TopTerms            []telemetry.TermCount `json:"top_terms"`
	ZeroResultQueries   []string              `json:"zero_result_queries"`
	LatencyDistribution map[string]int64      `json:"latency_distribution"`
}

// QueryMetricsSummary provides overview statistics.
type QueryMetricsSummary struct {
	TotalQueries     int64   `json:"total_queries"`
	Since            string  `json:"since"`
	ZeroResultPct    float64 `json:"zero_result_pct"`
	ExactRepeatCount int64   `json:"exact_repeat_count"`
}

func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query telemetry: search modes, section hits, top terms, zero-result queries and latency",
			MIMEType:    "application/json",
		},
		s.readQueryMetrics,
	)
}

func (s *Server) readQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()

	if metrics == nil {
		return nil, NewResourceNotFoundError(QueryMetricsURI)
	}

	content, err := json.MarshalIndent(buildQueryMetricsOutput(metrics.Snapshot()), "", "  ")
	if err != nil {
		return nil, MapError(err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      QueryMetricsURI,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}

func buildQueryMetricsOutput(snap *telemetry.Snapshot) QueryMetricsOutput {
	out := QueryMetricsOutput{
		Summary: QueryMetricsSummary{
			TotalQueries:     snap.TotalQueries,
			Since:            snap.Since.UTC().Format(time.RFC3339),
			ZeroResultPct:    snap.ZeroResultPercentage(),
			ExactRepeatCount: snap.ExactRepeatCount,
		},
		ModeCounts:          make(map[string]int64, len(snap.ModeCounts)),
		SectionHits:         snap.SectionHits,
		TopTerms:            snap.TopTerms,
		ZeroResultQueries:   snap.ZeroResultQueries,
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
	}
	for mode, n := range snap.ModeCounts {
		out.ModeCounts[string(mode)] = n
	}
	for bucket, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(bucket)] = n
	}
	if out.SectionHits == nil {
		out.SectionHits = map[string]int64{}
	}
	if out.TopTerms == nil {
		out.TopTerms = []telemetry.TermCount{}
	}
	if out.ZeroResultQueries == nil {
		out.ZeroResultQueries = []string{}
	}
	return out
}
