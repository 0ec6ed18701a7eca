package mcpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/qonfido/fundrag/internal/core/domain"
)

func (s *Server) handleQueryFunds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := queryRequestFromArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.query.Process(ctx, req)
	if err != nil && !domain.IsKind(err, domain.ErrGenerationFailed) {
		s.logger.Warn("query_funds_failed", slog.Any("error", err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload := map[string]interface{}{
		"answer":      resp.Answer,
		"query_type":  resp.QueryType,
		"confidence":  resp.Confidence,
		"search_mode": resp.Mode,
		"sources":     sourceSummaries(resp.Sources),
	}
	if err != nil {
		payload["answer"] = ""
		payload["generation_error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(payload)), nil
}

func (s *Server) handleSearchFunds(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := queryRequestFromArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := s.query.Retrieve(ctx, req)
	if err != nil {
		s.logger.Warn("search_funds_failed", slog.Any("error", err))
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query_type":  resp.QueryType,
		"confidence":  resp.Confidence,
		"search_mode": resp.Mode,
		"sources":     sourceSummaries(resp.Sources),
	})), nil
}

func (s *Server) handleIndexStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"state":     s.admin.State(),
		"documents": s.admin.DocumentCount(),
	})), nil
}

func queryRequestFromArgs(request mcp.CallToolRequest) (domain.QueryRequest, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return domain.QueryRequest{}, fmt.Errorf("invalid arguments")
	}
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return domain.QueryRequest{}, fmt.Errorf("query parameter is required")
	}
	return domain.QueryRequest{
		Query:        query,
		Mode:         domain.QueryMode(getStringDefault(args, "search_mode", "")),
		TopK:         getIntDefault(args, "top_k", 0),
		Rerank:       true,
		SourceFilter: domain.SourceKind(getStringDefault(args, "source_filter", "")),
	}, nil
}

// sourceSummaries trims ranked sources to what an agent host needs: the
// full document text would blow the tool result budget on large corpora.
func sourceSummaries(sources []domain.RankedSource) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(sources))
	for _, source := range sources {
		entry := map[string]interface{}{
			"id":          source.ID,
			"source_kind": source.SourceKind,
			"score":       source.Score,
			"text":        truncate(source.Text, 500),
		}
		if source.LexicalRank > 0 {
			entry["lexical_rank"] = source.LexicalRank
		}
		if source.SemanticRank > 0 {
			entry["semantic_rank"] = source.SemanticRank
		}
		out = append(out, entry)
	}
	return out
}

// truncate cuts on a rune boundary so the result stays valid UTF-8.
func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

func formatJSON(data map[string]interface{}) string {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(encoded)
}

func getIntDefault(args map[string]interface{}, key string, fallback int) int {
	if v, ok := args[key].(float64); ok {
		return int(v)
	}
	if v, ok := args[key].(int); ok {
		return v
	}
	return fallback
}

func getStringDefault(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return fallback
}
