package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/qonfido/fundrag/internal/core/domain"
)

const maxRequestBodyBytes = 64 * 1024

type queryRequestBody struct {
	Query        string `json:"query"`
	Mode         string `json:"search_mode,omitempty"`
	TopK         int    `json:"top_k,omitempty"`
	Rerank       *bool  `json:"rerank,omitempty"`
	SourceFilter string `json:"source_filter,omitempty"`
	RetrieveOnly bool   `json:"retrieve_only,omitempty"`
}

func (rt *Router) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body queryRequestBody
	if err := decodeJSONBody(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}

	req := domain.QueryRequest{
		Query:        body.Query,
		Mode:         domain.QueryMode(body.Mode),
		TopK:         body.TopK,
		Rerank:       true,
		SourceFilter: domain.SourceKind(body.SourceFilter),
	}
	if body.Rerank != nil {
		req.Rerank = *body.Rerank
	}

	started := time.Now()
	var (
		resp *domain.RetrievalResponse
		err  error
	)
	if body.RetrieveOnly {
		resp, err = rt.query.Retrieve(r.Context(), req)
	} else {
		resp, err = rt.query.Process(r.Context(), req)
	}
	rt.recordQueryMetrics(req, resp, err, time.Since(started))

	// Generation failures still carry the retrieval payload; surface the
	// sources alongside the error so clients can degrade gracefully.
	if err != nil && resp != nil && domain.IsKind(err, domain.ErrGenerationFailed) {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":       "answer generation failed",
			"query_type":  resp.QueryType,
			"sources":     resp.Sources,
			"confidence":  resp.Confidence,
			"search_mode": resp.Mode,
		})
		return
	}
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) recordQueryMetrics(req domain.QueryRequest, resp *domain.RetrievalResponse, err error, elapsed time.Duration) {
	if rt.metrics == nil {
		return
	}
	mode := string(req.Mode)
	if mode == "" {
		mode = string(domain.ModeHybrid)
	}

	status := "ok"
	queryType := ""
	sourceCount := 0
	confidence := 0.0
	switch {
	case err != nil && !domain.IsKind(err, domain.ErrGenerationFailed):
		status = "error"
	case resp != nil && resp.Cached:
		status = "cached"
	}
	if resp != nil {
		queryType = string(resp.QueryType)
		sourceCount = len(resp.Sources)
		confidence = resp.Confidence
		rt.metrics.RecordQueryCache(rt.opts.Service, resp.Cached)
	}
	rt.metrics.RecordQuery(rt.opts.Service, mode, queryType, status, sourceCount, confidence, elapsed)
}

func (rt *Router) listFunds(w http.ResponseWriter, r *http.Request) {
	filter := domain.FundFilter{
		Category:  strings.TrimSpace(r.URL.Query().Get("category")),
		RiskLevel: strings.TrimSpace(r.URL.Query().Get("risk_level")),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "list funds",
				errors.New("limit must be a non-negative integer")))
			return
		}
		filter.Limit = limit
	}

	funds, total, err := rt.funds.List(filter)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"funds": funds,
		"count": len(funds),
		"total": total,
	})
}

func (rt *Router) getFund(w http.ResponseWriter, r *http.Request) {
	fund, err := rt.funds.Get(r.PathValue("fund_id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fund)
}

func (rt *Router) compareFunds(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FundIDs []string `json:"fund_ids"`
	}
	if err := decodeJSONBody(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}

	funds, err := rt.funds.Compare(body.FundIDs)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"funds": funds,
		"count": len(funds),
	})
}

func (rt *Router) fundMetricsSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := rt.funds.MetricsSummary()
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) submitFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		QueryLogID *int64 `json:"query_log_id,omitempty"`
		Rating     int    `json:"rating"`
		Helpful    *bool  `json:"helpful,omitempty"`
		Comment    string `json:"comment,omitempty"`
	}
	if err := decodeJSONBody(w, r, &body); err != nil {
		rt.writeError(w, r, err)
		return
	}
	if body.Rating < 1 || body.Rating > 5 {
		rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "submit feedback",
			errors.New("rating must be between 1 and 5")))
		return
	}

	feedback := &domain.QueryFeedback{
		QueryLogID: body.QueryLogID,
		Rating:     body.Rating,
		Helpful:    body.Helpful,
		Comment:    strings.TrimSpace(body.Comment),
	}
	if err := rt.logs.InsertFeedback(r.Context(), feedback); err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     feedback.ID,
		"status": "recorded",
	})
}

func (rt *Router) queryStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 365 {
			rt.writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "query stats",
				errors.New("days must be between 1 and 365")))
			return
		}
		days = parsed
	}

	stats, err := rt.logs.Stats(r.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	stats.WindowDays = days
	writeJSON(w, http.StatusOK, stats)
}

// requestReindex publishes a rebuild request for the indexer worker. Without
// a queue the rebuild runs in-process instead, so single-binary deployments
// keep the endpoint.
func (rt *Router) requestReindex(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()

	if rt.queue != nil {
		if err := rt.queue.PublishRebuildRequested(r.Context(), requestID); err != nil {
			rt.writeError(w, r, domain.WrapError(domain.ErrTemporary, "publish rebuild request", err))
			return
		}
	} else {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
			defer cancel()
			if err := rt.admin.Reinitialize(ctx, true); err != nil {
				rt.logger.Error("reindex_failed",
					slog.String("request_id", requestID),
					slog.Any("error", err),
				)
			}
		}()
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"request_id": requestID,
		"status":     "accepted",
	})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request body", err)
	}
	return nil
}
