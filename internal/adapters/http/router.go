package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
	"github.com/qonfido/fundrag/internal/observability/metrics"
)

// Options tune the router's traffic gates and metric labels.
type Options struct {
	Service        string
	RateLimitRPS   int
	RateLimitBurst int
	MaxConcurrent  int
	QueueWait      time.Duration
}

type Router struct {
	query   ports.QueryService
	admin   ports.IndexAdmin
	funds   ports.FundCatalog
	logs    ports.QueryLogStore
	queue   ports.MessageQueue
	metrics *metrics.HTTPServerMetrics
	logger  *slog.Logger
	opts    Options
}

func NewRouter(
	query ports.QueryService,
	admin ports.IndexAdmin,
	funds ports.FundCatalog,
	logs ports.QueryLogStore,
	queue ports.MessageQueue,
	m *metrics.HTTPServerMetrics,
	logger *slog.Logger,
	opts Options,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	if opts.QueueWait <= 0 {
		opts.QueueWait = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		query:   query,
		admin:   admin,
		funds:   funds,
		logs:    logs,
		queue:   queue,
		metrics: m,
		logger:  logger,
		opts:    opts,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.HandleFunc("GET /v1/search-modes", rt.searchModes)
	mux.HandleFunc("POST /v1/query", rt.handleQuery)
	mux.HandleFunc("GET /v1/funds", rt.listFunds)
	mux.HandleFunc("GET /v1/funds/summary/metrics", rt.fundMetricsSummary)
	mux.HandleFunc("POST /v1/funds/compare", rt.compareFunds)
	mux.HandleFunc("GET /v1/funds/{fund_id}", rt.getFund)
	mux.HandleFunc("POST /v1/feedback", rt.submitFeedback)
	mux.HandleFunc("GET /v1/stats", rt.queryStats)
	mux.HandleFunc("POST /v1/admin/reindex", rt.requestReindex)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.QueueWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.opts.Service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports 503 until the index lifecycle has published a snapshot,
// so load balancers hold traffic during the initial (re)build.
func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	state := rt.admin.State()
	payload := map[string]any{
		"state":     state,
		"documents": rt.admin.DocumentCount(),
	}
	if state != domain.IndexReady {
		writeJSON(w, http.StatusServiceUnavailable, payload)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (rt *Router) searchModes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"modes": []map[string]string{
			{
				"name":        string(domain.ModeLexical),
				"description": "BM25 keyword search, best for exact fund names and metric terms",
			},
			{
				"name":        string(domain.ModeSemantic),
				"description": "embedding similarity search, best for paraphrased questions",
			},
			{
				"name":        string(domain.ModeHybrid),
				"description": "both searches fused with reciprocal rank fusion",
			},
		},
		"default": string(domain.ModeHybrid),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= 500 {
		rt.logger.Error("request_failed",
			slog.String("request_id", requestIDFromContext(r.Context())),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
