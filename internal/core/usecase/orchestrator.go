package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

const (
	maxQueryLength = 1000
	// maxFundDetails caps the typed fund records attached to a response.
	maxFundDetails = 5
)

// OrchestratorOptions tune the retrieval pipeline. Zero values fall back
// to the documented defaults, except ResponseTTL and HybridAlpha: a zero
// ResponseTTL disables response caching, a zero alpha weights fusion fully
// toward the lexical ranking.
type OrchestratorOptions struct {
	DefaultMode domain.QueryMode
	DefaultTopK int
	MaxTopK     int
	RRFK        int
	HybridAlpha float64
	ResponseTTL time.Duration

	EmbedTimeout    time.Duration
	RerankTimeout   time.Duration
	GenerateTimeout time.Duration
}

// Orchestrator is the retrieval façade: it validates a query, consults the
// response cache, embeds, dispatches per mode, reranks, classifies, scores
// confidence, generates the answer and records analytics.
type Orchestrator struct {
	lifecycle  *IndexLifecycle
	embedder   ports.Embedder
	reranker   ports.RerankProvider
	generator  ports.AnswerGenerator
	classifier ports.QueryClassifier
	responses  ports.Cache[domain.RetrievalResponse]
	logs       ports.QueryLogStore
	logger     *slog.Logger
	opts       OrchestratorOptions
}

func NewOrchestrator(
	lifecycle *IndexLifecycle,
	embedder ports.Embedder,
	reranker ports.RerankProvider,
	generator ports.AnswerGenerator,
	classifier ports.QueryClassifier,
	responses ports.Cache[domain.RetrievalResponse],
	logs ports.QueryLogStore,
	logger *slog.Logger,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.DefaultMode == "" {
		opts.DefaultMode = domain.ModeHybrid
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = 5
	}
	if opts.MaxTopK <= 0 {
		opts.MaxTopK = 20
	}
	if opts.EmbedTimeout <= 0 {
		opts.EmbedTimeout = 30 * time.Second
	}
	if opts.RerankTimeout <= 0 {
		opts.RerankTimeout = 10 * time.Second
	}
	if opts.GenerateTimeout <= 0 {
		opts.GenerateTimeout = 90 * time.Second
	}
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		lifecycle:  lifecycle,
		embedder:   embedder,
		reranker:   reranker,
		generator:  generator,
		classifier: classifier,
		responses:  responses,
		logs:       logs,
		logger:     logger,
		opts:       opts,
	}
}

// Process answers a query end to end. When generation fails, the error
// carries the ErrGenerationFailed kind and the retrieval payload is still
// returned so callers can present sources without an answer.
func (o *Orchestrator) Process(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResponse, error) {
	started := time.Now()

	req, err := o.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	cacheKey := responseCacheKey("process", req)
	if cached, ok := o.cachedResponse(cacheKey); ok {
		o.logQuery(req, cached, time.Since(started), true)
		return cached, nil
	}

	resp, err := o.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	genCtx, cancel := context.WithTimeout(ctx, o.opts.GenerateTimeout)
	answer, err := o.generator.GenerateAnswer(genCtx, req.Query, resp.Sources)
	cancel()
	if err != nil {
		o.logQuery(req, resp, time.Since(started), false)
		return resp, domain.WrapError(domain.ErrGenerationFailed, "generate answer", err)
	}
	resp.Answer = answer

	o.storeResponse(cacheKey, resp)
	o.logQuery(req, resp, time.Since(started), false)
	return resp, nil
}

// Retrieve runs the pipeline without answer generation: ranked sources,
// query type and confidence only.
func (o *Orchestrator) Retrieve(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResponse, error) {
	req, err := o.normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	cacheKey := responseCacheKey("retrieve", req)
	if cached, ok := o.cachedResponse(cacheKey); ok {
		return cached, nil
	}

	resp, err := o.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	o.storeResponse(cacheKey, resp)
	return resp, nil
}

func (o *Orchestrator) retrieve(ctx context.Context, req domain.QueryRequest) (*domain.RetrievalResponse, error) {
	view := o.lifecycle.snapshot()
	if view == nil {
		return nil, domain.WrapError(domain.ErrIndexNotReady, "retrieve",
			errors.New("index has not been initialized"))
	}

	filter := domain.SearchFilter{SourceKind: req.SourceFilter}

	var vector []float32
	if req.Mode != domain.ModeLexical {
		embedCtx, cancel := context.WithTimeout(ctx, o.opts.EmbedTimeout)
		var err error
		vector, err = o.embedder.EmbedQuery(embedCtx, req.Query)
		cancel()
		if err != nil {
			return nil, err
		}
	}

	sources, err := o.searchSources(ctx, view, req, vector, filter)
	if err != nil {
		return nil, err
	}

	if req.Rerank {
		sources = o.rerankSources(ctx, req.Query, sources, req.TopK)
	}
	if len(sources) > req.TopK {
		sources = sources[:req.TopK]
	}

	queryType := o.classifier.Classify(req.Query, sources)

	return &domain.RetrievalResponse{
		QueryType:  queryType,
		Funds:      o.extractFunds(view, sources),
		Sources:    sources,
		Confidence: scoreConfidence(sources, queryType),
		Mode:       req.Mode,
	}, nil
}

func (o *Orchestrator) searchSources(
	ctx context.Context,
	view *corpusView,
	req domain.QueryRequest,
	vector []float32,
	filter domain.SearchFilter,
) ([]domain.RankedSource, error) {
	switch req.Mode {
	case domain.ModeLexical:
		candidates := view.lexical.Search(req.Query, req.TopK, filter)
		return sourcesFromCandidates(view, candidates, domain.ModeLexical), nil

	case domain.ModeSemantic:
		if view.semantic == nil {
			return nil, nil
		}
		candidates, err := view.semantic.Search(ctx, vector, req.TopK, filter)
		if err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "semantic search", err)
		}
		return sourcesFromCandidates(view, candidates, domain.ModeSemantic), nil

	default:
		fused, err := o.hybridSearch(ctx, view, req.Query, vector, req.TopK, filter)
		if err != nil {
			return nil, err
		}
		return sourcesFromFused(view, fused), nil
	}
}

// rerankSources passes candidates through the rerank provider when one is
// configured. Any failure degrades to the incoming order; reranking never
// fails a request.
func (o *Orchestrator) rerankSources(ctx context.Context, query string, sources []domain.RankedSource, topK int) []domain.RankedSource {
	if len(sources) == 0 || o.reranker == nil || !o.reranker.Available() {
		return sources
	}

	texts := make([]string, len(sources))
	for i, source := range sources {
		texts[i] = source.Text
	}
	topN := topK
	if topN > len(sources) {
		topN = len(sources)
	}

	rerankCtx, cancel := context.WithTimeout(ctx, o.opts.RerankTimeout)
	results, err := o.reranker.Rerank(rerankCtx, query, texts, topN)
	cancel()
	if err != nil {
		o.logger.Warn("rerank_degraded",
			slog.Any("error", domain.WrapError(domain.ErrRerankFailed, "rerank", err)),
		)
		return sources
	}

	out := make([]domain.RankedSource, 0, len(results))
	for _, result := range results {
		if result.Index < 0 || result.Index >= len(sources) {
			continue
		}
		source := sources[result.Index]
		source.Score = result.Score
		out = append(out, source)
	}
	if len(out) == 0 {
		return sources
	}
	return out
}

func (o *Orchestrator) extractFunds(view *corpusView, sources []domain.RankedSource) []domain.Fund {
	var funds []domain.Fund
	seen := make(map[string]struct{}, maxFundDetails)
	for _, source := range sources {
		if source.SourceKind != domain.SourceRecord {
			continue
		}
		fund, ok := view.fundsByID[source.ID]
		if !ok {
			continue
		}
		if _, dup := seen[fund.ID]; dup {
			continue
		}
		seen[fund.ID] = struct{}{}
		funds = append(funds, fund)
		if len(funds) == maxFundDetails {
			break
		}
	}
	return funds
}

func (o *Orchestrator) normalizeRequest(req domain.QueryRequest) (domain.QueryRequest, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, domain.WrapError(domain.ErrInvalidInput, "validate query",
			errors.New("query is required"))
	}
	if utf8.RuneCountInString(req.Query) > maxQueryLength {
		return req, domain.WrapError(domain.ErrInvalidInput, "validate query",
			fmt.Errorf("query exceeds %d characters", maxQueryLength))
	}
	if req.Mode == "" {
		req.Mode = o.opts.DefaultMode
	}
	if !req.Mode.Valid() {
		return req, domain.WrapError(domain.ErrInvalidInput, "validate query",
			fmt.Errorf("unknown search mode %q", req.Mode))
	}
	if req.TopK <= 0 {
		req.TopK = o.opts.DefaultTopK
	}
	if req.TopK > o.opts.MaxTopK {
		req.TopK = o.opts.MaxTopK
	}
	if req.SourceFilter != "" && !req.SourceFilter.Valid() {
		return req, domain.WrapError(domain.ErrInvalidInput, "validate query",
			fmt.Errorf("unknown source filter %q", req.SourceFilter))
	}
	return req, nil
}

func (o *Orchestrator) cachedResponse(key string) (*domain.RetrievalResponse, bool) {
	if o.responses == nil || o.opts.ResponseTTL <= 0 {
		return nil, false
	}
	resp, ok := o.responses.Get(key)
	if !ok {
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (o *Orchestrator) storeResponse(key string, resp *domain.RetrievalResponse) {
	if o.responses == nil || o.opts.ResponseTTL <= 0 {
		return
	}
	o.responses.Set(key, *resp, o.opts.ResponseTTL)
}

// logQuery records analytics off the request path. Failures are logged and
// never affect the response.
func (o *Orchestrator) logQuery(req domain.QueryRequest, resp *domain.RetrievalResponse, elapsed time.Duration, cacheHit bool) {
	if o.logs == nil {
		return
	}
	entry := &domain.QueryLogEntry{
		Query:          req.Query,
		Mode:           req.Mode,
		QueryType:      resp.QueryType,
		ResponseTimeMS: float64(elapsed) / float64(time.Millisecond),
		AnswerLength:   len(resp.Answer),
		SourcesCount:   len(resp.Sources),
		Confidence:     resp.Confidence,
		CacheHit:       cacheHit,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.logs.InsertLog(ctx, entry); err != nil {
			o.logger.Warn("query_log_failed", slog.Any("error", err))
		}
	}()
}

func sourcesFromCandidates(view *corpusView, candidates []domain.RankedCandidate, mode domain.QueryMode) []domain.RankedSource {
	out := make([]domain.RankedSource, 0, len(candidates))
	for _, candidate := range candidates {
		doc, ok := view.docs[candidate.DocumentID]
		if !ok {
			continue
		}
		source := domain.RankedSource{Document: doc, Score: candidate.Score}
		if mode == domain.ModeLexical {
			source.LexicalRank = candidate.Rank
		} else {
			source.SemanticRank = candidate.Rank
		}
		out = append(out, source)
	}
	return out
}

func sourcesFromFused(view *corpusView, fused []domain.FusedResult) []domain.RankedSource {
	out := make([]domain.RankedSource, 0, len(fused))
	for _, result := range fused {
		doc, ok := view.docs[result.DocumentID]
		if !ok {
			continue
		}
		out = append(out, domain.RankedSource{
			Document:     doc,
			Score:        result.RRFScore,
			LexicalRank:  result.LexicalRank,
			SemanticRank: result.SemanticRank,
		})
	}
	return out
}
