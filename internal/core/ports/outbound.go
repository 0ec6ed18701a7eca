package ports

import (
	"context"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// CorpusLoader supplies the full document corpus from the configured source.
type CorpusLoader interface {
	Load(ctx context.Context) (domain.Corpus, error)
}

// EmbeddingProvider converts text to fixed-length vectors via the external
// embedding service. Implementations do not cache.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Dimension() int
}

// Embedder is the cache-aware embedding surface consumed by retrieval.
// Returned vectors are L2-normalized.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dimension() int
}

// LexicalSearcher is an immutable keyword index over one corpus snapshot.
type LexicalSearcher interface {
	Search(query string, topK int, filter domain.SearchFilter) []domain.RankedCandidate
	Len() int
}

// LexicalIndexBuilder constructs a complete lexical index from a corpus.
// The previous index is never mutated; callers swap the result in.
type LexicalIndexBuilder interface {
	Build(docs []domain.Document) (LexicalSearcher, error)
}

// SemanticSearcher is a read view over one persisted vector collection.
type SemanticSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, filter domain.SearchFilter) ([]domain.RankedCandidate, error)
	Count() int
}

// SemanticIndexStore owns the persisted vector collections and the snapshot
// manifest. Replace publishes a fully built collection; Open attaches to a
// previously persisted one without re-embedding.
type SemanticIndexStore interface {
	Open(ctx context.Context, fingerprint string) (SemanticSearcher, error)
	Replace(ctx context.Context, fingerprint string, docs []domain.Document, vectors [][]float32) (SemanticSearcher, error)
	ReadManifest() (domain.IndexManifest, error)
	WriteManifest(manifest domain.IndexManifest) error
}

// RerankProvider reorders candidate documents by joint query/document
// relevance. Available reports whether the provider is configured.
type RerankProvider interface {
	Available() bool
	Rerank(ctx context.Context, query string, docTexts []string, topN int) ([]domain.RerankResult, error)
}

// AnswerGenerator produces the user-facing answer from ranked sources.
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, question string, sources []domain.RankedSource) (string, error)
}

// QueryClassifier infers query intent from the query text and the
// source-kind mix of the top results.
type QueryClassifier interface {
	Classify(query string, topSources []domain.RankedSource) domain.QueryType
}

// Cache is a TTL-bounded key/value cache. Expired entries read as absent;
// a zero or negative TTL stores an entry that is already expired.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Set(key string, value V, ttl time.Duration)
	GetBatch(keys []string) (map[string]V, []string)
}

// QueryLogStore persists query analytics and feedback.
type QueryLogStore interface {
	InsertLog(ctx context.Context, entry *domain.QueryLogEntry) error
	RecentLogs(ctx context.Context, limit int) ([]domain.QueryLogEntry, error)
	Stats(ctx context.Context, window time.Duration) (domain.QueryStats, error)
	InsertFeedback(ctx context.Context, feedback *domain.QueryFeedback) error
}

// MessageQueue carries index rebuild coordination events. Both Subscribe
// methods block until ctx is cancelled, then drain the subscription;
// callers that have other work to do run them in their own goroutine.
type MessageQueue interface {
	PublishRebuildRequested(ctx context.Context, requestID string) error
	SubscribeRebuildRequested(ctx context.Context, handler func(context.Context, string) error) error
	PublishIndexReady(ctx context.Context, event domain.IndexReadyEvent) error
	SubscribeIndexReady(ctx context.Context, handler func(context.Context, domain.IndexReadyEvent) error) error
}
