package domain

// QueryMode selects the retrieval strategy for one query.
type QueryMode string

const (
	ModeLexical  QueryMode = "lexical"
	ModeSemantic QueryMode = "semantic"
	ModeHybrid   QueryMode = "hybrid"
)

func (m QueryMode) Valid() bool {
	return m == ModeLexical || m == ModeSemantic || m == ModeHybrid
}

// QueryType is the classified intent of a query.
type QueryType string

const (
	QueryTypeFAQ       QueryType = "faq"
	QueryTypeNumerical QueryType = "numerical"
	QueryTypeHybrid    QueryType = "hybrid"
)

// SearchFilter restricts retrieval to one corpus slice. Zero value = no filter.
type SearchFilter struct {
	SourceKind SourceKind
}

// RankedCandidate is one hit from a single source list, rank 1 = best.
type RankedCandidate struct {
	DocumentID string
	Score      float64
	Rank       int
}

// FusedResult is the RRF merge of both source lists for one document.
// A zero rank means the document was absent from that source's list.
type FusedResult struct {
	DocumentID   string
	RRFScore     float64
	LexicalRank  int
	SemanticRank int
}

// RerankResult reorders candidates by provider relevance; Index points
// into the candidate slice handed to the provider.
type RerankResult struct {
	Index int
	Score float64
}

// QueryRequest is the orchestrator input, already validated by the caller.
type QueryRequest struct {
	Query        string
	Mode         QueryMode
	TopK         int
	Rerank       bool
	SourceFilter SourceKind
}

// RankedSource is one response source: the document plus its final score
// and the per-source ranks that produced it (0 when absent from a source).
type RankedSource struct {
	Document
	Score        float64 `json:"score"`
	LexicalRank  int     `json:"lexical_rank,omitempty"`
	SemanticRank int     `json:"semantic_rank,omitempty"`
}

// RetrievalResponse is the full answer payload, immutable once built.
type RetrievalResponse struct {
	Answer     string         `json:"answer"`
	QueryType  QueryType      `json:"query_type"`
	Funds      []Fund         `json:"funds,omitempty"`
	Sources    []RankedSource `json:"sources"`
	Confidence float64        `json:"confidence"`
	Mode       QueryMode      `json:"search_mode"`
	Cached     bool           `json:"cached,omitempty"`
}
