package usecase

import "github.com/qonfido/fundrag/internal/core/domain"

// confidenceTopN is how many leading sources feed the confidence signals.
const confidenceTopN = 3

// Weights of the secondary confidence signals. The relevance mean dominates;
// metadata completeness and type agreement only nudge the score.
const (
	completenessWeight = 0.10
	typeMatchWeight    = 0.05
)

// expectedRecordFields are the metadata keys a well-formed fund document
// carries; their presence ratio measures how answerable a metric question
// is from the retrieved set.
var expectedRecordFields = []string{
	"fund_name", "category", "cagr_3yr", "sharpe_ratio", "volatility", "risk_level",
}

var expectedFAQFields = []string{"question", "category"}

// scoreConfidence combines the mean top-3 relevance score with metadata
// completeness and query-type agreement, clamped to [0,1]. No sources
// means no confidence.
func scoreConfidence(sources []domain.RankedSource, queryType domain.QueryType) float64 {
	if len(sources) == 0 {
		return 0
	}

	top := sources
	if len(top) > confidenceTopN {
		top = top[:confidenceTopN]
	}

	var scoreSum float64
	for _, source := range top {
		scoreSum += source.Score
	}
	base := clamp01(scoreSum / float64(len(top)))

	confidence := base +
		completenessWeight*metadataCompleteness(top) +
		typeMatchWeight*typeAgreement(sources, queryType)
	return clamp01(confidence)
}

// metadataCompleteness averages, over the given sources, the fraction of
// expected metadata fields actually present.
func metadataCompleteness(sources []domain.RankedSource) float64 {
	if len(sources) == 0 {
		return 0
	}

	var total float64
	for _, source := range sources {
		expected := expectedFAQFields
		if source.SourceKind == domain.SourceRecord {
			expected = expectedRecordFields
		}

		present := 0
		for _, field := range expected {
			if source.Metadata[field] != "" {
				present++
			}
		}
		total += float64(present) / float64(len(expected))
	}
	return total / float64(len(sources))
}

func typeAgreement(sources []domain.RankedSource, queryType domain.QueryType) float64 {
	if sourceMixType(sources, confidenceTopN) == queryType {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
