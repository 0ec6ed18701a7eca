package usecase

import (
	"strings"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// numericalKeywords signal metric-driven questions answered by fund records.
var numericalKeywords = []string{
	"best", "top", "highest", "lowest", "sharpe", "cagr",
	"return", "performance", "risk", "volatility", "compare",
}

// faqPhrases signal informational questions answered by FAQ text.
var faqPhrases = []string{
	"what is", "what are", "how does", "explain", "define",
	"meaning", "difference between",
}

// KeywordClassifier infers query intent from substring matches in the query
// combined with the source-kind mix of the top results. It is deliberately
// cheap; anything smarter can replace it behind the same port.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

func (c *KeywordClassifier) Classify(query string, topSources []domain.RankedSource) domain.QueryType {
	lower := strings.ToLower(query)
	isNumerical := containsAny(lower, numericalKeywords)
	isFAQ := containsAny(lower, faqPhrases)

	recordCount, faqCount := sourceKindCounts(topSources, 3)
	if recordCount > faqCount && isNumerical {
		return domain.QueryTypeNumerical
	}
	if faqCount > recordCount && isFAQ {
		return domain.QueryTypeFAQ
	}
	return domain.QueryTypeHybrid
}

func containsAny(s string, needles []string) bool {
	for _, needle := range needles {
		if strings.Contains(s, needle) {
			return true
		}
	}
	return false
}

// sourceKindCounts tallies structured-record and FAQ hits among the first
// limit sources.
func sourceKindCounts(sources []domain.RankedSource, limit int) (records, faqs int) {
	if limit > len(sources) {
		limit = len(sources)
	}
	for _, source := range sources[:limit] {
		switch source.SourceKind {
		case domain.SourceRecord:
			records++
		case domain.SourceFAQ:
			faqs++
		}
	}
	return records, faqs
}

// sourceMixType maps the source-kind mix of the top results onto the query
// type those sources would answer; used to score type agreement.
func sourceMixType(sources []domain.RankedSource, limit int) domain.QueryType {
	records, faqs := sourceKindCounts(sources, limit)
	switch {
	case records > 0 && faqs == 0:
		return domain.QueryTypeNumerical
	case faqs > 0 && records == 0:
		return domain.QueryTypeFAQ
	default:
		return domain.QueryTypeHybrid
	}
}
