package usecase

import (
	"testing"

	"github.com/qonfido/fundrag/internal/core/domain"
)

func recordSource(id string, score float64) domain.RankedSource {
	return domain.RankedSource{
		Document: domain.Document{
			ID:         id,
			SourceKind: domain.SourceRecord,
			Metadata: map[string]string{
				"fund_name": "Fund " + id, "category": "Equity", "cagr_3yr": "12.5",
				"sharpe_ratio": "1.4", "volatility": "9.1", "risk_level": "High",
			},
		},
		Score: score,
	}
}

func faqSource(id string, score float64) domain.RankedSource {
	return domain.RankedSource{
		Document: domain.Document{
			ID:         id,
			SourceKind: domain.SourceFAQ,
			Metadata:   map[string]string{"question": "What is X?", "category": "basics"},
		},
		Score: score,
	}
}

func TestClassifyMetricQueryWithRecordSources(t *testing.T) {
	c := NewKeywordClassifier()
	sources := []domain.RankedSource{recordSource("fund_1", 0.9), recordSource("fund_2", 0.8)}

	if got := c.Classify("which fund has the highest sharpe ratio", sources); got != domain.QueryTypeNumerical {
		t.Fatalf("expected numerical classification, got %s", got)
	}
}

func TestClassifyInformationalQueryWithFAQSources(t *testing.T) {
	c := NewKeywordClassifier()
	sources := []domain.RankedSource{faqSource("faq_1", 0.9), faqSource("faq_2", 0.7)}

	if got := c.Classify("what is an expense ratio", sources); got != domain.QueryTypeFAQ {
		t.Fatalf("expected faq classification, got %s", got)
	}
}

func TestClassifyDisagreementFallsBackToHybrid(t *testing.T) {
	c := NewKeywordClassifier()

	// Metric wording but FAQ-dominated results.
	sources := []domain.RankedSource{faqSource("faq_1", 0.9), faqSource("faq_2", 0.8)}
	if got := c.Classify("compare the best returns", sources); got != domain.QueryTypeHybrid {
		t.Fatalf("expected hybrid for keyword/source disagreement, got %s", got)
	}

	// No keyword signal at all.
	if got := c.Classify("tell me about funds", sources); got != domain.QueryTypeHybrid {
		t.Fatalf("expected hybrid without keyword signal, got %s", got)
	}
}

func TestScoreConfidenceNoSourcesIsZero(t *testing.T) {
	if got := scoreConfidence(nil, domain.QueryTypeHybrid); got != 0 {
		t.Fatalf("expected zero confidence without sources, got %f", got)
	}
}

func TestScoreConfidenceStaysInUnitRange(t *testing.T) {
	sources := []domain.RankedSource{recordSource("fund_1", 5.0), recordSource("fund_2", 3.0)}
	got := scoreConfidence(sources, domain.QueryTypeNumerical)
	if got < 0 || got > 1 {
		t.Fatalf("confidence out of range: %f", got)
	}
	if got != 1 {
		t.Fatalf("saturated scores with full metadata and type match should clamp to 1, got %f", got)
	}
}

func TestScoreConfidenceRewardsMetadataCompleteness(t *testing.T) {
	complete := []domain.RankedSource{recordSource("fund_1", 0.5)}
	bare := []domain.RankedSource{{
		Document: domain.Document{ID: "fund_2", SourceKind: domain.SourceRecord},
		Score:    0.5,
	}}

	withMetadata := scoreConfidence(complete, domain.QueryTypeNumerical)
	withoutMetadata := scoreConfidence(bare, domain.QueryTypeNumerical)
	if withMetadata <= withoutMetadata {
		t.Fatalf("metadata completeness not rewarded: %f <= %f", withMetadata, withoutMetadata)
	}
}

func TestScoreConfidenceRewardsTypeAgreement(t *testing.T) {
	sources := []domain.RankedSource{recordSource("fund_1", 0.5)}

	matched := scoreConfidence(sources, domain.QueryTypeNumerical)
	mismatched := scoreConfidence(sources, domain.QueryTypeFAQ)
	if matched <= mismatched {
		t.Fatalf("type agreement not rewarded: %f <= %f", matched, mismatched)
	}
}
