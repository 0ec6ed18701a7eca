package usecase

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/qonfido/fundrag/internal/core/domain"
)

const (
	defaultListLimit = 50
	minCompareFunds  = 2
	maxCompareFunds  = 5
)

// FundCatalog is the read model over the fund records of the published
// corpus snapshot. It shares the lifecycle's view with retrieval, so a
// catalog read and a query issued at the same moment describe the same
// corpus generation.
type FundCatalog struct {
	lifecycle *IndexLifecycle
}

func NewFundCatalog(lifecycle *IndexLifecycle) *FundCatalog {
	return &FundCatalog{lifecycle: lifecycle}
}

func (c *FundCatalog) List(filter domain.FundFilter) ([]domain.Fund, int, error) {
	view, err := c.view()
	if err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	matched := make([]domain.Fund, 0, len(view.funds))
	for _, fund := range view.funds {
		if filter.Category != "" && !containsFold(fund.Category, filter.Category) {
			continue
		}
		if filter.RiskLevel != "" && !strings.EqualFold(fund.RiskLevel, filter.RiskLevel) {
			continue
		}
		matched = append(matched, fund)
	}

	total := len(matched)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (c *FundCatalog) Get(id string) (*domain.Fund, error) {
	view, err := c.view()
	if err != nil {
		return nil, err
	}

	fund, ok := view.fundsByID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get fund",
			fmt.Errorf("fund %s not in catalog", id))
	}
	return &fund, nil
}

// Compare resolves 2 to 5 fund ids into their full records, preserving the
// requested order. An unknown id fails the whole comparison.
func (c *FundCatalog) Compare(ids []string) ([]domain.Fund, error) {
	if len(ids) < minCompareFunds || len(ids) > maxCompareFunds {
		return nil, domain.WrapError(domain.ErrInvalidInput, "compare funds",
			fmt.Errorf("comparison needs %d to %d fund ids, got %d", minCompareFunds, maxCompareFunds, len(ids)))
	}

	view, err := c.view()
	if err != nil {
		return nil, err
	}

	funds := make([]domain.Fund, 0, len(ids))
	for _, id := range ids {
		fund, ok := view.fundsByID[id]
		if !ok {
			return nil, domain.WrapError(domain.ErrNotFound, "compare funds",
				fmt.Errorf("fund %s not in catalog", id))
		}
		funds = append(funds, fund)
	}
	return funds, nil
}

func (c *FundCatalog) MetricsSummary() (domain.FundMetricsSummary, error) {
	view, err := c.view()
	if err != nil {
		return domain.FundMetricsSummary{}, err
	}

	summary := domain.FundMetricsSummary{TotalFunds: len(view.funds)}
	categories := make(map[string]struct{})
	riskLevels := make(map[string]struct{})

	var sharpe, cagr3y, volatility metricAccumulator
	for _, fund := range view.funds {
		sharpe.add(fund.SharpeRatio)
		cagr3y.add(fund.CAGR3Y)
		volatility.add(fund.Volatility)
		if fund.Category != "" {
			categories[fund.Category] = struct{}{}
		}
		if fund.RiskLevel != "" {
			riskLevels[fund.RiskLevel] = struct{}{}
		}
	}

	summary.Sharpe = sharpe.stats()
	summary.CAGR3Y = cagr3y.stats()
	summary.Volatility = volatility.stats()
	summary.Categories = sortedKeys(categories)
	summary.RiskLevels = sortedKeys(riskLevels)
	return summary, nil
}

func (c *FundCatalog) view() (*corpusView, error) {
	view := c.lifecycle.snapshot()
	if view == nil {
		return nil, domain.WrapError(domain.ErrIndexNotReady, "fund catalog",
			errors.New("corpus has not been loaded"))
	}
	return view, nil
}

// metricAccumulator tracks min/max/sum over the funds that actually carry
// the metric; blank cells do not drag the average.
type metricAccumulator struct {
	count    int
	min, max float64
	sum      float64
}

func (a *metricAccumulator) add(v *float64) {
	if v == nil {
		return
	}
	if a.count == 0 || *v < a.min {
		a.min = *v
	}
	if a.count == 0 || *v > a.max {
		a.max = *v
	}
	a.sum += *v
	a.count++
}

func (a *metricAccumulator) stats() domain.MetricStats {
	if a.count == 0 {
		return domain.MetricStats{}
	}
	minV, maxV := a.min, a.max
	avg := a.sum / float64(a.count)
	return domain.MetricStats{Min: &minV, Max: &maxV, Avg: &avg}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
