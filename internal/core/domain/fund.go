package domain

import (
	"fmt"
	"strings"
)

// Fund holds one mutual fund record with its performance metrics.
// Metrics are pointers because source sheets routinely leave cells blank.
type Fund struct {
	ID            string   `json:"id"`
	Name          string   `json:"fund_name"`
	House         string   `json:"fund_house,omitempty"`
	Category      string   `json:"category,omitempty"`
	SubCategory   string   `json:"sub_category,omitempty"`
	CAGR1Y        *float64 `json:"cagr_1yr,omitempty"`
	CAGR3Y        *float64 `json:"cagr_3yr,omitempty"`
	CAGR5Y        *float64 `json:"cagr_5yr,omitempty"`
	Volatility    *float64 `json:"volatility,omitempty"`
	SharpeRatio   *float64 `json:"sharpe_ratio,omitempty"`
	SortinoRatio  *float64 `json:"sortino_ratio,omitempty"`
	MaxDrawdown   *float64 `json:"max_drawdown,omitempty"`
	Beta          *float64 `json:"beta,omitempty"`
	Alpha         *float64 `json:"alpha,omitempty"`
	AUM           *float64 `json:"aum,omitempty"`
	ExpenseRatio  *float64 `json:"expense_ratio,omitempty"`
	NAV           *float64 `json:"nav,omitempty"`
	MinInvestment *float64 `json:"min_investment,omitempty"`
	RiskLevel     string   `json:"risk_level,omitempty"`
}

// EmbeddingText renders the searchable description block for this fund.
func (f Fund) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fund: %s", f.Name)
	if f.House != "" {
		fmt.Fprintf(&b, " by %s", f.House)
	}
	b.WriteString(".")
	if f.Category != "" {
		fmt.Fprintf(&b, " Category: %s", f.Category)
		if f.SubCategory != "" {
			fmt.Fprintf(&b, " (%s)", f.SubCategory)
		}
		b.WriteString(".")
	}
	appendMetric(&b, "1-year CAGR", f.CAGR1Y, "%")
	appendMetric(&b, "3-year CAGR", f.CAGR3Y, "%")
	appendMetric(&b, "5-year CAGR", f.CAGR5Y, "%")
	appendMetric(&b, "Volatility", f.Volatility, "%")
	appendMetric(&b, "Sharpe ratio", f.SharpeRatio, "")
	appendMetric(&b, "Sortino ratio", f.SortinoRatio, "")
	appendMetric(&b, "Max drawdown", f.MaxDrawdown, "%")
	appendMetric(&b, "Beta", f.Beta, "")
	appendMetric(&b, "Alpha", f.Alpha, "")
	appendMetric(&b, "Expense ratio", f.ExpenseRatio, "%")
	appendMetric(&b, "AUM", f.AUM, " Cr")
	appendMetric(&b, "NAV", f.NAV, "")
	appendMetric(&b, "Minimum investment", f.MinInvestment, "")
	if f.RiskLevel != "" {
		fmt.Fprintf(&b, " Risk level: %s.", f.RiskLevel)
	}
	return b.String()
}

// IndexMetadata flattens the fund into the string map stored on its
// corpus document. Missing metrics are omitted so metadata completeness
// can be measured by key presence.
func (f Fund) IndexMetadata() map[string]string {
	m := map[string]string{"fund_name": f.Name}
	setIfPresent(m, "fund_house", f.House)
	setIfPresent(m, "category", f.Category)
	setIfPresent(m, "sub_category", f.SubCategory)
	setIfPresent(m, "risk_level", f.RiskLevel)
	setMetric(m, "cagr_1yr", f.CAGR1Y)
	setMetric(m, "cagr_3yr", f.CAGR3Y)
	setMetric(m, "cagr_5yr", f.CAGR5Y)
	setMetric(m, "volatility", f.Volatility)
	setMetric(m, "sharpe_ratio", f.SharpeRatio)
	setMetric(m, "sortino_ratio", f.SortinoRatio)
	setMetric(m, "max_drawdown", f.MaxDrawdown)
	setMetric(m, "beta", f.Beta)
	setMetric(m, "alpha", f.Alpha)
	setMetric(m, "aum", f.AUM)
	setMetric(m, "expense_ratio", f.ExpenseRatio)
	setMetric(m, "nav", f.NAV)
	setMetric(m, "min_investment", f.MinInvestment)
	return m
}

func appendMetric(b *strings.Builder, label string, v *float64, unit string) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, " %s: %.2f%s.", label, *v, unit)
}

func setIfPresent(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func setMetric(m map[string]string, key string, v *float64) {
	if v != nil {
		m[key] = fmt.Sprintf("%.4f", *v)
	}
}

// FundFilter narrows catalog listings. Substring matches, case-insensitive.
type FundFilter struct {
	Category  string
	RiskLevel string
	Limit     int
}

// MetricStats summarizes one metric across the catalog.
type MetricStats struct {
	Min *float64 `json:"min"`
	Max *float64 `json:"max"`
	Avg *float64 `json:"avg"`
}

// FundMetricsSummary is the catalog-wide metrics overview.
type FundMetricsSummary struct {
	TotalFunds int         `json:"total_funds"`
	Sharpe     MetricStats `json:"sharpe_ratio"`
	CAGR3Y     MetricStats `json:"cagr_3yr"`
	Volatility MetricStats `json:"volatility"`
	Categories []string    `json:"categories"`
	RiskLevels []string    `json:"risk_levels"`
}
