package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// Loader reads the FAQ and fund sheets into one corpus. Column names are
// matched flexibly because the source spreadsheets drift between exports.
type Loader struct {
	dataDir   string
	faqsFile  string
	fundsFile string
	logger    *slog.Logger
}

func NewLoader(dataDir, faqsFile, fundsFile string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dataDir:   dataDir,
		faqsFile:  faqsFile,
		fundsFile: fundsFile,
		logger:    logger,
	}
}

func (l *Loader) Load(ctx context.Context) (domain.Corpus, error) {
	faqs, err := l.loadFAQs(ctx)
	if err != nil {
		return domain.Corpus{}, err
	}
	funds, err := l.loadFunds(ctx)
	if err != nil {
		return domain.Corpus{}, err
	}

	docs := make([]domain.Document, 0, len(faqs)+len(funds))
	docs = append(docs, faqs...)
	for _, fund := range funds {
		docs = append(docs, domain.Document{
			ID:         fund.ID,
			Text:       fund.EmbeddingText(),
			SourceKind: domain.SourceRecord,
			Metadata:   fund.IndexMetadata(),
		})
	}

	l.logger.Info("corpus_loaded",
		"faqs", len(faqs),
		"funds", len(funds),
		"documents", len(docs),
	)
	return domain.Corpus{Documents: docs, Funds: funds}, nil
}

func (l *Loader) loadFAQs(ctx context.Context) ([]domain.Document, error) {
	rows, ok, err := l.readSheet(ctx, l.faqsFile)
	if err != nil {
		return nil, fmt.Errorf("load faqs: %w", err)
	}
	if !ok {
		l.logger.Warn("faq_file_missing", "file", l.faqsFile)
		return nil, nil
	}

	docs := make([]domain.Document, 0, len(rows))
	for idx, row := range rows {
		question := row.text("question", "query")
		answer := row.text("answer", "response")
		if question == "" || answer == "" {
			continue
		}

		metadata := map[string]string{"question": question}
		if category := row.text("category", "topic"); category != "" {
			metadata["category"] = category
		}
		docs = append(docs, domain.Document{
			ID:         fmt.Sprintf("faq_%d", idx),
			Text:       fmt.Sprintf("Question: %s\nAnswer: %s", question, answer),
			SourceKind: domain.SourceFAQ,
			Metadata:   metadata,
		})
	}
	return docs, nil
}

func (l *Loader) loadFunds(ctx context.Context) ([]domain.Fund, error) {
	rows, ok, err := l.readSheet(ctx, l.fundsFile)
	if err != nil {
		return nil, fmt.Errorf("load funds: %w", err)
	}
	if !ok {
		l.logger.Warn("funds_file_missing", "file", l.fundsFile)
		return nil, nil
	}

	funds := make([]domain.Fund, 0, len(rows))
	for idx, row := range rows {
		name := row.text("fund_name", "name", "scheme_name")
		if name == "" {
			name = fmt.Sprintf("Fund %d", idx)
		}
		funds = append(funds, domain.Fund{
			ID:            fmt.Sprintf("fund_%d", idx),
			Name:          name,
			House:         row.text("fund_house", "amc", "fund_family"),
			Category:      row.text("category", "fund_category", "type"),
			SubCategory:   row.text("sub_category", "subcategory"),
			CAGR1Y:        row.numeric("cagr_1yr", "1yr_cagr", "return_1yr", "1_year_return", "returns_1yr"),
			CAGR3Y:        row.numeric("cagr_3yr", "3yr_cagr", "return_3yr", "3_year_return", "returns_3yr"),
			CAGR5Y:        row.numeric("cagr_5yr", "5yr_cagr", "return_5yr", "5_year_return", "returns_5yr"),
			Volatility:    row.numeric("volatility", "std_dev", "standard_deviation", "risk"),
			SharpeRatio:   row.numeric("sharpe_ratio", "sharpe", "sharpe_3yr"),
			SortinoRatio:  row.numeric("sortino_ratio", "sortino"),
			MaxDrawdown:   row.numeric("max_drawdown", "drawdown", "max_dd"),
			Beta:          row.numeric("beta"),
			Alpha:         row.numeric("alpha"),
			AUM:           row.numeric("aum", "assets", "fund_size", "corpus"),
			ExpenseRatio:  row.numeric("expense_ratio", "ter"),
			NAV:           row.numeric("nav", "price"),
			MinInvestment: row.numeric("min_investment", "minimum_investment", "min_sip"),
			RiskLevel:     row.text("risk_level", "risk_category", "riskometer"),
		})
	}
	return funds, nil
}

// readSheet returns the data rows of a csv or xlsx file keyed by
// normalized header. The second return reports whether the file exists.
func (l *Loader) readSheet(ctx context.Context, filename string) ([]sheetRow, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	path := filepath.Join(l.dataDir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", path, err)
	}

	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(path)
	default:
		records, err = readCSV(path)
	}
	if err != nil {
		return nil, true, err
	}
	if len(records) < 2 {
		return nil, true, nil
	}

	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = normalizeHeader(h)
	}

	rows := make([]sheetRow, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(sheetRow, len(headers))
		for i, header := range headers {
			if header == "" || i >= len(record) {
				continue
			}
			row[header] = strings.TrimSpace(record[i])
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheets[0], path, err)
	}
	return records, nil
}

type sheetRow map[string]string

func (r sheetRow) text(aliases ...string) string {
	for _, alias := range aliases {
		if v := r[alias]; v != "" {
			return v
		}
	}
	return ""
}

func (r sheetRow) numeric(aliases ...string) *float64 {
	for _, alias := range aliases {
		raw := r[alias]
		if raw == "" {
			continue
		}
		cleaned := strings.NewReplacer("%", "", ",", "", "₹", "").Replace(raw)
		v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
		if err != nil {
			continue
		}
		return &v
	}
	return nil
}

// normalizeHeader folds header variants like "Sharpe Ratio" and
// "cagr_1yr (%)" onto canonical snake_case names.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer("(%)", "", "%", "", "(", "", ")", "").Replace(h)
	fields := strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '_' || r == '-' || r == '\t'
	})
	return strings.Join(fields, "_")
}
