package cohere

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/infrastructure/resilience"
)

// Client calls the Cohere rerank endpoint. The reranker is optional:
// without an API key Available reports false and callers skip the pass.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, apiKey, model string, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(apiKey),
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Available() bool {
	return c.apiKey != ""
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores the candidate texts against the query and returns them in
// descending relevance order as indexes into docTexts.
func (c *Client) Rerank(ctx context.Context, query string, docTexts []string, topN int) ([]domain.RerankResult, error) {
	if !c.Available() {
		return nil, errors.New("cohere: api key not configured")
	}
	if len(docTexts) == 0 {
		return nil, nil
	}
	if topN <= 0 || topN > len(docTexts) {
		topN = len(docTexts)
	}

	request := rerankRequest{
		Model:     c.model,
		Query:     query,
		Documents: docTexts,
		TopN:      topN,
	}
	var response rerankResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/rerank", request, &response)
	}

	var err error
	if c.exec == nil {
		err = call(ctx)
	} else {
		err = c.exec.Execute(ctx, "cohere_rerank", call, classifyCohereError)
	}
	if err != nil {
		return nil, err
	}

	out := make([]domain.RerankResult, 0, len(response.Results))
	for _, r := range response.Results {
		if r.Index < 0 || r.Index >= len(docTexts) {
			return nil, fmt.Errorf("cohere: result index %d out of range for %d documents", r.Index, len(docTexts))
		}
		out = append(out, domain.RerankResult{Index: r.Index, Score: r.RelevanceScore})
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cohere rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &statusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode rerank response: %w", err)
	}
	return nil
}

type statusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *statusError) Error() string {
	if e == nil {
		return "cohere status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("cohere rerank status: %s", e.Status)
	}
	return fmt.Sprintf("cohere rerank status: %s: %s", e.Status, strings.TrimSpace(e.Body))
}

func classifyCohereError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}

	var statusErr *statusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}

	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
