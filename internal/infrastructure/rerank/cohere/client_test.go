package cohere

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qonfido/fundrag/internal/infrastructure/resilience"
)

func TestAvailableFollowsAPIKeyPresence(t *testing.T) {
	if New("https://api.cohere.com", "", "rerank-english-v3.0", nil).Available() {
		t.Fatalf("expected unavailable without api key")
	}
	if !New("https://api.cohere.com", "key", "rerank-english-v3.0", nil).Available() {
		t.Fatalf("expected available with api key")
	}
}

func TestRerankSendsAuthorizedRequest(t *testing.T) {
	var captured rerankRequest
	var authHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/rerank" {
			http.NotFound(w, r)
			return
		}
		authHeader = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[{"index":1,"relevance_score":0.93},{"index":0,"relevance_score":0.48}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "secret", "rerank-english-v3.0", nil)
	got, err := client.Rerank(context.Background(), "best sharpe fund", []string{"doc a", "doc b"}, 2)
	if err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}

	if authHeader != "Bearer secret" {
		t.Fatalf("expected bearer auth, got %q", authHeader)
	}
	if captured.Model != "rerank-english-v3.0" || captured.Query != "best sharpe fund" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
	if len(captured.Documents) != 2 || captured.TopN != 2 {
		t.Fatalf("unexpected documents/top_n: %+v", captured)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].Index != 1 || got[0].Score != 0.93 {
		t.Fatalf("expected best candidate first, got %+v", got[0])
	}
}

func TestRerankClampsTopN(t *testing.T) {
	var captured rerankRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	client := New(server.URL, "secret", "rerank-english-v3.0", nil)
	if _, err := client.Rerank(context.Background(), "q", []string{"only"}, 10); err != nil {
		t.Fatalf("Rerank() error = %v", err)
	}
	if captured.TopN != 1 {
		t.Fatalf("expected top_n clamped to 1, got %d", captured.TopN)
	}
}

func TestRerankRejectsOutOfRangeIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[{"index":5,"relevance_score":0.9}]}`))
	}))
	defer server.Close()

	client := New(server.URL, "secret", "rerank-english-v3.0", nil)
	if _, err := client.Rerank(context.Background(), "q", []string{"a", "b"}, 2); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestRerankFailsWithoutKey(t *testing.T) {
	client := New("https://api.cohere.com", "", "rerank-english-v3.0", nil)
	if _, err := client.Rerank(context.Background(), "q", []string{"a"}, 1); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestRerankRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.7}]}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}, nil)

	client := New(server.URL, "secret", "rerank-english-v3.0", exec)
	got, err := client.Rerank(context.Background(), "q", []string{"a"}, 1)
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(got) != 1 || got[0].Index != 0 {
		t.Fatalf("unexpected results: %+v", got)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}
