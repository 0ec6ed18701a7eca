package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable means the query (or corpus) could not be
	// embedded. Fatal for semantic and hybrid retrieval, harmless for lexical.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrIndexNotReady means a query arrived before the lifecycle reached READY.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrRerankFailed marks a reranking failure. Recovered locally by
	// pass-through; never surfaced to callers.
	ErrRerankFailed = errors.New("rerank failed")
	// ErrPersistenceCorrupt means a persisted snapshot could not be trusted.
	// Recovered by a full rebuild.
	ErrPersistenceCorrupt = errors.New("persisted index corrupt")
	// ErrGenerationFailed means the answer model failed; retrieval results
	// are still attached so callers can present sources without an answer.
	ErrGenerationFailed = errors.New("answer generation failed")

	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
