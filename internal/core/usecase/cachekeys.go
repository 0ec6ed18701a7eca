package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// embeddingCacheKey identifies a vector by the content that produced it.
// Embeddings are deterministic per text, so surrounding whitespace must
// not split cache entries.
func embeddingCacheKey(text string) string {
	return "emb:" + hashHex(strings.TrimSpace(text))
}

// responseCacheKey identifies a full response by everything that shapes
// it: the entry point, the canonicalized query, search mode, result count
// and source filter. The entry point keeps answered and retrieval-only
// payloads from shadowing each other.
func responseCacheKey(op string, req domain.QueryRequest) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s",
		op, canonicalQuery(req.Query), req.Mode, req.TopK, req.SourceFilter)
	return "query:" + hashHex(payload)
}

// canonicalQuery lowercases and collapses whitespace so trivially
// different spellings of the same question share a cache entry.
func canonicalQuery(query string) string {
	return strings.ToLower(strings.Join(strings.Fields(query), " "))
}

func hashHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
