package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

// CachedEmbedder decorates an EmbeddingProvider with a content-addressed
// vector cache. Repeated texts hit the provider once; the provider only
// ever sees the uncached subset, chunked to its batch size. Every vector
// leaving this type is L2-normalized.
type CachedEmbedder struct {
	provider  ports.EmbeddingProvider
	cache     ports.Cache[[]float32]
	ttl       time.Duration
	batchSize int
}

func NewCachedEmbedder(
	provider ports.EmbeddingProvider,
	cache ports.Cache[[]float32],
	ttl time.Duration,
	batchSize int,
) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &CachedEmbedder{
		provider:  provider,
		cache:     cache,
		ttl:       ttl,
		batchSize: batchSize,
	}
}

func (e *CachedEmbedder) ModelID() string {
	return e.provider.ModelID()
}

func (e *CachedEmbedder) Dimension() int {
	return e.provider.Dimension()
}

// EmbedBatch returns one vector per input text, in input order. Identical
// texts share a single provider computation within and across calls.
func (e *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = embeddingCacheKey(text)
	}

	vectors := make(map[string][]float32, len(texts))
	var missingKeys []string
	if e.cache != nil {
		vectors, missingKeys = e.cache.GetBatch(dedupKeys(keys))
	} else {
		missingKeys = dedupKeys(keys)
	}

	if len(missingKeys) > 0 {
		missingSet := make(map[string]struct{}, len(missingKeys))
		for _, key := range missingKeys {
			missingSet[key] = struct{}{}
		}

		// One provider text per missing key, in first-appearance order.
		uncachedKeys := make([]string, 0, len(missingKeys))
		uncachedTexts := make([]string, 0, len(missingKeys))
		for i, key := range keys {
			if _, missing := missingSet[key]; !missing {
				continue
			}
			delete(missingSet, key)
			uncachedKeys = append(uncachedKeys, key)
			uncachedTexts = append(uncachedTexts, texts[i])
		}

		computed, err := e.embedUncached(ctx, uncachedTexts)
		if err != nil {
			return nil, err
		}
		for i, vec := range computed {
			vectors[uncachedKeys[i]] = vec
			if e.cache != nil {
				e.cache.Set(uncachedKeys[i], vec, e.ttl)
			}
		}
	}

	out := make([][]float32, len(texts))
	for i, key := range keys {
		vec, ok := vectors[key]
		if !ok {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed batch",
				fmt.Errorf("no vector produced for input %d", i))
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds a single text through the same cache-aware path.
func (e *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *CachedEmbedder) embedUncached(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := e.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed batch", err)
		}
		if len(vectors) != end-start {
			return nil, domain.WrapError(domain.ErrEmbeddingUnavailable, "embed batch",
				fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), end-start))
		}
		for _, vec := range vectors {
			out = append(out, normalizeL2(vec))
		}
	}
	return out, nil
}

func dedupKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// normalizeL2 scales a vector to unit length so cosine similarity reduces
// to a dot product downstream. Zero vectors pass through unchanged.
func normalizeL2(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) * inv)
	}
	return out
}
