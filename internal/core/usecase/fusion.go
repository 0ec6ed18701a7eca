package usecase

import (
	"context"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/qonfido/fundrag/internal/core/domain"
)

// overFetchFactor widens both source searches before fusion; fusing from a
// deeper pool ranks better than fusing exactly top_k from each side.
const overFetchFactor = 3

// hybridSearch runs the lexical and semantic searches concurrently and
// merges their rankings with reciprocal rank fusion. A semantic failure
// degrades to the lexical ranking alone; the search errors only when the
// semantic side failed and nothing at all was retrieved.
func (o *Orchestrator) hybridSearch(
	ctx context.Context,
	view *corpusView,
	query string,
	vector []float32,
	topK int,
	filter domain.SearchFilter,
) ([]domain.FusedResult, error) {
	fetchK := topK * overFetchFactor

	var (
		lexResults []domain.RankedCandidate
		semResults []domain.RankedCandidate
		semErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(2)
	g.Go(func() error {
		lexResults = view.lexical.Search(query, fetchK, filter)
		return nil
	})
	g.Go(func() error {
		if view.semantic == nil {
			return nil
		}
		results, err := view.semantic.Search(gctx, vector, fetchK, filter)
		if err != nil {
			semErr = err
			return nil
		}
		semResults = results
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if semErr != nil {
		if len(lexResults) == 0 {
			return nil, domain.WrapError(domain.ErrTemporary, "hybrid search", semErr)
		}
		o.logger.Warn("hybrid_semantic_degraded",
			slog.String("query", canonicalQuery(query)),
			slog.Any("error", semErr),
		)
	}

	fused := fuseRRF(lexResults, semResults, o.opts.RRFK, o.opts.HybridAlpha)
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused, nil
}

// fuseRRF merges two 1-based rank lists with reciprocal rank fusion:
//
//	rrf(d) = (1-alpha)/(rrfK + lexical_rank) + alpha/(rrfK + semantic_rank)
//
// A document missing from one list contributes nothing for that term.
// Ordering is deterministic: descending score, ties by document id.
func fuseRRF(lexical, semantic []domain.RankedCandidate, rrfK int, alpha float64) []domain.FusedResult {
	if rrfK <= 0 {
		rrfK = 60
	}
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}

	lexRanks := rankMap(lexical)
	semRanks := rankMap(semantic)

	out := make([]domain.FusedResult, 0, len(lexRanks)+len(semRanks))
	seen := make(map[string]struct{}, len(lexRanks)+len(semRanks))
	appendDoc := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}

		result := domain.FusedResult{
			DocumentID:   id,
			LexicalRank:  lexRanks[id],
			SemanticRank: semRanks[id],
		}
		if result.LexicalRank > 0 {
			result.RRFScore += (1 - alpha) / float64(rrfK+result.LexicalRank)
		}
		if result.SemanticRank > 0 {
			result.RRFScore += alpha / float64(rrfK+result.SemanticRank)
		}
		out = append(out, result)
	}

	for _, candidate := range lexical {
		appendDoc(candidate.DocumentID)
	}
	for _, candidate := range semantic {
		appendDoc(candidate.DocumentID)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RRFScore != out[j].RRFScore {
			return out[i].RRFScore > out[j].RRFScore
		}
		return out[i].DocumentID < out[j].DocumentID
	})
	return out
}

// rankMap keeps the first (best) 1-based rank per document id.
func rankMap(candidates []domain.RankedCandidate) map[string]int {
	ranks := make(map[string]int, len(candidates))
	for i, candidate := range candidates {
		rank := candidate.Rank
		if rank <= 0 {
			rank = i + 1
		}
		if _, dup := ranks[candidate.DocumentID]; !dup {
			ranks[candidate.DocumentID] = rank
		}
	}
	return ranks
}
