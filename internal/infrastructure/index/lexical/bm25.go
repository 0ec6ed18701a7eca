package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// Builder constructs immutable BM25 indexes. A rebuild always produces a
// fresh index; the lifecycle manager swaps the active reference.
type Builder struct {
	k1 float64
	b  float64
}

func NewBuilder() *Builder {
	return &Builder{k1: defaultK1, b: defaultB}
}

func (b *Builder) Build(docs []domain.Document) (ports.LexicalSearcher, error) {
	idx := &Index{
		k1:   b.k1,
		b:    b.b,
		df:   make(map[string]int),
		docs: make([]indexedDocument, 0, len(docs)),
	}

	totalTokens := 0
	for _, doc := range docs {
		tokens := tokenize(doc.Text)
		tf := make(map[string]int, len(tokens))
		for _, token := range tokens {
			tf[token]++
		}
		for term := range tf {
			idx.df[term]++
		}
		totalTokens += len(tokens)
		idx.docs = append(idx.docs, indexedDocument{
			id:         doc.ID,
			sourceKind: doc.SourceKind,
			tf:         tf,
			length:     len(tokens),
		})
	}
	if len(idx.docs) > 0 {
		idx.avgdl = float64(totalTokens) / float64(len(idx.docs))
	}
	return idx, nil
}

type indexedDocument struct {
	id         string
	sourceKind domain.SourceKind
	tf         map[string]int
	length     int
}

// Index scores documents with BM25. It is read-only after Build and safe
// for concurrent searches.
type Index struct {
	k1    float64
	b     float64
	avgdl float64
	df    map[string]int
	docs  []indexedDocument
}

func (idx *Index) Len() int {
	return len(idx.docs)
}

// Search returns up to topK candidates sorted by descending score, ties
// broken by document id. Documents scoring zero are omitted.
func (idx *Index) Search(query string, topK int, filter domain.SearchFilter) []domain.RankedCandidate {
	if topK <= 0 || len(idx.docs) == 0 {
		return nil
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	type scoredDoc struct {
		id    string
		score float64
	}
	scored := make([]scoredDoc, 0, 2*topK)
	corpusSize := float64(len(idx.docs))

	for _, doc := range idx.docs {
		if filter.SourceKind != "" && doc.sourceKind != filter.SourceKind {
			continue
		}
		score := 0.0
		for _, term := range terms {
			tf := float64(doc.tf[term])
			if tf == 0 {
				continue
			}
			df := float64(idx.df[term])
			idf := math.Log((corpusSize-df+0.5)/(df+0.5) + 1)
			denom := tf + idx.k1*(1-idx.b+idx.b*float64(doc.length)/idx.avgdl)
			score += idf * tf * (idx.k1 + 1) / denom
		}
		if score <= 0 {
			continue
		}
		scored = append(scored, scoredDoc{id: doc.id, score: score})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].id < scored[j].id
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}

	out := make([]domain.RankedCandidate, len(scored))
	for i, s := range scored {
		out[i] = domain.RankedCandidate{
			DocumentID: s.id,
			Score:      s.score,
			Rank:       i + 1,
		}
	}
	return out
}

func tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			out = append(out, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		out = append(out, b.String())
	}
	return out
}
