package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

type corpusLoaderFake struct {
	corpus  domain.Corpus
	err     error
	calls   int
	entered chan struct{}
	block   chan struct{}
}

func (f *corpusLoaderFake) Load(context.Context) (domain.Corpus, error) {
	f.calls++
	if f.entered != nil {
		close(f.entered)
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return domain.Corpus{}, f.err
	}
	return f.corpus, nil
}

type embedProviderFake struct {
	mu      sync.Mutex
	calls   int
	batches [][]string
	err     error
	vectors map[string][]float32
}

func (f *embedProviderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out[i] = append([]float32(nil), vec...)
			continue
		}
		out[i] = []float32{float32(len(text)), 1, 0}
	}
	return out, nil
}

func (f *embedProviderFake) ModelID() string { return "fake-embed" }
func (f *embedProviderFake) Dimension() int  { return 3 }

func (f *embedProviderFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type lexicalFake struct {
	docs    int
	results []domain.RankedCandidate
}

func (f *lexicalFake) Search(string, int, domain.SearchFilter) []domain.RankedCandidate {
	return append([]domain.RankedCandidate(nil), f.results...)
}

func (f *lexicalFake) Len() int { return f.docs }

type lexicalBuilderFake struct {
	results []domain.RankedCandidate
	err     error
}

func (f *lexicalBuilderFake) Build(docs []domain.Document) (ports.LexicalSearcher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &lexicalFake{docs: len(docs), results: f.results}, nil
}

type semanticFake struct {
	fingerprint string
	docs        int
	results     []domain.RankedCandidate
	err         error
}

func (f *semanticFake) Search(context.Context, []float32, int, domain.SearchFilter) ([]domain.RankedCandidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]domain.RankedCandidate(nil), f.results...), nil
}

func (f *semanticFake) Count() int { return f.docs }

// semanticStoreFake mimics the persisted chromem store: Replace records the
// new collection, Open only succeeds for the fingerprint last replaced.
type semanticStoreFake struct {
	manifest     *domain.IndexManifest
	collection   *semanticFake
	results      []domain.RankedCandidate
	searchErr    error
	replaceCalls int
	openCalls    int
	replaceErr   error
}

func (f *semanticStoreFake) Open(_ context.Context, fingerprint string) (ports.SemanticSearcher, error) {
	f.openCalls++
	if f.collection == nil || f.collection.fingerprint != fingerprint {
		return nil, domain.WrapError(domain.ErrPersistenceCorrupt, "semantic.open",
			fmt.Errorf("no collection for %s", fingerprint))
	}
	return f.collection, nil
}

func (f *semanticStoreFake) Replace(_ context.Context, fingerprint string, docs []domain.Document, vectors [][]float32) (ports.SemanticSearcher, error) {
	f.replaceCalls++
	if f.replaceErr != nil {
		return nil, f.replaceErr
	}
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("%d docs but %d vectors", len(docs), len(vectors))
	}
	f.collection = &semanticFake{
		fingerprint: fingerprint,
		docs:        len(docs),
		results:     f.results,
		err:         f.searchErr,
	}
	return f.collection, nil
}

func (f *semanticStoreFake) ReadManifest() (domain.IndexManifest, error) {
	if f.manifest == nil {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrPersistenceCorrupt,
			"semantic.manifest", errors.New("no manifest"))
	}
	return *f.manifest, nil
}

func (f *semanticStoreFake) WriteManifest(manifest domain.IndexManifest) error {
	f.manifest = &manifest
	return nil
}

type rerankFake struct {
	available bool
	err       error
	results   []domain.RerankResult
	calls     int
}

func (f *rerankFake) Available() bool { return f.available }

func (f *rerankFake) Rerank(context.Context, string, []string, int) ([]domain.RerankResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type generatorFake struct {
	answer      string
	err         error
	calls       int
	lastSources []domain.RankedSource
}

func (f *generatorFake) GenerateAnswer(_ context.Context, _ string, sources []domain.RankedSource) (string, error) {
	f.calls++
	f.lastSources = sources
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

// mapCache is a TTL-blind cache fake; entries never expire.
type mapCache[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func newMapCache[V any]() *mapCache[V] {
	return &mapCache[V]{m: make(map[string]V)}
}

func (c *mapCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapCache[V]) Set(key string, value V, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
}

func (c *mapCache[V]) GetBatch(keys []string) (map[string]V, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	found := make(map[string]V, len(keys))
	var missing []string
	for _, key := range keys {
		if v, ok := c.m[key]; ok {
			found[key] = v
			continue
		}
		missing = append(missing, key)
	}
	return found, missing
}

type queryLogFake struct {
	entries chan domain.QueryLogEntry
}

func newQueryLogFake() *queryLogFake {
	return &queryLogFake{entries: make(chan domain.QueryLogEntry, 16)}
}

func (f *queryLogFake) InsertLog(_ context.Context, entry *domain.QueryLogEntry) error {
	f.entries <- *entry
	return nil
}

func (f *queryLogFake) RecentLogs(context.Context, int) ([]domain.QueryLogEntry, error) {
	return nil, nil
}

func (f *queryLogFake) Stats(context.Context, time.Duration) (domain.QueryStats, error) {
	return domain.QueryStats{}, nil
}

func (f *queryLogFake) InsertFeedback(context.Context, *domain.QueryFeedback) error {
	return nil
}

func testCorpus() domain.Corpus {
	sharpe := 1.4
	fund := domain.Fund{ID: "fund_0", Name: "Alpha Growth", Category: "Equity", SharpeRatio: &sharpe, RiskLevel: "High"}
	return domain.Corpus{
		Documents: []domain.Document{
			{ID: "faq_0", Text: "Question: What is an expense ratio?\nAnswer: The annual fee.", SourceKind: domain.SourceFAQ, Metadata: map[string]string{"question": "What is an expense ratio?", "category": "fees"}},
			{ID: "fund_0", Text: fund.EmbeddingText(), SourceKind: domain.SourceRecord, Metadata: fund.IndexMetadata()},
		},
		Funds: []domain.Fund{fund},
	}
}

func newTestLifecycle(loader *corpusLoaderFake, provider *embedProviderFake, store *semanticStoreFake) (*IndexLifecycle, *CachedEmbedder) {
	embedder := NewCachedEmbedder(provider, nil, time.Hour, 32)
	lifecycle := NewIndexLifecycle(loader, embedder, &lexicalBuilderFake{}, store, nil)
	return lifecycle, embedder
}

func TestInitializePublishesReadyView(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	store := &semanticStoreFake{}
	lifecycle, _ := newTestLifecycle(loader, &embedProviderFake{}, store)

	if got := lifecycle.State(); got != domain.IndexUninitialized {
		t.Fatalf("expected uninitialized state before first pass, got %s", got)
	}
	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if got := lifecycle.State(); got != domain.IndexReady {
		t.Fatalf("expected ready state, got %s", got)
	}
	if got := lifecycle.DocumentCount(); got != 2 {
		t.Fatalf("expected 2 documents, got %d", got)
	}
	if store.replaceCalls != 1 {
		t.Fatalf("expected one semantic replace, got %d", store.replaceCalls)
	}
	if store.manifest == nil || store.manifest.Fingerprint != lifecycle.Fingerprint() {
		t.Fatalf("manifest fingerprint not recorded for published view")
	}
}

func TestSecondInitializeReusesSnapshotWithoutEmbedding(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	provider := &embedProviderFake{}
	store := &semanticStoreFake{}
	lifecycle, _ := newTestLifecycle(loader, provider, store)

	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("first initialize: %v", err)
	}
	callsAfterFirst := provider.callCount()

	if err := lifecycle.Reinitialize(context.Background(), false); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if provider.callCount() != callsAfterFirst {
		t.Fatalf("unchanged corpus re-embedded: %d calls before, %d after",
			callsAfterFirst, provider.callCount())
	}
	if store.replaceCalls != 1 {
		t.Fatalf("expected snapshot reuse, got %d semantic replaces", store.replaceCalls)
	}
	if store.openCalls == 0 {
		t.Fatalf("expected snapshot open on second pass")
	}
}

func TestCorpusChangeForcesRebuild(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	provider := &embedProviderFake{}
	store := &semanticStoreFake{}
	lifecycle, _ := newTestLifecycle(loader, provider, store)

	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	first := lifecycle.Fingerprint()

	loader.corpus.Documents[0].Text = "Question: What changed?\nAnswer: The corpus."
	if err := lifecycle.Reinitialize(context.Background(), false); err != nil {
		t.Fatalf("reinitialize: %v", err)
	}

	if lifecycle.Fingerprint() == first {
		t.Fatalf("fingerprint did not change with corpus content")
	}
	if store.replaceCalls != 2 {
		t.Fatalf("expected rebuild after corpus change, got %d replaces", store.replaceCalls)
	}
}

func TestForceReinitializeSkipsSnapshotCheck(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	provider := &embedProviderFake{}
	store := &semanticStoreFake{}
	lifecycle, _ := newTestLifecycle(loader, provider, store)

	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := lifecycle.Reinitialize(context.Background(), true); err != nil {
		t.Fatalf("forced reinitialize: %v", err)
	}
	if store.replaceCalls != 2 {
		t.Fatalf("force did not re-embed: %d replaces", store.replaceCalls)
	}
}

func TestCorruptSnapshotFallsBackToRebuild(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	store := &semanticStoreFake{}
	lifecycle, _ := newTestLifecycle(loader, &embedProviderFake{}, store)

	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	// Manifest survives but the collection behind it is gone.
	store.collection = nil
	if err := lifecycle.Reinitialize(context.Background(), false); err != nil {
		t.Fatalf("reinitialize over corrupt snapshot: %v", err)
	}
	if lifecycle.State() != domain.IndexReady {
		t.Fatalf("expected ready after fallback rebuild, got %s", lifecycle.State())
	}
	if store.replaceCalls != 2 {
		t.Fatalf("corrupt snapshot should force a rebuild, got %d replaces", store.replaceCalls)
	}
}

func TestConcurrentRebuildIsRejected(t *testing.T) {
	loader := &corpusLoaderFake{
		corpus:  testCorpus(),
		entered: make(chan struct{}),
		block:   make(chan struct{}),
	}
	lifecycle, _ := newTestLifecycle(loader, &embedProviderFake{}, &semanticStoreFake{})

	done := make(chan error, 1)
	go func() {
		done <- lifecycle.Initialize(context.Background())
	}()
	<-loader.entered

	err := lifecycle.Reinitialize(context.Background(), false)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected overlapping rebuild rejection, got %v", err)
	}

	close(loader.block)
	if err := <-done; err != nil {
		t.Fatalf("first initialize: %v", err)
	}
}

func TestFailedRebuildKeepsPreviousView(t *testing.T) {
	loader := &corpusLoaderFake{corpus: testCorpus()}
	lifecycle, _ := newTestLifecycle(loader, &embedProviderFake{}, &semanticStoreFake{})

	if err := lifecycle.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	loader.err = errors.New("source unreachable")
	if err := lifecycle.Reinitialize(context.Background(), false); err == nil {
		t.Fatalf("expected reinitialize failure")
	}
	if lifecycle.State() != domain.IndexReady {
		t.Fatalf("expected previous snapshot to stay live, state %s", lifecycle.State())
	}
	if lifecycle.DocumentCount() != 2 {
		t.Fatalf("previous view lost: %d documents", lifecycle.DocumentCount())
	}
}

func TestFingerprintCoversModelAndDimension(t *testing.T) {
	docs := testCorpus().Documents
	base := corpusFingerprint(docs, "bge-m3", 1024)
	if corpusFingerprint(docs, "bge-m3", 1024) != base {
		t.Fatalf("fingerprint is not deterministic")
	}
	if corpusFingerprint(docs, "other-model", 1024) == base {
		t.Fatalf("fingerprint ignores embedding model")
	}
	if corpusFingerprint(docs, "bge-m3", 768) == base {
		t.Fatalf("fingerprint ignores dimensionality")
	}
}
