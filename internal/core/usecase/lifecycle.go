package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

// corpusView is one fully built, immutable snapshot of the searchable
// corpus. The lifecycle publishes a new view atomically; readers hold a
// view pointer for the duration of a query and never see a partial state.
type corpusView struct {
	fingerprint string
	builtAt     time.Time
	docs        map[string]domain.Document
	funds       []domain.Fund
	fundsByID   map[string]domain.Fund
	lexical     ports.LexicalSearcher
	semantic    ports.SemanticSearcher
}

// IndexLifecycle drives the corpus through
// uninitialized -> loading -> (ready | rebuilding -> ready).
//
// The lexical index is rebuilt on every pass (cheap, no persisted form).
// The semantic index is re-embedded only when the corpus fingerprint
// diverges from the persisted snapshot manifest; a matching snapshot is
// attached without a single embedding call.
type IndexLifecycle struct {
	loader     ports.CorpusLoader
	embedder   ports.Embedder
	lexBuilder ports.LexicalIndexBuilder
	semStore   ports.SemanticIndexStore
	logger     *slog.Logger

	inFlight atomic.Int32
	state    atomic.Value // domain.IndexState
	view     atomic.Pointer[corpusView]
}

func NewIndexLifecycle(
	loader ports.CorpusLoader,
	embedder ports.Embedder,
	lexBuilder ports.LexicalIndexBuilder,
	semStore ports.SemanticIndexStore,
	logger *slog.Logger,
) *IndexLifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	l := &IndexLifecycle{
		loader:     loader,
		embedder:   embedder,
		lexBuilder: lexBuilder,
		semStore:   semStore,
		logger:     logger,
	}
	l.state.Store(domain.IndexUninitialized)
	return l
}

func (l *IndexLifecycle) State() domain.IndexState {
	if s, ok := l.state.Load().(domain.IndexState); ok {
		return s
	}
	return domain.IndexUninitialized
}

func (l *IndexLifecycle) DocumentCount() int {
	if view := l.view.Load(); view != nil {
		return len(view.docs)
	}
	return 0
}

// Fingerprint reports the fingerprint of the currently published snapshot.
func (l *IndexLifecycle) Fingerprint() string {
	if view := l.view.Load(); view != nil {
		return view.fingerprint
	}
	return ""
}

// Initialize performs the startup pass: load the corpus, rebuild the
// lexical index, and attach or rebuild the semantic snapshot.
func (l *IndexLifecycle) Initialize(ctx context.Context) error {
	return l.run(ctx, false)
}

// Reinitialize repeats the full pass on demand. force skips the snapshot
// fingerprint check and always re-embeds.
func (l *IndexLifecycle) Reinitialize(ctx context.Context, force bool) error {
	return l.run(ctx, force)
}

// snapshot returns the current published view, or nil before the first
// successful pass. Queries run entirely against one snapshot; a rebuild
// finishing mid-query never mixes result sets.
func (l *IndexLifecycle) snapshot() *corpusView {
	return l.view.Load()
}

func (l *IndexLifecycle) run(ctx context.Context, force bool) error {
	if !l.inFlight.CompareAndSwap(0, 1) {
		return domain.WrapError(domain.ErrInvalidInput, "initialize index",
			errors.New("a rebuild is already in progress"))
	}
	defer l.inFlight.Store(0)

	l.setState(domain.IndexLoading)
	if err := l.build(ctx, force); err != nil {
		// Keep serving the previous snapshot if one exists.
		if l.view.Load() != nil {
			l.setState(domain.IndexReady)
		} else {
			l.setState(domain.IndexUninitialized)
		}
		return err
	}
	l.setState(domain.IndexReady)
	return nil
}

func (l *IndexLifecycle) build(ctx context.Context, force bool) error {
	started := time.Now()

	corpus, err := l.loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	lexical, err := l.lexBuilder.Build(corpus.Documents)
	if err != nil {
		return fmt.Errorf("build lexical index: %w", err)
	}

	fingerprint := corpusFingerprint(corpus.Documents, l.embedder.ModelID(), l.embedder.Dimension())

	var semantic ports.SemanticSearcher
	if len(corpus.Documents) == 0 {
		l.logger.Warn("corpus_empty")
	} else {
		semantic, err = l.semanticView(ctx, fingerprint, corpus.Documents, force)
		if err != nil {
			return err
		}
	}

	view := &corpusView{
		fingerprint: fingerprint,
		builtAt:     time.Now().UTC(),
		docs:        make(map[string]domain.Document, len(corpus.Documents)),
		funds:       corpus.Funds,
		fundsByID:   make(map[string]domain.Fund, len(corpus.Funds)),
		lexical:     lexical,
		semantic:    semantic,
	}
	for _, doc := range corpus.Documents {
		view.docs[doc.ID] = doc
	}
	for _, fund := range corpus.Funds {
		view.fundsByID[fund.ID] = fund
	}
	l.view.Store(view)

	l.logger.Info("index_published",
		slog.String("fingerprint", shortFingerprint(fingerprint)),
		slog.Int("documents", len(corpus.Documents)),
		slog.Int("funds", len(corpus.Funds)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// semanticView attaches the persisted snapshot when its fingerprint matches
// the current corpus, and re-embeds everything otherwise. A fingerprint
// mismatch can never produce a served index without a rebuild.
func (l *IndexLifecycle) semanticView(ctx context.Context, fingerprint string, docs []domain.Document, force bool) (ports.SemanticSearcher, error) {
	if !force {
		if view, ok := l.openSnapshot(ctx, fingerprint); ok {
			return view, nil
		}
	}

	l.setState(domain.IndexRebuilding)

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Text
	}
	vectors, err := l.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed corpus: %w", err)
	}

	semantic, err := l.semStore.Replace(ctx, fingerprint, docs, vectors)
	if err != nil {
		return nil, fmt.Errorf("publish semantic index: %w", err)
	}

	manifest := domain.IndexManifest{
		Fingerprint:    fingerprint,
		Documents:      len(docs),
		EmbeddingModel: l.embedder.ModelID(),
		Dimension:      l.embedder.Dimension(),
		BuiltAt:        time.Now().UTC(),
	}
	if err := l.semStore.WriteManifest(manifest); err != nil {
		// The rebuilt index itself is intact; the next start re-embeds.
		l.logger.Warn("manifest_write_failed", slog.Any("error", err))
	}
	return semantic, nil
}

func (l *IndexLifecycle) openSnapshot(ctx context.Context, fingerprint string) (ports.SemanticSearcher, bool) {
	manifest, err := l.semStore.ReadManifest()
	if err != nil {
		l.logger.Info("snapshot_manifest_unusable", slog.Any("error", err))
		return nil, false
	}
	if manifest.Fingerprint != fingerprint {
		l.logger.Info("snapshot_fingerprint_changed",
			slog.String("saved", shortFingerprint(manifest.Fingerprint)),
			slog.String("current", shortFingerprint(fingerprint)),
		)
		return nil, false
	}

	semantic, err := l.semStore.Open(ctx, fingerprint)
	if err != nil {
		l.logger.Warn("snapshot_open_failed", slog.Any("error", err))
		return nil, false
	}

	l.logger.Info("snapshot_reused",
		slog.String("fingerprint", shortFingerprint(fingerprint)),
		slog.Int("documents", semantic.Count()),
	)
	return semantic, true
}

func (l *IndexLifecycle) setState(state domain.IndexState) {
	l.state.Store(state)
}

// corpusFingerprint digests everything that would invalidate a persisted
// semantic snapshot: every document's identity and content plus the
// embedding model and dimensionality. Loader format changes (CSV vs XLSX)
// do not matter; only the resulting records do.
func corpusFingerprint(docs []domain.Document, modelID string, dimension int) string {
	h := sha256.New()
	for _, doc := range docs {
		fmt.Fprintf(h, "%s\x1f%s\x1f%s\x1e", doc.ID, doc.Text, doc.SourceKind)
	}
	fmt.Fprintf(h, "%s\x1f%d", modelID, dimension)
	return hex.EncodeToString(h.Sum(nil))
}

func shortFingerprint(fingerprint string) string {
	if len(fingerprint) > 12 {
		return fingerprint[:12]
	}
	return fingerprint
}
