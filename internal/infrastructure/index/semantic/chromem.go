package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"github.com/qonfido/fundrag/internal/core/domain"
	"github.com/qonfido/fundrag/internal/core/ports"
)

const (
	manifestFile = "index.state"
	// addConcurrency stays at 1 because every document arrives with a
	// precomputed embedding; there is nothing to parallelize.
	addConcurrency = 1
)

// Store owns the persisted vector collections. Each snapshot lives in a
// collection named by its fingerprint, so a rebuild populates a fresh
// collection and the old one stays queryable until the swap completes.
type Store struct {
	db     *chromem.DB
	dir    string
	base   string
	logger *slog.Logger

	memManifest *domain.IndexManifest
}

func NewPersistentStore(dir, baseName string, compress bool, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("semantic: create index dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(dir, "collections"), compress)
	if err != nil {
		return nil, fmt.Errorf("semantic: open chromem db: %w", err)
	}
	return &Store{db: db, dir: dir, base: baseName, logger: logger}, nil
}

// NewMemoryStore keeps everything in process memory. Used by tests and by
// deployments that prefer a cold rebuild on every start.
func NewMemoryStore(baseName string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: chromem.NewDB(), base: baseName, logger: logger}
}

// Open attaches to the persisted collection for fingerprint. A missing or
// empty collection is reported as a corrupt snapshot so the caller falls
// back to a rebuild.
func (s *Store) Open(ctx context.Context, fingerprint string) (ports.SemanticSearcher, error) {
	name := s.collectionName(fingerprint)
	col := s.db.GetCollection(name, precomputedOnly())
	if col == nil {
		return nil, domain.WrapError(domain.ErrPersistenceCorrupt, "semantic.open",
			fmt.Errorf("collection %s not found", name))
	}
	if col.Count() == 0 {
		return nil, domain.WrapError(domain.ErrPersistenceCorrupt, "semantic.open",
			fmt.Errorf("collection %s has no documents", name))
	}
	return &Collection{col: col}, nil
}

// Replace builds the collection for fingerprint from scratch and drops
// every other snapshot collection once the new one is complete.
func (s *Store) Replace(ctx context.Context, fingerprint string, docs []domain.Document, vectors [][]float32) (ports.SemanticSearcher, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("semantic: %d documents but %d vectors", len(docs), len(vectors))
	}
	name := s.collectionName(fingerprint)

	// A crashed earlier rebuild may have left a partial collection behind.
	if existing := s.db.GetCollection(name, precomputedOnly()); existing != nil {
		if err := s.db.DeleteCollection(name); err != nil {
			return nil, fmt.Errorf("semantic: drop partial collection %s: %w", name, err)
		}
	}

	col, err := s.db.GetOrCreateCollection(name, nil, precomputedOnly())
	if err != nil {
		return nil, fmt.Errorf("semantic: create collection %s: %w", name, err)
	}

	if len(docs) > 0 {
		chromemDocs := make([]chromem.Document, len(docs))
		for i, doc := range docs {
			metadata := make(map[string]string, len(doc.Metadata)+1)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["source_kind"] = string(doc.SourceKind)
			chromemDocs[i] = chromem.Document{
				ID:        doc.ID,
				Content:   doc.Text,
				Metadata:  metadata,
				Embedding: vectors[i],
			}
		}
		if err := col.AddDocuments(ctx, chromemDocs, addConcurrency); err != nil {
			return nil, fmt.Errorf("semantic: add documents to %s: %w", name, err)
		}
	}

	s.dropStaleCollections(name)
	s.logger.Info("semantic_collection_published",
		"collection", name,
		"documents", len(docs),
	)
	return &Collection{col: col}, nil
}

func (s *Store) ReadManifest() (domain.IndexManifest, error) {
	if s.dir == "" {
		if s.memManifest == nil {
			return domain.IndexManifest{}, domain.WrapError(domain.ErrPersistenceCorrupt,
				"semantic.manifest", errors.New("no manifest recorded"))
		}
		return *s.memManifest, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if err != nil {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrPersistenceCorrupt,
			"semantic.manifest", err)
	}
	var manifest domain.IndexManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrPersistenceCorrupt,
			"semantic.manifest", err)
	}
	if manifest.Fingerprint == "" {
		return domain.IndexManifest{}, domain.WrapError(domain.ErrPersistenceCorrupt,
			"semantic.manifest", errors.New("manifest has no fingerprint"))
	}
	return manifest, nil
}

func (s *Store) WriteManifest(manifest domain.IndexManifest) error {
	if s.dir == "" {
		s.memManifest = &manifest
		return nil
	}

	raw, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("semantic: encode manifest: %w", err)
	}
	path := filepath.Join(s.dir, manifestFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("semantic: write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("semantic: publish manifest: %w", err)
	}
	return nil
}

func (s *Store) collectionName(fingerprint string) string {
	short := fingerprint
	if len(short) > 12 {
		short = short[:12]
	}
	return s.base + "-" + short
}

func (s *Store) dropStaleCollections(keep string) {
	for name := range s.db.ListCollections() {
		if name == keep || !strings.HasPrefix(name, s.base+"-") {
			continue
		}
		if err := s.db.DeleteCollection(name); err != nil {
			s.logger.Warn("semantic_stale_collection_delete_failed", "collection", name, "error", err)
			continue
		}
		s.logger.Info("semantic_stale_collection_dropped", "collection", name)
	}
}

// precomputedOnly guards against chromem falling back to its default
// remote embedder: every vector in this store is supplied explicitly.
func precomputedOnly() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("semantic: embeddings must be precomputed")
	}
}

// Collection is a read view over one chromem collection.
type Collection struct {
	col *chromem.Collection
}

func (c *Collection) Count() int {
	return c.col.Count()
}

// Search returns up to topK nearest documents by cosine similarity,
// scored in [0,1] where 1 is an exact match.
func (c *Collection) Search(ctx context.Context, vector []float32, topK int, filter domain.SearchFilter) ([]domain.RankedCandidate, error) {
	if topK <= 0 {
		return nil, nil
	}
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	var where map[string]string
	if filter.SourceKind != "" {
		where = map[string]string{"source_kind": string(filter.SourceKind)}
	}

	results, err := c.col.QueryEmbedding(ctx, vector, topK, where, nil)
	if err != nil {
		return nil, fmt.Errorf("semantic: query: %w", err)
	}

	out := make([]domain.RankedCandidate, len(results))
	for i, r := range results {
		out[i] = domain.RankedCandidate{
			DocumentID: r.ID,
			Score:      float64(r.Similarity),
			Rank:       i + 1,
		}
	}
	return out, nil
}
