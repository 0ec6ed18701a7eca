package domain

import "time"

// IndexState tracks the lifecycle manager's startup/rebuild progress.
type IndexState string

const (
	IndexUninitialized IndexState = "uninitialized"
	IndexLoading       IndexState = "loading"
	IndexReady         IndexState = "ready"
	IndexRebuilding    IndexState = "rebuilding"
)

// IndexManifest is the persisted snapshot descriptor. A snapshot may be
// reused without re-embedding only when its fingerprint matches the one
// computed from the current corpus and embedder configuration.
type IndexManifest struct {
	Fingerprint    string    `json:"fingerprint"`
	Documents      int       `json:"documents"`
	EmbeddingModel string    `json:"embedding_model"`
	Dimension      int       `json:"dimension"`
	BuiltAt        time.Time `json:"built_at"`
}

// IndexReadyEvent announces a completed snapshot rebuild on the queue.
type IndexReadyEvent struct {
	RequestID   string `json:"request_id"`
	Fingerprint string `json:"fingerprint"`
	Documents   int    `json:"documents"`
}
