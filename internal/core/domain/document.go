package domain

// SourceKind identifies which corpus slice a document came from.
type SourceKind string

const (
	SourceFAQ    SourceKind = "faq"
	SourceRecord SourceKind = "structured_record"
)

func (k SourceKind) Valid() bool {
	return k == SourceFAQ || k == SourceRecord
}

// Document is one indexable corpus entry. Documents are immutable once
// indexed; a reindex replaces the whole corpus, never patches in place.
type Document struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	SourceKind SourceKind        `json:"source_kind"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Corpus is the loader output: the ordered document list plus the typed
// fund records behind the structured_record documents.
type Corpus struct {
	Documents []Document
	Funds     []Fund
}
