// Package corpus defines the records of the search corpus (documents, term
// statistics, postings and derived TF-IDF vector entries) and the
// transactional store contract the indexer and searcher run against.
package corpus

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicatePosting is returned when a posting for the same (term, document)
// pair already exists.
var ErrDuplicatePosting = errors.New("posting already exists")

// Document is an ingested text. Immutable once created.
type Document struct {
	ID        int64     `json:"docId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Term holds corpus-wide statistics for one index term. DF counts documents
// containing the term, CF counts occurrences across all documents.
type Term struct {
	Term string `json:"term"`
	DF   int64  `json:"df"`
	CF   int64  `json:"cf"`
}

// Posting records the occurrences of one term in one document.
// TF always equals len(Positions); Positions are ascending.
type Posting struct {
	Term      string `json:"term"`
	DocID     int64  `json:"docId"`
	TF        int    `json:"tf"`
	Positions []int  `json:"positions"`
}

// VectorEntry is one component of a document's TF-IDF weight vector. It is
// derived data, rebuilt by the recompute pass.
type VectorEntry struct {
	DocID int64   `json:"docId"`
	Term  string  `json:"term"`
	TFIDF float64 `json:"tfidf"`
}

// Reader is the read side of a store transaction.
type Reader interface {
	CountDocuments(ctx context.Context) (int64, error)
	// GetDocument returns ok=false when no document has the id.
	GetDocument(ctx context.Context, id int64) (doc Document, ok bool, err error)
	GetTerm(ctx context.Context, term string) (t Term, ok bool, err error)
	// ListTerms returns every term ordered by term.
	ListTerms(ctx context.Context) ([]Term, error)
	// ListPostings returns the postings of term ordered by document id.
	ListPostings(ctx context.Context, term string) ([]Posting, error)
	// ListVectors returns every vector entry ordered by (document id, term).
	ListVectors(ctx context.Context) ([]VectorEntry, error)
}

// Tx is a read-write store transaction.
type Tx interface {
	Reader
	// CreateDocument stores content under a new id greater than every
	// previously assigned id.
	CreateDocument(ctx context.Context, content string, createdAt time.Time) (Document, error)
	// UpsertTerm adds dfDelta and cfDelta to the term's statistics, creating
	// the term with exactly those values when absent.
	UpsertTerm(ctx context.Context, term string, dfDelta, cfDelta int64) (Term, error)
	CreatePosting(ctx context.Context, p Posting) error
	UpsertVector(ctx context.Context, v VectorEntry) error
	DeleteVector(ctx context.Context, docID int64, term string) error
}

// Store runs transactions over the corpus. Update calls are serialized and
// either fully applied or not at all; View sees a consistent snapshot that
// never includes part of an Update.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(r Reader) error) error
	Ping(ctx context.Context) error
	Close() error
}
