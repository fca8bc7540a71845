// Package memory is an in-process corpus.Store. Each committed Update
// publishes a new immutable snapshot, so readers never block writers and never
// observe a half-applied ingestion.
package memory

import (
	"context"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/RoaringBitmap/roaring/v2"
)

type vectorKey struct {
	docID int64
	term  string
}

// state is one immutable version of the corpus. It is only mutated while
// owned by an open transaction.
type state struct {
	docs     []corpus.Document
	terms    map[string]corpus.Term
	postings map[string][]corpus.Posting
	docSets  map[string]*roaring.Bitmap
	vectors  map[vectorKey]float64
}

func newState() *state {
	return &state{
		terms:    make(map[string]corpus.Term),
		postings: make(map[string][]corpus.Posting),
		docSets:  make(map[string]*roaring.Bitmap),
		vectors:  make(map[vectorKey]float64),
	}
}

// clone copies the maps and clips slices so appends in the copy never write
// into arrays shared with the published snapshot. Bitmaps are cloned lazily
// by the transaction that modifies them.
func (s *state) clone() *state {
	next := &state{
		docs:     slices.Clip(s.docs),
		terms:    maps.Clone(s.terms),
		postings: make(map[string][]corpus.Posting, len(s.postings)),
		docSets:  maps.Clone(s.docSets),
		vectors:  maps.Clone(s.vectors),
	}
	for term, list := range s.postings {
		next.postings[term] = slices.Clip(list)
	}
	return next
}

// Store is the in-memory corpus store.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[state]
}

// New returns an empty Store.
func New() *Store {
	s := &Store{}
	s.current.Store(newState())
	return s
}

// Update runs fn against a private copy of the corpus and publishes it only
// when fn returns nil. Updates are serialized.
func (s *Store) Update(ctx context.Context, fn func(tx corpus.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	next := s.current.Load().clone()
	tx := &tx{reader: reader{st: next}, ownedSets: make(map[string]struct{})}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

// View runs fn against the latest committed snapshot.
func (s *Store) View(ctx context.Context, fn func(r corpus.Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(reader{st: s.current.Load()})
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type reader struct {
	st *state
}

func (r reader) CountDocuments(ctx context.Context) (int64, error) {
	return int64(len(r.st.docs)), nil
}

func (r reader) GetDocument(ctx context.Context, id int64) (corpus.Document, bool, error) {
	if id < 1 || id > int64(len(r.st.docs)) {
		return corpus.Document{}, false, nil
	}
	return r.st.docs[id-1], true, nil
}

func (r reader) GetTerm(ctx context.Context, term string) (corpus.Term, bool, error) {
	t, ok := r.st.terms[term]
	return t, ok, nil
}

func (r reader) ListTerms(ctx context.Context) ([]corpus.Term, error) {
	out := make([]corpus.Term, 0, len(r.st.terms))
	for _, t := range r.st.terms {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term < out[j].Term })
	return out, nil
}

// ListPostings returns a copy of the list; Positions slices are shared and
// must not be modified.
func (r reader) ListPostings(ctx context.Context, term string) ([]corpus.Posting, error) {
	return slices.Clone(r.st.postings[term]), nil
}

func (r reader) ListVectors(ctx context.Context) ([]corpus.VectorEntry, error) {
	out := make([]corpus.VectorEntry, 0, len(r.st.vectors))
	for k, w := range r.st.vectors {
		out = append(out, corpus.VectorEntry{DocID: k.docID, Term: k.term, TFIDF: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		return out[i].Term < out[j].Term
	})
	return out, nil
}

type tx struct {
	reader
	ownedSets map[string]struct{}
}

func (t *tx) CreateDocument(ctx context.Context, content string, createdAt time.Time) (corpus.Document, error) {
	id := int64(len(t.st.docs)) + 1
	if id > math.MaxUint32 {
		return corpus.Document{}, fmt.Errorf("memory store full: document id %d exceeds uint32", id)
	}
	doc := corpus.Document{ID: id, Content: content, CreatedAt: createdAt}
	t.st.docs = append(t.st.docs, doc)
	return doc, nil
}

func (t *tx) UpsertTerm(ctx context.Context, term string, dfDelta, cfDelta int64) (corpus.Term, error) {
	cur, ok := t.st.terms[term]
	if !ok {
		cur = corpus.Term{Term: term}
	}
	cur.DF += dfDelta
	cur.CF += cfDelta
	t.st.terms[term] = cur
	return cur, nil
}

func (t *tx) CreatePosting(ctx context.Context, p corpus.Posting) error {
	if p.DocID < 1 || p.DocID > math.MaxUint32 {
		return fmt.Errorf("posting for %q: document id %d out of range", p.Term, p.DocID)
	}
	set := t.ownSet(p.Term)
	if !set.CheckedAdd(uint32(p.DocID)) {
		return fmt.Errorf("posting (%q, %d): %w", p.Term, p.DocID, corpus.ErrDuplicatePosting)
	}
	list := t.st.postings[p.Term]
	i := sort.Search(len(list), func(i int) bool { return list[i].DocID >= p.DocID })
	t.st.postings[p.Term] = slices.Insert(list, i, p)
	return nil
}

func (t *tx) UpsertVector(ctx context.Context, v corpus.VectorEntry) error {
	t.st.vectors[vectorKey{docID: v.DocID, term: v.Term}] = v.TFIDF
	return nil
}

func (t *tx) DeleteVector(ctx context.Context, docID int64, term string) error {
	delete(t.st.vectors, vectorKey{docID: docID, term: term})
	return nil
}

// ownSet returns a bitmap for term that this transaction may modify.
func (t *tx) ownSet(term string) *roaring.Bitmap {
	if _, ok := t.ownedSets[term]; ok {
		return t.st.docSets[term]
	}
	var set *roaring.Bitmap
	if existing, ok := t.st.docSets[term]; ok {
		set = existing.Clone()
	} else {
		set = roaring.New()
	}
	t.st.docSets[term] = set
	t.ownedSets[term] = struct{}{}
	return set
}

// documentsWithTerm returns the ids of documents containing term, ascending.
func (s *Store) documentsWithTerm(term string) []int64 {
	set, ok := s.current.Load().docSets[term]
	if !ok {
		return nil
	}
	ids := make([]int64, 0, set.GetCardinality())
	it := set.Iterator()
	for it.HasNext() {
		ids = append(ids, int64(it.Next()))
	}
	return ids
}
