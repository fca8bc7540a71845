// Package postgres implements corpus.Store on PostgreSQL via lib/pq.
//
// Writers take a transaction-scoped advisory lock, so ingestions from any
// number of processes are serialized and each one commits atomically.
// Readers use REPEATABLE READ READ ONLY transactions and therefore never see a
// recompute pass half-way through.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
	"github.com/lib/pq"
)

// corpusLockKey identifies the advisory lock that serializes corpus writers.
const corpusLockKey int64 = 0x7466696466

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Schema creates the corpus tables. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id         BIGSERIAL PRIMARY KEY,
		content    TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS terms (
		term TEXT PRIMARY KEY,
		df   BIGINT NOT NULL CHECK (df > 0),
		cf   BIGINT NOT NULL CHECK (cf >= df)
	)`,
	`CREATE TABLE IF NOT EXISTS postings (
		term      TEXT NOT NULL REFERENCES terms (term),
		doc_id    BIGINT NOT NULL REFERENCES documents (id),
		tf        INTEGER NOT NULL,
		positions INTEGER[] NOT NULL,
		PRIMARY KEY (term, doc_id),
		CHECK (tf = cardinality(positions))
	)`,
	`CREATE TABLE IF NOT EXISTS doc_vectors (
		doc_id BIGINT NOT NULL REFERENCES documents (id),
		term   TEXT NOT NULL REFERENCES terms (term),
		tfidf  DOUBLE PRECISION NOT NULL CHECK (tfidf > 0),
		PRIMARY KEY (doc_id, term)
	)`,
}

// Store is a corpus.Store backed by PostgreSQL.
type Store struct {
	client *pkgpostgres.Client
}

// New wraps an open client. Call Migrate before first use on a fresh
// database.
func New(client *pkgpostgres.Client) *Store {
	return &Store{client: client}
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	return s.client.Exec(ctx, Schema...)
}

func (s *Store) Update(ctx context.Context, fn func(tx corpus.Tx) error) error {
	return s.client.InTx(ctx, func(sqlTx *sql.Tx) error {
		if _, err := sqlTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, corpusLockKey); err != nil {
			return fmt.Errorf("acquiring corpus lock: %w", err)
		}
		return fn(&tx{reader: reader{q: sqlTx}})
	})
}

func (s *Store) View(ctx context.Context, fn func(r corpus.Reader) error) error {
	return s.client.InReadTx(ctx, func(sqlTx *sql.Tx) error {
		return fn(reader{q: sqlTx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Store) Close() error {
	return s.client.Close()
}

type reader struct {
	q *sql.Tx
}

func (r reader) CountDocuments(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (r reader) GetDocument(ctx context.Context, id int64) (corpus.Document, bool, error) {
	var doc corpus.Document
	err := r.q.QueryRowContext(ctx,
		`SELECT id, content, created_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.Content, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Document{}, false, nil
	}
	if err != nil {
		return corpus.Document{}, false, fmt.Errorf("finding document %d: %w", id, err)
	}
	return doc, true, nil
}

func (r reader) GetTerm(ctx context.Context, term string) (corpus.Term, bool, error) {
	t := corpus.Term{Term: term}
	err := r.q.QueryRowContext(ctx,
		`SELECT df, cf FROM terms WHERE term = $1`, term,
	).Scan(&t.DF, &t.CF)
	if errors.Is(err, sql.ErrNoRows) {
		return corpus.Term{}, false, nil
	}
	if err != nil {
		return corpus.Term{}, false, fmt.Errorf("finding term %q: %w", term, err)
	}
	return t, true, nil
}

func (r reader) ListTerms(ctx context.Context) ([]corpus.Term, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT term, df, cf FROM terms ORDER BY term`)
	if err != nil {
		return nil, fmt.Errorf("listing terms: %w", err)
	}
	defer rows.Close()
	terms := make([]corpus.Term, 0)
	for rows.Next() {
		var t corpus.Term
		if err := rows.Scan(&t.Term, &t.DF, &t.CF); err != nil {
			return nil, fmt.Errorf("scanning term: %w", err)
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

func (r reader) ListPostings(ctx context.Context, term string) ([]corpus.Posting, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT doc_id, tf, positions FROM postings WHERE term = $1 ORDER BY doc_id`, term)
	if err != nil {
		return nil, fmt.Errorf("listing postings for %q: %w", term, err)
	}
	defer rows.Close()
	postings := make([]corpus.Posting, 0)
	for rows.Next() {
		p := corpus.Posting{Term: term}
		var positions []int64
		if err := rows.Scan(&p.DocID, &p.TF, pq.Array(&positions)); err != nil {
			return nil, fmt.Errorf("scanning posting: %w", err)
		}
		p.Positions = make([]int, len(positions))
		for i, pos := range positions {
			p.Positions[i] = int(pos)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

func (r reader) ListVectors(ctx context.Context) ([]corpus.VectorEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT doc_id, term, tfidf FROM doc_vectors ORDER BY doc_id, term`)
	if err != nil {
		return nil, fmt.Errorf("listing doc vectors: %w", err)
	}
	defer rows.Close()
	vectors := make([]corpus.VectorEntry, 0)
	for rows.Next() {
		var v corpus.VectorEntry
		if err := rows.Scan(&v.DocID, &v.Term, &v.TFIDF); err != nil {
			return nil, fmt.Errorf("scanning doc vector: %w", err)
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

type tx struct {
	reader
}

func (t *tx) CreateDocument(ctx context.Context, content string, createdAt time.Time) (corpus.Document, error) {
	doc := corpus.Document{Content: content, CreatedAt: createdAt.UTC()}
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO documents (content, created_at) VALUES ($1, $2) RETURNING id`,
		content, doc.CreatedAt,
	).Scan(&doc.ID)
	if err != nil {
		return corpus.Document{}, fmt.Errorf("inserting document: %w", err)
	}
	return doc, nil
}

func (t *tx) UpsertTerm(ctx context.Context, term string, dfDelta, cfDelta int64) (corpus.Term, error) {
	out := corpus.Term{Term: term}
	err := t.q.QueryRowContext(ctx,
		`INSERT INTO terms (term, df, cf) VALUES ($1, $2, $3)
		ON CONFLICT (term) DO UPDATE SET df = terms.df + EXCLUDED.df, cf = terms.cf + EXCLUDED.cf
		RETURNING df, cf`,
		term, dfDelta, cfDelta,
	).Scan(&out.DF, &out.CF)
	if err != nil {
		return corpus.Term{}, fmt.Errorf("upserting term %q: %w", term, err)
	}
	return out, nil
}

func (t *tx) CreatePosting(ctx context.Context, p corpus.Posting) error {
	positions := make([]int64, len(p.Positions))
	for i, pos := range p.Positions {
		positions[i] = int64(pos)
	}
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO postings (term, doc_id, tf, positions) VALUES ($1, $2, $3, $4)`,
		p.Term, p.DocID, p.TF, pq.Array(positions),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("posting (%q, %d): %w", p.Term, p.DocID, corpus.ErrDuplicatePosting)
	}
	if err != nil {
		return fmt.Errorf("inserting posting (%q, %d): %w", p.Term, p.DocID, err)
	}
	return nil
}

func (t *tx) UpsertVector(ctx context.Context, v corpus.VectorEntry) error {
	_, err := t.q.ExecContext(ctx,
		`INSERT INTO doc_vectors (doc_id, term, tfidf) VALUES ($1, $2, $3)
		ON CONFLICT (doc_id, term) DO UPDATE SET tfidf = EXCLUDED.tfidf`,
		v.DocID, v.Term, v.TFIDF,
	)
	if err != nil {
		return fmt.Errorf("upserting doc vector (%d, %q): %w", v.DocID, v.Term, err)
	}
	return nil
}

func (t *tx) DeleteVector(ctx context.Context, docID int64, term string) error {
	_, err := t.q.ExecContext(ctx,
		`DELETE FROM doc_vectors WHERE doc_id = $1 AND term = $2`, docID, term)
	if err != nil {
		return fmt.Errorf("deleting doc vector (%d, %q): %w", docID, term, err)
	}
	return nil
}
