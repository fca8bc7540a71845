package postgres

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
)

// skipIfNoPostgres returns a migrated, empty store or skips the test when
// PostgreSQL is unavailable.
func skipIfNoPostgres(t *testing.T) *Store {
	t.Helper()
	client, err := pkgpostgres.New(testPostgresConfig())
	if err != nil {
		t.Skipf("skipping integration test: postgres unavailable: %v", err)
	}
	s := New(client)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	if err := client.Exec(ctx, `TRUNCATE doc_vectors, postings, terms, documents RESTART IDENTITY`); err != nil {
		t.Fatalf("truncating: %v", err)
	}
	return s
}

func testPostgresConfig() config.PostgresConfig {
	return config.PostgresConfig{
		Host:            envOrDefault("TEST_POSTGRES_HOST", "localhost"),
		Port:            envOrDefaultInt("TEST_POSTGRES_PORT", 5432),
		Database:        envOrDefault("TEST_POSTGRES_DB", "tfidfsearch_test"),
		User:            envOrDefault("TEST_POSTGRES_USER", "tfidfsearch"),
		Password:        envOrDefault("TEST_POSTGRES_PASSWORD", "localdev"),
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func ingest(ctx context.Context, tx corpus.Tx, content string, postings ...corpus.Posting) (int64, error) {
	doc, err := tx.CreateDocument(ctx, content, time.Now())
	if err != nil {
		return 0, err
	}
	for _, p := range postings {
		p.DocID = doc.ID
		if _, err := tx.UpsertTerm(ctx, p.Term, 1, int64(p.TF)); err != nil {
			return 0, err
		}
		if err := tx.CreatePosting(ctx, p); err != nil {
			return 0, err
		}
	}
	return doc.ID, nil
}

func TestRoundTrip(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()

	var id int64
	err := s.Update(ctx, func(tx corpus.Tx) error {
		var err error
		id, err = ingest(ctx, tx, "cat cat sat",
			corpus.Posting{Term: "cat", TF: 2, Positions: []int{0, 1}},
			corpus.Posting{Term: "sat", TF: 1, Positions: []int{2}},
		)
		if err != nil {
			return err
		}
		return tx.UpsertVector(ctx, corpus.VectorEntry{DocID: id, Term: "cat", TFIDF: 1.3})
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	s.View(ctx, func(r corpus.Reader) error {
		doc, ok, err := r.GetDocument(ctx, id)
		if err != nil || !ok || doc.Content != "cat cat sat" {
			t.Errorf("GetDocument() = %+v, %v, %v", doc, ok, err)
		}
		term, ok, _ := r.GetTerm(ctx, "cat")
		if !ok || term.DF != 1 || term.CF != 2 {
			t.Errorf("GetTerm(cat) = %+v", term)
		}
		postings, _ := r.ListPostings(ctx, "cat")
		if len(postings) != 1 || postings[0].TF != 2 || len(postings[0].Positions) != 2 || postings[0].Positions[1] != 1 {
			t.Errorf("ListPostings(cat) = %+v", postings)
		}
		vectors, _ := r.ListVectors(ctx)
		if len(vectors) != 1 || vectors[0].TFIDF != 1.3 {
			t.Errorf("ListVectors() = %+v", vectors)
		}
		return nil
	})
}

func TestUpdateRollsBack(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()
	abort := errors.New("abort")
	err := s.Update(ctx, func(tx corpus.Tx) error {
		if _, err := ingest(ctx, tx, "dog", corpus.Posting{Term: "dog", TF: 1, Positions: []int{0}}); err != nil {
			return err
		}
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("err = %v", err)
	}
	s.View(ctx, func(r corpus.Reader) error {
		if n, _ := r.CountDocuments(ctx); n != 0 {
			t.Errorf("CountDocuments() = %d after rollback", n)
		}
		if _, ok, _ := r.GetTerm(ctx, "dog"); ok {
			t.Error("term survived rollback")
		}
		return nil
	})
}

func TestDuplicatePosting(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()
	err := s.Update(ctx, func(tx corpus.Tx) error {
		id, err := ingest(ctx, tx, "owl", corpus.Posting{Term: "owl", TF: 1, Positions: []int{0}})
		if err != nil {
			return err
		}
		return tx.CreatePosting(ctx, corpus.Posting{Term: "owl", DocID: id, TF: 1, Positions: []int{0}})
	})
	if !errors.Is(err, corpus.ErrDuplicatePosting) {
		t.Errorf("err = %v, want ErrDuplicatePosting", err)
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	s := skipIfNoPostgres(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, func(tx corpus.Tx) error {
				_, err := ingest(ctx, tx, "shared", corpus.Posting{Term: "shared", TF: 1, Positions: []int{0}})
				return err
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	s.View(ctx, func(r corpus.Reader) error {
		term, _, _ := r.GetTerm(ctx, "shared")
		if term.DF != 8 || term.CF != 8 {
			t.Errorf("term = %+v, want df=cf=8", term)
		}
		return nil
	})
}
