package ranker

import (
	"math"
	"testing"
)

const eps = 1e-12

func TestCosineIdentity(t *testing.T) {
	vectors := []Vector{
		{"cat": 1},
		{"cat": 1.3, "sat": 1, "mat": 1.3},
		{"x": 1e-6, "y": 42},
	}
	for _, v := range vectors {
		if got := Cosine(v, v); math.Abs(got-1) > eps {
			t.Errorf("Cosine(v, v) = %v for %v", got, v)
		}
	}
}

func TestCosineSymmetric(t *testing.T) {
	a := Vector{"cat": 1.301, "sat": 1}
	b := Vector{"dog": 1.301, "sat": 1, "log": 1.301}
	if ab, ba := Cosine(a, b), Cosine(b, a); ab != ba {
		t.Errorf("Cosine(a, b) = %v, Cosine(b, a) = %v", ab, ba)
	}
}

func TestCosineZeroCases(t *testing.T) {
	tests := []struct {
		name string
		a, b Vector
	}{
		{"no shared terms", Vector{"cat": 1}, Vector{"dog": 1}},
		{"empty query", Vector{}, Vector{"dog": 1}},
		{"zero weight query", Vector{"cat": 0}, Vector{"cat": 2}},
		{"both nil", nil, nil},
	}
	for _, tt := range tests {
		if got := Cosine(tt.a, tt.b); got != 0 {
			t.Errorf("%s: Cosine() = %v, want 0", tt.name, got)
		}
	}
}

func TestRankOrdersByScoreThenDocID(t *testing.T) {
	query := Vector{"cat": 1.30103, "sat": 1}
	docs := map[int64]Vector{
		1: {"cat": 1.30103, "sat": 1, "mat": 1.30103},
		2: {"dog": 1.30103, "sat": 1, "log": 1.30103},
		3: {"owl": 1},
		4: {"dog": 1.30103, "sat": 1, "log": 1.30103},
	}
	got := Rank(query, docs, 10)
	wantIDs := []int64{1, 2, 4}
	if len(got) != len(wantIDs) {
		t.Fatalf("Rank() = %+v", got)
	}
	for i, id := range wantIDs {
		if got[i].DocID != id {
			t.Errorf("position %d = doc %d, want %d", i, got[i].DocID, id)
		}
		if got[i].Score <= 0 {
			t.Errorf("non-positive score %v", got[i].Score)
		}
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("doc1 score %v should exceed doc2 score %v", got[0].Score, got[1].Score)
	}
}

func TestRankLimit(t *testing.T) {
	query := Vector{"cat": 1}
	docs := make(map[int64]Vector)
	for id := int64(1); id <= 25; id++ {
		docs[id] = Vector{"cat": 1, "filler": float64(id)}
	}
	got := Rank(query, docs, 10)
	if len(got) != 10 {
		t.Fatalf("len = %d, want 10", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score >= got[i-1].Score {
			t.Errorf("scores not strictly descending at %d: %v >= %v", i, got[i].Score, got[i-1].Score)
		}
	}
	if got[0].DocID != 1 {
		t.Errorf("best doc = %d, want 1", got[0].DocID)
	}
}

func TestRankZeroQuery(t *testing.T) {
	got := Rank(Vector{"unseen": 0}, map[int64]Vector{1: {"cat": 1}}, 10)
	if got == nil || len(got) != 0 {
		t.Errorf("Rank() = %#v, want empty slice", got)
	}
}
