package ranker

import "container/heap"

// topK keeps the best k scored documents seen so far. The root of the heap
// is the weakest entry, so it is the one evicted.
type topK struct {
	k int
	h scoredDocHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(scoredDocHeap, 0, k+1)}
}

func (t *topK) Push(doc ScoredDoc) {
	heap.Push(&t.h, doc)
	if t.h.Len() > t.k {
		heap.Pop(&t.h)
	}
}

// Sorted drains the heap, best first.
func (t *topK) Sorted() []ScoredDoc {
	result := make([]ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ScoredDoc)
	}
	return result
}

type scoredDocHeap []ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
