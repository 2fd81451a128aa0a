package index

import (
	"container/heap"
	"slices"
	"sort"
)

// Candidate is a scored slot produced during a scan.
type Candidate struct {
	Slot  uint32
	Seq   uint64
	Score float32
}

// better reports whether a ranks strictly before b.
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Seq < b.Seq
}

// TopK keeps the best k candidates seen so far.
type TopK struct {
	k int
	h worstHeap
}

// NewTopK returns a collector for at most k candidates.
func NewTopK(k int) *TopK {
	return &TopK{k: k, h: make(worstHeap, 0, min(k, 1024))}
}

// Push offers c to the collector.
func (t *TopK) Push(c Candidate) {
	if t.k <= 0 {
		return
	}
	if len(t.h) < t.k {
		heap.Push(&t.h, c)
		return
	}
	if better(c, t.h[0]) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// Len returns the number of retained candidates.
func (t *TopK) Len() int { return len(t.h) }

// Results returns the retained candidates best first.
func (t *TopK) Results() []Candidate {
	out := slices.Clone([]Candidate(t.h))
	SortCandidates(out)
	return out
}

// SortCandidates orders by descending score, then ascending insertion sequence.
func SortCandidates(cs []Candidate) {
	sort.Slice(cs, func(i, j int) bool { return better(cs[i], cs[j]) })
}

// worstHeap keeps the worst retained candidate on top.
type worstHeap []Candidate

func (h worstHeap) Len() int           { return len(h) }
func (h worstHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h worstHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *worstHeap) Push(x any) {
	*h = append(*h, x.(Candidate))
}

func (h *worstHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
