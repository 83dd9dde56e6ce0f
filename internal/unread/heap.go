// File: internal/unread/heap.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package unread

import (
	"time"

	"github.com/momentics/miki/api"
)

// entry is one cached message. ts is its eviction priority; dead marks a
// tombstone, which sorts ahead of every live entry whatever its timestamp.
type entry struct {
	msg   api.Message
	ts    time.Time
	seq   uint64
	dead  bool
	index int
}

func (e *entry) tombstone() bool { return e.dead }

// entryHeap orders tombstones first, then live entries by (ts, seq). It
// implements heap.Interface.
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].dead != h[j].dead {
		return h[i].dead
	}
	if h[i].ts.Equal(h[j].ts) {
		return h[i].seq < h[j].seq
	}
	return h[i].ts.Before(h[j].ts)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

func (h entryHeap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
