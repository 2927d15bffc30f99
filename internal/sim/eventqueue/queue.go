// Package eventqueue holds the time-ordered set of pending events.
//
// The queue is a cache of due work: it can always be rebuilt from the
// store, so nothing here is persisted. Events are kept in one heap per
// kind; the global head is the least of the heap heads, which keeps the
// global order and the kind-scoped orders identical.
package eventqueue

import (
	"container/heap"
	"sort"
	"sync"

	"paddlers.io/internal/sim/clock"
	"paddlers.io/internal/sim/event"
)

type entry struct {
	ev  event.Event
	seq uint64
}

func less(a, b entry) bool {
	if c := event.Compare(a.ev, b.ev); c != 0 {
		return c < 0
	}
	return a.seq < b.seq
}

type entryHeap []entry

func (h entryHeap) Len() int           { return len(h) }
func (h entryHeap) Less(i, j int) bool { return less(h[i], h[j]) }
func (h entryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Queue is safe for concurrent use. The zero value is not usable; call New.
type Queue struct {
	mu      sync.Mutex
	heaps   map[event.Kind]*entryHeap
	nextSeq uint64
	size    int
	changed chan struct{}
}

func New() *Queue {
	q := &Queue{
		heaps:   make(map[event.Kind]*entryHeap, len(event.AllKinds())),
		changed: make(chan struct{}),
	}
	for _, k := range event.AllKinds() {
		h := make(entryHeap, 0)
		q.heaps[k] = &h
	}
	return q
}

// Enqueue adds ev. It never fails; an event due before the current head is
// fine. Events with an unknown kind are dropped and reported false.
func (q *Queue) Enqueue(ev event.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.heaps[ev.Kind]
	if !ok {
		return false
	}
	heap.Push(h, entry{ev: ev, seq: q.nextSeq})
	q.nextSeq++
	q.size++

	close(q.changed)
	q.changed = make(chan struct{})
	return true
}

// Changed returns a channel closed by the next Enqueue.
func (q *Queue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

// PollDue peeks at the earliest event due at or before now.
func (q *Queue) PollDue(now clock.Timestamp) (event.Event, bool) {
	return q.PollDueOf(now, event.All)
}

// ClaimNext removes and returns the earliest event due at or before now.
// Each event is returned by exactly one call.
func (q *Queue) ClaimNext(now clock.Timestamp) (event.Event, bool) {
	return q.ClaimNextOf(now, event.All)
}

// TimeOfNext reports the due time of the earliest pending event.
func (q *Queue) TimeOfNext() (clock.Timestamp, bool) {
	return q.TimeOfNextOf(event.All)
}

func (q *Queue) PollDueOf(now clock.Timestamp, kinds event.KindSet) (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.headLocked(kinds)
	if h == nil || (*h)[0].ev.Due > now {
		return event.Event{}, false
	}
	return (*h)[0].ev, true
}

func (q *Queue) ClaimNextOf(now clock.Timestamp, kinds event.KindSet) (event.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.headLocked(kinds)
	if h == nil || (*h)[0].ev.Due > now {
		return event.Event{}, false
	}
	e := heap.Pop(h).(entry)
	q.size--
	return e.ev, true
}

func (q *Queue) TimeOfNextOf(kinds event.KindSet) (clock.Timestamp, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.headLocked(kinds)
	if h == nil {
		return 0, false
	}
	return (*h)[0].ev.Due, true
}

// headLocked returns the heap whose head is the least event among kinds.
func (q *Queue) headLocked(kinds event.KindSet) *entryHeap {
	var best *entryHeap
	for _, k := range kinds.List() {
		h := q.heaps[k]
		if h.Len() == 0 {
			continue
		}
		if best == nil || less((*h)[0], (*best)[0]) {
			best = h
		}
	}
	return best
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// LenOf counts pending events per kind.
func (q *Queue) LenOf() map[event.Kind]int {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[event.Kind]int, len(q.heaps))
	for k, h := range q.heaps {
		out[k] = h.Len()
	}
	return out
}

// Snapshot returns every pending event in claim order.
func (q *Queue) Snapshot() []event.Event {
	q.mu.Lock()
	all := make([]entry, 0, q.size)
	for _, h := range q.heaps {
		all = append(all, (*h)...)
	}
	q.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	out := make([]event.Event, len(all))
	for i, e := range all {
		out[i] = e.ev
	}
	return out
}
