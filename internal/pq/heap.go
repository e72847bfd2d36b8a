// Package pq implements a bounded binary min-heap over *job.Job, ordered
// by a caller-supplied comparator. It backs both the ready queue (ordered
// by priority, then id) and the delay queue (ordered by deadline, then
// id).
package pq

import (
	"container/heap"
	"errors"

	"github.com/rmkadzi/workq/internal/job"
)

// ErrFull is returned by Give when the queue is already at capacity.
var ErrFull = errors.New("pq: full")

// LessFunc reports whether a sorts before b.
type LessFunc func(a, b *job.Job) bool

// Heap is a capacity-bounded priority queue of jobs.
type Heap struct {
	less LessFunc
	h    innerHeap
	cap  int
}

// New returns an empty Heap. A capacity of 0 means unbounded.
func New(less LessFunc, capacity int) *Heap {
	return &Heap{
		less: less,
		h:    innerHeap{less: less},
		cap:  capacity,
	}
}

// Len reports the number of jobs currently queued.
func (q *Heap) Len() int { return q.h.Len() }

// Give inserts j into the queue. It returns ErrFull if the queue is at
// capacity, mirroring the original server's PQ-full bury fallback.
func (q *Heap) Give(j *job.Job) error {
	if q.cap > 0 && q.h.Len() >= q.cap {
		return ErrFull
	}
	heap.Push(&q.h, j)
	return nil
}

// Take removes and returns the minimum job, or nil if empty.
func (q *Heap) Take() *job.Job {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*job.Job)
}

// Peek returns the minimum job without removing it, or nil if empty.
func (q *Heap) Peek() *job.Job {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h.jobs[0]
}

// Remove removes j from the queue. It is a no-op if j isn't present.
func (q *Heap) Remove(j *job.Job) {
	if j.PQIndex < 0 || j.PQIndex >= q.h.Len() || q.h.jobs[j.PQIndex] != j {
		return
	}
	heap.Remove(&q.h, j.PQIndex)
}

// Fix re-establishes heap order for j after its sort key changes in place.
func (q *Heap) Fix(j *job.Job) {
	if j.PQIndex < 0 || j.PQIndex >= q.h.Len() || q.h.jobs[j.PQIndex] != j {
		return
	}
	heap.Fix(&q.h, j.PQIndex)
}

// Find returns the job with the given id, or nil if it isn't queued
// here. A linear scan, matching the original source's own find_job.
func (q *Heap) Find(id uint64) *job.Job {
	for _, j := range q.h.jobs {
		if j.ID == id {
			return j
		}
	}
	return nil
}

// Each calls fn for every job currently in the queue, in unspecified
// order. fn must not mutate queue membership.
func (q *Heap) Each(fn func(*job.Job)) {
	for _, j := range q.h.jobs {
		fn(j)
	}
}

// innerHeap implements container/heap.Interface over *job.Job.
type innerHeap struct {
	jobs []*job.Job
	less LessFunc
}

func (h innerHeap) Len() int            { return len(h.jobs) }
func (h innerHeap) Less(i, j int) bool  { return h.less(h.jobs[i], h.jobs[j]) }
func (h innerHeap) Swap(i, j int) {
	h.jobs[i], h.jobs[j] = h.jobs[j], h.jobs[i]
	h.jobs[i].PQIndex = i
	h.jobs[j].PQIndex = j
}

func (h *innerHeap) Push(x any) {
	j := x.(*job.Job)
	j.PQIndex = len(h.jobs)
	h.jobs = append(h.jobs, j)
}

func (h *innerHeap) Pop() any {
	old := h.jobs
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.PQIndex = -1
	h.jobs = old[:n-1]
	return j
}
