package pq

import (
	"testing"

	"github.com/rmkadzi/workq/internal/job"
)

func byPriThenID(a, b *job.Job) bool {
	if a.Pri != b.Pri {
		return a.Pri < b.Pri
	}
	return a.ID < b.ID
}

func TestHeapOrdersByPriorityThenID(t *testing.T) {
	q := New(byPriThenID, 0)

	jobs := []*job.Job{
		{ID: 1, Pri: 10},
		{ID: 2, Pri: 5},
		{ID: 3, Pri: 5},
		{ID: 4, Pri: 20},
	}
	for _, j := range jobs {
		if err := q.Give(j); err != nil {
			t.Fatalf("Give: %v", err)
		}
	}

	want := []uint64{2, 3, 1, 4}
	for _, id := range want {
		got := q.Take()
		if got == nil || got.ID != id {
			t.Fatalf("Take: want id %d, got %+v", id, got)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after draining: want 0, got %d", q.Len())
	}
}

func TestHeapPeekDoesNotRemove(t *testing.T) {
	q := New(byPriThenID, 0)
	q.Give(&job.Job{ID: 1, Pri: 1})

	if p := q.Peek(); p == nil || p.ID != 1 {
		t.Fatalf("Peek: want id 1, got %+v", p)
	}
	if q.Len() != 1 {
		t.Fatalf("Peek must not remove: Len = %d", q.Len())
	}
}

func TestHeapFullReturnsErrFull(t *testing.T) {
	q := New(byPriThenID, 1)
	if err := q.Give(&job.Job{ID: 1}); err != nil {
		t.Fatalf("first Give: %v", err)
	}
	if err := q.Give(&job.Job{ID: 2}); err != ErrFull {
		t.Fatalf("second Give: want ErrFull, got %v", err)
	}
}

func TestHeapRemoveArbitraryElement(t *testing.T) {
	q := New(byPriThenID, 0)
	a := &job.Job{ID: 1, Pri: 1}
	b := &job.Job{ID: 2, Pri: 2}
	c := &job.Job{ID: 3, Pri: 3}
	q.Give(a)
	q.Give(b)
	q.Give(c)

	q.Remove(b)
	if q.Len() != 2 {
		t.Fatalf("Len after Remove: want 2, got %d", q.Len())
	}

	got := q.Take()
	if got.ID != 1 {
		t.Fatalf("Take after Remove: want id 1, got %d", got.ID)
	}
	got = q.Take()
	if got.ID != 3 {
		t.Fatalf("Take after Remove: want id 3, got %d", got.ID)
	}
}

func TestHeapFindByID(t *testing.T) {
	q := New(byPriThenID, 0)
	a := &job.Job{ID: 1, Pri: 1}
	b := &job.Job{ID: 2, Pri: 2}
	q.Give(a)
	q.Give(b)

	if got := q.Find(2); got != b {
		t.Fatalf("Find(2): want %+v, got %+v", b, got)
	}
	if got := q.Find(99); got != nil {
		t.Fatalf("Find(99): want nil, got %+v", got)
	}
}

func TestHeapTakeEmptyReturnsNil(t *testing.T) {
	q := New(byPriThenID, 0)
	if j := q.Take(); j != nil {
		t.Fatalf("Take on empty: want nil, got %+v", j)
	}
}
