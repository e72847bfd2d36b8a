package conn

import (
	"net"
	"testing"
	"time"

	"github.com/rmkadzi/workq/internal/job"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a
}

func TestAddReservedOrdersByDeadline(t *testing.T) {
	c := New(1, pipeConn(t))

	now := time.Now()
	j1 := &job.Job{ID: 1, Deadline: now.Add(3 * time.Second)}
	j2 := &job.Job{ID: 2, Deadline: now.Add(1 * time.Second)}
	j3 := &job.Job{ID: 3, Deadline: now.Add(2 * time.Second)}

	c.AddReserved(j1)
	c.AddReserved(j2)
	c.AddReserved(j3)

	var order []uint64
	c.EachReserved(func(j *job.Job) { order = append(order, j.ID) })

	want := []uint64{2, 3, 1}
	if len(order) != len(want) {
		t.Fatalf("want %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("want %v, got %v", want, order)
		}
	}

	soonest, ok := c.SoonestDeadline()
	if !ok || !soonest.Equal(j2.Deadline) {
		t.Fatalf("SoonestDeadline: want %v, got %v (ok=%v)", j2.Deadline, soonest, ok)
	}
}

func TestRemoveReserved(t *testing.T) {
	c := New(1, pipeConn(t))
	j := &job.Job{ID: 1, Deadline: time.Now()}
	c.AddReserved(j)
	if c.ReservedCount() != 1 {
		t.Fatalf("want 1 reserved, got %d", c.ReservedCount())
	}
	c.RemoveReserved(j)
	if c.ReservedCount() != 0 {
		t.Fatalf("want 0 reserved after remove, got %d", c.ReservedCount())
	}
}

func TestBeginWaitFulfill(t *testing.T) {
	c := New(1, pipeConn(t))
	ch := c.BeginWait()

	if c.State() != StateWaitJob {
		t.Fatalf("want StateWaitJob, got %v", c.State())
	}

	want := &job.Job{ID: 42}
	if !c.Fulfill(want) {
		t.Fatal("Fulfill: want true")
	}

	got := <-ch
	if got != want {
		t.Fatalf("want job %+v, got %+v", want, got)
	}
	if c.State() != StateWantCommand {
		t.Fatalf("want StateWantCommand after fulfill, got %v", c.State())
	}
}

func TestCancelWaitDeliversNil(t *testing.T) {
	c := New(1, pipeConn(t))
	ch := c.BeginWait()
	c.CancelWait()

	got, ok := <-ch
	if ok && got != nil {
		t.Fatalf("want zero-value/closed channel, got %+v (ok=%v)", got, ok)
	}
}

func TestFulfillWithoutWaitReturnsFalse(t *testing.T) {
	c := New(1, pipeConn(t))
	if c.Fulfill(&job.Job{ID: 1}) {
		t.Fatal("Fulfill with no pending wait: want false")
	}
}
