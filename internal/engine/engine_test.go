package engine

import (
	"net"
	"testing"
	"time"

	"github.com/rmkadzi/workq/internal/conn"
)

func pipeConn(t *testing.T) net.Conn {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(Config{URGENTThreshold: 1024, ReadyCapacity: 1024, DelayCapacity: 1024}, nil, nil)
	t.Cleanup(e.Stop)
	return e
}

func newTestConn(t *testing.T, e *Engine) *conn.Conn {
	t.Helper()
	c := conn.New(e.Conns.NextSeq(), pipeConn(t))
	e.Conns.Register(c)
	return c
}

func TestPriorityOrdering(t *testing.T) {
	e := newTestEngine(t)
	c := newTestConn(t, e)

	mustPut(t, e, 5, 0, 60, "a")
	mustPut(t, e, 1, 0, 60, "b")
	mustPut(t, e, 5, 0, 60, "c")

	want := []string{"b", "a", "c"}
	for _, w := range want {
		ch := e.BeginReserve(c)
		j := <-ch
		if j == nil {
			t.Fatalf("reserve: got nil job, want body %q", w)
		}
		if got := string(j.Body[:len(j.Body)-2]); got != w {
			t.Fatalf("reserve order: want %q, got %q", w, got)
		}
		if !e.Delete(c, j.ID) {
			t.Fatalf("delete %d: want success", j.ID)
		}
	}
}

func TestDelayPromotion(t *testing.T) {
	e := newTestEngine(t)
	c := newTestConn(t, e)

	mustPut(t, e, 0, 1, 60, "delayed")

	ch := e.BeginReserve(c)
	select {
	case j := <-ch:
		t.Fatalf("reserve resolved before delay elapsed: %+v", j)
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case j := <-ch:
		if j == nil {
			t.Fatal("reserve: got nil job after delay")
		}
		if got := string(j.Body[:len(j.Body)-2]); got != "delayed" {
			t.Fatalf("want body %q, got %q", "delayed", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reserve did not resolve after delay elapsed")
	}
}

func TestTTRExpiryRedelivers(t *testing.T) {
	e := newTestEngine(t)
	c1 := newTestConn(t, e)
	c2 := newTestConn(t, e)

	id := mustPut(t, e, 0, 0, 1, "ttr-job")

	ch1 := e.BeginReserve(c1)
	j := <-ch1
	if j == nil || j.ID != id {
		t.Fatalf("first reserve: want job %d, got %+v", id, j)
	}

	ch2 := e.BeginReserve(c2)
	select {
	case j2 := <-ch2:
		if j2 == nil || j2.ID != id {
			t.Fatalf("want same job %d redelivered, got %+v", id, j2)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("TTR expiry never redelivered the job")
	}

	stats, ok := e.JobStats(id)
	if !ok {
		t.Fatalf("JobStats(%d): want found", id)
	}
	if want := "timeouts: 1\n"; !containsLine(stats, want) {
		t.Fatalf("stats: want line %q, got:\n%s", want, stats)
	}
}

func TestBuryThenKickThenReserve(t *testing.T) {
	e := newTestEngine(t)
	c := newTestConn(t, e)

	id := mustPut(t, e, 0, 0, 60, "buried-job")

	ch := e.BeginReserve(c)
	j := <-ch
	if j == nil || j.ID != id {
		t.Fatalf("reserve: want job %d, got %+v", id, j)
	}

	if !e.Bury(c, id, 0) {
		t.Fatalf("Bury(%d): want success", id)
	}

	peeked := e.PeekID(id)
	if peeked == nil || peeked.State.String() != "buried" {
		t.Fatalf("PeekID(%d): want buried state, got %+v", id, peeked)
	}

	if n := e.Kick(1); n != 1 {
		t.Fatalf("Kick(1): want 1 kicked, got %d", n)
	}

	ch2 := e.BeginReserve(c)
	j2 := <-ch2
	if j2 == nil || j2.ID != id {
		t.Fatalf("reserve after kick: want job %d, got %+v", id, j2)
	}
}

func TestCloseConnRequeuesReservedJobs(t *testing.T) {
	e := newTestEngine(t)
	c1 := newTestConn(t, e)
	c2 := newTestConn(t, e)

	id := mustPut(t, e, 0, 0, 60, "crash-job")

	ch1 := e.BeginReserve(c1)
	j := <-ch1
	if j == nil || j.ID != id {
		t.Fatalf("reserve: want job %d, got %+v", id, j)
	}

	e.CloseConn(c1)

	ch2 := e.BeginReserve(c2)
	select {
	case j2 := <-ch2:
		if j2 == nil || j2.ID != id {
			t.Fatalf("want job %d back in ready after close, got %+v", id, j2)
		}
	case <-time.After(time.Second):
		t.Fatal("closing a connection did not requeue its reserved job")
	}
}

func mustPut(t *testing.T, e *Engine, pri, delay, ttr uint32, body string) uint64 {
	t.Helper()
	j, perr := e.Put(pri, delay, ttr, []byte(body+"\r\n"))
	if perr != nil {
		t.Fatalf("Put: %v", perr)
	}
	return j.ID
}

func containsLine(s, line string) bool {
	for i := 0; i+len(line) <= len(s); i++ {
		if s[i:i+len(line)] == line {
			return true
		}
	}
	return false
}
