package conn

import "testing"

func TestRegistryRegisterUnregister(t *testing.T) {
	r := NewRegistry()
	c := New(r.NextSeq(), pipeConn(t))
	r.Register(c)

	if r.Count() != 1 {
		t.Fatalf("want 1 registered, got %d", r.Count())
	}
	if got, ok := r.Get(c.Seq); !ok || got != c {
		t.Fatalf("Get: want %+v, got %+v (ok=%v)", c, got, ok)
	}

	r.Unregister(c.Seq)
	if r.Count() != 0 {
		t.Fatalf("want 0 registered after unregister, got %d", r.Count())
	}
	if _, ok := r.Get(c.Seq); ok {
		t.Fatal("Get after unregister: want ok=false")
	}
}

func TestRegistryNextSeqMonotonic(t *testing.T) {
	r := NewRegistry()
	a := r.NextSeq()
	b := r.NextSeq()
	if b <= a {
		t.Fatalf("want strictly increasing sequence numbers, got %d then %d", a, b)
	}
}
