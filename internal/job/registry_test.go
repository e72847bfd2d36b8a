package job

import "testing"

func TestRegistryPutGetDelete(t *testing.T) {
	r := NewRegistry()
	j := &Job{ID: r.NextID()}
	r.Put(j)

	if r.Count() != 1 {
		t.Fatalf("want 1 job, got %d", r.Count())
	}
	got, ok := r.Get(j.ID)
	if !ok || got != j {
		t.Fatalf("Get: want %+v, got %+v (ok=%v)", j, got, ok)
	}

	r.Delete(j.ID)
	if r.Count() != 0 {
		t.Fatalf("want 0 jobs after delete, got %d", r.Count())
	}
	if _, ok := r.Get(j.ID); ok {
		t.Fatal("Get after delete: want ok=false")
	}
}

func TestRegistryNextIDMonotonicAndNonzero(t *testing.T) {
	r := NewRegistry()
	a := r.NextID()
	b := r.NextID()
	if a == 0 {
		t.Fatal("want first id nonzero")
	}
	if b <= a {
		t.Fatalf("want strictly increasing ids, got %d then %d", a, b)
	}
}

func TestCopyIsIndependent(t *testing.T) {
	orig := &Job{ID: 1, Body: []byte("hello\r\n"), ReservedBy: 7, PQIndex: 3}
	cp := orig.Copy()

	cp.Body[0] = 'H'
	if orig.Body[0] == 'H' {
		t.Fatal("Copy must deep-copy Body")
	}
	if cp.ReservedBy != 0 || cp.PQIndex != -1 {
		t.Fatalf("Copy must reset container membership, got ReservedBy=%d PQIndex=%d", cp.ReservedBy, cp.PQIndex)
	}
}

func TestTrailer(t *testing.T) {
	ok := &Job{Body: []byte("abc\r\n")}
	if !ok.Trailer() {
		t.Fatal("want Trailer true for body ending in CRLF")
	}
	bad := &Job{Body: []byte("abc")}
	if bad.Trailer() {
		t.Fatal("want Trailer false for body without CRLF")
	}
}
