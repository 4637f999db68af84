package wordslice

import "testing"

func Test_RegisterAccumulatesIDs(t *testing.T) {
	s := New()
	s.Register(1)
	s.Register(2)

	ids := s.IDs()
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("unexpected ids: %v", ids)
	}
}

func Test_RefCountTracksAddAndRelease(t *testing.T) {
	s := New()
	if s.RefCount() != 0 {
		t.Fatalf("new slice should start unreferenced, got %d", s.RefCount())
	}

	s.AddRef()
	s.AddRef()
	if got := s.RefCount(); got != 2 {
		t.Fatalf("want refcount 2, got %d", got)
	}

	s.Release()
	if got := s.RefCount(); got != 1 {
		t.Fatalf("want refcount 1, got %d", got)
	}
}
