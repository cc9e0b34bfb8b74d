package surface

import "testing"

func TestUploadBumpsGenerationAndInvalidatesConsistency(t *testing.T) {
	s := New(1, 16, 4)
	s.SetConsistent(0, true)
	s.SetConsistent(1, true)

	if err := s.Upload([]byte("hello"), 0); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if g := s.Generation(); g != 1 {
		t.Fatalf("Generation() = %d, want 1", g)
	}
	if s.IsConsistent(0) || s.IsConsistent(1) {
		t.Fatal("Upload() must invalidate every existing consistency bit")
	}

	out := make([]byte, 5)
	if err := s.Download(out, 0); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("Download() = %q, want %q", out, "hello")
	}
}

func TestDownloadHasNoSideEffects(t *testing.T) {
	s := New(1, 16, 4)
	s.Upload([]byte("abcd"), 0)
	s.SetConsistent(0, true)

	genBefore := s.Generation()
	out := make([]byte, 4)
	if err := s.Download(out, 0); err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if s.Generation() != genBefore {
		t.Fatalf("Download() changed generation: %d -> %d", genBefore, s.Generation())
	}
	if !s.IsConsistent(0) {
		t.Fatal("Download() must not alter consistency state")
	}
}

func TestUploadOutOfRangeFails(t *testing.T) {
	s := New(1, 8, 2)
	if err := s.Upload([]byte("too long for this"), 0); err == nil {
		t.Fatal("Upload() should fail when data exceeds backing size")
	}
	if err := s.Upload([]byte("ok"), 7); err == nil {
		t.Fatal("Upload() should fail when offset+len exceeds backing size")
	}
}

func TestSetConsistentRange(t *testing.T) {
	s := New(1, 4, 4)
	s.SetConsistentRange(0, 3, true)
	for i := 0; i < 4; i++ {
		if !s.IsConsistent(i) {
			t.Fatalf("ref %d should be consistent after SetConsistentRange(true)", i)
		}
	}
	s.SetConsistentRange(1, 2, false)
	if !s.IsConsistent(0) || s.IsConsistent(1) || s.IsConsistent(2) || !s.IsConsistent(3) {
		t.Fatal("SetConsistentRange(1,2,false) should only clear refs 1 and 2")
	}
}

func TestIsConsistentDefaultsFalse(t *testing.T) {
	s := New(1, 4, 4)
	if s.IsConsistent(0) {
		t.Fatal("a freshly created surface should start with no refs marked consistent")
	}
}
