package backend

import (
	"context"
	"testing"
)

func TestNullReadWriteRoundTrip(t *testing.T) {
	n := NewNull()
	n.Reserve(1, 16)

	if _, err := n.WriteAt(1, []byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt() error: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := n.ReadAt(1, buf, 0); err != nil {
		t.Fatalf("ReadAt() error: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("ReadAt() = %q, want %q", buf, "hello")
	}
}

func TestNullWriteGrowsBuffer(t *testing.T) {
	n := NewNull()
	n.Reserve(1, 4)
	if _, err := n.WriteAt(1, []byte("abcdefgh"), 0); err != nil {
		t.Fatalf("WriteAt() error: %v", err)
	}
	buf := make([]byte, 8)
	if _, err := n.ReadAt(1, buf, 0); err != nil {
		t.Fatalf("ReadAt() error: %v", err)
	}
	if string(buf) != "abcdefgh" {
		t.Fatalf("ReadAt() = %q, want %q", buf, "abcdefgh")
	}
}

func TestNullExecuteRejectsUnknownSurface(t *testing.T) {
	n := NewNull()
	err := n.Execute(context.Background(), nil, []Binding{{SurfaceID: 99, Length: 4}})
	if err == nil {
		t.Fatal("Execute() should fail: surface 99 was never reserved")
	}
}

func TestNullExecuteRejectsOutOfRangeBinding(t *testing.T) {
	n := NewNull()
	n.Reserve(1, 4)
	err := n.Execute(context.Background(), nil, []Binding{{SurfaceID: 1, Offset: 2, Length: 4}})
	if err == nil {
		t.Fatal("Execute() should fail: binding exceeds surface size")
	}
}

func TestNullDiscardZeroesRange(t *testing.T) {
	n := NewNull()
	n.Reserve(1, 8)
	n.WriteAt(1, []byte{1, 2, 3, 4, 5, 6, 7, 8}, 0)
	if err := n.Discard(1, 2, 4); err != nil {
		t.Fatalf("Discard() error: %v", err)
	}
	buf := make([]byte, 8)
	n.ReadAt(1, buf, 0)
	want := []byte{1, 2, 0, 0, 0, 0, 7, 8}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("after Discard buf = %v, want %v", buf, want)
		}
	}
}
