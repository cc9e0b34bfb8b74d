package stream

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/vmware/vmaccel/internal/backend"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := header{Type: TypeSurfaceMap, Len: 42, SurfaceID: 7, Offset: 128}
	var buf bytes.Buffer
	if err := writeHeader(&buf, h); err != nil {
		t.Fatalf("writeHeader() error: %v", err)
	}
	got, err := readHeader(&buf)
	if err != nil {
		t.Fatalf("readHeader() error: %v", err)
	}
	if got != h {
		t.Fatalf("readHeader() = %+v, want %+v", got, h)
	}
}

func TestAcquireReleaseSlot(t *testing.T) {
	s := NewServer(Config{MaxSlots: 2}, nil)

	a, ok := s.AcquireSlot()
	if !ok {
		t.Fatal("AcquireSlot() failed with capacity available")
	}
	b, ok := s.AcquireSlot()
	if !ok {
		t.Fatal("AcquireSlot() failed on second slot")
	}
	if a == b {
		t.Fatal("AcquireSlot() returned the same slot twice")
	}
	if _, ok := s.AcquireSlot(); ok {
		t.Fatal("AcquireSlot() should fail once every slot is busy")
	}

	s.ReleaseSlot(a)
	if _, ok := s.AcquireSlot(); !ok {
		t.Fatal("AcquireSlot() should succeed after ReleaseSlot")
	}
}

// fixedMapper always resolves to the same backend device, regardless of
// the requested range, standing in for a real surface-map callback in
// tests.
type fixedMapper struct {
	device backend.Device
}

func (m fixedMapper) Map(surfaceID int64, offset, length int64) (backend.Device, error) {
	return m.device, nil
}

func TestHandleConnWritesReceivedBytes(t *testing.T) {
	// handleConn is exercised end to end over a real TCP loopback pair
	// since it relies on *net.TCPConn for socket-option tuning.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() error: %v", err)
	}
	defer client.Close()

	var server net.Conn
	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for accept")
	}
	defer server.Close()

	device := backend.NewNull()
	device.Reserve(3, 64)
	srv := NewServer(DefaultConfig(), fixedMapper{device: device})

	done := make(chan struct{})
	go func() {
		srv.handleConn(server.(*net.TCPConn))
		close(done)
	}()

	h := header{Type: TypeSurfaceMap, Len: 5, SurfaceID: 3, Offset: 10}
	if err := writeHeader(client, h); err != nil {
		t.Fatalf("writeHeader() error: %v", err)
	}
	if _, err := client.Write([]byte("hello")); err != nil {
		t.Fatalf("client.Write() error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handleConn to finish")
	}

	out := make([]byte, 5)
	if _, err := device.ReadAt(3, out, 10); err != nil {
		t.Fatalf("ReadAt() error: %v", err)
	}
	if string(out) != "hello" {
		t.Fatalf("device bytes = %q, want %q", out, "hello")
	}
}
