package backend

import (
	"context"
	"fmt"
	"sync"
)

// Null is a fully in-memory Device: surface storage is a map of
// growable byte slices, and Execute is a no-op that just validates its
// bindings reference allocated surfaces. It is the stand-in device
// used by the tests, the direct analogue of the teacher's
// backend.Memory.
type Null struct {
	mu       sync.Mutex
	surfaces map[int64][]byte
}

// NewNull constructs an empty in-memory backend.
func NewNull() *Null {
	return &Null{surfaces: make(map[int64][]byte)}
}

// Reserve pre-allocates size bytes of backing storage for surfaceID.
// ComputeContext calls this when a surface is registered, mirroring
// how a real backend would carve out device memory.
func (n *Null) Reserve(surfaceID int64, size int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.surfaces[surfaceID] = make([]byte, size)
}

func (n *Null) ReadAt(surfaceID int64, p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, ok := n.surfaces[surfaceID]
	if !ok {
		return 0, fmt.Errorf("backend: unknown surface %d", surfaceID)
	}
	if off >= int64(len(buf)) {
		return 0, nil
	}
	avail := int64(len(buf)) - off
	if int64(len(p)) > avail {
		p = p[:avail]
	}
	return copy(p, buf[off:]), nil
}

func (n *Null) WriteAt(surfaceID int64, p []byte, off int64) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, ok := n.surfaces[surfaceID]
	if !ok {
		return 0, fmt.Errorf("backend: unknown surface %d", surfaceID)
	}
	end := off + int64(len(p))
	if end > int64(len(buf)) {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
		n.surfaces[surfaceID] = buf
	}
	return copy(buf[off:], p), nil
}

func (n *Null) Execute(ctx context.Context, kernel []byte, bindings []Binding) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, b := range bindings {
		buf, ok := n.surfaces[b.SurfaceID]
		if !ok {
			return fmt.Errorf("backend: dispatch references unknown surface %d", b.SurfaceID)
		}
		if b.Offset+b.Length > int64(len(buf)) {
			return fmt.Errorf("backend: binding out of range for surface %d", b.SurfaceID)
		}
	}
	return nil
}

func (n *Null) Discard(surfaceID int64, offset, length int64) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	buf, ok := n.surfaces[surfaceID]
	if !ok {
		return fmt.Errorf("backend: unknown surface %d", surfaceID)
	}
	end := offset + length
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	for i := offset; i < end; i++ {
		buf[i] = 0
	}
	return nil
}

func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.surfaces = nil
	return nil
}

var (
	_ Device        = (*Null)(nil)
	_ DiscardDevice = (*Null)(nil)
)
