// Package backend defines the pluggable device trait a ComputeContext
// dispatches work to, and a fully in-memory Null implementation used
// for tests. The interface shape (narrow,
// synchronous, byte-range oriented) follows the teacher's
// internal/interfaces.Backend/DiscardBackend split; Execute is the one
// addition a compute accelerator needs that a block backend doesn't.
package backend

import "context"

// Binding describes one surface argument bound to a kernel dispatch:
// which surface, and the byte range within it the kernel will touch.
type Binding struct {
	SurfaceID int64
	Offset    int64
	Length    int64
}

// Device is the trait a concrete accelerator backend implements. It
// owns raw storage for surfaces (ReadAt/WriteAt, mirroring a ublk
// Backend's block I/O) and kernel execution (Execute), the two
// operations a ComputeContext's Dispatch orchestrates around fences
// and consistency tracking.
type Device interface {
	// Reserve carves out size bytes of backing storage for surfaceID,
	// the Go counterpart of the backend's surface_alloc entry point.
	// Idempotent callers (ComputeContext.AllocSurface) call it once per
	// (context, surface) residency.
	Reserve(surfaceID int64, size int64)

	ReadAt(surfaceID int64, p []byte, off int64) (n int, err error)
	WriteAt(surfaceID int64, p []byte, off int64) (n int, err error)

	// Execute runs kernel against bindings, blocking until complete or
	// ctx is canceled. A real backend would submit to a command queue
	// and wait on a fence here.
	Execute(ctx context.Context, kernel []byte, bindings []Binding) error

	Close() error
}

// DiscardDevice is an optional extension for backends that can zero a
// surface range without transferring data, mirroring the teacher's
// DiscardBackend.
type DiscardDevice interface {
	Device
	Discard(surfaceID int64, offset, length int64) error
}
