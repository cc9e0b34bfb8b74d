package vmaccel

import (
	"fmt"
	"sync"
)

// Registry is the compute-server-side object table an RPC server
// resolves client-supplied IDs against. spec.md §6 names context/
// surface/queue IDs as arguments to Program B's procedures without
// naming what holds them server-side; Registry is that table: which
// backend device a registered accelerator parent is bound to, which
// ComputeContexts are live, and which Surfaces have been allocated
// independent of any one context's residency set.
type Registry struct {
	mu sync.Mutex

	devices  map[int64]Device
	contexts map[int64]*ComputeContext
	surfaces map[int64]*Surface

	nextContextID int64
	nextSurfaceID int64
}

// NewRegistry returns an empty object table.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[int64]Device),
		contexts: make(map[int64]*ComputeContext),
		surfaces: make(map[int64]*Surface),
	}
}

// BindDevice associates a concrete backend Device with a Manager
// parent ID, so a later context_alloc naming that parent can resolve a
// real device to bind the new context to. A deployment calls this once
// per registered accelerator, after Manager.Register returns its
// parent ID.
func (r *Registry) BindDevice(parentID int64, device Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[parentID] = device
}

// ContextAlloc creates a new ComputeContext bound to parentID's device
// and returns its id.
func (r *Registry) ContextAlloc(parentID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	device, ok := r.devices[parentID]
	if !ok {
		return -1, fmt.Errorf("registry: no device bound for parent %d", parentID)
	}
	id := r.nextContextID
	r.nextContextID++
	r.contexts[id] = NewComputeContext(id, device)
	return id, nil
}

// ContextDestroy tears down contextID's resident surfaces and queues
// and removes it from the table.
func (r *Registry) ContextDestroy(contextID int64) error {
	r.mu.Lock()
	ctx, ok := r.contexts[contextID]
	if ok {
		delete(r.contexts, contextID)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("registry: context %d does not exist", contextID)
	}
	ctx.Close()
	return nil
}

// Context resolves a context ID to its ComputeContext.
func (r *Registry) Context(contextID int64) (*ComputeContext, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctx, ok := r.contexts[contextID]
	if !ok {
		return nil, fmt.Errorf("registry: context %d does not exist", contextID)
	}
	return ctx, nil
}

// SurfaceAlloc creates a new Surface of the given byte width, sized for
// maxContexts concurrent context references, and adds it to the table.
func (r *Registry) SurfaceAlloc(width uint64, maxContexts int) *Surface {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSurfaceID
	r.nextSurfaceID++
	s := NewSurface(id, width, maxContexts)
	r.surfaces[id] = s
	return s
}

// SurfaceDestroy removes surfaceID from the table. It does not evict
// the surface from any context's residency set; callers destroy
// contexts (which does that) before destroying the surfaces they
// referenced, or accept FAIL from a stale residency lookup otherwise.
func (r *Registry) SurfaceDestroy(surfaceID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.surfaces[surfaceID]; !ok {
		return fmt.Errorf("registry: surface %d does not exist", surfaceID)
	}
	delete(r.surfaces, surfaceID)
	return nil
}

// Surface resolves a surface ID to its Surface.
func (r *Registry) Surface(surfaceID int64) (*Surface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.surfaces[surfaceID]
	if !ok {
		return nil, fmt.Errorf("registry: surface %d does not exist", surfaceID)
	}
	return s, nil
}
