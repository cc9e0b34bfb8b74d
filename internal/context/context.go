// Package context implements the C4 ComputeContext: per-client
// residency over a backend device, a lazily-built kernel cache, and
// upload/download/copy/fill/dispatch orchestration enforcing the
// generation-based consistency protocol from vmaccel.hpp's
// accelerator_surface/compute_context pair.
package context

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vmware/vmaccel/internal/backend"
	"github.com/vmware/vmaccel/internal/metrics"
	"github.com/vmware/vmaccel/internal/surface"
)

// StatusCode mirrors vmaccel.StatusCode, kept local so this package has
// no dependency on the root package (which imports it).
type StatusCode int32

const (
	StatusSuccess StatusCode = iota
	StatusFail
	StatusSemanticError
	StatusDeviceError
	StatusResourceUnavailable
	StatusDeviceLost
	StatusOutOfComputeResources
	StatusOutOfMemory
	StatusTimeout
)

// kernelKey identifies a cached kernel variant by source language and
// entry-point name, the same two-part key vmaccel.hpp's kernel_cache
// uses.
type kernelKey struct {
	Language string
	Name     string
}

// residency tracks one surface's state as seen by this context: is it
// allocated on the backend, and what generation did this context last
// observe.
type residency struct {
	surf      *surface.Surface
	serverGen uint64
}

// Context is a per-client handle bound to one backend device: surface
// residency, a kernel variant cache, per-sub-device queues, and the
// operations that move data and dispatch work through it.
type Context struct {
	mu sync.Mutex

	id       int64
	device   backend.Device
	surface  map[int64]*residency
	kernels  map[kernelKey]int64
	queues   map[int64]*queue
	observer metrics.Observer

	nextKernelID int64
	nextQueueID  int64
}

// New binds a ComputeContext with the given id to device.
func New(id int64, device backend.Device) *Context {
	return &Context{
		id:       id,
		device:   device,
		surface:  make(map[int64]*residency),
		kernels:  make(map[kernelKey]int64),
		queues:   make(map[int64]*queue),
		observer: metrics.NoOp{},
	}
}

func (c *Context) ID() int64 { return c.id }

// Device returns the backend device this context is bound to, used by
// the streaming upload path to resolve a write target without routing
// through RPC.
func (c *Context) Device() backend.Device { return c.device }

// Resident reports whether surfaceID is resident on this context,
// returning the surface it refers to.
func (c *Context) Resident(surfaceID int64) (*surface.Surface, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.surface[surfaceID]
	if !ok {
		return nil, false
	}
	return r.surf, true
}

// AllocQueue creates a new ordered command buffer bound to subDeviceID,
// guarded by the same state-affecting lock as context/surface
// allocate/destroy (spec.md §5's state_mutex class of operation).
func (c *Context) AllocQueue(subDeviceID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextQueueID
	c.nextQueueID++
	c.queues[id] = newQueue(id, subDeviceID)
	return id
}

// DestroyQueue stops queueID's worker and removes it. Fails if no such
// queue exists on this context.
func (c *Context) DestroyQueue(queueID int64) error {
	c.mu.Lock()
	q, ok := c.queues[queueID]
	if ok {
		delete(c.queues, queueID)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("context %d: queue %d does not exist", c.id, queueID)
	}
	q.close()
	return nil
}

// FlushQueue blocks until every operation submitted to queueID before
// this call has completed — the only ordering barrier within a queue
// (spec.md §5 "flush_queue is the only barrier").
func (c *Context) FlushQueue(queueID int64) error {
	c.mu.Lock()
	q, ok := c.queues[queueID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("context %d: queue %d does not exist", c.id, queueID)
	}
	q.flush()
	return nil
}

// onQueue runs op on queueID's worker goroutine and blocks for its
// result, giving copy/fill/dispatch the in-order, queue-scoped
// execution spec.md §5 requires of them.
func (c *Context) onQueue(queueID int64, op func() (StatusCode, error)) (StatusCode, error) {
	c.mu.Lock()
	q, ok := c.queues[queueID]
	c.mu.Unlock()
	if !ok {
		return StatusFail, fmt.Errorf("context %d: queue %d does not exist", c.id, queueID)
	}

	type result struct {
		status StatusCode
		err    error
	}
	done := make(chan result, 1)
	q.submit(func() {
		status, err := op()
		done <- result{status, err}
	})
	res := <-done
	return res.status, res.err
}

// SetObserver installs the metrics.Observer this context reports
// upload/download/dispatch outcomes and latency to. Passing nil
// restores the no-op observer.
func (c *Context) SetObserver(observer metrics.Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if observer == nil {
		observer = metrics.NoOp{}
	}
	c.observer = observer
}

// AllocSurface makes s resident on this context. Idempotent: calling it
// twice on the same surface is equivalent to calling it once.
func (c *Context) AllocSurface(s *surface.Surface, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.surface[s.ID()]; ok {
		return
	}
	c.device.Reserve(s.ID(), size)
	c.surface[s.ID()] = &residency{surf: s, serverGen: 0}
}

// DestroySurface evicts s from this context's residency set. Idempotent.
func (c *Context) DestroySurface(s *surface.Surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.surface, s.ID())
}

func (c *Context) isResident(surfaceID int64) (*residency, bool) {
	r, ok := c.surface[surfaceID]
	return r, ok
}

// Upload writes data into s's backing store at offset, bumping s's
// generation and invalidating every other context's consistency bit,
// then marks this context's own view as current.
func (c *Context) Upload(s *surface.Surface, data []byte, offset uint64) (StatusCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	r, ok := c.isResident(s.ID())
	if !ok {
		c.observer.ObserveUpload(uint64(len(data)), time.Since(start), false)
		return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, s.ID())
	}
	if err := s.Upload(data, offset); err != nil {
		c.observer.ObserveUpload(uint64(len(data)), time.Since(start), false)
		return StatusFail, err
	}
	r.serverGen = s.Generation()
	s.SetConsistent(int(c.id), true)
	c.observer.ObserveUpload(uint64(len(data)), time.Since(start), true)
	return StatusSuccess, nil
}

// Download reads a region of s's backing store into out. It never
// alters generation or consistency state.
func (c *Context) Download(s *surface.Surface, out []byte, offset uint64) (StatusCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	if _, ok := c.isResident(s.ID()); !ok {
		c.observer.ObserveDownload(uint64(len(out)), time.Since(start), false)
		return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, s.ID())
	}
	if err := s.Download(out, offset); err != nil {
		c.observer.ObserveDownload(uint64(len(out)), time.Since(start), false)
		return StatusFail, err
	}
	c.observer.ObserveDownload(uint64(len(out)), time.Since(start), true)
	return StatusSuccess, nil
}

// Fill writes pattern repeatedly into the backend surface's byte range
// without touching its client-visible generation: it is a server-side
// mutation, so it clears this context's own consistency bit (the
// backend's copy moved independently of client backing) but does not
// invalidate any other context. Fill is queue-ordered (spec.md §5):
// queueID must have been returned by AllocQueue, and the write runs on
// that queue's worker in submission order relative to every other
// copy/fill/dispatch submitted to the same queue.
func (c *Context) Fill(queueID int64, s *surface.Surface, pattern []byte, offset, length int64) (StatusCode, error) {
	return c.onQueue(queueID, func() (StatusCode, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ok := c.isResident(s.ID()); !ok {
			return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, s.ID())
		}
		buf := make([]byte, length)
		for i := range buf {
			buf[i] = pattern[i%len(pattern)]
		}
		if _, err := c.device.WriteAt(s.ID(), buf, offset); err != nil {
			return StatusDeviceError, err
		}
		s.SetConsistent(int(c.id), false)
		return StatusSuccess, nil
	})
}

// Copy moves length bytes from src at srcOffset to dst at dstOffset,
// both required to be resident on this context (surface copies require
// both surfaces on the same context per the source's ordering rules).
// Copy is queue-ordered, the same as Fill and Dispatch.
func (c *Context) Copy(queueID int64, src *surface.Surface, srcOffset int64, dst *surface.Surface, dstOffset int64, length int64) (StatusCode, error) {
	return c.onQueue(queueID, func() (StatusCode, error) {
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, ok := c.isResident(src.ID()); !ok {
			return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, src.ID())
		}
		if _, ok := c.isResident(dst.ID()); !ok {
			return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, dst.ID())
		}
		buf := make([]byte, length)
		if _, err := c.device.ReadAt(src.ID(), buf, srcOffset); err != nil {
			return StatusDeviceError, err
		}
		if _, err := c.device.WriteAt(dst.ID(), buf, dstOffset); err != nil {
			return StatusDeviceError, err
		}
		dst.SetConsistent(int(c.id), false)
		return StatusSuccess, nil
	})
}

// GetOrBuildKernel returns the cached kernel handle for (language,
// name), lazily invoking build on first reference, matching the
// kernel_cache's "built on first dispatch" contract.
func (c *Context) GetOrBuildKernel(language, name string, build func() error) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := kernelKey{Language: language, Name: name}
	if id, ok := c.kernels[key]; ok {
		return id, nil
	}
	if err := build(); err != nil {
		return -1, err
	}
	id := c.nextKernelID
	c.nextKernelID++
	c.kernels[key] = id
	return id, nil
}

// Dispatch binds kernel against surfaces and invokes it on the backend
// device. Before submitting, it checks the generation-based coherence
// protocol for every bound surface: if this context's last-observed
// generation trails the surface's current generation, the caller must
// re-upload (RESOURCE_UNAVAILABLE); if it somehow leads the surface's
// generation, that is an ordering inconsistency (SEMANTIC_ERROR).
// Dispatch is queue-ordered: it runs on queueID's worker, in submission
// order with any copy/fill already queued ahead of it.
func (c *Context) Dispatch(ctx context.Context, queueID int64, kernel []byte, surfaces []*surface.Surface, bindings []backend.Binding) (StatusCode, error) {
	return c.onQueue(queueID, func() (StatusCode, error) {
		start := time.Now()

		c.mu.Lock()
		for _, s := range surfaces {
			r, ok := c.isResident(s.ID())
			if !ok {
				c.mu.Unlock()
				c.observer.ObserveDispatch(time.Since(start), false)
				return StatusFail, fmt.Errorf("context %d: surface %d is not resident", c.id, s.ID())
			}
			gen := s.Generation()
			switch {
			case r.serverGen < gen:
				c.mu.Unlock()
				c.observer.ObserveDispatch(time.Since(start), false)
				return StatusResourceUnavailable, fmt.Errorf("context %d: surface %d stale (have gen %d, want %d)", c.id, s.ID(), r.serverGen, gen)
			case r.serverGen > gen:
				c.mu.Unlock()
				c.observer.ObserveDispatch(time.Since(start), false)
				return StatusSemanticError, fmt.Errorf("context %d: surface %d generation went backwards (have %d, want %d)", c.id, s.ID(), r.serverGen, gen)
			}
		}
		c.mu.Unlock()

		if err := c.device.Execute(ctx, kernel, bindings); err != nil {
			c.observer.ObserveDispatch(time.Since(start), false)
			return StatusDeviceError, err
		}

		c.mu.Lock()
		for _, s := range surfaces {
			s.SetConsistent(int(c.id), false)
		}
		c.mu.Unlock()
		c.observer.ObserveDispatch(time.Since(start), true)
		return StatusSuccess, nil
	})
}

// Close tears down every surface still resident on this context and
// stops every queue's worker, mirroring destruction walking the
// surface database and evicting any resident entries.
func (c *Context) Close() {
	c.mu.Lock()
	queues := c.queues
	c.surface = make(map[int64]*residency)
	c.kernels = make(map[kernelKey]int64)
	c.queues = make(map[int64]*queue)
	c.mu.Unlock()

	for _, q := range queues {
		q.close()
	}
}
