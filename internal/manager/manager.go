// Package manager implements the C5 Manager: the process-wide registry
// owning two Allocator instances (one over device descriptors, one
// over byte ranges) plus the poweron/poweroff lifecycle that runs the
// literal scalar-allocator self-test vmaccel_manager.cpp runs before
// standing up either production allocator.
package manager

import (
	"fmt"
	"time"

	"github.com/vmware/vmaccel/internal/constants"
	"github.com/vmware/vmaccel/internal/logging"
	"github.com/vmware/vmaccel/internal/metrics"
	"github.com/vmware/vmaccel/internal/resource"
)

// StatusCode mirrors vmaccel.StatusCode, kept local for the same
// import-direction reason as internal/wire and internal/context.
type StatusCode int32

const (
	StatusSuccess StatusCode = iota
	StatusFail
	StatusResourceUnavailable
)

// Config bundles the manager's startup parameters, the Go counterpart
// of the original's compile-time capacity constants.
type Config struct {
	// MaxAccelerators bounds the descriptor allocator's registered-parent
	// and external-reservation ID spaces.
	MaxAccelerators int
	// ByteRangeCapacity bounds the byte-range allocator's ID spaces,
	// sized independently since it tracks sub-allocations within a
	// single registered accelerator's backing store rather than one
	// entry per accelerator.
	ByteRangeCapacity int
	// DeferFree mirrors the DEFER_FREE build-time toggle from spec.md
	// §6: when false, Free coalesces the deferred queue synchronously.
	DeferFree bool
}

// DefaultConfig returns the manager's default startup parameters.
func DefaultConfig() Config {
	return Config{
		MaxAccelerators:   constants.MaxAccelerators,
		ByteRangeCapacity: constants.DefaultParentCapacity,
		DeferFree:         false,
	}
}

// Manager is the process-wide registry of registered accelerators and
// their sub-allocated capacity.
type Manager struct {
	config Config

	descriptors *resource.Allocator[resource.Desc]
	byteRanges  *resource.Allocator[resource.AllocRange]

	observer  metrics.Observer
	poweredOn bool
}

// SetObserver installs the metrics.Observer the manager reports
// Alloc/Free outcomes and latency to. Passing nil restores the no-op
// observer.
func (m *Manager) SetObserver(observer metrics.Observer) {
	if observer == nil {
		observer = metrics.NoOp{}
	}
	m.observer = observer
}

// waitForFence is the in-process stub contract hook: spec.md §4.5 says
// it "returns true immediately", deferring real fence tracking to a
// backend that isn't part of this core.
func waitForFence(fenceID int64) bool { return true }

// PowerOn runs the allocator self-test, then stands up the descriptor
// and byte-range allocators. Both must succeed or PowerOn tears down
// whatever was created and reports StatusFail.
func PowerOn(config Config) (*Manager, StatusCode) {
	if err := selfTest(); err != nil {
		logging.Error("manager: self-test failed", "error", err)
		return nil, StatusFail
	}

	m := &Manager{
		config:      config,
		descriptors: resource.New[resource.Desc](resource.DescAlgebra{}, config.MaxAccelerators, waitForFence, config.DeferFree),
		byteRanges:  resource.New[resource.AllocRange](resource.AllocRangeAlgebra{}, config.ByteRangeCapacity, waitForFence, config.DeferFree),
		observer:    metrics.NoOp{},
	}
	m.poweredOn = true
	logging.Info("manager: power on complete", "maxAccelerators", config.MaxAccelerators, "byteRangeCapacity", config.ByteRangeCapacity)
	return m, StatusSuccess
}

// PowerOff releases the manager's allocators. It does not inspect
// outstanding registrations; callers are expected to have unregistered
// every accelerator first (Unregister enforces refcount zero).
func (m *Manager) PowerOff() StatusCode {
	m.poweredOn = false
	m.descriptors = nil
	m.byteRanges = nil
	return StatusSuccess
}

// selfTest replays vmaccel_manager.cpp's literal scalar-allocator
// self-check: register a 65535-unit parent, exercise a fixed
// alloc/free sequence, then exhaust a freshly registered 2048-unit
// parent one unit at a time. It uses a throwaway Int allocator,
// discarded on return, not either of the manager's production
// allocators.
func selfTest() error {
	a := resource.New[resource.Int](resource.IntAlgebra{}, 4096, waitForFence, false)

	parent, ok := a.Register(resource.Int{X: 65535})
	if !ok {
		return fmt.Errorf("self-test: register(65535) failed")
	}

	e0, taken, ok := a.Alloc(parent, resource.Int{X: 32768})
	if !ok || taken.X != 32768 {
		return fmt.Errorf("self-test: alloc(32768) = (%v, %v), want (true, 32768)", ok, taken.X)
	}
	if _, _, ok := a.Alloc(parent, resource.Int{X: 32768}); ok {
		return fmt.Errorf("self-test: second alloc(32768) unexpectedly succeeded")
	}
	if _, taken, ok := a.Alloc(parent, resource.Int{X: 16384}); !ok || taken.X != 16384 {
		return fmt.Errorf("self-test: alloc(16384) = (%v, %v), want (true, 16384)", ok, taken.X)
	}
	a.Free(e0, resource.InvalidID)
	if _, taken, ok := a.Alloc(parent, resource.Int{X: 32767}); !ok || taken.X != 32767 {
		return fmt.Errorf("self-test: alloc(32767) after free = (%v, %v), want (true, 32767)", ok, taken.X)
	}

	small, ok := a.Register(resource.Int{X: 2048})
	if !ok {
		return fmt.Errorf("self-test: register(2048) failed")
	}
	succeeded := 0
	for i := 0; i < 2049; i++ {
		if _, _, ok := a.Alloc(small, resource.Int{X: 1}); ok {
			succeeded++
		} else {
			break
		}
	}
	if succeeded != 2048 {
		return fmt.Errorf("self-test: exhausted parent after %d allocs, want 2048", succeeded)
	}
	return nil
}

// Register installs desc as a new registered accelerator.
func (m *Manager) Register(desc resource.Desc) (id int64, status StatusCode) {
	id, ok := m.descriptors.Register(desc)
	if !ok {
		return 0, StatusFail
	}
	return id, StatusSuccess
}

// Unregister removes a registered accelerator. Fails if it still has
// outstanding external allocations.
func (m *Manager) Unregister(id int64) StatusCode {
	if !m.descriptors.Unregister(id) {
		return StatusFail
	}
	return StatusSuccess
}

// Alloc reserves req capacity out of parentID's registered descriptor.
func (m *Manager) Alloc(parentID int64, req resource.Desc) (externalID int64, taken resource.Desc, status StatusCode) {
	start := time.Now()
	externalID, taken, ok := m.descriptors.Alloc(parentID, req)
	m.observer.ObserveAlloc(weight(req.Capacity), time.Since(start), ok)
	if !ok {
		return 0, resource.Desc{}, StatusResourceUnavailable
	}
	return externalID, taken, StatusSuccess
}

// Free releases a previously allocated descriptor reservation.
func (m *Manager) Free(externalID int64, fenceID int64) StatusCode {
	taken := m.descriptors.Allocated(externalID)
	ok := m.descriptors.Free(externalID, fenceID)
	m.observer.ObserveFree(weight(taken.Capacity), ok)
	if !ok {
		return StatusFail
	}
	return StatusSuccess
}

// weight sums a WorkloadDesc's nine dimensions into a single scalar
// for metrics reporting, the same collapse DescAlgebra.Less uses for
// best-fit ordering.
func weight(w resource.WorkloadDesc) uint64 {
	return w.MegaFlops + w.MegaOps + w.LLCSizeKB + w.LLCBandwidthMBSec +
		w.LocalMemSizeKB + w.LocalMemBandwidthMBSec + w.NonLocalMemSizeKB +
		w.NonLocalMemBandwidthMBSec + w.InterconnectBandwidthMBSec
}

// RegisterByteRange installs a byte-range parent (a registered
// accelerator's coarse backing-storage pool) and returns its parent
// ID.
func (m *Manager) RegisterByteRange(size uint64) (id int64, status StatusCode) {
	id, ok := m.byteRanges.Register(resource.AllocRange{Size: size, Begin: 0, End: size - 1})
	if !ok {
		return 0, StatusFail
	}
	return id, StatusSuccess
}

// AllocByteRange reserves size bytes out of parentID's byte-range pool.
func (m *Manager) AllocByteRange(parentID int64, size uint64) (externalID int64, taken resource.AllocRange, status StatusCode) {
	externalID, taken, ok := m.byteRanges.Alloc(parentID, resource.AllocRange{Size: size})
	if !ok {
		return 0, resource.AllocRange{}, StatusResourceUnavailable
	}
	return externalID, taken, StatusSuccess
}

// FreeByteRange releases a previously allocated byte-range reservation.
func (m *Manager) FreeByteRange(externalID int64, fenceID int64) StatusCode {
	if !m.byteRanges.Free(externalID, fenceID) {
		return StatusFail
	}
	return StatusSuccess
}

// Load returns the registered descriptor parent's outstanding
// allocation, used by scheduling hints (host selection).
func (m *Manager) Load(parentID int64) resource.Desc {
	return m.descriptors.Load(parentID)
}

// Capacity returns the registered descriptor parent's free capacity.
func (m *Manager) Capacity(parentID int64) resource.Desc {
	return m.descriptors.Capacity(parentID)
}
