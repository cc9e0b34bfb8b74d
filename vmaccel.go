// Package vmaccel is the public façade over VMAccel's core: a
// process-wide accelerator Manager, per-client ComputeContext
// orchestration, and the Surface residency/consistency state they
// share. The heavy lifting lives in internal/*; this package wires
// those pieces together, converts each internal component's
// locally-scoped status code into the wire-level StatusCode, and
// re-exports the handful of types callers need (Desc, AllocRange,
// Surface, configs).
package vmaccel

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vmware/vmaccel/internal/backend"
	internalctx "github.com/vmware/vmaccel/internal/context"
	"github.com/vmware/vmaccel/internal/manager"
	"github.com/vmware/vmaccel/internal/metrics"
	"github.com/vmware/vmaccel/internal/resource"
	"github.com/vmware/vmaccel/internal/retry"
	"github.com/vmware/vmaccel/internal/stream"
	"github.com/vmware/vmaccel/internal/surface"
)

// Observer re-exports internal/metrics.Observer so callers can plug a
// Prometheus-backed (or custom) metrics sink into a Manager or
// ComputeContext without importing internal packages.
type Observer = metrics.Observer

// NewPrometheusObserver registers VMAccel's operational counters on reg
// and returns an Observer backed by them.
func NewPrometheusObserver(reg prometheus.Registerer) Observer {
	return metrics.NewPrometheus(reg)
}

// Re-exported resource-algebra and backend types, so callers never need
// to import internal packages directly.
type (
	Desc         = resource.Desc
	WorkloadDesc = resource.WorkloadDesc
	AllocRange   = resource.AllocRange
	Device       = backend.Device
	Binding      = backend.Binding
	Surface      = surface.Surface
)

// NewSurface allocates a surface of the given byte width with a
// consistency bitset sized for maxContexts concurrent client
// references.
func NewSurface(id int64, width uint64, maxContexts int) *Surface {
	return surface.New(id, width, maxContexts)
}

// ManagerConfig bundles the Manager's startup parameters: ID-space
// sizes and the DEFER_FREE build-time toggle from spec.md §6.
type ManagerConfig = manager.Config

// DefaultManagerConfig returns the Manager's default startup parameters.
func DefaultManagerConfig() ManagerConfig { return manager.DefaultConfig() }

// StreamConfig bundles the streaming upload server's startup
// parameters (spec.md §4.4).
type StreamConfig = stream.Config

// DefaultStreamConfig returns the streaming server's defaults.
func DefaultStreamConfig() StreamConfig { return stream.DefaultConfig() }

// RuntimeConfig carries the remaining build-time toggles from
// spec.md §6 that don't belong to any single component: whether the
// streaming fast path is compiled in at all, and whether the local
// (in-process, RPC-bypassing) and RPC transports are enabled.
// NewRuntimeServers reads these fields to decide which of
// RuntimeServers' fields to construct; EnableLocal needs no server of
// its own since Manager/ComputeContext already are the in-process call
// path.
type RuntimeConfig struct {
	EnableDataStreaming bool
	EnableLocal         bool
	EnableRPC           bool
}

// DefaultRuntimeConfig enables the RPC transport only, matching a
// minimal production deployment.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{EnableDataStreaming: false, EnableLocal: false, EnableRPC: true}
}

func fromManagerStatus(s manager.StatusCode) StatusCode {
	switch s {
	case manager.StatusSuccess:
		return Success
	case manager.StatusResourceUnavailable:
		return ResourceUnavailable
	default:
		return Fail
	}
}

func fromContextStatus(s internalctx.StatusCode) StatusCode {
	switch s {
	case internalctx.StatusSuccess:
		return Success
	case internalctx.StatusResourceUnavailable:
		return ResourceUnavailable
	case internalctx.StatusSemanticError:
		return SemanticError
	case internalctx.StatusDeviceError:
		return DeviceError
	default:
		return Fail
	}
}

// Manager is the process-wide registry of registered accelerators,
// wrapping internal/manager.Manager and translating its status codes
// to the public StatusCode taxonomy.
type Manager struct {
	inner *manager.Manager
}

// PowerOn runs the allocator self-test and stands up the manager's two
// allocators (descriptor and byte-range), per spec.md §4.5.
func PowerOn(config ManagerConfig) (*Manager, StatusCode) {
	inner, status := manager.PowerOn(config)
	if status != manager.StatusSuccess {
		return nil, fromManagerStatus(status)
	}
	return &Manager{inner: inner}, Success
}

func (m *Manager) PowerOff() StatusCode { return fromManagerStatus(m.inner.PowerOff()) }

// SetObserver installs the metrics Observer this manager reports
// alloc/free outcomes and latency to.
func (m *Manager) SetObserver(observer Observer) { m.inner.SetObserver(observer) }

func (m *Manager) Register(desc Desc) (id int64, status StatusCode) {
	id, s := m.inner.Register(desc)
	return id, fromManagerStatus(s)
}

func (m *Manager) Unregister(id int64) StatusCode {
	return fromManagerStatus(m.inner.Unregister(id))
}

func (m *Manager) Alloc(parentID int64, req Desc) (externalID int64, taken Desc, status StatusCode) {
	externalID, taken, s := m.inner.Alloc(parentID, req)
	return externalID, taken, fromManagerStatus(s)
}

func (m *Manager) Free(externalID int64, fenceID int64) StatusCode {
	return fromManagerStatus(m.inner.Free(externalID, fenceID))
}

func (m *Manager) RegisterByteRange(size uint64) (id int64, status StatusCode) {
	id, s := m.inner.RegisterByteRange(size)
	return id, fromManagerStatus(s)
}

func (m *Manager) AllocByteRange(parentID int64, size uint64) (externalID int64, taken AllocRange, status StatusCode) {
	externalID, taken, s := m.inner.AllocByteRange(parentID, size)
	return externalID, taken, fromManagerStatus(s)
}

func (m *Manager) FreeByteRange(externalID int64, fenceID int64) StatusCode {
	return fromManagerStatus(m.inner.FreeByteRange(externalID, fenceID))
}

// Load returns a registered accelerator's current outstanding
// allocation, used for placement hinting (spec.md §1's "host selection
// only").
func (m *Manager) Load(parentID int64) Desc { return m.inner.Load(parentID) }

// Capacity returns a registered accelerator's current free capacity.
func (m *Manager) Capacity(parentID int64) Desc { return m.inner.Capacity(parentID) }

// ComputeContext is a per-client handle bound to one backend device,
// wrapping internal/context.Context.
type ComputeContext struct {
	inner *internalctx.Context
}

// NewComputeContext binds a context with the given id to device.
func NewComputeContext(id int64, device Device) *ComputeContext {
	return &ComputeContext{inner: internalctx.New(id, device)}
}

func (c *ComputeContext) ID() int64 { return c.inner.ID() }

// SetObserver installs the metrics Observer this context reports
// upload/download/dispatch outcomes and latency to.
func (c *ComputeContext) SetObserver(observer Observer) { c.inner.SetObserver(observer) }

// AllocSurface makes s resident on this context (idempotent).
func (c *ComputeContext) AllocSurface(s *Surface, size int64) { c.inner.AllocSurface(s, size) }

// DestroySurface evicts s from this context's residency set (idempotent).
func (c *ComputeContext) DestroySurface(s *Surface) { c.inner.DestroySurface(s) }

func (c *ComputeContext) Upload(s *Surface, data []byte, offset uint64) StatusCode {
	status, _ := c.inner.Upload(s, data, offset)
	return fromContextStatus(status)
}

func (c *ComputeContext) Download(s *Surface, out []byte, offset uint64) StatusCode {
	status, _ := c.inner.Download(s, out, offset)
	return fromContextStatus(status)
}

// AllocQueue creates a new ordered command buffer bound to subDeviceID
// (spec.md §3's "per-sub-device queues[]"); the returned id is passed
// to Fill, Copy, and Dispatch to order them relative to each other.
func (c *ComputeContext) AllocQueue(subDeviceID int64) int64 { return c.inner.AllocQueue(subDeviceID) }

// DestroyQueue stops queueID's worker and removes it.
func (c *ComputeContext) DestroyQueue(queueID int64) error { return c.inner.DestroyQueue(queueID) }

// FlushQueue blocks until every operation submitted to queueID before
// this call has completed, the only ordering barrier within a queue.
func (c *ComputeContext) FlushQueue(queueID int64) error { return c.inner.FlushQueue(queueID) }

func (c *ComputeContext) Fill(queueID int64, s *Surface, pattern []byte, offset, length int64) StatusCode {
	status, _ := c.inner.Fill(queueID, s, pattern, offset, length)
	return fromContextStatus(status)
}

func (c *ComputeContext) Copy(queueID int64, src *Surface, srcOffset int64, dst *Surface, dstOffset int64, length int64) StatusCode {
	status, _ := c.inner.Copy(queueID, src, srcOffset, dst, dstOffset, length)
	return fromContextStatus(status)
}

func (c *ComputeContext) GetOrBuildKernel(language, name string, build func() error) (int64, error) {
	return c.inner.GetOrBuildKernel(language, name, build)
}

// Dispatch retries on RESOURCE_UNAVAILABLE with the shared exponential
// backoff policy, matching spec.md §5's "dispatch retry up to ~100
// iterations with exponential-ish spacing" contract. Any other status
// is returned immediately without retry.
func (c *ComputeContext) Dispatch(ctx context.Context, queueID int64, kernel []byte, surfaces []*Surface, bindings []Binding) StatusCode {
	var last StatusCode
	retry.Until(ctx, retry.DispatchRetry(), func() (bool, error) {
		status, _ := c.inner.Dispatch(ctx, queueID, kernel, surfaces, bindings)
		last = fromContextStatus(status)
		return last != ResourceUnavailable, nil
	})
	return last
}

// Close tears down every surface still resident on this context.
func (c *ComputeContext) Close() { c.inner.Close() }
