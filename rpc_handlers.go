package vmaccel

import (
	"context"
	"fmt"

	"github.com/vmware/vmaccel/internal/resource"
	"github.com/vmware/vmaccel/internal/rpc"
	"github.com/vmware/vmaccel/internal/stream"
	"github.com/vmware/vmaccel/internal/wire"
)

// Procedure numbers within ProgramManager, version 1 (spec.md §6
// "Program A (manager): alloc, free, register, unregister").
const (
	procManagerRegister   uint32 = 1
	procManagerUnregister uint32 = 2
	procManagerAlloc      uint32 = 3
	procManagerFree       uint32 = 4
)

// Procedure numbers within ProgramCompute, version 1 (spec.md §6
// "Program B (compute): context_alloc/destroy, surface_alloc/destroy,
// queue_alloc/destroy/flush, ..., image_upload/download,
// surface_map/unmap/copy, image_fill, dispatch"). surface_map/unmap,
// sampler_alloc/destroy and kernel_alloc/destroy have no registered
// procedure here: this implementation has no sampler type at all (§3's
// data model never defines one), and kernel variants are built through
// ComputeContext.GetOrBuildKernel's cache rather than through a
// separate alloc/destroy pair.
// ProgramTranscode (xcode/validate) is likewise unregistered: §1 names
// "the transcoder passes" as an external collaborator contracted only
// by program number, not implemented by this core.
const (
	procComputeContextAlloc   uint32 = 1
	procComputeContextDestroy uint32 = 2
	procComputeSurfaceAlloc   uint32 = 3
	procComputeSurfaceDestroy uint32 = 4
	procComputeQueueAlloc     uint32 = 5
	procComputeQueueDestroy   uint32 = 6
	procComputeQueueFlush     uint32 = 7
	procComputeImageUpload    uint32 = 8
	procComputeImageDownload  uint32 = 9
	procComputeSurfaceCopy    uint32 = 10
	procComputeImageFill      uint32 = 11
	procComputeDispatch       uint32 = 12
)

const rpcVersion1 uint32 = 1

// toWireStatus converts the public StatusCode taxonomy to its
// internal/wire counterpart. The two enums are kept in lockstep order
// deliberately (see wire.StatusCode's doc comment), so this is a plain
// cast rather than a switch.
func toWireStatus(s StatusCode) wire.StatusCode { return wire.StatusCode(s) }

func encodeWorkloadDesc(w *wire.Writer, d WorkloadDesc) {
	w.PutUint64(d.MegaFlops)
	w.PutUint64(d.MegaOps)
	w.PutUint64(d.LLCSizeKB)
	w.PutUint64(d.LLCBandwidthMBSec)
	w.PutUint64(d.LocalMemSizeKB)
	w.PutUint64(d.LocalMemBandwidthMBSec)
	w.PutUint64(d.NonLocalMemSizeKB)
	w.PutUint64(d.NonLocalMemBandwidthMBSec)
	w.PutUint64(d.InterconnectBandwidthMBSec)
}

func decodeWorkloadDesc(r *wire.Reader) (WorkloadDesc, error) {
	var d WorkloadDesc
	var err error
	if d.MegaFlops, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.MegaOps, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.LLCSizeKB, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.LLCBandwidthMBSec, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.LocalMemSizeKB, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.LocalMemBandwidthMBSec, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.NonLocalMemSizeKB, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.NonLocalMemBandwidthMBSec, err = r.GetUint64(); err != nil {
		return d, err
	}
	if d.InterconnectBandwidthMBSec, err = r.GetUint64(); err != nil {
		return d, err
	}
	return d, nil
}

// encodeDesc/decodeDesc marshal a device descriptor for the manager's
// register/alloc procedures, matching Desc's field order exactly.
func encodeDesc(w *wire.Writer, d Desc) {
	w.PutInt64(d.ParentID)
	w.PutUint32(uint32(d.Type))
	w.PutUint32(uint32(d.Architecture))
	w.PutUint32(d.Caps)
	encodeWorkloadDesc(w, d.Capacity)
	w.PutUint32(d.MaxContexts)
	w.PutUint32(d.MaxQueues)
	w.PutUint32(d.MaxEvents)
	w.PutUint32(d.MaxFences)
	w.PutUint32(d.MaxSurfaces)
	w.PutUint32(d.MaxMappings)
	w.PutBytes(d.FormatCaps)
	w.PutBytes(d.BackendDesc)
}

func decodeDesc(r *wire.Reader) (Desc, error) {
	var d Desc
	var err error
	if d.ParentID, err = r.GetInt64(); err != nil {
		return d, err
	}
	var u32 uint32
	if u32, err = r.GetUint32(); err != nil {
		return d, err
	}
	d.Type = resource.DeviceType(u32)
	if u32, err = r.GetUint32(); err != nil {
		return d, err
	}
	d.Architecture = resource.Architecture(u32)
	if d.Caps, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.Capacity, err = decodeWorkloadDesc(r); err != nil {
		return d, err
	}
	if d.MaxContexts, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.MaxQueues, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.MaxEvents, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.MaxFences, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.MaxSurfaces, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.MaxMappings, err = r.GetUint32(); err != nil {
		return d, err
	}
	if d.FormatCaps, err = r.GetBytes(); err != nil {
		return d, err
	}
	if d.BackendDesc, err = r.GetBytes(); err != nil {
		return d, err
	}
	return d, nil
}

// registerManagerHandlers binds Program A's procedures to m.
func registerManagerHandlers(s *rpc.Server, m *Manager) {
	s.Register(rpc.ProgramManager, rpcVersion1, procManagerRegister, func(body []byte) ([]byte, error) {
		desc, err := decodeDesc(wire.NewReader(body))
		if err != nil {
			return nil, err
		}
		id, status := m.Register(desc)
		w := &wire.Writer{}
		wire.AllocateStatus{Status: toWireStatus(status), ID: id}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramManager, rpcVersion1, procManagerUnregister, func(body []byte) ([]byte, error) {
		id, err := wire.NewReader(body).GetInt64()
		if err != nil {
			return nil, err
		}
		status := m.Unregister(id)
		w := &wire.Writer{}
		wire.Status{Status: toWireStatus(status)}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramManager, rpcVersion1, procManagerAlloc, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		parentID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		req, err := decodeDesc(r)
		if err != nil {
			return nil, err
		}
		externalID, taken, status := m.Alloc(parentID, req)
		w := &wire.Writer{}
		w.PutInt32(int32(toWireStatus(status)))
		w.PutInt64(externalID)
		encodeDesc(w, taken)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramManager, rpcVersion1, procManagerFree, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		externalID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		fenceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		status := m.Free(externalID, fenceID)
		w := &wire.Writer{}
		wire.Status{Status: toWireStatus(status)}.Encode(w)
		return w.Bytes(), nil
	})
}

// registerComputeHandlers binds Program B's procedures to reg.
func registerComputeHandlers(s *rpc.Server, reg *Registry) {
	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeContextAlloc, func(body []byte) ([]byte, error) {
		parentID, err := wire.NewReader(body).GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		id, cerr := reg.ContextAlloc(parentID)
		if cerr != nil {
			wire.AllocateStatus{Status: wire.StatusFail, ID: -1}.Encode(w)
		} else {
			wire.AllocateStatus{Status: wire.StatusSuccess, ID: id}.Encode(w)
		}
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeContextDestroy, func(body []byte) ([]byte, error) {
		contextID, err := wire.NewReader(body).GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		wire.Status{Status: toWireStatus(statusOrFail(reg.ContextDestroy(contextID)))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeSurfaceAlloc, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		width, err := r.GetUint64()
		if err != nil {
			return nil, err
		}
		maxContexts, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		s := reg.SurfaceAlloc(width, int(maxContexts))
		w := &wire.Writer{}
		wire.AllocateStatus{Status: wire.StatusSuccess, ID: s.ID()}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeSurfaceDestroy, func(body []byte) ([]byte, error) {
		surfaceID, err := wire.NewReader(body).GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		wire.Status{Status: toWireStatus(statusOrFail(reg.SurfaceDestroy(surfaceID)))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeQueueAlloc, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		subDeviceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, cerr := reg.Context(contextID)
		if cerr != nil {
			wire.AllocateStatus{Status: wire.StatusFail, ID: -1}.Encode(w)
			return w.Bytes(), nil
		}
		wire.AllocateStatus{Status: wire.StatusSuccess, ID: ctx.AllocQueue(subDeviceID)}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeQueueDestroy, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		queueID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, cerr := reg.Context(contextID)
		if cerr != nil {
			w.PutInt32(int32(wire.StatusFail))
			return w.Bytes(), nil
		}
		wire.Status{Status: toWireStatus(statusOrFail(ctx.DestroyQueue(queueID)))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeQueueFlush, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		queueID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, cerr := reg.Context(contextID)
		if cerr != nil {
			w.PutInt32(int32(wire.StatusFail))
			return w.Bytes(), nil
		}
		wire.Status{Status: toWireStatus(statusOrFail(ctx.FlushQueue(queueID)))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeImageUpload, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		surfaceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		offset, err := r.GetUint64()
		if err != nil {
			return nil, err
		}
		data, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, surf, rerr := reg.resolve(contextID, surfaceID)
		if rerr != nil {
			wire.Status{Status: wire.StatusFail}.Encode(w)
			return w.Bytes(), nil
		}
		wire.Status{Status: toWireStatus(ctx.Upload(surf, data, offset))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeImageDownload, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		surfaceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		offset, err := r.GetUint64()
		if err != nil {
			return nil, err
		}
		length, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, surf, rerr := reg.resolve(contextID, surfaceID)
		if rerr != nil {
			w.PutInt32(int32(wire.StatusFail))
			w.PutBytes(nil)
			return w.Bytes(), nil
		}
		out := make([]byte, length)
		status := ctx.Download(surf, out, offset)
		w.PutInt32(int32(toWireStatus(status)))
		w.PutBytes(out)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeSurfaceCopy, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		queueID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		srcSurfaceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		srcOffset, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		dstSurfaceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		dstOffset, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		length, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, src, rerr := reg.resolve(contextID, srcSurfaceID)
		if rerr != nil {
			wire.Status{Status: wire.StatusFail}.Encode(w)
			return w.Bytes(), nil
		}
		dst, derr := reg.Surface(dstSurfaceID)
		if derr != nil {
			wire.Status{Status: wire.StatusFail}.Encode(w)
			return w.Bytes(), nil
		}
		wire.Status{Status: toWireStatus(ctx.Copy(queueID, src, srcOffset, dst, dstOffset, length))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeImageFill, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		queueID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		surfaceID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		offset, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		length, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		pattern, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		w := &wire.Writer{}
		ctx, surf, rerr := reg.resolve(contextID, surfaceID)
		if rerr != nil {
			wire.Status{Status: wire.StatusFail}.Encode(w)
			return w.Bytes(), nil
		}
		wire.Status{Status: toWireStatus(ctx.Fill(queueID, surf, pattern, offset, length))}.Encode(w)
		return w.Bytes(), nil
	})

	s.Register(rpc.ProgramCompute, rpcVersion1, procComputeDispatch, func(body []byte) ([]byte, error) {
		r := wire.NewReader(body)
		contextID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		queueID, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		kernel, err := r.GetBytes()
		if err != nil {
			return nil, err
		}
		count, err := r.GetUint32()
		if err != nil {
			return nil, err
		}
		bindings := make([]Binding, count)
		surfaces := make([]*Surface, count)
		ctx, cerr := reg.Context(contextID)
		for i := range bindings {
			surfaceID, err := r.GetInt64()
			if err != nil {
				return nil, err
			}
			offset, err := r.GetInt64()
			if err != nil {
				return nil, err
			}
			length, err := r.GetInt64()
			if err != nil {
				return nil, err
			}
			bindings[i] = Binding{SurfaceID: surfaceID, Offset: offset, Length: length}
			if cerr == nil {
				surfaces[i], _ = reg.Surface(surfaceID)
			}
		}
		w := &wire.Writer{}
		if cerr != nil {
			wire.Status{Status: wire.StatusFail}.Encode(w)
			return w.Bytes(), nil
		}
		for _, surf := range surfaces {
			if surf == nil {
				wire.Status{Status: wire.StatusFail}.Encode(w)
				return w.Bytes(), nil
			}
		}
		wire.Status{Status: toWireStatus(ctx.Dispatch(context.Background(), queueID, kernel, surfaces, bindings))}.Encode(w)
		return w.Bytes(), nil
	})
}

// resolve looks up both a context and a surface in one call, the
// common shape every data-path compute procedure needs.
func (r *Registry) resolve(contextID, surfaceID int64) (*ComputeContext, *Surface, error) {
	ctx, err := r.Context(contextID)
	if err != nil {
		return nil, nil, err
	}
	surf, err := r.Surface(surfaceID)
	if err != nil {
		return nil, nil, err
	}
	return ctx, surf, nil
}

func statusOrFail(err error) StatusCode {
	if err != nil {
		return Fail
	}
	return Success
}

// NewRPCServer builds the (program, version, procedure) dispatch table
// for m and reg, registering Program A (manager) and Program B
// (compute) per spec.md §6.
func NewRPCServer(m *Manager, reg *Registry) *rpc.Server {
	s := rpc.NewServer()
	registerManagerHandlers(s, m)
	registerComputeHandlers(s, reg)
	return s
}

// StreamMapper implements stream.SurfaceMapper over a single bound
// ComputeContext: spec.md §4.4 runs one streaming listener pool per
// compute server, so one context stands in for "this server's
// residency set" the same way a single Device did for
// stream_test.go's fixedMapper stub.
type StreamMapper struct {
	ctx *ComputeContext
}

// NewStreamMapper resolves streamed surface uploads against ctx's
// residency set.
func NewStreamMapper(ctx *ComputeContext) *StreamMapper {
	return &StreamMapper{ctx: ctx}
}

// Map validates that [offset, offset+length) fits within surfaceID's
// resident backing before any byte is read off the wire (spec.md
// §4.4's oversized-len protection), returning the backend device the
// caller writes into directly.
func (m *StreamMapper) Map(surfaceID int64, offset int64, length int64) (Device, error) {
	surf, ok := m.ctx.inner.Resident(surfaceID)
	if !ok {
		return nil, fmt.Errorf("stream: surface %d is not resident on context %d", surfaceID, m.ctx.ID())
	}
	if offset < 0 || length < 0 || uint64(offset+length) > surf.Size() {
		return nil, fmt.Errorf("stream: range [%d,%d) exceeds surface %d size %d", offset, offset+length, surfaceID, surf.Size())
	}
	return m.ctx.inner.Device(), nil
}

var _ stream.SurfaceMapper = (*StreamMapper)(nil)

// NewStreamServer builds the streaming upload fast path bound to ctx,
// the Go counterpart of spawning spec.md §4.4's listener-thread pool
// against one compute server's residency set.
func NewStreamServer(ctx *ComputeContext, config StreamConfig) *stream.Server {
	return stream.NewServer(config, NewStreamMapper(ctx))
}

// RuntimeServers bundles the transports RuntimeConfig enables: the RPC
// dispatch table and/or the streaming fast path. Either field is nil
// when its RuntimeConfig toggle is off, matching ENABLE_VMACCEL_RPC/
// ENABLE_DATA_STREAMING's build-time, not just startup-time, intent.
type RuntimeServers struct {
	RPC    *rpc.Server
	Stream *stream.Server
}

// NewRuntimeServers constructs the transports RuntimeConfig enables.
// EnableLocal needs no server of its own: the Manager/ComputeContext
// wrapper types in this package already are the in-process call path
// ENABLE_VMACCEL_LOCAL names, usable with or without RPC/streaming
// turned on.
func NewRuntimeServers(config RuntimeConfig, m *Manager, reg *Registry, streamCtx *ComputeContext, streamConfig StreamConfig) RuntimeServers {
	var out RuntimeServers
	if config.EnableRPC {
		out.RPC = NewRPCServer(m, reg)
	}
	if config.EnableDataStreaming {
		out.Stream = NewStreamServer(streamCtx, streamConfig)
	}
	return out
}
