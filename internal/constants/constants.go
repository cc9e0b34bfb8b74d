// Package constants holds VMAccel's compile-time defaults: identifier
// space sizes, fence-wait retry policy, and streaming buffer sizes.
package constants

import "time"

// Identifier space and registry defaults, matching VMACCEL_MAX_* in the
// original implementation's vmaccel_defs.h.
const (
	// MaxAccelerators bounds the process-wide accelerator registry.
	MaxAccelerators = 256

	// MaxStreams bounds the number of concurrent streaming upload
	// sessions a single ComputeContext may have outstanding.
	MaxStreams = 4

	// InvalidID is the sentinel identifier value, matching
	// VMACCEL_INVALID_ID (-1 cast to the identifier's unsigned width).
	InvalidID = -1

	// DefaultParentCapacity is the unit count a freshly registered
	// Allocator parent starts with absent an explicit size.
	DefaultParentCapacity = 65535
)

// Retry/backoff policy for fence-wait and dispatch retry (spec §5/§7):
// the reference implementation sleeps retryCount*1ms per iteration up
// to a bounded number of iterations before surfacing TIMEOUT.
const (
	// FenceWaitInitialInterval is the first backoff interval.
	FenceWaitInitialInterval = time.Millisecond

	// FenceWaitMaxInterval caps the backoff interval.
	FenceWaitMaxInterval = 100 * time.Millisecond

	// FenceWaitMaxElapsed is the overall deadline of the
	// retry.FenceWait policy.
	FenceWaitMaxElapsed = 5 * time.Second

	// DispatchRetryInitialInterval is the first backoff interval for a
	// dispatch retried after RESOURCE_UNAVAILABLE.
	DispatchRetryInitialInterval = time.Millisecond

	// DispatchRetryMaxInterval caps the dispatch retry backoff interval.
	DispatchRetryMaxInterval = 100 * time.Millisecond

	// DispatchRetryMaxElapsed bounds total dispatch retry time, the
	// Go counterpart of "retried up to 100 times" from spec §5/§7.
	DispatchRetryMaxElapsed = 5 * time.Second
)

// Streaming path defaults (spec §4.4 / vmaccel_stream.c ConfigureSocket).
const (
	// StreamSocketBufferSize is a 256 KiB socket buffer size. The
	// stream server does not read it: stream.DefaultConfig requests
	// 128 KiB SO_RCVBUF and 16 KiB SO_SNDBUF.
	StreamSocketBufferSize = 256 * 1024

	// StreamMaxPacketSize bounds a single streamed upload packet.
	StreamMaxPacketSize = 1 << 20
)
