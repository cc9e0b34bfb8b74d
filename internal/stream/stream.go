// Package stream implements the optional streaming upload fast path
// from spec.md §4.4: a bounded pool of TCP listener slots that accept
// a small length-prefixed header followed by exactly len raw bytes,
// written directly into a backend surface's mapped region, bypassing
// the RPC call path for bulk transfers.
package stream

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/vmware/vmaccel/internal/backend"
	"github.com/vmware/vmaccel/internal/constants"
	"github.com/vmware/vmaccel/internal/identifier"
	"github.com/vmware/vmaccel/internal/logging"
)

// Config bundles the streaming server's startup parameters.
type Config struct {
	// BasePort is the TCP port for slot 0; slot i listens on
	// BasePort+i, matching spec.md §6's "per-slot port = base +
	// slot_index".
	BasePort int
	// MaxSlots bounds how many concurrent streaming connections the
	// server accepts, mirroring MaxStreams.
	MaxSlots int
	// RecvBufSize/SendBufSize request SO_RCVBUF/SO_SNDBUF tuning on
	// every accepted connection, matching ConfigureSocket's ~128KiB
	// receive / ~16KiB send defaults.
	RecvBufSize int
	SendBufSize int
}

// DefaultConfig mirrors ConfigureSocket's defaults from vmaccel_stream.c.
func DefaultConfig() Config {
	return Config{
		BasePort:    0,
		MaxSlots:    constants.MaxStreams,
		RecvBufSize: 128 * 1024,
		SendBufSize: 16 * 1024,
	}
}

// header is the streaming protocol's fixed-size preamble: (type, len,
// surface id, offset within the surface). Encoded as four big-endian
// 32/64-bit words, independent of internal/wire since the streaming
// path is a raw byte pipe, not an RPC call.
type header struct {
	Type      uint32
	Len       uint32
	SurfaceID int64
	Offset    int64
}

const headerSize = 4 + 4 + 8 + 8

// TypeSurfaceMap identifies the one streaming operation spec.md §4.4
// describes: a surface-map upload.
const TypeSurfaceMap uint32 = 1

func readHeader(r io.Reader) (header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, err
	}
	return header{
		Type:      binary.BigEndian.Uint32(buf[0:4]),
		Len:       binary.BigEndian.Uint32(buf[4:8]),
		SurfaceID: int64(binary.BigEndian.Uint64(buf[8:16])),
		Offset:    int64(binary.BigEndian.Uint64(buf[16:24])),
	}, nil
}

func writeHeader(w io.Writer, h header) error {
	var buf [headerSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Type)
	binary.BigEndian.PutUint32(buf[4:8], h.Len)
	binary.BigEndian.PutUint64(buf[8:16], uint64(h.SurfaceID))
	binary.BigEndian.PutUint64(buf[16:24], uint64(h.Offset))
	_, err := w.Write(buf[:])
	return err
}

// configureSocket queries then sets SO_RCVBUF/SO_SNDBUF only if they
// differ from the requested size, logging a before/after — kept as
// policy straight from ConfigureSocket in vmaccel_stream.c.
func configureSocket(conn *net.TCPConn, recvSize, sendSize int) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("stream: SyscallConn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		if before, gerr := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF); gerr == nil && before != recvSize {
			logging.Debug("stream: adjusting SO_RCVBUF", "before", before, "after", recvSize)
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, recvSize)
		}
		if sockErr != nil {
			return
		}
		if before, gerr := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF); gerr == nil && before != sendSize {
			logging.Debug("stream: adjusting SO_SNDBUF", "before", before, "after", sendSize)
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sendSize)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// SurfaceMapper acquires a destination surface's backing and tells the
// stream server where a received byte range must land, the Go
// counterpart of the registered surfacemap/surfaceunmap callback pair.
type SurfaceMapper interface {
	// Map returns the device to write len bytes at offset into
	// surfaceID, validating the range fits before any byte is read off
	// the wire.
	Map(surfaceID int64, offset int64, length int64) (backend.Device, error)
}

// Server owns a bounded pool of TCP listener slots. The first free
// slot wins arbitration; once all slots are busy, callers must wait for
// one to free (spec.md §4.4 describes the client side reaping a
// previously used thread, which is out of scope for the server half
// implemented here).
type Server struct {
	config  Config
	mapper  SurfaceMapper
	slots   *identifier.DB
	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

// NewServer constructs a streaming server bound to mapper, with
// config.MaxSlots concurrent listener slots.
func NewServer(config Config, mapper SurfaceMapper) *Server {
	return &Server{
		config:  config,
		mapper:  mapper,
		slots:   identifier.New(config.MaxSlots),
		cancels: make(map[int]context.CancelFunc),
	}
}

// Serve blocks listening on slot's TCP port until ctx is canceled or an
// unrecoverable accept error occurs.
func (s *Server) Serve(ctx context.Context, slot int) error {
	port := s.config.BasePort + slot
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("stream: listen slot %d: %w", slot, err)
	}
	defer ln.Close()

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("stream: accept slot %d: %w", slot, err)
			}
		}
		go s.handleConn(conn.(*net.TCPConn))
	}
}

// AcquireSlot reserves the first free slot index, or (0, false) if
// every slot is busy.
func (s *Server) AcquireSlot() (int, bool) {
	return s.slots.AllocId()
}

// ReleaseSlot frees slot for reuse.
func (s *Server) ReleaseSlot(slot int) {
	s.slots.ReleaseId(slot)
}

func (s *Server) handleConn(conn *net.TCPConn) {
	defer conn.Close()

	if err := configureSocket(conn, s.config.RecvBufSize, s.config.SendBufSize); err != nil {
		logging.Warn("stream: configureSocket failed", "error", err)
	}

	h, err := readHeader(conn)
	if err != nil {
		if err != io.EOF {
			logging.Warn("stream: reading header failed", "error", err)
		}
		return
	}
	if h.Type != TypeSurfaceMap {
		logging.Warn("stream: unknown streaming op", "type", h.Type)
		return
	}
	if h.Len > constants.StreamMaxPacketSize {
		logging.Warn("stream: packet exceeds maximum size", "surface", h.SurfaceID, "len", h.Len)
		return
	}

	dev, err := s.mapper.Map(h.SurfaceID, h.Offset, int64(h.Len))
	if err != nil {
		// The mapped buffer rejected this range before a single byte was
		// read off the wire, exactly the oversized-len protection
		// spec.md §4.4 calls for.
		logging.Warn("stream: surface map rejected", "surface", h.SurfaceID, "error", err)
		return
	}

	buf := make([]byte, h.Len)
	if _, err := io.ReadFull(conn, buf); err != nil {
		logging.Warn("stream: short read", "surface", h.SurfaceID, "error", err)
		return
	}
	if _, err := dev.WriteAt(h.SurfaceID, buf, h.Offset); err != nil {
		logging.Warn("stream: write to surface failed", "surface", h.SurfaceID, "error", err)
	}
}

// Send streams data to slot's listener on host, the client side of the
// protocol: header first, then exactly len raw bytes.
func Send(ctx context.Context, addr string, surfaceID int64, offset int64, data []byte) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("stream: dial %s: %w", addr, err)
	}
	defer conn.Close()

	h := header{Type: TypeSurfaceMap, Len: uint32(len(data)), SurfaceID: surfaceID, Offset: offset}
	if err := writeHeader(conn, h); err != nil {
		return fmt.Errorf("stream: writing header: %w", err)
	}
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("stream: writing body: %w", err)
	}
	return nil
}
