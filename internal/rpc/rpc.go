// Package rpc implements the (program, version, procedure) request/
// reply dispatch spec.md §6 describes: each procedure call is a header
// identifying which handler to invoke, followed by an opaque argument
// body; each reply is a discriminated union of an errno word and an
// optional body, encoded with internal/wire.
package rpc

import (
	"fmt"

	"github.com/vmware/vmaccel/internal/wire"
)

// Program numbers, one per procedure group in spec.md §6.
const (
	ProgramManager uint32 = iota + 1
	ProgramCompute
	ProgramTranscode
)

// Header identifies one procedure call.
type Header struct {
	Program   uint32
	Version   uint32
	Procedure uint32
}

func (h Header) key() procKey { return procKey{h.Program, h.Version, h.Procedure} }

func (h Header) Encode(w *wire.Writer) {
	w.PutUint32(h.Program)
	w.PutUint32(h.Version)
	w.PutUint32(h.Procedure)
}

func DecodeHeader(r *wire.Reader) (Header, error) {
	var h Header
	var err error
	if h.Program, err = r.GetUint32(); err != nil {
		return h, err
	}
	if h.Version, err = r.GetUint32(); err != nil {
		return h, err
	}
	if h.Procedure, err = r.GetUint32(); err != nil {
		return h, err
	}
	return h, nil
}

type procKey struct {
	program, version, procedure uint32
}

// Handler processes one procedure call's opaque argument body and
// returns an opaque reply body. Returning a non-nil error maps to a
// non-zero errno with no reply body, per spec.md §6's return-status
// shape.
type Handler func(body []byte) ([]byte, error)

// Server dispatches incoming requests to registered procedure
// handlers, the program/procedure half of the RPC contract Program
// A/B/C (manager/compute/transcode) share.
type Server struct {
	handlers map[procKey]Handler
}

// NewServer constructs an empty procedure dispatch table.
func NewServer() *Server {
	return &Server{handlers: make(map[procKey]Handler)}
}

// Register binds a handler to a (program, version, procedure) triple.
func (s *Server) Register(program, version, procedure uint32, h Handler) {
	s.handlers[procKey{program, version, procedure}] = h
}

// Dispatch decodes a request (header + opaque body), invokes the
// matching handler, and encodes the reply as (errno, optional body).
// An unrecognized procedure or a handler error both produce errno != 0
// with no body, matching the transport-failure-as-FAIL contract in
// spec.md §7 ("transport failure... caller treats as FAIL").
func (s *Server) Dispatch(request []byte) []byte {
	r := wire.NewReader(request)
	w := &wire.Writer{}

	h, err := DecodeHeader(r)
	if err != nil {
		w.PutInt32(-1)
		return w.Bytes()
	}
	body, err := r.GetBytes()
	if err != nil {
		w.PutInt32(-1)
		return w.Bytes()
	}

	handler, ok := s.handlers[h.key()]
	if !ok {
		w.PutInt32(-1)
		return w.Bytes()
	}

	reply, err := handler(body)
	if err != nil {
		w.PutInt32(-1)
		return w.Bytes()
	}
	w.PutInt32(0)
	w.PutBytes(reply)
	return w.Bytes()
}

// EncodeRequest builds a wire request for header carrying args as its
// opaque body, the client-side counterpart of Server.Dispatch.
func EncodeRequest(h Header, args []byte) []byte {
	w := &wire.Writer{}
	h.Encode(w)
	w.PutBytes(args)
	return w.Bytes()
}

// DecodeReply unpacks a wire reply into its errno and, when errno == 0,
// its opaque body.
func DecodeReply(reply []byte) (errno int32, body []byte, err error) {
	r := wire.NewReader(reply)
	errno, err = r.GetInt32()
	if err != nil {
		return 0, nil, err
	}
	if errno != 0 {
		return errno, nil, nil
	}
	body, err = r.GetBytes()
	if err != nil {
		return 0, nil, fmt.Errorf("rpc: decoding reply body: %w", err)
	}
	return errno, body, nil
}
