package wire

import (
	"fmt"
	"net"
)

// Address is an opaque network address (IPv4 or IPv6 raw bytes),
// matching VMAccelAddress. String renders it for logging, the Go
// counterpart of VMAccel_AddressOpaqueAddrToString.
type Address struct {
	Addr []byte
}

func (a Address) String() string {
	switch len(a.Addr) {
	case net.IPv4len, net.IPv6len:
		return net.IP(a.Addr).String()
	case 0:
		return "<empty>"
	default:
		return fmt.Sprintf("<%d raw bytes>", len(a.Addr))
	}
}

func (a Address) Encode(w *Writer) { w.PutBytes(a.Addr) }

func DecodeAddress(r *Reader) (Address, error) {
	b, err := r.GetBytes()
	return Address{Addr: b}, err
}

// AllocateStatus is the wire result of a Register/Alloc call: a status
// code plus, on success, the identifier assigned.
type AllocateStatus struct {
	Status StatusCode
	ID     int64
}

func (s AllocateStatus) Encode(w *Writer) {
	w.PutInt32(int32(s.Status))
	w.PutInt64(s.ID)
}

func DecodeAllocateStatus(r *Reader) (AllocateStatus, error) {
	var s AllocateStatus
	code, err := r.GetInt32()
	if err != nil {
		return s, err
	}
	id, err := r.GetInt64()
	if err != nil {
		return s, err
	}
	s.Status = StatusCode(code)
	s.ID = id
	return s, nil
}

// Status is the wire result of an operation that carries no identifier
// (Unregister, Free, Dispatch).
type Status struct {
	Status StatusCode
}

func (s Status) Encode(w *Writer) { w.PutInt32(int32(s.Status)) }

func DecodeStatus(r *Reader) (Status, error) {
	code, err := r.GetInt32()
	return Status{Status: StatusCode(code)}, err
}

// StatusCode mirrors vmaccel.StatusCode on the wire, kept as its own
// type in this package so internal/wire has no dependency on the root
// package (it is imported BY the root package, not the reverse).
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
