// Package wire implements VMAccel's length-prefixed, big-endian wire
// encoding (spec §6): fixed scalars as 32-bit words, variable arrays
// and strings as a length word followed by the payload padded to a
// 4-byte boundary, and unions as a discriminant word followed by the
// selected arm. The encode/decode shape (a type-directed Writer/Reader
// pair with fixed-width field helpers) follows the teacher's
// internal/uapi/marshal.go; the wire format itself is this module's,
// modeled on ONC RPC/XDR as spec.md §6 specifies.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a Reader runs out of bytes mid-decode.
var ErrShortBuffer = errors.New("wire: short buffer")

// Writer accumulates an XDR-equivalent encoding into an in-memory
// buffer. The zero value is ready to use.
type Writer struct {
	buf []byte
}

// Bytes returns the encoded buffer built so far.
func (w *Writer) Bytes() []byte { return w.buf }

// PutUint32 appends a fixed 32-bit scalar.
func (w *Writer) PutUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// PutInt32 appends a fixed signed 32-bit scalar.
func (w *Writer) PutInt32(v int32) { w.PutUint32(uint32(v)) }

// PutUint64 appends a fixed 64-bit scalar as two 32-bit words, high
// word first, matching XDR's hyper encoding.
func (w *Writer) PutUint64(v uint64) {
	w.PutUint32(uint32(v >> 32))
	w.PutUint32(uint32(v))
}

// PutInt64 appends a fixed signed 64-bit scalar.
func (w *Writer) PutInt64(v int64) { w.PutUint64(uint64(v)) }

// PutBool appends a boolean as a 32-bit 0/1 word.
func (w *Writer) PutBool(v bool) {
	if v {
		w.PutUint32(1)
	} else {
		w.PutUint32(0)
	}
}

// pad4 returns n rounded up to the next multiple of 4.
func pad4(n int) int { return (n + 3) &^ 3 }

// PutBytes appends a variable-length opaque array: a length word
// followed by the bytes, zero-padded to a 4-byte boundary.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
	if padLen := pad4(len(b)) - len(b); padLen > 0 {
		w.buf = append(w.buf, make([]byte, padLen)...)
	}
}

// PutString appends a variable-length string using the same
// length+payload+pad encoding as PutBytes.
func (w *Writer) PutString(s string) { w.PutBytes([]byte(s)) }

// PutFixedOpaque appends n bytes of b as a fixed-length opaque array
// (no length prefix), padded to a 4-byte boundary, matching XDR's
// fixed-length opaque encoding used for address/format payloads whose
// size is implied by context rather than self-described.
func (w *Writer) PutFixedOpaque(b []byte) {
	w.buf = append(w.buf, b...)
	if padLen := pad4(len(b)) - len(b); padLen > 0 {
		w.buf = append(w.buf, make([]byte, padLen)...)
	}
}

// Reader decodes a buffer written by Writer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps buf for decoding from the start.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many undecoded bytes remain.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, r.Remaining())
	}
	return nil
}

// GetUint32 decodes a fixed 32-bit scalar.
func (r *Reader) GetUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *Reader) GetInt32() (int32, error) {
	v, err := r.GetUint32()
	return int32(v), err
}

func (r *Reader) GetUint64() (uint64, error) {
	hi, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	lo, err := r.GetUint32()
	if err != nil {
		return 0, err
	}
	return uint64(hi)<<32 | uint64(lo), nil
}

func (r *Reader) GetInt64() (int64, error) {
	v, err := r.GetUint64()
	return int64(v), err
}

func (r *Reader) GetBool() (bool, error) {
	v, err := r.GetUint32()
	return v != 0, err
}

// GetBytes decodes a variable-length opaque array.
func (r *Reader) GetBytes() ([]byte, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	total := pad4(int(n))
	if err := r.need(total); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += total
	return out, nil
}

// GetString decodes a variable-length string.
func (r *Reader) GetString() (string, error) {
	b, err := r.GetBytes()
	return string(b), err
}

// GetFixedOpaque decodes n bytes of fixed-length opaque data.
func (r *Reader) GetFixedOpaque(n int) ([]byte, error) {
	total := pad4(n)
	if err := r.need(total); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += total
	return out, nil
}
