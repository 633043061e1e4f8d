// Package stream provides the byte cursor shared by the asset format
// readers: typed reads with explicit endianness over a fully
// materialized byte source, with absolute seeking.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
)

// A RangeError is returned when a read wants more bytes than remain, or
// a seek leaves the [0, size] range. The cursor is left where it was.
type RangeError struct {
	Off  int // cursor position at the failed operation
	Want int
	Have int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("read of %d bytes at offset %d exceeds stream (%d remaining)", e.Want, e.Off, e.Have)
}

func (e *RangeError) Unwrap() error { return io.ErrUnexpectedEOF }

// Reader is a cursor over an in-memory byte sequence. Multi-byte reads
// honor the declared byte order; Fallout containers default to
// big-endian, with ACM the little-endian exception.
//
// A Reader is owned by a single format reader and is not safe for
// concurrent use.
type Reader struct {
	data  []byte
	pos   int
	order binary.ByteOrder
}

func New(data []byte, order binary.ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

func (r *Reader) Size() int { return len(r.data) }
func (r *Reader) Pos() int  { return r.pos }

func (r *Reader) Order() binary.ByteOrder { return r.order }

// SetOrder changes the byte order for subsequent multi-byte reads.
func (r *Reader) SetOrder(order binary.ByteOrder) { r.order = order }

// Seek moves the cursor to an absolute offset. Seeking to Size() is
// legal; any read from there fails.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return &RangeError{Off: pos, Want: 0, Have: len(r.data)}
	}
	r.pos = pos
	return nil
}

func (r *Reader) require(n int) error {
	if rest := len(r.data) - r.pos; rest < n {
		return &RangeError{Off: r.pos, Want: n, Have: rest}
	}
	return nil
}

func (r *Reader) U8() (uint8, error) {
	if err := r.require(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.require(2); err != nil {
		return 0, err
	}
	v := r.order.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.require(4); err != nil {
		return 0, err
	}
	v := r.order.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.require(n); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.data[r.pos:])
	r.pos += n
	return v, nil
}
