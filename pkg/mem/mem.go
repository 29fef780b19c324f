// Package mem provides bounded, bounds-checked views over a snapshot of a
// task's address space. Decoders never dereference task addresses directly;
// they ask a View for a validated span and receive nil when any byte of the
// requested range is unmapped.
package mem

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
)

// ErrUnmapped is returned by the fixed-width read methods when the requested
// span is not fully inside the mapped range.
var ErrUnmapped = errors.New("address range not mapped")

// View is a bounds-checked, read-only window onto a task's memory.
//
// Remap returns a directly usable byte slice of exactly length bytes starting
// at base+offset, or nil if any byte of that range is outside the view. It
// never returns a short slice. The returned slice aliases the view's backing
// store and must not be written to.
//
// The fixed-width reads compose the span little-endian and apply bo, so they
// return the value as encoded for a target using that byte order.
type View interface {
	Remap(base uint64, offset int64, length uint64) []byte
	ReadUint16(bo byteorder.ByteOrder, base uint64, offset int64) (uint16, error)
	ReadUint32(bo byteorder.ByteOrder, base uint64, offset int64) (uint32, error)
	ReadUint64(bo byteorder.ByteOrder, base uint64, offset int64) (uint64, error)
}

// Object is a View backed by an in-memory copy of a contiguous range of the
// target's address space. Remap is zero-copy and Object performs no
// allocation or locking after construction, so it is safe to use from a
// crash-handling context and to share between concurrent readers.
type Object struct {
	base uint64
	data []byte
}

// NewObject returns a view of data as if it were mapped at task-relative
// address base.
func NewObject(base uint64, data []byte) *Object {
	return &Object{base: base, data: data}
}

// Base returns the task-relative address of the first mapped byte.
func (o *Object) Base() uint64 { return o.base }

// Size returns the number of mapped bytes.
func (o *Object) Size() uint64 { return uint64(len(o.data)) }

// Remap implements View.
func (o *Object) Remap(base uint64, offset int64, length uint64) []byte {
	addr := base + uint64(offset)
	if addr < base && offset > 0 {
		// base+offset wrapped
		return nil
	}
	if addr < o.base {
		return nil
	}
	off := addr - o.base
	if off > uint64(len(o.data)) || length > uint64(len(o.data))-off {
		return nil
	}
	return o.data[off : off+length]
}

// ReadUint16 implements View.
func (o *Object) ReadUint16(bo byteorder.ByteOrder, base uint64, offset int64) (uint16, error) {
	p := o.Remap(base, offset, 2)
	if p == nil {
		return 0, fmt.Errorf("2 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap16(binary.LittleEndian.Uint16(p)), nil
}

// ReadUint32 implements View.
func (o *Object) ReadUint32(bo byteorder.ByteOrder, base uint64, offset int64) (uint32, error) {
	p := o.Remap(base, offset, 4)
	if p == nil {
		return 0, fmt.Errorf("4 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap32(binary.LittleEndian.Uint32(p)), nil
}

// ReadUint64 implements View.
func (o *Object) ReadUint64(bo byteorder.ByteOrder, base uint64, offset int64) (uint64, error) {
	p := o.Remap(base, offset, 8)
	if p == nil {
		return 0, fmt.Errorf("8 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap64(binary.LittleEndian.Uint64(p)), nil
}
