// Package byteorder provides the byte-order correction primitives used when
// reading unwind metadata produced for a target whose endianness may differ
// from the order the raw spans are composed in.
//
// Readers in pkg/mem and pkg/dwarf compose multi-byte spans little-endian and
// then apply one of these adapters; LittleEndian is therefore the identity
// adapter and BigEndian reverses bytes.
package byteorder

import (
	"encoding/binary"
	"math/bits"
)

// ByteOrder corrects fixed-width integers read from a target image.
type ByteOrder interface {
	Swap16(v uint16) uint16
	Swap32(v uint32) uint32
	Swap64(v uint64) uint64
}

// LittleEndian is the adapter for little-endian encoded data.
var LittleEndian ByteOrder = littleEndian{}

// BigEndian is the adapter for big-endian encoded data.
var BigEndian ByteOrder = bigEndian{}

type littleEndian struct{}

func (littleEndian) Swap16(v uint16) uint16 { return v }
func (littleEndian) Swap32(v uint32) uint32 { return v }
func (littleEndian) Swap64(v uint64) uint64 { return v }

type bigEndian struct{}

func (bigEndian) Swap16(v uint16) uint16 { return bits.ReverseBytes16(v) }
func (bigEndian) Swap32(v uint32) uint32 { return bits.ReverseBytes32(v) }
func (bigEndian) Swap64(v uint64) uint64 { return bits.ReverseBytes64(v) }

// Host returns the adapter for data encoded in the given binary.ByteOrder.
func Host(order binary.ByteOrder) ByteOrder {
	if order == binary.ByteOrder(binary.BigEndian) {
		return BigEndian
	}
	return LittleEndian
}
