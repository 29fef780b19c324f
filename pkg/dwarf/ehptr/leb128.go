package ehptr

import (
	"fmt"

	"github.com/DTML/PLCrashReporter/pkg/mem"
)

// ReadULEB128 decodes an unsigned LEB128 value starting at the task-relative
// location within view. It returns the value and the number of bytes it
// occupied. Values wider than 64 bits fail with ErrUnsupported; a value that
// does not terminate within mapped memory fails with ErrInvalid.
func ReadULEB128(view mem.View, location uint64) (uint64, uint64, error) {
	var (
		result uint64
		shift  uint
		offset int64
	)

	for {
		p := view.Remap(location, offset, 1)
		if p == nil {
			return 0, 0, fmt.Errorf("ULEB128 at %#x did not terminate within mapped range: %w", location, ErrInvalid)
		}
		b := p[0]

		// Each byte contributes 7 value bits, the high bit signals
		// continuation.
		result |= uint64(b&0x7f) << shift
		shift += 7
		offset++

		if b&0x80 == 0 {
			break
		}

		if shift >= 64 {
			return 0, 0, fmt.Errorf("ULEB128 at %#x exceeds 64 bits: %w", location, ErrUnsupported)
		}
	}

	return result, uint64(offset), nil
}

// ReadSLEB128 decodes a signed LEB128 value starting at the task-relative
// location within view. It returns the value and the number of bytes it
// occupied, with the same ErrUnsupported/ErrInvalid behavior as ReadULEB128.
//
// This is deliberately a separate routine rather than a signedness-generic
// one: the sign-extension step below has no unsigned analogue.
func ReadSLEB128(view mem.View, location uint64) (int64, uint64, error) {
	var (
		result uint64
		shift  uint
		offset int64
		b      byte
	)

	for {
		p := view.Remap(location, offset, 1)
		if p == nil {
			return 0, 0, fmt.Errorf("SLEB128 at %#x did not terminate within mapped range: %w", location, ErrInvalid)
		}
		b = p[0]

		result |= uint64(b&0x7f) << shift
		shift += 7
		offset++

		if b&0x80 == 0 {
			break
		}

		if shift >= 64 {
			return 0, 0, fmt.Errorf("SLEB128 at %#x exceeds 64 bits: %w", location, ErrUnsupported)
		}
	}

	// The sign bit is bit 6 of the terminating byte's 7-bit group.
	if shift < 64 && b&0x40 != 0 {
		result |= ^uint64(0) << shift
	}

	return int64(result), uint64(offset), nil
}

// AppendULEB128 appends the unsigned LEB128 encoding of x to buf.
func AppendULEB128(buf []byte, x uint64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if x != 0 {
			b |= 0x80
		}
		buf = append(buf, b)
		if x == 0 {
			return buf
		}
	}
}

// AppendSLEB128 appends the signed LEB128 encoding of x to buf.
func AppendSLEB128(buf []byte, x int64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7

		signb := b & 0x40
		last := (x == 0 && signb == 0) || (x == -1 && signb != 0)
		if !last {
			b |= 0x80
		}
		buf = append(buf, b)
		if last {
			return buf
		}
	}
}
