package ehptr

import (
	"encoding/binary"
	"fmt"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
	"github.com/DTML/PLCrashReporter/pkg/mem"
)

// readUmax64 reads a width byte unsigned value at base+offset through view,
// applying byte-order correction. width must be 1, 2, 4 or 8; any other
// width is a contract violation reported as an error, not attempted.
func readUmax64(view mem.View, bo byteorder.ByteOrder, base uint64, offset int64, width uint64) (uint64, error) {
	switch width {
	case 1, 2, 4, 8:
	default:
		return 0, fmt.Errorf("unhandled data width %d: %w", width, ErrInvalid)
	}

	p := view.Remap(base, offset, width)
	if p == nil {
		return 0, fmt.Errorf("%d byte read at %#x%+d outside mapped range: %w", width, base, offset, ErrInvalid)
	}

	switch width {
	case 1:
		return uint64(p[0]), nil
	case 2:
		return uint64(bo.Swap16(binary.LittleEndian.Uint16(p))), nil
	case 4:
		return uint64(bo.Swap32(binary.LittleEndian.Uint32(p))), nil
	default:
		return bo.Swap64(binary.LittleEndian.Uint64(p)), nil
	}
}
