package ehptr

import (
	"fmt"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
	"github.com/DTML/PLCrashReporter/pkg/mem"
)

// ReadPointer decodes the encoded pointer at the task-relative location
// within view and resolves it against the base addresses in state. It
// returns the resolved address and the number of bytes occupied at location,
// including any alignment padding consumed for PEAligned.
//
// A PEOmit encoding returns ErrNotFound; an encoding that requires a base
// address left unset in state, or that uses undefined bits, returns
// ErrUnsupported; a read that runs outside the mapped range returns
// ErrInvalid.
//
// When the indirection bit is set the returned size is the one reported by
// the indirected read, not the footprint of the outer value at location.
// This mirrors the behavior callers have always observed and must not be
// changed without auditing every offset computation downstream.
//
// Base application and signed offsets use wraparound arithmetic; an
// out-of-range result is caught when the address is dereferenced, not here.
func ReadPointer(view mem.View, bo byteorder.ByteOrder, location uint64, encoding Encoding, state *State) (uint64, uint64, error) {
	// PEOmit signifies that no value is present.
	if encoding == PEOmit {
		return 0, 0, fmt.Errorf("pointer at %#x omitted: %w", location, ErrNotFound)
	}

	// size accumulates alignment padding applied before the value proper.
	var size uint64
	var base uint64

	switch encoding.Base() {
	case PEAbsPtr:
		base = 0

	case PEPCRel:
		if state.pcRelBase == AddrInvalid {
			return 0, 0, fmt.Errorf("pcrel value without a pc_rel base: %w", ErrUnsupported)
		}
		base = state.pcRelBase

	case PETextRel:
		if state.textBase == AddrInvalid {
			return 0, 0, fmt.Errorf("textrel value without a text base: %w", ErrUnsupported)
		}
		base = state.textBase

	case PEDataRel:
		if state.dataBase == AddrInvalid {
			return 0, 0, fmt.Errorf("datarel value without a data base: %w", ErrUnsupported)
		}
		base = state.dataBase

	case PEFuncRel:
		if state.funcBase == AddrInvalid {
			return 0, 0, fmt.Errorf("funcrel value without a function base: %w", ErrUnsupported)
		}
		base = state.funcBase

	case PEAligned:
		if state.frameSectionVMAddr == AddrInvalid {
			return 0, 0, fmt.Errorf("aligned value without a frame section vm address: %w", ErrUnsupported)
		}
		if state.frameSectionBase == AddrInvalid {
			return 0, 0, fmt.Errorf("aligned value without a frame section base: %w", ErrUnsupported)
		}
		if location < state.frameSectionBase {
			panic(fmt.Sprintf("ehptr: location %#x precedes frame section base %#x", location, state.frameSectionBase))
		}

		// Alignment is computed against the section's virtual load
		// address, then the skipped padding is applied back to the
		// in-memory location.
		offset := location - state.frameSectionBase
		vmAddr := state.frameSectionVMAddr + offset
		vmAligned := (vmAddr + (state.addressSize - 1)) &^ (state.addressSize - 1)
		location += vmAligned - vmAddr

		base = 0
		size = vmAligned - vmAddr

	default:
		return 0, 0, fmt.Errorf("pointer base encoding %#x: %w", uint8(encoding), ErrUnsupported)
	}

	var result uint64

	switch encoding.Format() {
	case PEAbsPtr:
		v, err := readUmax64(view, bo, location, 0, state.addressSize)
		if err != nil {
			return 0, 0, err
		}
		result = v + base
		size += state.addressSize

	case PEULEB128:
		v, n, err := ReadULEB128(view, location)
		if err != nil {
			return 0, 0, err
		}
		if v > maxAddress(state.addressSize) {
			return 0, 0, fmt.Errorf("ULEB128 value %#x exceeds the target address width: %w", v, ErrUnsupported)
		}
		result = v + base
		size += n

	case PEUData2:
		v, err := view.ReadUint16(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = uint64(v) + base
		size += 2

	case PEUData4:
		v, err := view.ReadUint32(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = uint64(v) + base
		size += 4

	case PEUData8:
		v, err := view.ReadUint64(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = v + base
		size += 8

	case PESLEB128:
		v, n, err := ReadSLEB128(view, location)
		if err != nil {
			return 0, 0, err
		}
		if lo, hi := offsetRange(state.addressSize); v < lo || v > hi {
			return 0, 0, fmt.Errorf("SLEB128 value %d exceeds the target offset range: %w", v, ErrUnsupported)
		}
		result = uint64(v) + base
		size += n

	case PESData2:
		v, err := view.ReadUint16(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = uint64(int64(int16(v))) + base
		size += 2

	case PESData4:
		v, err := view.ReadUint32(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = uint64(int64(int32(v))) + base
		size += 4

	case PESData8:
		v, err := view.ReadUint64(bo, location, 0)
		if err != nil {
			return 0, 0, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		result = v + base
		size += 8

	default:
		return 0, 0, fmt.Errorf("pointer value encoding %#x: %w", uint8(encoding), ErrUnsupported)
	}

	// The indirected target is always a plain absolute pointer; the format
	// has no way to specify an encoding for it. Note that the returned
	// size is the recursive call's size, per the contract above.
	if encoding.Indirect() {
		return ReadPointer(view, bo, result, PEAbsPtr, state)
	}

	return result, size, nil
}

// maxAddress returns the largest address representable in addressSize bytes.
func maxAddress(addressSize uint64) uint64 {
	if addressSize >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*addressSize) - 1
}

// offsetRange returns the signed offset range representable in addressSize
// bytes.
func offsetRange(addressSize uint64) (int64, int64) {
	if addressSize >= 8 {
		return -1 << 63, 1<<63 - 1
	}
	hi := int64(1)<<(8*addressSize-1) - 1
	return -hi - 1, hi
}
