package frame

import (
	"fmt"
	"sort"
	"strings"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
	"github.com/DTML/PLCrashReporter/pkg/dwarf/ehptr"
	"github.com/DTML/PLCrashReporter/pkg/logflags"
	"github.com/DTML/PLCrashReporter/pkg/mem"
)

type parsefunc func(*parseContext) parsefunc

type parseContext struct {
	view          mem.View
	bo            byteorder.ByteOrder
	sectionBase   uint64
	sectionVMAddr uint64
	sectionSize   uint64
	ptrSize       uint64
	ehFrame       bool

	// loc is the task-relative cursor; entryEnd bounds the entry being
	// parsed.
	loc      uint64
	entryEnd uint64

	entryOffset uint64
	common      *CommonInformationEntry
	frame       *FrameDescriptionEntry
	cies        map[uint64]*CommonInformationEntry
	entries     FrameDescriptionEntries
	err         error
}

// Parse walks the frame section mapped at sectionBase within view, whose
// virtual load address is sectionVMAddr, and returns its Frame Description
// Entries sorted by initial location. ptrSize is the target pointer width in
// bytes. If ehFrame is true the section uses the .eh_frame variant of the
// format (CIE id 0, pointer-encoded FDE fields); otherwise .debug_frame.
func Parse(view mem.View, bo byteorder.ByteOrder, sectionBase, sectionVMAddr, sectionSize, ptrSize uint64, ehFrame bool) (FrameDescriptionEntries, error) {
	ctx := &parseContext{
		view:          view,
		bo:            bo,
		sectionBase:   sectionBase,
		sectionVMAddr: sectionVMAddr,
		sectionSize:   sectionSize,
		ptrSize:       ptrSize,
		ehFrame:       ehFrame,
		loc:           sectionBase,
		cies:          map[uint64]*CommonInformationEntry{},
		entries:       NewFrameIndex(),
	}

	for fn := parselength; ctx.loc < ctx.sectionBase+ctx.sectionSize; {
		fn = fn(ctx)
		if ctx.err != nil {
			return nil, ctx.err
		}
	}

	sort.SliceStable(ctx.entries, func(i, j int) bool {
		return ctx.entries[i].Begin() < ctx.entries[j].Begin()
	})
	return ctx.entries, nil
}

func (ctx *parseContext) vmAddr(loc uint64) uint64 {
	return ctx.sectionVMAddr + (loc - ctx.sectionBase)
}

// ptrState returns a decode state for a pointer-encoded field at the current
// cursor. Only the pc-relative and section bases are available during
// parsing; text/data/function-relative encodings fail as unsupported, which
// is the correct outcome since those bases are not known here.
func (ctx *parseContext) ptrState() ehptr.State {
	cfg := ehptr.UnsetBases()
	cfg.PCRelBase = ctx.vmAddr(ctx.loc)
	cfg.FrameSectionBase = ctx.sectionBase
	cfg.FrameSectionVMAddr = ctx.sectionVMAddr
	return ehptr.NewState(ctx.ptrSize, cfg)
}

// readEncodedPointer decodes a pointer-encoded field at the cursor and
// advances past it. Indirection is resolved here in two steps so that the
// cursor advances by the field's own footprint; ehptr.ReadPointer reports
// the indirected read's size instead.
func (ctx *parseContext) readEncodedPointer(enc ehptr.Encoding) (uint64, error) {
	state := ctx.ptrState()
	addr, n, err := ehptr.ReadPointer(ctx.view, ctx.bo, ctx.loc, enc&^ehptr.PEIndirect, &state)
	if err != nil {
		return 0, err
	}
	ctx.loc += n
	if enc.Indirect() {
		addr, _, err = ehptr.ReadPointer(ctx.view, ctx.bo, addr, ehptr.PEAbsPtr, &state)
		if err != nil {
			return 0, err
		}
	}
	return addr, nil
}

func (ctx *parseContext) readByte() (byte, bool) {
	p := ctx.view.Remap(ctx.loc, 0, 1)
	if p == nil || ctx.loc >= ctx.entryEnd {
		ctx.err = fmt.Errorf("frame: entry at offset %#x truncated: %w", ctx.entryOffset, ehptr.ErrInvalid)
		return 0, false
	}
	ctx.loc++
	return p[0], true
}

func (ctx *parseContext) readString() (string, bool) {
	var sb strings.Builder
	for {
		b, ok := ctx.readByte()
		if !ok {
			return "", false
		}
		if b == 0 {
			return sb.String(), true
		}
		sb.WriteByte(b)
	}
}

func (ctx *parseContext) readULEB() (uint64, bool) {
	v, n, err := ehptr.ReadULEB128(ctx.view, ctx.loc)
	if err != nil {
		ctx.err = fmt.Errorf("frame: entry at offset %#x: %w", ctx.entryOffset, err)
		return 0, false
	}
	ctx.loc += n
	return v, true
}

func (ctx *parseContext) readSLEB() (int64, bool) {
	v, n, err := ehptr.ReadSLEB128(ctx.view, ctx.loc)
	if err != nil {
		ctx.err = fmt.Errorf("frame: entry at offset %#x: %w", ctx.entryOffset, err)
		return 0, false
	}
	ctx.loc += n
	return v, true
}

func (ctx *parseContext) cieEntry(cieid uint32) bool {
	if ctx.ehFrame {
		return cieid == 0x00
	}
	return cieid == 0xffffffff
}

func parselength(ctx *parseContext) parsefunc {
	ctx.entryOffset = ctx.loc - ctx.sectionBase

	length, err := ctx.view.ReadUint32(ctx.bo, ctx.loc, 0)
	if err != nil {
		ctx.err = fmt.Errorf("frame: length field at offset %#x: %w", ctx.entryOffset, err)
		return nil
	}
	ctx.loc += 4

	if length == 0 {
		// ZERO terminator
		return parselength
	}
	if length == 0xffffffff {
		// 64-bit DWARF length extension
		ctx.err = fmt.Errorf("frame: 64-bit DWARF entry at offset %#x: %w", ctx.entryOffset, ehptr.ErrUnsupported)
		return nil
	}

	ctx.entryEnd = ctx.loc + uint64(length)

	cieid, err := ctx.view.ReadUint32(ctx.bo, ctx.loc, 0)
	if err != nil {
		ctx.err = fmt.Errorf("frame: id field at offset %#x: %w", ctx.entryOffset, err)
		return nil
	}
	idOffset := ctx.loc - ctx.sectionBase
	ctx.loc += 4

	if ctx.cieEntry(cieid) {
		ctx.common = &CommonInformationEntry{
			Offset:       ctx.entryOffset,
			Length:       uint64(length),
			PtrEncAddr:   ehptr.PEAbsPtr,
			LSDAEncoding: ehptr.PEOmit,
		}
		ctx.cies[ctx.entryOffset] = ctx.common
		return parseCIE
	}

	// The CIE pointer of an .eh_frame FDE is a subtrahend relative to the
	// pointer field itself; in .debug_frame it is a plain section offset.
	var cieOffset uint64
	if ctx.ehFrame {
		cieOffset = idOffset - uint64(cieid)
	} else {
		cieOffset = uint64(cieid)
	}
	cie, ok := ctx.cies[cieOffset]
	if !ok {
		ctx.err = fmt.Errorf("frame: FDE at offset %#x references unknown CIE at offset %#x: %w", ctx.entryOffset, cieOffset, ehptr.ErrInvalid)
		return nil
	}

	ctx.frame = &FrameDescriptionEntry{Offset: ctx.entryOffset, Length: uint64(length), CIE: cie}
	return parseFDE
}

func parseCIE(ctx *parseContext) parsefunc {
	c := ctx.common

	version, ok := ctx.readByte()
	if !ok {
		return nil
	}
	c.Version = version

	if c.Augmentation, ok = ctx.readString(); !ok {
		return nil
	}

	if !ctx.ehFrame && c.Version >= 4 {
		// DWARF v4 debug_frame carries explicit address and segment
		// selector sizes here; the pointer width is taken from the
		// caller instead.
		if _, ok = ctx.readByte(); !ok {
			return nil
		}
		if _, ok = ctx.readByte(); !ok {
			return nil
		}
	}

	if c.CodeAlignmentFactor, ok = ctx.readULEB(); !ok {
		return nil
	}
	if c.DataAlignmentFactor, ok = ctx.readSLEB(); !ok {
		return nil
	}
	if c.ReturnAddressRegister, ok = ctx.readULEB(); !ok {
		return nil
	}

	if strings.HasPrefix(c.Augmentation, "z") {
		augLen, ok := ctx.readULEB()
		if !ok {
			return nil
		}
		augEnd := ctx.loc + augLen
		if augEnd > ctx.entryEnd {
			ctx.err = fmt.Errorf("frame: CIE at offset %#x: augmentation data overruns entry: %w", ctx.entryOffset, ehptr.ErrInvalid)
			return nil
		}

	augloop:
		for _, ch := range c.Augmentation[1:] {
			switch ch {
			case 'R':
				b, ok := ctx.readByte()
				if !ok {
					return nil
				}
				c.PtrEncAddr = ehptr.Encoding(b)
			case 'L':
				b, ok := ctx.readByte()
				if !ok {
					return nil
				}
				c.LSDAEncoding = ehptr.Encoding(b)
			case 'P':
				b, ok := ctx.readByte()
				if !ok {
					return nil
				}
				// GCC emits indirect personality encodings whose
				// slot lives outside this section (.data.rel.ro);
				// keep the slot address instead of chasing it.
				addr, err := ctx.readEncodedPointer(ehptr.Encoding(b) &^ ehptr.PEIndirect)
				if err != nil {
					ctx.err = fmt.Errorf("frame: CIE at offset %#x: personality: %w", ctx.entryOffset, err)
					return nil
				}
				c.Personality = addr
			case 'S':
				c.IsSignalFrame = true
			default:
				logflags.FrameLogger().Warnf("CIE at offset %#x: skipping unknown augmentation %q", ctx.entryOffset, string(ch))
				break augloop
			}
		}
		// Resync past any augmentation bytes not understood above.
		ctx.loc = augEnd
	}

	c.InitialInstructions = ctx.view.Remap(ctx.loc, 0, ctx.entryEnd-ctx.loc)
	if c.InitialInstructions == nil {
		ctx.err = fmt.Errorf("frame: CIE at offset %#x: instructions truncated: %w", ctx.entryOffset, ehptr.ErrInvalid)
		return nil
	}
	ctx.loc = ctx.entryEnd

	return parselength
}

func parseFDE(ctx *parseContext) parsefunc {
	f := ctx.frame

	enc := f.CIE.PtrEncAddr
	if !ctx.ehFrame {
		enc = ehptr.PEAbsPtr
	}

	begin, err := ctx.readEncodedPointer(enc)
	if err != nil {
		ctx.err = fmt.Errorf("frame: FDE at offset %#x: initial location: %w", ctx.entryOffset, err)
		return nil
	}
	f.begin = begin

	// The range field shares the value format of the initial location but
	// is a plain length, never base-adjusted.
	size, err := ctx.readEncodedPointer(enc.Format())
	if err != nil {
		ctx.err = fmt.Errorf("frame: FDE at offset %#x: range: %w", ctx.entryOffset, err)
		return nil
	}
	f.size = size

	if strings.HasPrefix(f.CIE.Augmentation, "z") {
		augLen, ok := ctx.readULEB()
		if !ok {
			return nil
		}
		augEnd := ctx.loc + augLen
		if augEnd > ctx.entryEnd {
			ctx.err = fmt.Errorf("frame: FDE at offset %#x: augmentation data overruns entry: %w", ctx.entryOffset, ehptr.ErrInvalid)
			return nil
		}
		if f.CIE.LSDAEncoding != ehptr.PEOmit {
			lsda, err := ctx.readEncodedPointer(f.CIE.LSDAEncoding)
			if err != nil {
				ctx.err = fmt.Errorf("frame: FDE at offset %#x: LSDA: %w", ctx.entryOffset, err)
				return nil
			}
			f.LSDA = lsda
		}
		ctx.loc = augEnd
	}

	f.Instructions = ctx.view.Remap(ctx.loc, 0, ctx.entryEnd-ctx.loc)
	if f.Instructions == nil {
		ctx.err = fmt.Errorf("frame: FDE at offset %#x: instructions truncated: %w", ctx.entryOffset, ehptr.ErrInvalid)
		return nil
	}
	ctx.loc = ctx.entryEnd

	ctx.entries = append(ctx.entries, f)

	if logflags.Frame() {
		logflags.FrameLogger().Debugf("FDE %#x-%#x (CIE %#x, enc %s)", f.Begin(), f.End(), f.CIE.Offset, f.CIE.PtrEncAddr)
	}

	return parselength
}
