package frame

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
	"github.com/DTML/PLCrashReporter/pkg/dwarf/ehptr"
	"github.com/DTML/PLCrashReporter/pkg/mem"
)

// sectionBuilder assembles little-endian frame section images for tests.
type sectionBuilder struct {
	buf []byte
}

func (b *sectionBuilder) offset() uint64 {
	return uint64(len(b.buf))
}

func (b *sectionBuilder) u32(v uint32) {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
}

// entry appends a record with the given id and body, prefixed by its length
// field.
func (b *sectionBuilder) entry(id uint32, body []byte) {
	b.u32(uint32(4 + len(body)))
	b.u32(id)
	b.buf = append(b.buf, body...)
}

func TestParseEHFrame(t *testing.T) {
	const sectionVM = 0x400000

	var sb sectionBuilder

	// CIE with "zLR" augmentation: udata4 LSDA pointers, pcrel sdata4
	// code pointers.
	// version 1, augmentation "zLR", code align 1, data align -8, return
	// address register 16, then 2 bytes of augmentation data (udata4 LSDA
	// encoding, pcrel sdata4 code pointer encoding) and 3 nops.
	cieOffset := sb.offset()
	cieBody := []byte{1, 'z', 'L', 'R', 0, 1, 0x78, 16, 2,
		byte(ehptr.PEUData4), byte(ehptr.PESData4 | ehptr.PEPCRel), 0, 0, 0}
	sb.entry(0, cieBody)

	// FDE covering [0x401000, 0x401020).
	fdeOffset := sb.offset()
	idFieldOffset := fdeOffset + 4
	pcFieldVM := uint64(sectionVM) + fdeOffset + 8

	var fdeBody []byte
	fdeBody = binary.LittleEndian.AppendUint32(fdeBody, uint32(0x401000-pcFieldVM)) // initial location, pcrel
	fdeBody = binary.LittleEndian.AppendUint32(fdeBody, 0x20)                       // range
	fdeBody = append(fdeBody, 4)                                                    // augmentation data length
	fdeBody = binary.LittleEndian.AppendUint32(fdeBody, 0x402000)                   // LSDA
	fdeBody = append(fdeBody, 0xc, 0x1f, 0)                                         // instructions
	sb.entry(uint32(idFieldOffset-cieOffset), fdeBody)

	// ZERO terminator.
	sb.u32(0)

	view := mem.NewObject(sectionVM, sb.buf)
	fdes, err := Parse(view, byteorder.LittleEndian, sectionVM, sectionVM, uint64(len(sb.buf)), 8, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fdes) != 1 {
		t.Fatalf("got %d FDEs, want 1", len(fdes))
	}

	fde := fdes[0]
	if fde.Begin() != 0x401000 || fde.End() != 0x401020 {
		t.Errorf("FDE covers %#x-%#x, want 0x401000-0x401020", fde.Begin(), fde.End())
	}
	if !fde.Cover(0x401000) || !fde.Cover(0x40101f) || fde.Cover(0x401020) || fde.Cover(0x400fff) {
		t.Error("Cover boundaries wrong")
	}
	if fde.LSDA != 0x402000 {
		t.Errorf("LSDA = %#x, want 0x402000", fde.LSDA)
	}
	if len(fde.Instructions) != 3 || fde.Instructions[0] != 0xc {
		t.Errorf("instructions = %v", fde.Instructions)
	}

	cie := fde.CIE
	if cie.Version != 1 {
		t.Errorf("CIE version = %d", cie.Version)
	}
	if cie.Augmentation != "zLR" {
		t.Errorf("augmentation = %q", cie.Augmentation)
	}
	if cie.CodeAlignmentFactor != 1 {
		t.Errorf("code alignment factor = %d", cie.CodeAlignmentFactor)
	}
	if cie.DataAlignmentFactor != -8 {
		t.Errorf("data alignment factor = %d", cie.DataAlignmentFactor)
	}
	if cie.ReturnAddressRegister != 16 {
		t.Errorf("return address register = %d", cie.ReturnAddressRegister)
	}
	if cie.PtrEncAddr != ehptr.PESData4|ehptr.PEPCRel {
		t.Errorf("pointer encoding = %s", cie.PtrEncAddr)
	}
	if cie.LSDAEncoding != ehptr.PEUData4 {
		t.Errorf("LSDA encoding = %s", cie.LSDAEncoding)
	}
	if len(cie.InitialInstructions) != 3 {
		t.Errorf("initial instructions = %v", cie.InitialInstructions)
	}
}

func TestParseIndirectPersonality(t *testing.T) {
	const sectionVM = 0x400000
	const personalitySlot = 0x601000

	var sb sectionBuilder

	// CIE with "zPR" augmentation. The personality uses encoding 0x9b
	// (indirect pcrel sdata4), the form GCC emits: the slot it names
	// lives in .data.rel.ro, well outside this section, so resolving
	// the indirection through the section view must not be attempted.
	penc := ehptr.PESData4 | ehptr.PEPCRel | ehptr.PEIndirect
	// The sdata4 field sits 10 bytes into the CIE body, 18 into the
	// section.
	pFieldVM := uint64(sectionVM) + 18
	cieBody := []byte{1, 'z', 'P', 'R', 0, 1, 0x78, 16, 6, byte(penc)}
	cieBody = binary.LittleEndian.AppendUint32(cieBody, uint32(personalitySlot-pFieldVM))
	cieBody = append(cieBody, byte(ehptr.PESData4|ehptr.PEPCRel))
	sb.entry(0, cieBody)

	fdeOffset := sb.offset()
	idFieldOffset := fdeOffset + 4
	pcFieldVM := uint64(sectionVM) + fdeOffset + 8

	var fdeBody []byte
	fdeBody = binary.LittleEndian.AppendUint32(fdeBody, uint32(0x401000-pcFieldVM))
	fdeBody = binary.LittleEndian.AppendUint32(fdeBody, 0x20)
	fdeBody = append(fdeBody, 0) // augmentation data length
	fdeBody = append(fdeBody, 0, 0)
	sb.entry(uint32(idFieldOffset), fdeBody)

	sb.u32(0)

	view := mem.NewObject(sectionVM, sb.buf)
	fdes, err := Parse(view, byteorder.LittleEndian, sectionVM, sectionVM, uint64(len(sb.buf)), 8, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fdes) != 1 {
		t.Fatalf("got %d FDEs, want 1", len(fdes))
	}
	fde := fdes[0]
	if fde.Begin() != 0x401000 || fde.End() != 0x401020 {
		t.Errorf("FDE covers %#x-%#x, want 0x401000-0x401020", fde.Begin(), fde.End())
	}
	if fde.CIE.Personality != personalitySlot {
		t.Errorf("personality = %#x, want the slot address %#x", fde.CIE.Personality, personalitySlot)
	}
}

func TestParseDebugFrame(t *testing.T) {
	const sectionVM = 0x10000

	var sb sectionBuilder

	// version 3, empty augmentation, code align 1, data align -4, return
	// address register 16, then instructions.
	cieBody := []byte{3, 0, 1, 0x7c, 16, 0xc, 7, 8}
	sb.entry(0xffffffff, cieBody)

	var fdeBody []byte
	fdeBody = binary.LittleEndian.AppendUint64(fdeBody, 0x401000) // initial location
	fdeBody = binary.LittleEndian.AppendUint64(fdeBody, 0x30)     // range
	fdeBody = append(fdeBody, 0)                                  // instructions
	sb.entry(0, fdeBody) // CIE at section offset 0

	view := mem.NewObject(sectionVM, sb.buf)
	fdes, err := Parse(view, byteorder.LittleEndian, sectionVM, sectionVM, uint64(len(sb.buf)), 8, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(fdes) != 1 {
		t.Fatalf("got %d FDEs, want 1", len(fdes))
	}
	fde := fdes[0]
	if fde.Begin() != 0x401000 || fde.End() != 0x401030 {
		t.Errorf("FDE covers %#x-%#x, want 0x401000-0x401030", fde.Begin(), fde.End())
	}
	if fde.CIE.DataAlignmentFactor != -4 {
		t.Errorf("data alignment factor = %d", fde.CIE.DataAlignmentFactor)
	}
}

func TestParseErrors(t *testing.T) {
	const base = 0x1000

	// 64-bit DWARF length extension.
	var sb sectionBuilder
	sb.u32(0xffffffff)
	_, err := Parse(mem.NewObject(base, sb.buf), byteorder.LittleEndian, base, base, uint64(len(sb.buf)), 8, true)
	if !errors.Is(err, ehptr.ErrUnsupported) {
		t.Errorf("64-bit DWARF: got %v, want ErrUnsupported", err)
	}

	// Entry length running past the mapped section.
	sb = sectionBuilder{}
	sb.u32(0x100)
	sb.u32(0)
	sb.buf = append(sb.buf, 1, 0)
	_, err = Parse(mem.NewObject(base, sb.buf), byteorder.LittleEndian, base, base, uint64(len(sb.buf)), 8, true)
	if !errors.Is(err, ehptr.ErrInvalid) {
		t.Errorf("overrunning entry: got %v, want ErrInvalid", err)
	}

	// FDE referencing a CIE that does not exist.
	sb = sectionBuilder{}
	var fdeBody []byte
	fdeBody = binary.LittleEndian.AppendUint64(fdeBody, 0x401000)
	fdeBody = binary.LittleEndian.AppendUint64(fdeBody, 0x30)
	sb.entry(0x4444, fdeBody)
	_, err = Parse(mem.NewObject(base, sb.buf), byteorder.LittleEndian, base, base, uint64(len(sb.buf)), 8, true)
	if !errors.Is(err, ehptr.ErrInvalid) {
		t.Errorf("dangling CIE pointer: got %v, want ErrInvalid", err)
	}
}
