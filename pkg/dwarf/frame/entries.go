// Package frame walks the Common Information Entries and Frame Description
// Entries of an eh_frame or debug_frame section through a bounded memory
// view, decoding the pointer-encoded fields with pkg/dwarf/ehptr.
package frame

import (
	"fmt"
	"sort"

	"github.com/DTML/PLCrashReporter/pkg/dwarf/ehptr"
)

// CommonInformationEntry represents a CIE.
type CommonInformationEntry struct {
	// Offset of the entry from the start of the section.
	Offset uint64

	Length                uint64
	Version               uint8
	Augmentation          string
	CodeAlignmentFactor   uint64
	DataAlignmentFactor   int64
	ReturnAddressRegister uint64
	InitialInstructions   []byte

	// PtrEncAddr is the encoding of FDE initial location and range
	// fields, from the 'R' augmentation. Defaults to an address-sized
	// absolute pointer.
	PtrEncAddr ehptr.Encoding

	// LSDAEncoding is the encoding of FDE language-specific data area
	// pointers, from the 'L' augmentation; ehptr.PEOmit when absent.
	LSDAEncoding ehptr.Encoding

	// Personality is the decoded personality routine address from the
	// 'P' augmentation, zero when absent. For indirect encodings it is
	// the address of the slot holding the routine address; the slot is
	// not dereferenced here because it lives outside the frame section.
	Personality uint64

	// IsSignalFrame is set by the 'S' augmentation.
	IsSignalFrame bool
}

// FrameDescriptionEntry represents an FDE and the function address range it
// covers.
type FrameDescriptionEntry struct {
	// Offset of the entry from the start of the section.
	Offset uint64

	Length       uint64
	CIE          *CommonInformationEntry
	Instructions []byte

	// LSDA is the decoded language-specific data area address, zero when
	// the CIE declares no LSDA encoding.
	LSDA uint64

	begin, size uint64
}

// Cover reports whether addr falls inside the range covered by this entry.
func (fde *FrameDescriptionEntry) Cover(addr uint64) bool {
	return addr-fde.begin < fde.size
}

// Begin returns the first address covered by this entry.
func (fde *FrameDescriptionEntry) Begin() uint64 {
	return fde.begin
}

// End returns the address one past the range covered by this entry.
func (fde *FrameDescriptionEntry) End() uint64 {
	return fde.begin + fde.size
}

// Translate moves the beginning of fde forward by delta.
func (fde *FrameDescriptionEntry) Translate(delta uint64) {
	fde.begin += delta
}

// FrameDescriptionEntries is a slice of FDEs sorted by initial location.
type FrameDescriptionEntries []*FrameDescriptionEntry

// NewFrameIndex returns an empty FDE index.
func NewFrameIndex() FrameDescriptionEntries {
	return make(FrameDescriptionEntries, 0, 1000)
}

// ErrNoFDEForPC is returned by FDEForPC when no entry covers the address.
type ErrNoFDEForPC struct {
	PC uint64
}

func (err *ErrNoFDEForPC) Error() string {
	return fmt.Sprintf("could not find FDE for PC %#v", err.PC)
}

// FDEForPC returns the Frame Description Entry covering pc.
func (fdes FrameDescriptionEntries) FDEForPC(pc uint64) (*FrameDescriptionEntry, error) {
	idx := sort.Search(len(fdes), func(i int) bool {
		return fdes[i].Cover(pc) || fdes[i].Begin() >= pc
	})
	if idx == len(fdes) || !fdes[idx].Cover(pc) {
		return nil, &ErrNoFDEForPC{pc}
	}
	return fdes[idx], nil
}

// Append appends otherFDEs to fdes, returning a sorted, deduplicated result.
func (fdes FrameDescriptionEntries) Append(otherFDEs FrameDescriptionEntries) FrameDescriptionEntries {
	r := append(fdes, otherFDEs...)
	sort.SliceStable(r, func(i, j int) bool {
		return r[i].Begin() < r[j].Begin()
	})
	uniq := r[:0]
	for _, fde := range r {
		if len(uniq) > 0 {
			last := uniq[len(uniq)-1]
			if last.Begin() == fde.Begin() && last.End() == fde.End() {
				continue
			}
		}
		uniq = append(uniq, fde)
	}
	return uniq
}
