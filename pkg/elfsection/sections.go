// Package elfsection locates the unwind metadata sections of ELF and Mach-O
// binaries and returns their contents together with their virtual load
// addresses.
package elfsection

import (
	"bytes"
	"compress/zlib"
	"debug/elf"
	"debug/macho"
	"encoding/binary"
	"fmt"
	"io"
)

// FrameSection holds the raw bytes of an eh_frame or debug_frame section and
// the virtual address the section is loaded at.
type FrameSection struct {
	Data   []byte
	VMAddr uint64

	// EH is true for the .eh_frame variant of the format.
	EH bool
}

// FrameSectionElf returns the unwind metadata of f, preferring .eh_frame
// and falling back to .debug_frame (or its compressed .zdebug_frame form).
func FrameSectionElf(f *elf.File) (*FrameSection, error) {
	if sec := f.Section(".eh_frame"); sec != nil {
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		return &FrameSection{Data: data, VMAddr: sec.Addr, EH: true}, nil
	}
	for _, name := range []string{".debug_frame", ".zdebug_frame"} {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		data, err = decompressMaybe(data)
		if err != nil {
			return nil, err
		}
		return &FrameSection{Data: data, VMAddr: sec.Addr}, nil
	}
	return nil, fmt.Errorf("could not find .eh_frame or .debug_frame section")
}

// FrameSectionMacho returns the unwind metadata of f, preferring __eh_frame
// and falling back to __debug_frame.
func FrameSectionMacho(f *macho.File) (*FrameSection, error) {
	if sec := f.Section("__eh_frame"); sec != nil {
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		return &FrameSection{Data: data, VMAddr: sec.Addr, EH: true}, nil
	}
	for _, name := range []string{"__debug_frame", "__zdebug_frame"} {
		sec := f.Section(name)
		if sec == nil {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return nil, err
		}
		data, err = decompressMaybe(data)
		if err != nil {
			return nil, err
		}
		return &FrameSection{Data: data, VMAddr: sec.Addr}, nil
	}
	return nil, fmt.Errorf("could not find __eh_frame or __debug_frame section")
}

func decompressMaybe(b []byte) ([]byte, error) {
	if len(b) < 12 || string(b[:4]) != "ZLIB" {
		// not compressed
		return b, nil
	}

	dlen := binary.BigEndian.Uint64(b[4:12])
	dbuf := make([]byte, dlen)
	r, err := zlib.NewReader(bytes.NewBuffer(b[12:]))
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dbuf); err != nil {
		return nil, err
	}
	if err := r.Close(); err != nil {
		return nil, err
	}
	return dbuf, nil
}
