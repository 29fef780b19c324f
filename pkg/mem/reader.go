package mem

import (
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
)

// MemoryReader reads target memory, like io.ReaderAt but addressed with a
// uint64 so all of a 64-bit address space is reachable.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

const readerPageSize = 0x1000

// ReaderView adapts a MemoryReader into a View, caching recently read pages
// in an LRU. It allocates and locks internally and is therefore only suitable
// outside the crash-handling path, e.g. in the offline tooling; the crash
// path uses Object.
type ReaderView struct {
	mem   MemoryReader
	pages *lru.Cache
}

// NewReaderView returns a ReaderView over r caching up to maxPages pages of
// 4KiB each.
func NewReaderView(r MemoryReader, maxPages int) (*ReaderView, error) {
	pages, err := lru.New(maxPages)
	if err != nil {
		return nil, err
	}
	return &ReaderView{mem: r, pages: pages}, nil
}

// page returns the cached page containing addr, reading it if necessary. The
// returned slice may be shorter than a full page when the backing reader ends
// inside it.
func (v *ReaderView) page(addr uint64) []byte {
	pageAddr := addr &^ uint64(readerPageSize-1)
	if cached, ok := v.pages.Get(pageAddr); ok {
		return cached.([]byte)
	}
	buf := make([]byte, readerPageSize)
	n, _ := v.mem.ReadMemory(buf, pageAddr)
	if n <= 0 {
		return nil
	}
	buf = buf[:n]
	v.pages.Add(pageAddr, buf)
	return buf
}

// Remap implements View. Spans contained in a single page alias the page
// cache; spans crossing a page boundary are copied.
func (v *ReaderView) Remap(base uint64, offset int64, length uint64) []byte {
	addr := base + uint64(offset)
	if addr+length < addr {
		return nil
	}
	pageOff := addr & (readerPageSize - 1)
	if pageOff+length <= readerPageSize {
		p := v.page(addr)
		if p == nil || pageOff+length > uint64(len(p)) {
			return nil
		}
		return p[pageOff : pageOff+length]
	}
	out := make([]byte, 0, length)
	for uint64(len(out)) < length {
		cur := addr + uint64(len(out))
		p := v.page(cur)
		curOff := cur & (readerPageSize - 1)
		if p == nil || curOff >= uint64(len(p)) {
			return nil
		}
		end := uint64(len(p)) - curOff
		if remaining := length - uint64(len(out)); end > remaining {
			end = remaining
		}
		out = append(out, p[curOff:curOff+end]...)
	}
	return out
}

// ReadUint16 implements View.
func (v *ReaderView) ReadUint16(bo byteorder.ByteOrder, base uint64, offset int64) (uint16, error) {
	p := v.Remap(base, offset, 2)
	if p == nil {
		return 0, fmt.Errorf("2 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap16(binary.LittleEndian.Uint16(p)), nil
}

// ReadUint32 implements View.
func (v *ReaderView) ReadUint32(bo byteorder.ByteOrder, base uint64, offset int64) (uint32, error) {
	p := v.Remap(base, offset, 4)
	if p == nil {
		return 0, fmt.Errorf("4 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap32(binary.LittleEndian.Uint32(p)), nil
}

// ReadUint64 implements View.
func (v *ReaderView) ReadUint64(bo byteorder.ByteOrder, base uint64, offset int64) (uint64, error) {
	p := v.Remap(base, offset, 8)
	if p == nil {
		return 0, fmt.Errorf("8 byte read at %#x%+d: %w", base, offset, ErrUnmapped)
	}
	return bo.Swap64(binary.LittleEndian.Uint64(p)), nil
}
