package ehptr

import (
	"errors"
	"testing"

	"github.com/DTML/PLCrashReporter/pkg/mem"
)

func TestReadULEB128(t *testing.T) {
	view := mem.NewObject(0x100, []byte{0xe5, 0x8e, 0x26})

	v, n, err := ReadULEB128(view, 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if v != 624485 {
		t.Errorf("value = %d, want 624485", v)
	}
	if n != 3 {
		t.Errorf("size = %d, want 3", n)
	}
}

func TestULEB128RoundTrip(t *testing.T) {
	for _, want := range []uint64{0, 1, 0x7f, 0x80, 624485, 1<<32 - 1, 1 << 63, ^uint64(0)} {
		buf := AppendULEB128(nil, want)
		view := mem.NewObject(0, buf)
		got, n, err := ReadULEB128(view, 0)
		if err != nil {
			t.Fatalf("%d: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip of %d gave %d", want, got)
		}
		if n != uint64(len(buf)) {
			t.Errorf("%d: size = %d, want %d", want, n, len(buf))
		}
	}
}

func TestULEB128TooLarge(t *testing.T) {
	// Ten continuation bytes push the shift past 64 bits before the
	// terminator is ever examined.
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	_, _, err := ReadULEB128(mem.NewObject(0, data), 0)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}

func TestULEB128Unterminated(t *testing.T) {
	// Continuation bit set on every mapped byte; the decoder must fail
	// rather than loop.
	data := []byte{0x80, 0x80, 0x80}
	_, _, err := ReadULEB128(mem.NewObject(0, data), 0)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

func TestULEB128Unmapped(t *testing.T) {
	_, _, err := ReadULEB128(mem.NewObject(0x100, []byte{0x00}), 0x200)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}

func TestReadSLEB128(t *testing.T) {
	view := mem.NewObject(0x100, []byte{0x9b, 0xf1, 0x59})

	v, n, err := ReadSLEB128(view, 0x100)
	if err != nil {
		t.Fatal(err)
	}
	if v != -624485 {
		t.Errorf("value = %d, want -624485", v)
	}
	if n != 3 {
		t.Errorf("size = %d, want 3", n)
	}
}

func TestSLEB128SignExtension(t *testing.T) {
	// -2 encodes to the single byte 0x7e; the 0x40 group sign bit must be
	// extended through the full 64-bit result.
	v, n, err := ReadSLEB128(mem.NewObject(0, []byte{0x7e}), 0)
	if err != nil {
		t.Fatal(err)
	}
	if v != -2 {
		t.Errorf("value = %d, want -2", v)
	}
	if n != 1 {
		t.Errorf("size = %d, want 1", n)
	}
}

func TestSLEB128RoundTrip(t *testing.T) {
	for _, want := range []int64{0, 1, -1, 2, -2, 63, 64, -64, -65, 624485, -624485, 1<<62 - 1, -1 << 62, 1<<63 - 1, -1 << 63} {
		buf := AppendSLEB128(nil, want)
		view := mem.NewObject(0, buf)
		got, n, err := ReadSLEB128(view, 0)
		if err != nil {
			t.Fatalf("%d: %v", want, err)
		}
		if got != want {
			t.Errorf("round trip of %d gave %d", want, got)
		}
		if n != uint64(len(buf)) {
			t.Errorf("%d: size = %d, want %d", want, n, len(buf))
		}
	}
}

func TestSLEB128TooLarge(t *testing.T) {
	data := []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}
	_, _, err := ReadSLEB128(mem.NewObject(0, data), 0)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("got %v, want ErrUnsupported", err)
	}
}

func TestSLEB128Unterminated(t *testing.T) {
	data := []byte{0xff, 0xff}
	_, _, err := ReadSLEB128(mem.NewObject(0, data), 0)
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("got %v, want ErrInvalid", err)
	}
}
