package ehptr

import "errors"

var (
	// ErrNotFound is returned when an encoding declares that no value is
	// present (PEOmit). It is a normal outcome, not a decode failure;
	// callers should skip the field.
	ErrNotFound = errors.New("no pointer value present")

	// ErrUnsupported is returned for structurally valid input this
	// implementation cannot resolve: a base address required by the
	// encoding that was left unset, unknown encoding bits, or a LEB128
	// magnitude outside the supported range.
	ErrUnsupported = errors.New("unsupported pointer encoding")

	// ErrInvalid is returned when the underlying bytes could not be read
	// at all, e.g. a LEB128 value that runs past mapped memory or a
	// fixed-width span that is not fully mapped. It indicates truncated or
	// corrupted unwind data.
	ErrInvalid = errors.New("invalid unwind data")
)
