// Package ehptr decodes GNU eh_frame/debug_frame encoded pointers and LEB128
// variable-length integers through a bounds-checked memory view.
//
// The encoded pointer format is defined in the Linux Standard Base Core
// Specification 4.1, section 10.5, DWARF Extensions; LEB128 in the DWARF v4
// standard, section 7.6.
//
// This package is written to be callable from a crash-handling context: the
// decode paths perform no heap allocation and no locking, never dereference a
// task address without validating it through the memory view first, and treat
// every input byte as potentially corrupt.
package ehptr
