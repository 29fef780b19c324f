package ehptr

// Encoding is a DW_EH_PE_t pointer encoding byte. The least significant 4
// bits select the value format, bits 4-6 select how a base address is
// applied, and bit 7 requests one level of indirection. PEOmit is reserved to
// mean no value is present.
type Encoding uint8

const (
	// Value formats (low nibble).
	PEAbsPtr  Encoding = 0x00 // address-sized unsigned integer
	PEULEB128 Encoding = 0x01 // unsigned LEB128
	PEUData2  Encoding = 0x02 // 2 byte unsigned
	PEUData4  Encoding = 0x03 // 4 byte unsigned
	PEUData8  Encoding = 0x04 // 8 byte unsigned
	PESLEB128 Encoding = 0x09 // signed LEB128
	PESData2  Encoding = 0x0a // 2 byte signed
	PESData4  Encoding = 0x0b // 4 byte signed
	PESData8  Encoding = 0x0c // 8 byte signed

	// Base applications (bits 4-6). PEAbsPtr doubles as "no base".
	PEPCRel   Encoding = 0x10 // relative to the address the value appears at
	PETextRel Encoding = 0x20 // relative to the text segment base
	PEDataRel Encoding = 0x30 // relative to the data segment base
	PEFuncRel Encoding = 0x40 // relative to the function base
	PEAligned Encoding = 0x50 // absolute, aligned to the address size

	// PEIndirect marks the decoded value as the address of the real
	// pointer, to be read once more as a plain absolute pointer.
	PEIndirect Encoding = 0x80

	// PEOmit signals that no value is present.
	PEOmit Encoding = 0xff

	peFormatMask Encoding = 0x0f
	peBaseMask   Encoding = 0x70
)

// Format returns the value-format bits of e.
func (e Encoding) Format() Encoding { return e & peFormatMask }

// Base returns the base-application bits of e.
func (e Encoding) Base() Encoding { return e & peBaseMask }

// Indirect reports whether the indirection bit is set.
func (e Encoding) Indirect() bool { return e&PEIndirect != 0 }

var peFormatNames = map[Encoding]string{
	PEAbsPtr:  "absptr",
	PEULEB128: "uleb128",
	PEUData2:  "udata2",
	PEUData4:  "udata4",
	PEUData8:  "udata8",
	PESLEB128: "sleb128",
	PESData2:  "sdata2",
	PESData4:  "sdata4",
	PESData8:  "sdata8",
}

var peBaseNames = map[Encoding]string{
	PEAbsPtr:  "",
	PEPCRel:   "+pcrel",
	PETextRel: "+textrel",
	PEDataRel: "+datarel",
	PEFuncRel: "+funcrel",
	PEAligned: "+aligned",
}

func (e Encoding) String() string {
	if e == PEOmit {
		return "omit"
	}
	format, ok := peFormatNames[e.Format()]
	if !ok {
		format = "unknown"
	}
	base, ok := peBaseNames[e.Base()]
	if !ok {
		base = "+unknown"
	}
	s := format + base
	if e.Indirect() {
		s += "+indirect"
	}
	return s
}
