package ehptr

import "fmt"

// AddrInvalid is the sentinel for a base address that has not been supplied.
const AddrInvalid = ^uint64(0)

// State holds the base addresses that relative pointer encodings are resolved
// against. It is immutable once constructed and may be shared freely between
// concurrent ReadPointer calls.
type State struct {
	addressSize        uint64
	frameSectionBase   uint64
	frameSectionVMAddr uint64
	pcRelBase          uint64
	textBase           uint64
	dataBase           uint64
	funcBase           uint64
}

// StateConfig is the caller-supplied configuration for NewState. Any base
// left at its zero value must instead be set to AddrInvalid explicitly;
// UnsetBases returns a config with every base unset to start from.
type StateConfig struct {
	// FrameSectionBase is the in-memory base address of the loaded frame
	// section, used together with FrameSectionVMAddr to resolve PEAligned
	// values. FrameSectionVMAddr is the virtual load address of the same
	// section.
	FrameSectionBase   uint64
	FrameSectionVMAddr uint64

	// Bases applied to PEPCRel, PETextRel, PEDataRel and PEFuncRel
	// values. For FDE field decoding PCRelBase should be the address of
	// the field being decoded.
	PCRelBase uint64
	TextBase  uint64
	DataBase  uint64
	FuncBase  uint64
}

// UnsetBases returns a StateConfig with every base address set to
// AddrInvalid.
func UnsetBases() StateConfig {
	return StateConfig{
		FrameSectionBase:   AddrInvalid,
		FrameSectionVMAddr: AddrInvalid,
		PCRelBase:          AddrInvalid,
		TextBase:           AddrInvalid,
		DataBase:           AddrInvalid,
		FuncBase:           AddrInvalid,
	}
}

// NewState returns a State for a target whose native pointers are
// addressSize bytes wide. addressSize must be 1, 2, 4 or 8; anything else is
// a programmer error and panics.
func NewState(addressSize uint64, cfg StateConfig) State {
	if addressSize != 1 && addressSize != 2 && addressSize != 4 && addressSize != 8 {
		panic(fmt.Sprintf("ehptr: invalid address size %d", addressSize))
	}
	return State{
		addressSize:        addressSize,
		frameSectionBase:   cfg.FrameSectionBase,
		frameSectionVMAddr: cfg.FrameSectionVMAddr,
		pcRelBase:          cfg.PCRelBase,
		textBase:           cfg.TextBase,
		dataBase:           cfg.DataBase,
		funcBase:           cfg.FuncBase,
	}
}

// AddressSize returns the target pointer width in bytes.
func (s *State) AddressSize() uint64 { return s.addressSize }

// Free releases resources held by s. The current implementation holds none;
// the method is kept so that callers retain ownership discipline should the
// state ever grow resources.
func (s *State) Free() {}
