// Package cmds implements the plcrashutil command tree.
package cmds

import (
	"debug/elf"
	"debug/macho"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DTML/PLCrashReporter/pkg/byteorder"
	"github.com/DTML/PLCrashReporter/pkg/config"
	"github.com/DTML/PLCrashReporter/pkg/dwarf/ehptr"
	"github.com/DTML/PLCrashReporter/pkg/dwarf/frame"
	"github.com/DTML/PLCrashReporter/pkg/elfsection"
	"github.com/DTML/PLCrashReporter/pkg/logflags"
	"github.com/DTML/PLCrashReporter/pkg/mem"
	"github.com/DTML/PLCrashReporter/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should
	// produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string

	// showCIEs makes the frames command print common information
	// entries.
	showCIEs bool
	// maxEntries caps the number of FDEs printed by frames.
	maxEntries int

	// decode command flags.
	decodeEncoding string
	decodeData     string
	decodeFile     string
	decodeOffset   uint64
	decodeAddrSize uint64
	decodeBig      bool
	pcRelBase      string
	textBase       string
	dataBase       string
	funcBase       string

	conf *config.Config
)

const plcrashutilLongDesc = `plcrashutil inspects the stack unwinding metadata of crashed program images.

It understands the GNU eh_frame and DWARF debug_frame formats, including the
encoded pointer and LEB128 representations used by their frame descriptors.`

// New returns an initialized command tree.
func New() *cobra.Command {
	conf = config.LoadConfig()

	rootCommand := &cobra.Command{
		Use:   "plcrashutil",
		Short: "plcrashutil inspects stack unwinding metadata.",
		Long:  plcrashutilLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logflags.Setup(log, logOutput, logDest)
		},
		SilenceUsage: true,
	}
	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging log output.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (frame, ehptr).")
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes log to the specified file or file descriptor number.")

	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "plcrashutil\n%s\n%s\n", version.UtilVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	framesCommand := &cobra.Command{
		Use:   "frames <binary>",
		Short: "Dump the frame description entries of a binary.",
		Long: `Dump the frame description entries of a binary.

Loads the .eh_frame (or .debug_frame) section of the given ELF or Mach-O file
and prints every frame description entry with the address range it covers.`,
		Args: cobra.ExactArgs(1),
		RunE: framesCmd,
	}
	framesCommand.Flags().BoolVarP(&showCIEs, "cies", "", false, "Also print common information entries.")
	framesCommand.Flags().IntVarP(&maxEntries, "max-entries", "", 0, "Print at most this many entries (0 prints everything).")
	rootCommand.AddCommand(framesCommand)

	decodeCommand := &cobra.Command{
		Use:   "decode",
		Short: "Decode a single GNU eh_frame encoded pointer.",
		Long: `Decode a single GNU eh_frame encoded pointer.

The value bytes are supplied either inline with --data as a hex string, or
with --file and --offset to read them from a file. Base addresses for the
relative encodings are supplied with --pcrel, --textrel, --datarel and
--funcrel; encodings whose base was not supplied fail as unsupported.`,
		RunE: decodeCmd,
	}
	decodeCommand.Flags().StringVarP(&decodeEncoding, "encoding", "e", "0x00", "The DW_EH_PE encoding byte, e.g. 0x1b.")
	decodeCommand.Flags().StringVarP(&decodeData, "data", "d", "", "Hex string holding the value bytes.")
	decodeCommand.Flags().StringVarP(&decodeFile, "file", "f", "", "File to read the value bytes from.")
	decodeCommand.Flags().Uint64VarP(&decodeOffset, "offset", "o", 0, "Offset of the value within --file.")
	decodeCommand.Flags().Uint64VarP(&decodeAddrSize, "addr-size", "", 8, "Target pointer width in bytes (1, 2, 4 or 8).")
	decodeCommand.Flags().BoolVarP(&decodeBig, "big-endian", "", false, "Treat the value bytes as big-endian.")
	decodeCommand.Flags().StringVarP(&pcRelBase, "pcrel", "", "", "Base address for pc-relative encodings.")
	decodeCommand.Flags().StringVarP(&textBase, "textrel", "", "", "Base address for text-relative encodings.")
	decodeCommand.Flags().StringVarP(&dataBase, "datarel", "", "", "Base address for data-relative encodings.")
	decodeCommand.Flags().StringVarP(&funcBase, "funcrel", "", "", "Base address for function-relative encodings.")
	rootCommand.AddCommand(decodeCommand)

	return rootCommand
}

func framesCmd(cmd *cobra.Command, args []string) error {
	sec, ptrSize, bo, err := openFrameSection(args[0])
	if err != nil {
		return err
	}

	view := mem.NewObject(sec.VMAddr, sec.Data)
	fdes, err := frame.Parse(view, bo, sec.VMAddr, sec.VMAddr, uint64(len(sec.Data)), ptrSize, sec.EH)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()

	printCIEs := showCIEs || conf.ShowCIEs
	if printCIEs {
		seen := map[*frame.CommonInformationEntry]bool{}
		for _, fde := range fdes {
			if seen[fde.CIE] {
				continue
			}
			seen[fde.CIE] = true
			c := fde.CIE
			fmt.Fprintf(w, "CIE %#06x: version=%d aug=%q enc=%s lsda=%s caf=%d daf=%d ra=%d\n",
				c.Offset, c.Version, c.Augmentation, c.PtrEncAddr, c.LSDAEncoding,
				c.CodeAlignmentFactor, c.DataAlignmentFactor, c.ReturnAddressRegister)
		}
	}

	limit := maxEntries
	if limit == 0 && conf.MaxFrameEntries != nil {
		limit = *conf.MaxFrameEntries
	}
	for i, fde := range fdes {
		if limit > 0 && i >= limit {
			fmt.Fprintf(w, "... %d more entries\n", len(fdes)-i)
			break
		}
		fmt.Fprintf(w, "FDE %#06x: pc=%#x-%#x cie=%#06x", fde.Offset, fde.Begin(), fde.End(), fde.CIE.Offset)
		if fde.LSDA != 0 {
			fmt.Fprintf(w, " lsda=%#x", fde.LSDA)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d entries\n", len(fdes))
	return nil
}

func decodeCmd(cmd *cobra.Command, args []string) error {
	encv, err := strconv.ParseUint(decodeEncoding, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid encoding %q: %v", decodeEncoding, err)
	}
	encoding := ehptr.Encoding(encv)

	if !cmd.Flags().Changed("addr-size") && conf.TargetPointerSize != nil {
		decodeAddrSize = uint64(*conf.TargetPointerSize)
	}
	switch decodeAddrSize {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("invalid --addr-size %d: must be 1, 2, 4 or 8", decodeAddrSize)
	}

	cfg := ehptr.UnsetBases()
	for _, b := range []struct {
		flag string
		dest *uint64
	}{
		{pcRelBase, &cfg.PCRelBase},
		{textBase, &cfg.TextBase},
		{dataBase, &cfg.DataBase},
		{funcBase, &cfg.FuncBase},
	} {
		if b.flag == "" {
			continue
		}
		v, err := strconv.ParseUint(b.flag, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid base address %q: %v", b.flag, err)
		}
		*b.dest = v
	}

	var view mem.View
	var location uint64
	switch {
	case decodeData != "":
		data, err := hex.DecodeString(strings.TrimPrefix(decodeData, "0x"))
		if err != nil {
			return fmt.Errorf("invalid --data: %v", err)
		}
		view = mem.NewObject(0, data)
		location = 0
	case decodeFile != "":
		fh, err := os.Open(decodeFile)
		if err != nil {
			return err
		}
		defer fh.Close()
		rv, err := mem.NewReaderView(fileReader{fh}, 16)
		if err != nil {
			return err
		}
		view = rv
		location = decodeOffset
	default:
		return fmt.Errorf("one of --data or --file is required")
	}

	bo := byteorder.ByteOrder(byteorder.LittleEndian)
	if decodeBig {
		bo = byteorder.BigEndian
	}

	state := ehptr.NewState(decodeAddrSize, cfg)
	defer state.Free()

	addr, size, err := ehptr.ReadPointer(view, bo, location, encoding, &state)
	if err != nil {
		return err
	}
	if logflags.EhPtr() {
		logflags.EhPtrLogger().Debugf("decoded %s pointer at %#x: %#x (%d bytes)", encoding, location, addr, size)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "encoding: %s\naddress:  %#x\nsize:     %d\n", encoding, addr, size)
	return nil
}

// fileReader adapts a file into a mem.MemoryReader addressed by file offset.
type fileReader struct {
	f *os.File
}

func (r fileReader) ReadMemory(buf []byte, addr uint64) (int, error) {
	return r.f.ReadAt(buf, int64(addr))
}

// openFrameSection loads the unwind metadata of an ELF or Mach-O binary and
// reports the target's pointer width and byte order.
func openFrameSection(path string) (*elfsection.FrameSection, uint64, byteorder.ByteOrder, error) {
	if ef, err := elf.Open(path); err == nil {
		defer ef.Close()
		sec, err := elfsection.FrameSectionElf(ef)
		if err != nil {
			return nil, 0, nil, err
		}
		ptrSize := uint64(4)
		if ef.Class == elf.ELFCLASS64 {
			ptrSize = 8
		}
		bo := byteorder.ByteOrder(byteorder.LittleEndian)
		if ef.Data == elf.ELFDATA2MSB {
			bo = byteorder.BigEndian
		}
		return sec, ptrSize, bo, nil
	}

	mf, err := macho.Open(path)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("%s is neither an ELF nor a Mach-O binary", path)
	}
	defer mf.Close()
	sec, err := elfsection.FrameSectionMacho(mf)
	if err != nil {
		return nil, 0, nil, err
	}
	ptrSize := uint64(4)
	if mf.Magic == macho.Magic64 {
		ptrSize = 8
	}
	return sec, ptrSize, byteorder.Host(mf.ByteOrder), nil
}
