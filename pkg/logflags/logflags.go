// Package logflags routes per-component debug logging for the crash
// reporting toolchain.
package logflags

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	frameFlag  = false
	ehptrFlag  = false
	anyEnabled = false
)

// logOut is the destination shared by every logger created by this package.
// It defaults to stderr, through go-colorable when stderr is a terminal.
var logOut io.Writer

func makeLogger(flag bool, fields logrus.Fields) *logrus.Entry {
	lg := logrus.New()
	lg.Formatter = &logrus.TextFormatter{
		DisableColors: !stderrIsTerminal(),
		FullTimestamp: true,
	}
	if logOut != nil {
		lg.Out = logOut
	}
	lg.Level = logrus.DebugLevel
	if !flag {
		lg.Level = logrus.PanicLevel
	}
	return lg.WithFields(fields)
}

func stderrIsTerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd())
}

// Frame returns true if the frame-entry walker should log.
func Frame() bool {
	return frameFlag
}

// FrameLogger returns a logger for the frame-entry walker.
func FrameLogger() *logrus.Entry {
	return makeLogger(frameFlag, logrus.Fields{"layer": "dwarf", "kind": "frame"})
}

// EhPtr returns true if encoded-pointer decoding should log.
func EhPtr() bool {
	return ehptrFlag
}

// EhPtrLogger returns a logger for encoded-pointer decoding.
func EhPtrLogger() *logrus.Entry {
	return makeLogger(ehptrFlag, logrus.Fields{"layer": "dwarf", "kind": "ehptr"})
}

// Any returns true if any component logging was enabled by Setup.
func Any() bool {
	return anyEnabled
}

var errLogstrWithoutLog = fmt.Errorf("--log-output specified without --log")

// Setup sets component logging flags based on the contents of logstr and
// directs output to logDest, which may be a file path or a file descriptor
// number. An empty logDest keeps the default of stderr.
func Setup(logFlag bool, logstr, logDest string) error {
	if err := setupLogDest(logDest); err != nil {
		return err
	}
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if !logFlag {
		log.SetOutput(io.Discard)
		if logstr != "" {
			return errLogstrWithoutLog
		}
		return nil
	}
	if logstr == "" {
		logstr = "frame"
	}
	anyEnabled = true
	for _, logcmd := range strings.Split(logstr, ",") {
		switch logcmd {
		case "frame":
			frameFlag = true
		case "ehptr":
			ehptrFlag = true
		default:
			return fmt.Errorf("unknown log component %q", logcmd)
		}
	}
	return nil
}

func setupLogDest(logDest string) error {
	if logDest == "" {
		if stderrIsTerminal() {
			logOut = colorable.NewColorableStderr()
		}
		return nil
	}
	if n, err := strconv.Atoi(logDest); err == nil {
		logOut = os.NewFile(uintptr(n), "log-destination")
		return nil
	}
	fh, err := os.Create(logDest)
	if err != nil {
		return fmt.Errorf("could not create log destination file: %v", err)
	}
	logOut = fh
	return nil
}
