package logflags

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func resetFlags() {
	frameFlag = false
	ehptrFlag = false
	anyEnabled = false
	logOut = nil
}

func TestSetup(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "ehptr", ""); err != nil {
		t.Fatal(err)
	}
	if !EhPtr() {
		t.Error("requested component not enabled")
	}
	if Frame() {
		t.Error("unrequested component enabled")
	}
	if !Any() {
		t.Error("Any() = false after enabling components")
	}
}

func TestSetupDefaultComponent(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "", ""); err != nil {
		t.Fatal(err)
	}
	if !Frame() {
		t.Error("default component not enabled")
	}
}

func TestSetupRejectsOutputWithoutLog(t *testing.T) {
	defer resetFlags()

	if err := Setup(false, "frame", ""); err == nil {
		t.Error("expected an error for --log-output without --log")
	}
}

func TestSetupRejectsUnknownComponent(t *testing.T) {
	defer resetFlags()

	if err := Setup(true, "bogus", ""); err == nil {
		t.Error("expected an error for an unknown component")
	}
}

func TestMakeLoggerLevels(t *testing.T) {
	defer resetFlags()
	var buf bytes.Buffer
	logOut = &buf

	enabled := makeLogger(true, logrus.Fields{"layer": "dwarf"})
	if enabled.Logger.Level != logrus.DebugLevel {
		t.Errorf("enabled logger level = %v, want debug", enabled.Logger.Level)
	}
	if enabled.Logger.Out != &buf {
		t.Error("logger not directed at logOut")
	}
	if enabled.Data["layer"] != "dwarf" {
		t.Errorf("logger fields = %v", enabled.Data)
	}

	disabled := makeLogger(false, nil)
	if disabled.Logger.Level != logrus.PanicLevel {
		t.Errorf("disabled logger level = %v, want panic", disabled.Logger.Level)
	}

	enabled.Debugf("decoded %d entries", 3)
	if buf.Len() == 0 {
		t.Error("enabled logger produced no output")
	}
}
