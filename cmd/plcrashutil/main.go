package main

import (
	"os"

	"github.com/DTML/PLCrashReporter/cmd/plcrashutil/cmds"
)

func main() {
	if err := cmds.New().Execute(); err != nil {
		os.Exit(1)
	}
}
