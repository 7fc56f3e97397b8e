package main

import (
	"fmt"
	"os"

	"statement-intel-service/cmd/stmtintel/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.NewCLIErrorHandler().ExitCode(err))
	}
}
