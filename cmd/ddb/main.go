// Main package for the ddb command line tool.
package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/acksell/ddbcli/cmd/ddb/commands"
	"github.com/acksell/ddbcli/internal/cli"
	"github.com/acksell/ddbcli/internal/constants"
)

func main() {
	slog.SetLogLoggerLevel(constants.DefaultLogLevel)

	a, err := commands.New()
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}

	os.Exit(run(a, constants.GetDefaultErrorLogPath()))
}

type app interface {
	Run() error
	UsageError() bool
}

// run executes the app and returns the exit code. Runtime errors are also
// appended to errorLog, unless it is empty.
func run(a app, errorLog string) int {
	err := a.Run()
	if err == nil {
		return 0
	}
	if a.UsageError() {
		slog.Error(err.Error())
		return 2
	}

	var attrs []any
	// The setup hint in ErrNotConfigured is all there is to say.
	if errorLog != "" && !errors.Is(err, commands.ErrNotConfigured) {
		if logErr := cli.AppendErrorLog(errorLog, os.Args[1:], err); logErr != nil {
			slog.Debug("Error details not saved", "error", logErr)
		} else {
			attrs = append(attrs, "details", errorLog)
		}
	}
	slog.Error(err.Error(), attrs...)
	return 1
}
