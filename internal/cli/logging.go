package cli

import (
	"io"
	"log/slog"
	"os"

	"github.com/acksell/ddbcli/internal/constants"
)

// logLevel is shared by the handlers installed by SetSlog.
var logLevel slog.LevelVar

// SetVerbosity sets the logging level for the default logger based on the verbose flag count.
//
// This function has the same behaviors as slog.SetLogLoggerLevel.
func SetVerbosity(level int) {
	logLevel.Set(getLevel(level))
	slog.SetLogLoggerLevel(getLevel(level))
}

// SetSlog sets the logging level and format for the default logger.
// JSON logs go to stderr so that stdout only carries command output.
func SetSlog(level int, jsonLogs bool) {
	setSlog(os.Stderr, level, jsonLogs)
}

func setSlog(w io.Writer, level int, jsonLogs bool) {
	SetVerbosity(level)
	if jsonLogs {
		slog.SetDefault(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: &logLevel})))
		return
	}

	// Switch back from JSON logs set by a previous call.
	if _, ok := slog.Default().Handler().(*slog.JSONHandler); ok {
		slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: &logLevel})))
	}
}

func getLevel(level int) slog.Level {
	switch level {
	case 0:
		return constants.DefaultLogLevel
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
