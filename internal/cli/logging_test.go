package cli

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/acksell/ddbcli/internal/constants"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hacky way to allow us to reset the default logger.
var defaultLogger = *slog.Default()

func TestSetVerbosity(t *testing.T) {
	testCases := []struct {
		name    string
		pattern []int
	}{
		{
			name:    "info",
			pattern: []int{1},
		},
		{
			name:    "none",
			pattern: []int{0},
		},
		{
			name:    "info debug none",
			pattern: []int{1, 2, 0},
		},
		{
			name:    "debug",
			pattern: []int{3},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			t.Cleanup(func() { slog.SetLogLoggerLevel(slog.LevelInfo) })

			for _, p := range tc.pattern {
				SetVerbosity(p)

				switch p {
				case 0:
					assert.True(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel))
					assert.False(t, slog.Default().Enabled(context.Background(), constants.DefaultLogLevel-1))
				case 1:
					assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelInfo))
					assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo-1))
				default:
					assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug))
					assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelDebug-1))
				}
			}
		})
	}
}

func TestSetSlog(t *testing.T) {
	testCases := []struct {
		name    string
		level   int
		jsonLog bool
	}{
		{name: "none", level: 0},
		{name: "info", level: 1},
		{name: "info json", level: 1, jsonLog: true},
		{name: "debug json", level: 2, jsonLog: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			slog.SetDefault(&defaultLogger)
			t.Cleanup(func() {
				slog.SetDefault(&defaultLogger)
				slog.SetLogLoggerLevel(slog.LevelInfo)
			})

			var buf bytes.Buffer
			setSlog(&buf, tc.level, tc.jsonLog)

			_, isJSON := slog.Default().Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.jsonLog, isJSON, "unexpected log handler type")

			if tc.jsonLog {
				slog.Info("hello")
				require.Contains(t, buf.String(), `"msg":"hello"`)
			}
		})
	}
}

func TestSetSlog_BackToText(t *testing.T) {
	slog.SetDefault(&defaultLogger)
	t.Cleanup(func() {
		slog.SetDefault(&defaultLogger)
		slog.SetLogLoggerLevel(slog.LevelInfo)
	})

	var buf bytes.Buffer
	setSlog(&buf, 0, true)
	setSlog(&buf, 2, false)

	_, isText := slog.Default().Handler().(*slog.TextHandler)
	require.True(t, isText, "JSON handler should be replaced by a text handler")
	assert.True(t, slog.Default().Enabled(context.Background(), slog.LevelDebug), "verbosity should apply to the text handler")

	slog.Debug("hello")
	assert.Contains(t, buf.String(), "msg=hello")

	setSlog(&buf, 0, false)
	assert.False(t, slog.Default().Enabled(context.Background(), slog.LevelInfo), "verbosity should be lowered again")
}
