package commands

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Result holds what a command run produced.
type Result struct {
	Out        string
	Err        error
	UsageError bool
}

// RunForTests runs the app with args, feeding stdin to the command.
func RunForTests(t *testing.T, stdin string, args ...string) Result {
	t.Helper()

	a, err := New()
	require.NoError(t, err, "Setup: failed to create app")

	var out bytes.Buffer
	a.cmd.SetArgs(args)
	a.cmd.SetIn(strings.NewReader(stdin))
	a.cmd.SetOut(&out)
	a.cmd.SetErr(io.Discard)

	err = a.Run()
	return Result{Out: out.String(), Err: err, UsageError: err != nil && a.UsageError()}
}

