package cli

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ubuntu/decorate"
)

// AppendErrorLog records a failed command as a JSON line in the file at path.
func AppendErrorLog(path string, args []string, cmdErr error) (err error) {
	defer decorate.OnError(&err, "could not write error log %s", path)

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	slog.New(slog.NewJSONHandler(f, nil)).Error("Command failed", "args", args, "error", cmdErr.Error())
	return nil
}
