package mock

import (
	"bytes"
	"log/slog"
	"os"
	"testing"
)

// SetupLogger returns a logger whose JSON output is buffered and dumped
// only when the test fails, keeping passing watch-loop tests quiet.
func SetupLogger(t *testing.T) *slog.Logger {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	t.Cleanup(func() {
		if t.Failed() {
			os.Stdout.Write(buf.Bytes()) //nolint:errcheck
		}
	})

	return logger
}
