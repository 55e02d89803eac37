// Package logging builds the run logger: slog text records tagged with the
// run id, written to stdout or appended to <dir>/bwingest.log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// FileName is the log file created inside the configured log directory.
const FileName = "bwingest.log"

// New returns a logger for one run. When dir is empty records go to stdout.
// The caller must call the returned close function once the run is done.
func New(dir string, level slog.Level, runID string) (*slog.Logger, func() error, error) {
	var w io.Writer = os.Stdout
	closer := func() error { return nil }

	if dir != "" {
		fi, err := os.Stat(dir)
		if err != nil {
			return nil, nil, fmt.Errorf("log directory: %w", err)
		}
		if !fi.IsDir() {
			return nil, nil, fmt.Errorf("log directory: %s is not a directory", dir)
		}
		f, err := os.OpenFile(filepath.Join(dir, FileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closer = f.Close
	}

	return NewWriter(w, level, runID), closer, nil
}

// NewWriter returns a run logger writing to w.
func NewWriter(w io.Writer, level slog.Level, runID string) *slog.Logger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("id", runID)
}
