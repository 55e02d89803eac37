package ingest

import (
	"errors"

	"github.com/ppiankov/bwingest/internal/adapter"
	"github.com/ppiankov/bwingest/internal/archive"
	"github.com/ppiankov/bwingest/internal/config"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	// ExitConfig is sysexits EX_CONFIG.
	ExitConfig = 78
)

// ExitCode maps a Process or setup error to the process exit status.
// Runs skipped for an unknown tool and runs whose metadata write failed
// still exit 0.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, config.ErrMissingAuth):
		return ExitConfig
	case errors.Is(err, archive.ErrMetadata), errors.Is(err, adapter.ErrUnknownTool):
		return ExitOK
	default:
		return ExitFailure
	}
}
