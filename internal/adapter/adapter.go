// Package adapter maps a tool's result document onto archive metadata and
// event records. Each supported tool is one Adapter variant returned by For.
package adapter

import (
	"errors"
	"fmt"

	"github.com/ppiankov/bwingest/internal/archive"
	"github.com/ppiankov/bwingest/internal/extract"
	"github.com/ppiankov/bwingest/internal/valuetree"
)

var (
	// ErrUnknownTool is returned by For when no adapter handles the tool.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrIncompletePayload is returned when a required part of the result is missing.
	ErrIncompletePayload = errors.New("incomplete payload")
)

// Adapter turns one tool's result into archive records.
type Adapter interface {
	// Tool is the bwctl tool name the adapter handles.
	Tool() string
	// Metadata describes the run from the payload alone. The caller fills in
	// MeasurementAgent, which needs network access.
	Metadata(doc valuetree.Node, run *extract.Run) (*archive.Metadata, error)
	// Events returns every event value of the run, all sharing one timestamp.
	Events(doc valuetree.Node) ([]archive.Event, error)
}

// For returns the adapter for a bwctl tool name.
func For(tool string) (Adapter, error) {
	switch tool {
	case "iperf3":
		return IPerf3{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, tool)
	}
}

// Supported lists the tool names For accepts.
func Supported() []string {
	return []string{IPerf3{}.Tool()}
}
