package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/bwingest/internal/agent"
)

// Run is one bwctl test invocation recovered from the input stream.
type Run struct {
	ToolName         string
	InputSource      string
	InputDestination string

	// Payload is the raw JSON block between the start and stop sentinels.
	Payload []byte
	// Value is Payload decoded with numbers kept as json.Number.
	Value any

	agent    string
	resolved bool
}

// Validate checks the run's scalar fields and that the payload is structured.
func (r *Run) Validate() error {
	var errs []error
	if r.ToolName == "" {
		errs = append(errs, errors.New("tool name is required"))
	}
	if r.InputSource == "" {
		errs = append(errs, errors.New("input source is required"))
	}
	if r.InputDestination == "" {
		errs = append(errs, errors.New("input destination is required"))
	}
	switch r.Value.(type) {
	case nil:
		errs = append(errs, errors.New("payload is required"))
	case map[string]any, []any:
	default:
		errs = append(errs, fmt.Errorf("payload must be a JSON object or array, got %T", r.Value))
	}
	return errors.Join(errs...)
}

// MeasurementAgent returns the local address used to reach InputDestination.
// The resolver is consulted once; later calls return the cached address.
func (r *Run) MeasurementAgent(ctx context.Context, res agent.Resolver) (string, error) {
	if r.resolved {
		return r.agent, nil
	}
	addr, err := res.LocalAddr(ctx, r.InputDestination)
	if err != nil {
		return "", fmt.Errorf("resolve agent for %s: %w", r.InputDestination, err)
	}
	r.agent = addr
	r.resolved = true
	return addr, nil
}
