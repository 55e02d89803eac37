// Package extract separates the embedded iperf3 JSON result from the bwctl
// diagnostic chatter around it and recovers the run's metadata markers.
package extract

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ppiankov/bwingest/internal/valuetree"
)

// ErrExtraction is returned when no valid run can be recovered from the input.
var ErrExtraction = errors.New("extraction failed")

// Line markers emitted by bwctl.
const (
	DiagnosticPrefix = "bwctl:"
	StartSentinel    = "bwctl: start_tool:"
	StopSentinel     = "bwctl: stop_tool:"

	toolMarker     = "Using tool:"
	senderSuffix   = "as the address for remote sender"
	receiverSuffix = "as the address for remote receiver"
)

// state is the scanner's position relative to the embedded JSON block.
type state int

const (
	notScanning state = iota
	scanning
	done
)

func (s state) String() string {
	switch s {
	case notScanning:
		return "not_scanning"
	case scanning:
		return "scanning"
	case done:
		return "done"
	default:
		return "unknown"
	}
}

// scanner accumulates the outcome of one pass over the input.
type scanner struct {
	state   state
	started bool
	tool    string
	source  string
	dest    string
	payload strings.Builder
}

// feed consumes one line, newline included.
func (s *scanner) feed(line string) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return
	}
	if s.state == notScanning && !strings.HasPrefix(trimmed, DiagnosticPrefix) {
		return
	}

	s.matchMetadata(trimmed)

	switch {
	case strings.HasPrefix(trimmed, StartSentinel):
		s.state = scanning
		s.started = true
	case strings.HasPrefix(trimmed, StopSentinel):
		s.state = done
	case s.state == scanning:
		s.payload.WriteString(line)
	}
}

func (s *scanner) matchMetadata(line string) {
	switch {
	case strings.Contains(line, toolMarker):
		if tok, ok := token(line, 3); ok {
			s.tool = tok
		}
	case strings.HasSuffix(line, senderSuffix):
		if tok, ok := token(line, 2); ok {
			s.source = tok
		}
	case strings.HasSuffix(line, receiverSuffix):
		if tok, ok := token(line, 2); ok {
			s.dest = tok
		}
	}
}

// token returns the i-th whitespace-separated field of line.
// Lines too short for the index are a non-match.
func token(line string, i int) (string, bool) {
	fields := strings.Fields(line)
	if i >= len(fields) {
		return "", false
	}
	return fields[i], true
}

// Extract reads bwctl output from r and returns the embedded run.
// Every reason for rejecting the input is logged before the error is returned;
// a partially recovered run is never returned.
func Extract(r io.Reader, log *slog.Logger) (*Run, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	s := &scanner{}
	br := bufio.NewReader(r)
	for s.state != done {
		line, err := br.ReadString('\n')
		if line != "" {
			s.feed(line)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Error("read input failed", "event", "extract.error", "error", err)
			return nil, fmt.Errorf("%w: read input: %w", ErrExtraction, err)
		}
	}

	var problems []string
	switch {
	case !s.started:
		problems = append(problems, "start_tool sentinel not found")
	case s.state != done:
		problems = append(problems, "stop_tool sentinel not found")
	}
	if s.tool == "" {
		problems = append(problems, "tool name not found")
	}
	if s.source == "" {
		problems = append(problems, "remote sender address not found")
	}
	if s.dest == "" {
		problems = append(problems, "remote receiver address not found")
	}

	payload := []byte(s.payload.String())
	var value any
	if s.started && s.state == done {
		v, err := valuetree.Decode(payload)
		if err != nil {
			problems = append(problems, fmt.Sprintf("payload is not valid JSON: %v", err))
		}
		value = v
	}

	if len(problems) > 0 {
		for _, p := range problems {
			log.Error(p, "event", "extract.error", "state", s.state.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrExtraction, strings.Join(problems, "; "))
	}

	run := &Run{
		ToolName:         s.tool,
		InputSource:      s.source,
		InputDestination: s.dest,
		Payload:          payload,
		Value:            value,
	}
	if err := run.Validate(); err != nil {
		log.Error("run rejected", "event", "extract.error", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	log.Info("run extracted", "event", "extract.done",
		"tool", s.tool, "source", s.source, "destination", s.dest, "payload_bytes", len(payload))
	return run, nil
}
