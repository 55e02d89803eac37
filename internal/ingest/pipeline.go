// Package ingest wires one bwctl run through extraction, mapping and the
// two-phase archive write: metadata first, then a single bulk append.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"

	"github.com/ppiankov/bwingest/internal/adapter"
	"github.com/ppiankov/bwingest/internal/agent"
	"github.com/ppiankov/bwingest/internal/archive"
	"github.com/ppiankov/bwingest/internal/extract"
	"github.com/ppiankov/bwingest/internal/valuetree"
)

// Pipeline processes one run per call.
type Pipeline struct {
	Writer   archive.Writer
	Resolver agent.Resolver
	Log      *slog.Logger
}

// Report summarises a processed run.
type Report struct {
	Tool        string
	MetadataKey string
	URI         string
	Events      int
	// BulkErr is set when metadata was created but the event append failed.
	BulkErr error
}

// New creates a pipeline writing to w. A nil resolver uses the system one.
func New(w archive.Writer, res agent.Resolver, log *slog.Logger) *Pipeline {
	if res == nil {
		res = &agent.NetResolver{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{Writer: w, Resolver: res, Log: log}
}

// Process reads bwctl output from r and archives the run it contains.
// The payload is fully checked before the agent lookup, the first step that
// touches the network.
// A failed bulk append is reported in Report.BulkErr, not as an error:
// the metadata record already exists and is left in place.
func (p *Pipeline) Process(ctx context.Context, r io.Reader) (*Report, error) {
	log := p.Log
	log.Debug("reading input", "event", "extract.start")

	run, err := extract.Extract(r, log)
	if err != nil {
		return nil, err
	}

	doc, err := valuetree.Wrap(run.Value)
	if err != nil {
		log.Error("payload rejected", "event", "wrap.error", "error", err)
		return nil, err
	}

	ad, err := adapter.For(run.ToolName)
	if err != nil {
		log.Warn("no adapter for tool, nothing archived", "event", "adapter.unknown",
			"tool", run.ToolName, "supported", adapter.Supported())
		return nil, err
	}
	report := &Report{Tool: ad.Tool()}

	md, err := ad.Metadata(doc, run)
	if err != nil {
		log.Error("build metadata failed", "event", "adapter.error", "error", err)
		return nil, fmt.Errorf("build metadata: %w", err)
	}
	events, err := ad.Events(doc)
	if err != nil {
		log.Error("build events failed", "event", "adapter.error", "error", err)
		return nil, fmt.Errorf("build events: %w", err)
	}
	if err := checkDeclared(md, events); err != nil {
		log.Error("metadata and events disagree", "event", "adapter.error", "error", err)
		return nil, err
	}
	report.Events = len(events)

	agentAddr, err := run.MeasurementAgent(ctx, p.Resolver)
	if err != nil {
		log.Error("measurement agent unresolved", "event", "agent.error",
			"destination", run.InputDestination, "error", err)
		return nil, err
	}
	md.MeasurementAgent = agentAddr
	log.Debug("measurement agent resolved", "event", "agent.resolved", "agent", agentAddr)

	h, err := p.Writer.CreateMetadata(ctx, md)
	if err != nil {
		log.Error("metadata not created, events dropped", "event", "archive.metadata", "error", err)
		return nil, err
	}
	report.MetadataKey = h.Key
	report.URI = h.URI
	mdAttrs := []any{"event", "archive.metadata", "metadata_key", h.Key, "uri", h.URI,
		"event_types", len(md.EventTypes())}
	for _, a := range md.Annotations() {
		mdAttrs = append(mdAttrs, a.Key, a.Value)
	}
	log.Info("metadata created", mdAttrs...)

	if err := p.Writer.AppendEvents(ctx, h, events); err != nil {
		log.Warn("bulk append failed, metadata kept", "event", "archive.bulk",
			"metadata_key", h.Key, "error", err)
		report.BulkErr = err
		return report, nil
	}

	attrs := []any{"event", "archive.bulk", "metadata_key", h.Key, "events", len(events)}
	if bps, ok := throughput(events); ok {
		attrs = append(attrs, "throughput", humanize.SIWithDigits(bps, 2, "bps"))
	}
	log.Info("events archived", attrs...)

	return report, nil
}

// checkDeclared reports an event whose type the metadata does not declare.
func checkDeclared(md *archive.Metadata, events []archive.Event) error {
	for _, ev := range events {
		if !md.HasEventType(ev.Type) {
			return fmt.Errorf("event type %q not declared in metadata", ev.Type)
		}
	}
	return nil
}

// throughput returns the run's aggregate throughput event value.
func throughput(events []archive.Event) (float64, bool) {
	for _, ev := range events {
		if ev.Type != archive.Throughput {
			continue
		}
		n, ok := ev.Value.(json.Number)
		if !ok {
			return 0, false
		}
		v, err := n.Float64()
		return v, err == nil
	}
	return 0, false
}
