package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// SubjectPointToPoint is the subject type of every bwctl measurement.
const SubjectPointToPoint = "point-to-point"

// Event types accepted by the archive.
const (
	Throughput                          = "throughput"
	ThroughputSubintervals              = "throughput-subintervals"
	PacketRetransmits                   = "packet-retransmits"
	PacketRetransmitsSubintervals       = "packet-retransmits-subintervals"
	PacketCountLost                     = "packet-count-lost"
	PacketCountSent                     = "packet-count-sent"
	PacketLossRate                      = "packet-loss-rate"
	StreamsPacketRetransmits            = "streams-packet-retransmits"
	StreamsPacketRetransmitsSubinterval = "streams-packet-retransmits-subintervals"
	StreamsThroughput                   = "streams-throughput"
	StreamsThroughputSubintervals       = "streams-throughput-subintervals"
)

// Annotation is a free-form metadata key/value pair.
type Annotation struct {
	Key   string
	Value any
}

// Metadata describes one run's fixed attributes and the event types it reports.
type Metadata struct {
	SubjectType       string
	Source            string
	Destination       string
	ToolName          string
	InputSource       string
	InputDestination  string
	MeasurementAgent  string
	TransportProtocol string
	Duration          any

	eventTypes  []string
	annotations []Annotation
}

// AddEventType declares an event type. Duplicates are ignored; order is kept.
func (m *Metadata) AddEventType(name string) {
	for _, et := range m.eventTypes {
		if et == name {
			return
		}
	}
	m.eventTypes = append(m.eventTypes, name)
}

// EventTypes returns the declared event types in declaration order.
func (m *Metadata) EventTypes() []string {
	return append([]string(nil), m.eventTypes...)
}

// HasEventType reports whether name was declared.
func (m *Metadata) HasEventType(name string) bool {
	for _, et := range m.eventTypes {
		if et == name {
			return true
		}
	}
	return false
}

// Annotate adds a free-form key/value pair. A repeated key replaces the
// earlier value in place.
func (m *Metadata) Annotate(key string, value any) {
	for i, a := range m.annotations {
		if a.Key == key {
			m.annotations[i].Value = value
			return
		}
	}
	m.annotations = append(m.annotations, Annotation{Key: key, Value: value})
}

// Annotations returns the free-form pairs in insertion order.
func (m *Metadata) Annotations() []Annotation {
	return append([]Annotation(nil), m.annotations...)
}

type eventTypeEntry struct {
	EventType string   `json:"event-type"`
	Summaries []string `json:"summaries"`
}

// MarshalJSON renders the esmond metadata document with keys in a stable,
// declaration-ordered layout.
func (m *Metadata) MarshalJSON() ([]byte, error) {
	entries := make([]eventTypeEntry, len(m.eventTypes))
	for i, et := range m.eventTypes {
		entries[i] = eventTypeEntry{EventType: et, Summaries: []string{}}
	}

	fields := []Annotation{
		{"subject-type", m.SubjectType},
		{"source", m.Source},
		{"destination", m.Destination},
		{"tool-name", m.ToolName},
		{"measurement-agent", m.MeasurementAgent},
		{"input-source", m.InputSource},
		{"input-destination", m.InputDestination},
		{"ip-transport-protocol", m.TransportProtocol},
		{"time-duration", m.Duration},
		{"event-types", entries},
	}
	fields = append(fields, m.annotations...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", f.Key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Event is one value of one event type.
type Event struct {
	Type  string
	Time  time.Time
	Value any
}

// Subinterval is a value reported over part of the run.
type Subinterval struct {
	Start    any `json:"start"`
	Duration any `json:"duration"`
	Value    any `json:"val"`
}

// StreamRetransmits is one stream's retransmit count within an interval.
type StreamRetransmits struct {
	Start       any `json:"start"`
	Duration    any `json:"duration"`
	Retransmits any `json:"retransmits"`
}

// StreamThroughput is one stream's throughput within an interval.
type StreamThroughput struct {
	Start      any `json:"start"`
	Duration   any `json:"duration"`
	Throughput any `json:"throughput"`
}

// Ratio is the value of a rate event type such as packet-loss-rate.
type Ratio struct {
	Numerator   any `json:"numerator"`
	Denominator any `json:"denominator"`
}

// Handle identifies a metadata record created in the archive.
type Handle struct {
	Key string `json:"metadata-key"`
	URI string `json:"uri"`
}
