package adapter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/bwingest/internal/archive"
	"github.com/ppiankov/bwingest/internal/extract"
	"github.com/ppiankov/bwingest/internal/valuetree"
)

// Transport protocols reported in start.test_start.protocol, lower-cased.
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// Free-form metadata keys.
const (
	KeyParallelStreams   = "bw-parallel-streams"
	KeyIgnoreFirstSecond = "bw-ignore-first-seconds"
)

// IPerf3 maps iperf3 --json output.
type IPerf3 struct{}

// Tool implements Adapter.
func (IPerf3) Tool() string { return "iperf3" }

// iperf3Test is the part of start.test_start every mapping step needs.
type iperf3Test struct {
	protocol string
	streams  int64
	ts       time.Time
}

func (t iperf3Test) multiStream() bool { return t.streams > 1 }

func parseTest(doc valuetree.Node) (iperf3Test, error) {
	start := doc.Get("start")
	testStart := start.Get("test_start")
	if testStart.Kind() != valuetree.Mapping {
		return iperf3Test{}, fmt.Errorf("%w: start.test_start is missing", ErrIncompletePayload)
	}

	proto, ok := testStart.Get("protocol").Text()
	if !ok || proto == "" {
		return iperf3Test{}, fmt.Errorf("%w: start.test_start.protocol is missing", ErrIncompletePayload)
	}

	streams := int64(1)
	if n, ok := testStart.Get("num_streams").Int(); ok {
		streams = n
	}

	ts, ok := start.Path("timestamp", "time").Time()
	if !ok {
		return iperf3Test{}, fmt.Errorf("%w: start.timestamp.time is missing", ErrIncompletePayload)
	}

	return iperf3Test{
		protocol: strings.ToLower(proto),
		streams:  streams,
		ts:       ts,
	}, nil
}

// Metadata implements Adapter.
func (a IPerf3) Metadata(doc valuetree.Node, run *extract.Run) (*archive.Metadata, error) {
	test, err := parseTest(doc)
	if err != nil {
		return nil, err
	}

	conn := doc.Path("start", "connected").Index(0)
	if conn.Kind() != valuetree.Mapping {
		return nil, fmt.Errorf("%w: start.connected is empty", ErrIncompletePayload)
	}
	source, _ := conn.Get("local_host").Text()
	dest, _ := conn.Get("remote_host").Text()

	testStart := doc.Path("start", "test_start")
	md := &archive.Metadata{
		SubjectType:       archive.SubjectPointToPoint,
		Source:            source,
		Destination:       dest,
		ToolName:          "bwctl/" + run.ToolName,
		InputSource:       run.InputSource,
		InputDestination:  run.InputDestination,
		TransportProtocol: test.protocol,
		Duration:          testStart.Get("duration").Raw(),
	}

	md.AddEventType(archive.Throughput)
	md.AddEventType(archive.ThroughputSubintervals)
	md.AddEventType(archive.PacketRetransmitsSubintervals)
	if test.multiStream() {
		md.AddEventType(archive.StreamsPacketRetransmits)
		md.AddEventType(archive.StreamsPacketRetransmitsSubinterval)
		md.AddEventType(archive.StreamsThroughput)
		md.AddEventType(archive.StreamsThroughputSubintervals)
	}
	switch test.protocol {
	case ProtocolTCP:
		md.AddEventType(archive.PacketRetransmits)
	case ProtocolUDP:
		md.AddEventType(archive.PacketCountLost)
		md.AddEventType(archive.PacketCountSent)
		md.AddEventType(archive.PacketLossRate)
	}

	md.Annotate(KeyParallelStreams, testStart.Get("num_streams").Raw())
	md.Annotate(KeyIgnoreFirstSecond, testStart.Get("omit").Raw())

	return md, nil
}

// Events implements Adapter.
func (a IPerf3) Events(doc valuetree.Node) ([]archive.Event, error) {
	test, err := parseTest(doc)
	if err != nil {
		return nil, err
	}

	var events []archive.Event
	add := func(eventType string, value any) {
		events = append(events, archive.Event{Type: eventType, Time: test.ts, Value: value})
	}

	end := doc.Get("end")
	intervals := doc.Get("intervals").Items()

	if test.protocol == ProtocolUDP {
		add(archive.Throughput, end.Path("sum", "bits_per_second").Raw())
	} else {
		add(archive.Throughput, end.Path("sum_received", "bits_per_second").Raw())
	}

	throughputs := make([]archive.Subinterval, len(intervals))
	for i, iv := range intervals {
		sum := iv.Get("sum")
		throughputs[i] = archive.Subinterval{
			Start:    sum.Get("start").Raw(),
			Duration: sum.Get("seconds").Raw(),
			Value:    sum.Get("bits_per_second").Raw(),
		}
	}
	add(archive.ThroughputSubintervals, throughputs)

	switch test.protocol {
	case ProtocolUDP:
		lost := end.Path("sum", "lost_packets")
		sent := end.Path("sum", "packets")
		if !lost.IsNull() {
			add(archive.PacketCountLost, lost.Raw())
		}
		if !sent.IsNull() {
			add(archive.PacketCountSent, sent.Raw())
		}
		if !lost.IsNull() && !sent.IsNull() {
			add(archive.PacketLossRate, archive.Ratio{Numerator: lost.Raw(), Denominator: sent.Raw()})
		}
	case ProtocolTCP:
		add(archive.PacketRetransmits, end.Path("sum_sent", "retransmits").Raw())
	}

	retransmits := make([]archive.Subinterval, len(intervals))
	for i, iv := range intervals {
		sum := iv.Get("sum")
		retransmits[i] = archive.Subinterval{
			Start:    sum.Get("start").Raw(),
			Duration: sum.Get("seconds").Raw(),
			Value:    sum.Get("retransmits").Raw(),
		}
	}
	add(archive.PacketRetransmitsSubintervals, retransmits)

	if test.multiStream() {
		a.addStreamEvents(add, test, end, intervals)
	}

	return events, nil
}

// addStreamEvents emits the streams-* values. Every sequence has one entry
// per declared stream; streams missing from the result are null.
func (IPerf3) addStreamEvents(add func(string, any), test iperf3Test, end valuetree.Node, intervals []valuetree.Node) {
	n := int(test.streams)
	streams := end.Get("streams")

	perStreamRetransmits := make([]any, n)
	perStreamThroughput := make([]any, n)
	for j := 0; j < n; j++ {
		s := streams.Index(j)
		perStreamRetransmits[j] = s.Path("sender", "retransmits").Raw()
		if test.protocol == ProtocolUDP {
			perStreamThroughput[j] = s.Path("udp", "bits_per_second").Raw()
		} else {
			perStreamThroughput[j] = s.Path("receiver", "bits_per_second").Raw()
		}
	}

	retransmitSubs := make([][]archive.StreamRetransmits, len(intervals))
	throughputSubs := make([][]archive.StreamThroughput, len(intervals))
	for i, iv := range intervals {
		ivStreams := iv.Get("streams")
		retransmitSubs[i] = make([]archive.StreamRetransmits, n)
		throughputSubs[i] = make([]archive.StreamThroughput, n)
		for j := 0; j < n; j++ {
			s := ivStreams.Index(j)
			retransmitSubs[i][j] = archive.StreamRetransmits{
				Start:       s.Get("start").Raw(),
				Duration:    s.Get("seconds").Raw(),
				Retransmits: s.Get("retransmits").Raw(),
			}
			throughputSubs[i][j] = archive.StreamThroughput{
				Start:      s.Get("start").Raw(),
				Duration:   s.Get("seconds").Raw(),
				Throughput: s.Get("bits_per_second").Raw(),
			}
		}
	}

	add(archive.StreamsPacketRetransmits, perStreamRetransmits)
	add(archive.StreamsPacketRetransmitsSubinterval, retransmitSubs)
	add(archive.StreamsThroughput, perStreamThroughput)
	add(archive.StreamsThroughputSubintervals, throughputSubs)
}
