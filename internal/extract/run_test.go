package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type countingResolver struct {
	calls int
	addr  string
	err   error
}

func (r *countingResolver) LocalAddr(_ context.Context, _ string) (string, error) {
	r.calls++
	return r.addr, r.err
}

func TestMeasurementAgentIsCached(t *testing.T) {
	run := &Run{ToolName: "iperf3", InputSource: "a", InputDestination: "b", Value: map[string]any{}}
	res := &countingResolver{addr: "192.0.2.10"}

	for i := 0; i < 3; i++ {
		addr, err := run.MeasurementAgent(context.Background(), res)
		if err != nil {
			t.Fatalf("MeasurementAgent: %v", err)
		}
		if addr != "192.0.2.10" {
			t.Errorf("addr = %q, want 192.0.2.10", addr)
		}
	}
	if res.calls != 1 {
		t.Errorf("resolver called %d times, want 1", res.calls)
	}
}

func TestMeasurementAgentErrorNotCached(t *testing.T) {
	run := &Run{InputDestination: "b"}
	res := &countingResolver{err: errors.New("boom")}

	if _, err := run.MeasurementAgent(context.Background(), res); err == nil {
		t.Fatal("expected error")
	}
	res.err = nil
	res.addr = "192.0.2.11"
	addr, err := run.MeasurementAgent(context.Background(), res)
	if err != nil {
		t.Fatalf("MeasurementAgent: %v", err)
	}
	if addr != "192.0.2.11" || res.calls != 2 {
		t.Errorf("addr = %q calls = %d, want retry after failure", addr, res.calls)
	}
}

func TestValidate(t *testing.T) {
	run := &Run{ToolName: "iperf3"}
	err := run.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"input source", "input destination", "payload"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateRequiresStructuredPayload(t *testing.T) {
	base := Run{ToolName: "iperf3", InputSource: "a", InputDestination: "b"}

	for _, v := range []any{map[string]any{}, []any{}} {
		run := base
		run.Value = v
		if err := run.Validate(); err != nil {
			t.Errorf("Validate(%T) = %v, want nil", v, err)
		}
	}
	for _, v := range []any{"42", true, 3.5} {
		run := base
		run.Value = v
		err := run.Validate()
		if err == nil || !strings.Contains(err.Error(), "JSON object or array") {
			t.Errorf("Validate(%T) = %v, want structured payload error", v, err)
		}
	}
}
