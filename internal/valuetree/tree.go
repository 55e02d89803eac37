// Package valuetree provides a read-only, schema-tolerant view over a decoded
// JSON value. Nested mappings and sequences are wrapped on access, missing
// fields yield a Null node instead of an error, and any field named "time" is
// coerced to a time.Time. The whole tree is validated once by Wrap so that a
// malformed "time" value fails up front rather than on first access.
package valuetree

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"time"
)

// TimeField is the field name whose values are coerced to timestamps.
const TimeField = "time"

// TimeLayout is the string layout iperf3 uses for start.timestamp.time.
const TimeLayout = time.RFC1123

// ErrWrapping is returned when the decoded value violates the tree's invariants.
var ErrWrapping = errors.New("malformed value tree")

// Kind identifies the shape of a Node.
type Kind int

const (
	Null Kind = iota
	Scalar
	Time
	Sequence
	Mapping
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Scalar:
		return "scalar"
	case Time:
		return "time"
	case Sequence:
		return "sequence"
	case Mapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Node is an immutable view over one value of the decoded tree.
// The zero Node is Null.
type Node struct {
	kind Kind
	raw  any
	ts   time.Time
}

// Wrap validates root and returns a Node over it.
// Every nested value is derived once to check shape; the results are discarded.
func Wrap(root any) (Node, error) {
	if err := validate("", "", root); err != nil {
		return Node{}, err
	}
	n, _ := derive("", root)
	return n, nil
}

func validate(path, name string, v any) error {
	if _, err := derive(name, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrapping, displayPath(path), err)
	}
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if err := validate(joinPath(path, k), k, child); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range t {
			if err := validate(path+"["+strconv.Itoa(i)+"]", "", child); err != nil {
				return err
			}
		}
	}
	return nil
}

// derive builds the node for value v found under field name.
func derive(name string, v any) (Node, error) {
	if name == TimeField {
		ts, err := coerceTime(v)
		if err != nil {
			return Node{}, err
		}
		return Node{kind: Time, raw: v, ts: ts}, nil
	}
	switch v.(type) {
	case nil:
		return Node{}, nil
	case map[string]any:
		return Node{kind: Mapping, raw: v}, nil
	case []any:
		return Node{kind: Sequence, raw: v}, nil
	default:
		return Node{kind: Scalar, raw: v}, nil
	}
}

func coerceTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case string:
		ts, err := time.Parse(TimeLayout, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("time %q: %w", t, err)
		}
		return ts.UTC(), nil
	case json.Number:
		secs, err := t.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("time %s is not an integer", t)
		}
		return time.Unix(secs, 0).UTC(), nil
	case float64:
		if t != math.Trunc(t) {
			return time.Time{}, fmt.Errorf("time %v is not an integer", t)
		}
		return time.Unix(int64(t), 0).UTC(), nil
	case int:
		return time.Unix(int64(t), 0).UTC(), nil
	case int64:
		return time.Unix(t, 0).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("time has unsupported type %T", v)
	}
}

// Kind reports the node's shape.
func (n Node) Kind() Kind { return n.kind }

// IsNull reports whether the node is absent or JSON null.
func (n Node) IsNull() bool { return n.kind == Null }

// Raw returns the underlying decoded value, unchanged.
func (n Node) Raw() any { return n.raw }

// MarshalJSON encodes the underlying value.
func (n Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.raw)
}

// Get returns the named field of a mapping node.
// Missing fields and non-mapping receivers give a Null node.
func (n Node) Get(name string) Node {
	m, ok := n.raw.(map[string]any)
	if !ok || n.kind != Mapping {
		return Node{}
	}
	v, ok := m[name]
	if !ok {
		return Node{}
	}
	child, err := derive(name, v)
	if err != nil {
		// Wrap has already validated every field, so this is unreachable for
		// nodes obtained from it.
		return Node{}
	}
	return child
}

// Path follows a chain of field names.
func (n Node) Path(names ...string) Node {
	for _, name := range names {
		n = n.Get(name)
	}
	return n
}

// Has reports whether a mapping node carries the field, even if its value is null.
func (n Node) Has(name string) bool {
	m, ok := n.raw.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[name]
	return ok
}

// Keys returns the sorted field names of a mapping node.
func (n Node) Keys() []string {
	m, ok := n.raw.(map[string]any)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of elements of a sequence node, 0 otherwise.
func (n Node) Len() int {
	s, _ := n.raw.([]any)
	return len(s)
}

// Index returns element i of a sequence node, or Null when out of range.
func (n Node) Index(i int) Node {
	s, ok := n.raw.([]any)
	if !ok || i < 0 || i >= len(s) {
		return Node{}
	}
	child, _ := derive("", s[i])
	return child
}

// Items returns every element of a sequence node.
func (n Node) Items() []Node {
	s, ok := n.raw.([]any)
	if !ok {
		return nil
	}
	out := make([]Node, len(s))
	for i, v := range s {
		out[i], _ = derive("", v)
	}
	return out
}

// Time returns the coerced timestamp of a "time" field.
func (n Node) Time() (time.Time, bool) {
	if n.kind != Time {
		return time.Time{}, false
	}
	return n.ts, true
}

// Text returns the value of a string scalar.
func (n Node) Text() (string, bool) {
	if n.kind != Scalar {
		return "", false
	}
	s, ok := n.raw.(string)
	return s, ok
}

// Bool returns the value of a boolean scalar.
func (n Node) Bool() (bool, bool) {
	if n.kind != Scalar {
		return false, false
	}
	b, ok := n.raw.(bool)
	return b, ok
}

// Int returns the value of an integral numeric scalar.
func (n Node) Int() (int64, bool) {
	if n.kind != Scalar {
		return 0, false
	}
	switch t := n.raw.(type) {
	case json.Number:
		i, err := t.Int64()
		if err == nil {
			return i, true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	default:
		return 0, false
	}
}

// Float returns the value of a numeric scalar.
func (n Node) Float() (float64, bool) {
	if n.kind != Scalar {
		return 0, false
	}
	switch t := n.raw.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func displayPath(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}

// Decode parses a single JSON document, keeping numbers as json.Number so
// integer counters survive unchanged. Trailing data after the document is an
// error.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON document")
	}
	return v, nil
}
