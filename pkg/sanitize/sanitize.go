// Package sanitize converts arbitrary live values into snapshot Values that
// are guaranteed to survive serialization. Sanitization is total: it never
// panics and never returns a value holding a reference into the live
// process. Fidelity degrades gracefully, from the original value kept
// verbatim down to a textual description.
package sanitize

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// Mode selects how much fidelity the sanitizer may assume from the
// persistence layer.
type Mode int

const (
	// FullFidelity probes each value against the rich codec and keeps it
	// verbatim when the probe succeeds.
	FullFidelity Mode = iota
	// Restricted assumes only built-in kinds survive persistence and
	// rebuilds containers structurally.
	Restricted
)

// DefaultMaxDepth bounds recursion into containers and object attributes,
// which also keeps sanitization finite on cyclic object graphs.
const DefaultMaxDepth = 16

// Opaque marks a value that already degraded at its source (for example an
// unreadable remote variable). The sanitizer maps it straight to a textual
// fallback carrying Repr.
type Opaque struct {
	Repr string
}

// Describer lets a value provide its own stand-in description and attribute
// set, used by the object stand-in strategy before reflection.
type Describer interface {
	DescribeValue() (repr string, attrs map[string]any)
}

// Sanitizer applies a ranked list of conversion strategies to each value:
// primitive pass-through, verbatim probe (full-fidelity mode only),
// structural container rebuild, object stand-in, textual fallback. The
// first strategy that succeeds wins.
type Sanitizer struct {
	mode     Mode
	maxDepth int
}

// New returns a Sanitizer for the given mode with the default depth bound.
func New(mode Mode) *Sanitizer {
	return &Sanitizer{mode: mode, maxDepth: DefaultMaxDepth}
}

// NewWithDepth returns a Sanitizer with an explicit depth bound.
func NewWithDepth(mode Mode, maxDepth int) *Sanitizer {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Sanitizer{mode: mode, maxDepth: maxDepth}
}

// Mode returns the sanitizer's fidelity mode.
func (s *Sanitizer) Mode() Mode { return s.mode }

// Sanitize converts v into a snapshot Value. It always returns; any panic
// raised by the value's own methods or by reflection degrades to a textual
// fallback.
func (s *Sanitizer) Sanitize(v any) (out snapshot.Value) {
	defer func() {
		if r := recover(); r != nil {
			out = snapshot.Fallback(fmt.Sprintf("sanitize error: %v", r))
		}
	}()
	return s.sanitize(v, 0)
}

func (s *Sanitizer) sanitize(v any, depth int) snapshot.Value {
	if v == nil {
		return snapshot.Nil()
	}
	if op, ok := v.(Opaque); ok {
		return snapshot.Fallback(op.Repr)
	}
	if depth > s.maxDepth {
		return snapshot.Fallback(SafeRepr(v))
	}

	if val, ok := primitive(v); ok {
		return val
	}
	if s.mode == FullFidelity {
		if val, ok := verbatim(v); ok {
			return val
		}
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return snapshot.Nil()
		}
		rv = rv.Elem()
	}

	if val, ok := s.container(rv, depth); ok {
		return val
	}
	if val, ok := s.standIn(v, rv, depth); ok {
		return val
	}
	return snapshot.Fallback(SafeRepr(v))
}

// primitive handles the kinds that pass through unchanged in every mode.
func primitive(v any) (snapshot.Value, bool) {
	switch x := v.(type) {
	case bool:
		return snapshot.Value{Kind: snapshot.KindBool, Bool: x}, true
	case int:
		return snapshot.Value{Kind: snapshot.KindInt, Int: int64(x)}, true
	case int8:
		return snapshot.Value{Kind: snapshot.KindInt, Int: int64(x)}, true
	case int16:
		return snapshot.Value{Kind: snapshot.KindInt, Int: int64(x)}, true
	case int32:
		return snapshot.Value{Kind: snapshot.KindInt, Int: int64(x)}, true
	case int64:
		return snapshot.Value{Kind: snapshot.KindInt, Int: x}, true
	case uint:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: uint64(x)}, true
	case uint8:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: uint64(x)}, true
	case uint16:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: uint64(x)}, true
	case uint32:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: uint64(x)}, true
	case uint64:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: x}, true
	case uintptr:
		return snapshot.Value{Kind: snapshot.KindUint, Uint: uint64(x)}, true
	case float32:
		return snapshot.Value{Kind: snapshot.KindFloat, Float: float64(x)}, true
	case float64:
		return snapshot.Value{Kind: snapshot.KindFloat, Float: x}, true
	case string:
		return snapshot.Value{Kind: snapshot.KindString, Str: x}, true
	case []byte:
		return snapshot.Value{Kind: snapshot.KindBytes, Bytes: append([]byte(nil), x...)}, true
	case time.Time:
		// Round strips the monotonic clock reading, which does not
		// survive serialization.
		return snapshot.Value{Kind: snapshot.KindTime, Time: x.Round(0)}, true
	case time.Duration:
		return snapshot.Value{Kind: snapshot.KindDuration, Dur: x}, true
	}
	return snapshot.Value{}, false
}

// verbatim probes v against the full-fidelity codec and keeps it unchanged
// on success.
func verbatim(v any) (snapshot.Value, bool) {
	name, data, err := snapshot.EncodeRaw(v)
	if err != nil {
		return snapshot.Value{}, false
	}
	return snapshot.Value{Kind: snapshot.KindVerbatim, RawType: name, Raw: data}, true
}

// container rebuilds sequences, sets and mappings with every element
// sanitized independently.
func (s *Sanitizer) container(rv reflect.Value, depth int) (snapshot.Value, bool) {
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		elems := make([]snapshot.Value, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			elems = append(elems, s.sanitize(iface(rv.Index(i)), depth+1))
		}
		return snapshot.Value{Kind: snapshot.KindSeq, Elems: elems}, true
	case reflect.Map:
		// A map to empty structs is the conventional Go set.
		if rv.Type().Elem().Kind() == reflect.Struct && rv.Type().Elem().NumField() == 0 {
			elems := make([]snapshot.Value, 0, rv.Len())
			for _, k := range rv.MapKeys() {
				elems = append(elems, s.sanitize(iface(k), depth+1))
			}
			sortValues(elems)
			return snapshot.Value{Kind: snapshot.KindSet, Elems: elems}, true
		}
		entries := make([]snapshot.MapEntry, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			entries = append(entries, snapshot.MapEntry{
				Key: s.sanitize(iface(iter.Key()), depth+1),
				Val: s.sanitize(iface(iter.Value()), depth+1),
			})
		}
		// Map iteration order is random; sort for deterministic dumps.
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Key.String() < entries[j].Key.String()
		})
		return snapshot.Value{Kind: snapshot.KindMap, Entries: entries}, true
	}
	return snapshot.Value{}, false
}

// standIn builds a lightweight object substitute: the value's description
// plus a sanitized copy of its attributes. Values may supply both through
// Describer; otherwise exported struct fields are used. Failure falls back
// to the generic path.
func (s *Sanitizer) standIn(v any, rv reflect.Value, depth int) (val snapshot.Value, ok bool) {
	defer func() {
		if recover() != nil {
			val, ok = snapshot.Value{}, false
		}
	}()

	if d, isDesc := v.(Describer); isDesc {
		repr, attrs := d.DescribeValue()
		out := snapshot.Value{Kind: snapshot.KindObject, Repr: repr}
		if len(attrs) > 0 {
			out.Attrs = make(map[string]snapshot.Value, len(attrs))
			for name, av := range attrs {
				out.Attrs[name] = s.sanitize(av, depth+1)
			}
		}
		return out, true
	}

	if rv.Kind() != reflect.Struct {
		return snapshot.Value{}, false
	}
	out := snapshot.Value{Kind: snapshot.KindObject, Repr: SafeRepr(v)}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if out.Attrs == nil {
			out.Attrs = make(map[string]snapshot.Value)
		}
		out.Attrs[f.Name] = s.sanitize(iface(rv.Field(i)), depth+1)
	}
	return out, true
}

func iface(rv reflect.Value) any {
	if !rv.CanInterface() {
		return Opaque{Repr: fmt.Sprintf("<unexported %s>", rv.Type())}
	}
	return rv.Interface()
}

func sortValues(elems []snapshot.Value) {
	sort.Slice(elems, func(i, j int) bool {
		return elems[i].String() < elems[j].String()
	})
}
