package snapshot

import (
	"fmt"
	"strings"
	"time"
)

// ValueKind discriminates the variants of a sanitized Value.
type ValueKind int

const (
	// KindNil is an absent or nil value.
	KindNil ValueKind = iota
	// KindBool through KindDuration are primitive kinds stored inline.
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindTime
	KindDuration
	// KindSeq is an ordered sequence with independently sanitized elements.
	KindSeq
	// KindSet is an unordered collection with independently sanitized elements.
	KindSet
	// KindMap is a key/value mapping with both sides independently sanitized.
	KindMap
	// KindObject is a lightweight stand-in for a rich object: its textual
	// description plus a sanitized copy of its attributes.
	KindObject
	// KindVerbatim carries the original value, serialized in isolation by
	// the full-fidelity codec.
	KindVerbatim
	// KindFallback is the textual description used when a value could not
	// be preserved any other way.
	KindFallback
)

// String returns the kind name.
func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTime:
		return "time"
	case KindDuration:
		return "duration"
	case KindSeq:
		return "seq"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindObject:
		return "object"
	case KindVerbatim:
		return "verbatim"
	case KindFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// MapEntry is one sanitized key/value pair of a KindMap value.
type MapEntry struct {
	Key Value `json:"key"`
	Val Value `json:"val"`
}

// Value is a sanitized variable binding. It is a tagged union: exactly the
// fields relevant to Kind are set. Every field is a concrete type, so a
// Value serializes identically under the full and the restricted codec and
// never holds a reference back into the live process.
type Value struct {
	Kind ValueKind `json:"kind"`

	Bool  bool          `json:"bool,omitempty"`
	Int   int64         `json:"int,omitempty"`
	Uint  uint64        `json:"uint,omitempty"`
	Float float64       `json:"float,omitempty"`
	Str   string        `json:"str,omitempty"`
	Bytes []byte        `json:"bytes,omitempty"`
	Time  time.Time     `json:"time,omitzero"`
	Dur   time.Duration `json:"dur,omitempty"`

	// Elems holds the elements of a KindSeq or KindSet value.
	Elems []Value `json:"elems,omitempty"`
	// Entries holds the pairs of a KindMap value.
	Entries []MapEntry `json:"entries,omitempty"`

	// Repr is the textual description of a KindObject or KindFallback value.
	Repr string `json:"repr,omitempty"`
	// Attrs holds the sanitized attributes of a KindObject stand-in.
	Attrs map[string]Value `json:"attrs,omitempty"`

	// RawType and Raw carry a KindVerbatim value: the registered type name
	// and the value's bytes as encoded by the full-fidelity codec.
	RawType string `json:"raw_type,omitempty"`
	Raw     []byte `json:"raw,omitempty"`
}

// Nil returns the nil Value.
func Nil() Value { return Value{Kind: KindNil} }

// Fallback returns a textual-fallback Value with the given description.
func Fallback(repr string) Value { return Value{Kind: KindFallback, Repr: repr} }

// Materialize decodes a KindVerbatim value back into a live Go value. It
// reports false when the value is not verbatim or its type is not
// registered in this process.
func (v Value) Materialize() (any, bool) {
	if v.Kind != KindVerbatim {
		return nil, false
	}
	out, err := DecodeRaw(v.RawType, v.Raw)
	if err != nil {
		return nil, false
	}
	return out, true
}

// String renders the value for display in the debugger.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindUint:
		return fmt.Sprintf("%d", v.Uint)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindBytes:
		return fmt.Sprintf("[%d bytes]", len(v.Bytes))
	case KindTime:
		return v.Time.Format(time.RFC3339Nano)
	case KindDuration:
		return v.Dur.String()
	case KindSeq:
		return renderElems("[", v.Elems, "]")
	case KindSet:
		return renderElems("{", v.Elems, "}")
	case KindMap:
		var b strings.Builder
		b.WriteString("{")
		for i, e := range v.Entries {
			if i > 0 {
				b.WriteString(", ")
			}
			if i == maxRenderElems {
				fmt.Fprintf(&b, "... %d more", len(v.Entries)-i)
				break
			}
			b.WriteString(e.Key.String())
			b.WriteString(": ")
			b.WriteString(e.Val.String())
		}
		b.WriteString("}")
		return b.String()
	case KindObject:
		return v.Repr
	case KindVerbatim:
		if live, ok := v.Materialize(); ok {
			return fmt.Sprintf("%v", live)
		}
		return fmt.Sprintf("<%s (opaque)>", v.RawType)
	case KindFallback:
		return v.Repr
	default:
		return fmt.Sprintf("<unknown kind %d>", int(v.Kind))
	}
}

const maxRenderElems = 8

func renderElems(open string, elems []Value, closing string) string {
	var b strings.Builder
	b.WriteString(open)
	for i, e := range elems {
		if i > 0 {
			b.WriteString(", ")
		}
		if i == maxRenderElems {
			fmt.Fprintf(&b, "... %d more", len(elems)-i)
			break
		}
		b.WriteString(e.String())
	}
	b.WriteString(closing)
	return b.String()
}
