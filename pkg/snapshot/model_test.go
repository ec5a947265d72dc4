package snapshot

import (
	"testing"
)

func chain(depth int) *StackLink {
	var head, prevLink *StackLink
	var caller *StackFrame
	for i := 0; i < depth; i++ {
		frame := &StackFrame{
			Code:    &CodeMeta{File: "/src/main.go", Name: "fn", FirstLine: 1},
			Locals:  map[string]Value{},
			Globals: map[string]Value{},
			Line:    10 + i,
			Caller:  caller,
		}
		link := &StackLink{Frame: frame, Line: frame.Line}
		if head == nil {
			head = link
		} else {
			prevLink.Next = link
		}
		prevLink = link
		caller = frame
	}
	return head
}

func TestDepthAndInnermost(t *testing.T) {
	top := chain(3)
	if got := top.Depth(); got != 3 {
		t.Errorf("Expected depth 3, got %d", got)
	}
	inner := top.Innermost()
	if inner == nil || inner.Next != nil {
		t.Fatalf("Innermost should be the terminal link")
	}
	if inner.Line != 12 {
		t.Errorf("Expected innermost line 12, got %d", inner.Line)
	}
	if len(top.Frames()) != 3 {
		t.Errorf("Expected 3 frames, got %d", len(top.Frames()))
	}
}

func TestValidateAcceptsWellFormedChain(t *testing.T) {
	if err := chain(4).Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
	var empty *StackLink
	if err := empty.Validate(); err != nil {
		t.Errorf("Nil chain should validate, got %v", err)
	}
}

func TestValidateRejectsLinkCycle(t *testing.T) {
	top := chain(2)
	top.Next.Next = top
	if err := top.Validate(); err == nil {
		t.Error("Expected cycle detection error")
	}
}

func TestValidateRejectsOutOfSyncCaller(t *testing.T) {
	top := chain(2)
	top.Next.Frame.Caller = nil
	if err := top.Validate(); err == nil {
		t.Error("Expected out-of-sync caller error")
	}
}

func TestBuiltinNames(t *testing.T) {
	for _, name := range []string{"len", "nil", "string", "recover"} {
		if !IsBuiltinName(name) {
			t.Errorf("Expected %q to be a builtin name", name)
		}
	}
	if IsBuiltinName("myVariable") {
		t.Error("myVariable should not be a builtin name")
	}
	bindings := BuiltinBindings()
	if _, ok := bindings["len"]; !ok {
		t.Error("BuiltinBindings should contain len")
	}
}

type point struct {
	X, Y int
}

func TestRawRoundTrip(t *testing.T) {
	RegisterType(point{})

	name, data, err := EncodeRaw(point{X: 3, Y: 4})
	if err != nil {
		t.Fatalf("EncodeRaw failed: %v", err)
	}
	out, err := DecodeRaw(name, data)
	if err != nil {
		t.Fatalf("DecodeRaw failed: %v", err)
	}
	if p, ok := out.(point); !ok || p != (point{X: 3, Y: 4}) {
		t.Errorf("Round trip mismatch: %#v", out)
	}
}

func TestEncodeRawRejectsUnregistered(t *testing.T) {
	type hidden struct{ N int }
	if _, _, err := EncodeRaw(hidden{N: 1}); err == nil {
		t.Error("Expected error for unregistered type")
	}
}

func TestMaterialize(t *testing.T) {
	RegisterType(point{})
	name, data, err := EncodeRaw(point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("EncodeRaw failed: %v", err)
	}
	v := Value{Kind: KindVerbatim, RawType: name, Raw: data}
	live, ok := v.Materialize()
	if !ok {
		t.Fatal("Materialize should succeed for a registered type")
	}
	if live.(point) != (point{X: 1, Y: 2}) {
		t.Errorf("Materialize mismatch: %#v", live)
	}

	opaque := Value{Kind: KindVerbatim, RawType: "nowhere.Type", Raw: data}
	if _, ok := opaque.Materialize(); ok {
		t.Error("Materialize should fail for an unregistered type")
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		val  Value
		want string
	}{
		{Nil(), "nil"},
		{Value{Kind: KindInt, Int: -7}, "-7"},
		{Value{Kind: KindString, Str: "hi"}, `"hi"`},
		{Fallback("repr error: boom"), "repr error: boom"},
		{Value{Kind: KindSeq, Elems: []Value{{Kind: KindInt, Int: 1}, {Kind: KindInt, Int: 2}}}, "[1, 2]"},
		{Value{Kind: KindObject, Repr: "<order #42>"}, "<order #42>"},
	}
	for _, tc := range cases {
		if got := tc.val.String(); got != tc.want {
			t.Errorf("String() = %q, want %q", got, tc.want)
		}
	}
}
