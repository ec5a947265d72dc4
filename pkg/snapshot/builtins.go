package snapshot

// The predeclared (universe scope) identifiers play the role of the
// runtime's built-in namespace: bindings shadowing them are stripped from
// captured globals so a dump does not encode a redundant copy of the
// universe, and they are reinstated into every frame at load time so name
// lookups during debugging resolve as they would have live.

var builtinBindings = map[string]string{
	"bool":       "builtin type bool",
	"byte":       "builtin type byte",
	"complex64":  "builtin type complex64",
	"complex128": "builtin type complex128",
	"error":      "builtin type error",
	"float32":    "builtin type float32",
	"float64":    "builtin type float64",
	"int":        "builtin type int",
	"int8":       "builtin type int8",
	"int16":      "builtin type int16",
	"int32":      "builtin type int32",
	"int64":      "builtin type int64",
	"rune":       "builtin type rune",
	"string":     "builtin type string",
	"uint":       "builtin type uint",
	"uint8":      "builtin type uint8",
	"uint16":     "builtin type uint16",
	"uint32":     "builtin type uint32",
	"uint64":     "builtin type uint64",
	"uintptr":    "builtin type uintptr",
	"any":        "builtin type any",
	"comparable": "builtin type comparable",

	"true":  "builtin constant true",
	"false": "builtin constant false",
	"iota":  "builtin constant iota",
	"nil":   "builtin zero value nil",

	"append":  "builtin function append",
	"cap":     "builtin function cap",
	"clear":   "builtin function clear",
	"close":   "builtin function close",
	"complex": "builtin function complex",
	"copy":    "builtin function copy",
	"delete":  "builtin function delete",
	"imag":    "builtin function imag",
	"len":     "builtin function len",
	"make":    "builtin function make",
	"max":     "builtin function max",
	"min":     "builtin function min",
	"new":     "builtin function new",
	"panic":   "builtin function panic",
	"print":   "builtin function print",
	"println": "builtin function println",
	"real":    "builtin function real",
	"recover": "builtin function recover",
}

// IsBuiltinName reports whether name is a predeclared identifier.
func IsBuiltinName(name string) bool {
	_, ok := builtinBindings[name]
	return ok
}

// BuiltinBindings returns a fresh global-binding map for the predeclared
// identifiers, suitable for merging into a frame's globals at load time.
func BuiltinBindings() map[string]Value {
	out := make(map[string]Value, len(builtinBindings))
	for name, desc := range builtinBindings {
		out[name] = Value{Kind: KindObject, Repr: desc}
	}
	return out
}
