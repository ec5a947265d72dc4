package snapshot

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
	"sync"
)

// The full-fidelity codec is gob plus an explicit type registry. A process
// that has registered a type can round-trip values of that type verbatim;
// a process that has not still carries the encoded bytes through a
// load/save cycle untouched.

var (
	typeMu   sync.RWMutex
	typeByID = make(map[string]reflect.Type)
)

// RegisterType makes the sample's concrete type available to the
// full-fidelity codec, for both the capture-time probe and Materialize on
// load. It is the analog of installing the optional rich serializer.
func RegisterType(sample any) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return
	}
	gob.Register(sample)
	typeMu.Lock()
	typeByID[typeID(t)] = t
	typeMu.Unlock()
}

// RegisteredType looks up a previously registered type by its name.
func RegisteredType(name string) (reflect.Type, bool) {
	typeMu.RLock()
	t, ok := typeByID[name]
	typeMu.RUnlock()
	return t, ok
}

func typeID(t reflect.Type) string {
	if t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// EncodeRaw serializes v in isolation with the full-fidelity codec and
// returns its registered type name and bytes. It fails when the value's
// type is not registered or gob cannot represent it (functions, channels,
// values holding either).
func EncodeRaw(v any) (string, []byte, error) {
	t := reflect.TypeOf(v)
	if t == nil {
		return "", nil, fmt.Errorf("snapshot: cannot encode nil verbatim")
	}
	name := typeID(t)
	if _, ok := RegisteredType(name); !ok {
		return "", nil, fmt.Errorf("snapshot: type %s not registered", name)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return "", nil, fmt.Errorf("snapshot: encode %s: %w", name, err)
	}
	return name, buf.Bytes(), nil
}

// DecodeRaw decodes bytes produced by EncodeRaw back into a value of the
// named type. It fails when the type is not registered in this process.
func DecodeRaw(typeName string, data []byte) (any, error) {
	t, ok := RegisteredType(typeName)
	if !ok {
		return nil, fmt.Errorf("snapshot: type %s not registered", typeName)
	}
	out := reflect.New(t)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(out.Interface()); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", typeName, err)
	}
	return out.Elem().Interface(), nil
}
