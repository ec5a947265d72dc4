package postmortem

import (
	"reflect"
	"runtime"
	"sync"

	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// The shim is explicit, process-wide, session-scoped state. Debuggers
// classify the objects handed to them through the Is* predicates below;
// installing the shim widens those predicates so the snapshot model's
// structural equivalents pass alongside the runtime's native types. The
// shim is purely additive and normally stays installed for the remainder
// of the process; UninstallShim exists for hosts that want the teardown.

var (
	shimMu         sync.RWMutex
	frameTypes     = map[reflect.Type]bool{}
	codeTypes      = map[reflect.Type]bool{}
	tracebackTypes = map[reflect.Type]bool{}
	objectTypes    = map[reflect.Type]bool{}
)

// InstallShim registers the snapshot model types with the acceptance
// predicates. Calling it again is a no-op.
func InstallShim() {
	AcceptFrameType(reflect.TypeOf(&snapshot.StackFrame{}))
	AcceptCodeType(reflect.TypeOf(&snapshot.CodeMeta{}))
	AcceptTracebackType(reflect.TypeOf(&snapshot.StackLink{}))
	AcceptObjectType(reflect.TypeOf(snapshot.Value{}))
}

// UninstallShim removes every registered acceptance, restoring the
// native-only predicates.
func UninstallShim() {
	shimMu.Lock()
	defer shimMu.Unlock()
	frameTypes = map[reflect.Type]bool{}
	codeTypes = map[reflect.Type]bool{}
	tracebackTypes = map[reflect.Type]bool{}
	objectTypes = map[reflect.Type]bool{}
}

// AcceptFrameType widens IsFrame to accept t.
func AcceptFrameType(t reflect.Type) {
	shimMu.Lock()
	frameTypes[t] = true
	shimMu.Unlock()
}

// AcceptCodeType widens IsCode to accept t.
func AcceptCodeType(t reflect.Type) {
	shimMu.Lock()
	codeTypes[t] = true
	shimMu.Unlock()
}

// AcceptTracebackType widens IsTraceback to accept t.
func AcceptTracebackType(t reflect.Type) {
	shimMu.Lock()
	tracebackTypes[t] = true
	shimMu.Unlock()
}

// AcceptObjectType widens IsObjectStandIn to accept t.
func AcceptObjectType(t reflect.Type) {
	shimMu.Lock()
	objectTypes[t] = true
	shimMu.Unlock()
}

// IsFrame reports whether v is a native activation record or a registered
// structural equivalent.
func IsFrame(v any) bool {
	switch v.(type) {
	case runtime.Frame, *runtime.Frame:
		return true
	}
	return registered(frameTypes, v)
}

// IsCode reports whether v is a native code unit or a registered
// structural equivalent.
func IsCode(v any) bool {
	switch v.(type) {
	case *runtime.Func:
		return true
	}
	return registered(codeTypes, v)
}

// IsTraceback reports whether v is a native stack iterator or a registered
// structural equivalent.
func IsTraceback(v any) bool {
	switch v.(type) {
	case *runtime.Frames:
		return true
	}
	return registered(tracebackTypes, v)
}

// IsObjectStandIn reports whether v is a registered object stand-in, such
// as a sanitized snapshot value.
func IsObjectStandIn(v any) bool {
	return registered(objectTypes, v)
}

func registered(set map[reflect.Type]bool, v any) bool {
	if v == nil {
		return false
	}
	shimMu.RLock()
	defer shimMu.RUnlock()
	return set[reflect.TypeOf(v)]
}
