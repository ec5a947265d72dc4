// Package instrumentation lets a host program expose variable bindings for
// capture. Go offers no runtime introspection of another frame's locals, so
// functions that want their state in a crash dump open a scope and bind the
// variables worth keeping. Scopes are tracked per goroutine; the capture
// pipeline merges them with the runtime call stack by function name.
package instrumentation

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// Scope is one open frame scope: the fully qualified function name and the
// bindings made inside it.
type Scope struct {
	Func string
	Vars map[string]any
}

// maxUnwound bounds the per-goroutine retention of closed scopes.
const maxUnwound = 64

var (
	mu     sync.Mutex
	stacks = map[int64][]*Scope{}
	// unwound retains scopes closed during stack unwinding. A panic runs
	// every deferred closer before any recover handler can capture, so the
	// closers park their scopes here instead of discarding them. The buffer
	// is stale the moment the goroutine makes a fresh instrumented call and
	// is cleared by the next Enter.
	unwound = map[int64][]*Scope{}

	globalsMu sync.RWMutex
	globals   = map[string]any{}
)

// Enter opens a scope for the calling function and returns the function
// that closes it. The conventional use is:
//
//	defer instrumentation.Enter()()
func Enter() func() {
	fn := "unknown"
	if pc, _, _, ok := runtime.Caller(1); ok {
		if f := runtime.FuncForPC(pc); f != nil {
			fn = f.Name()
		}
	}
	gid := goroutineID()
	s := &Scope{Func: fn, Vars: map[string]any{}}

	mu.Lock()
	delete(unwound, gid)
	stacks[gid] = append(stacks[gid], s)
	mu.Unlock()

	return func() {
		mu.Lock()
		defer mu.Unlock()
		stack := stacks[gid]
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == s {
				stacks[gid] = append(stack[:i], stack[i+1:]...)
				break
			}
		}
		if len(stacks[gid]) == 0 {
			delete(stacks, gid)
		}
		if len(unwound[gid]) < maxUnwound {
			unwound[gid] = append(unwound[gid], s)
		}
	}
}

// Bind records a local binding in the innermost open scope of the calling
// goroutine. It is a no-op when no scope is open.
func Bind(name string, v any) {
	gid := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	stack := stacks[gid]
	if len(stack) == 0 {
		return
	}
	stack[len(stack)-1].Vars[name] = v
}

// RegisterGlobal records a package-level binding included in every captured
// frame's globals.
func RegisterGlobal(name string, v any) {
	globalsMu.Lock()
	globals[name] = v
	globalsMu.Unlock()
}

// Globals returns a copy of the registered global bindings.
func Globals() map[string]any {
	globalsMu.RLock()
	defer globalsMu.RUnlock()
	out := make(map[string]any, len(globals))
	for k, v := range globals {
		out[k] = v
	}
	return out
}

// Scopes returns a copy of the calling goroutine's open scopes, outermost
// first.
func Scopes() []Scope {
	gid := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	stack := stacks[gid]
	out := make([]Scope, 0, len(stack))
	for _, s := range stack {
		vars := make(map[string]any, len(s.Vars))
		for k, v := range s.Vars {
			vars[k] = v
		}
		out = append(out, Scope{Func: s.Func, Vars: vars})
	}
	return out
}

// Unwound returns a copy of the calling goroutine's retained closed scopes,
// innermost first. The closers run innermost first while a panic unwinds, so
// during a recover-time capture the buffer mirrors the frames still visible
// on the runtime stack.
func Unwound() []Scope {
	gid := goroutineID()
	mu.Lock()
	defer mu.Unlock()
	buf := unwound[gid]
	out := make([]Scope, 0, len(buf))
	for _, s := range buf {
		vars := make(map[string]any, len(s.Vars))
		for k, v := range s.Vars {
			vars[k] = v
		}
		out = append(out, Scope{Func: s.Func, Vars: vars})
	}
	return out
}

// goroutineID parses the current goroutine's id from its stack header. The
// header format ("goroutine N [...]") has been stable across Go releases.
func goroutineID() int64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseInt(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return -1
}
