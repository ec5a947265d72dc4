package capture

import (
	"runtime"
	"strings"

	"github.com/lawnmowerlatte/debuglater/pkg/instrumentation"
)

const maxStackDepth = 128

// Callers returns the calling goroutine's stack as live frames, innermost
// first. Locals come from open instrumentation scopes, matched to runtime
// frames by fully qualified function name; globals come from the
// instrumentation registry. Runtime-internal frames are elided.
func Callers(skip int) []LiveFrame {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip+2, pcs)
	if n == 0 {
		return nil
	}
	iter := runtime.CallersFrames(pcs[:n])

	scopes := instrumentation.Scopes()
	nextScope := len(scopes) - 1
	// When capture runs from a recover handler the deferred scope closers
	// have already fired; the frames are still on the runtime stack but
	// their scopes live in the unwind buffer.
	closed := instrumentation.Unwound()
	nextClosed := 0
	globals := instrumentation.Globals()

	var out []LiveFrame
	for {
		fr, more := iter.Next()
		if fr.Function != "" && !isRuntimeInternal(fr.Function) {
			lf := LiveFrame{
				Code:    liveCodeFor(fr),
				Line:    fr.Line,
				Locals:  map[string]any{},
				Globals: globals,
			}
			// Innermost unconsumed scope with this function name, open
			// scopes first, then the unwind buffer.
			matched := false
			for i := nextScope; i >= 0; i-- {
				if scopes[i].Func == fr.Function {
					lf.Locals = scopes[i].Vars
					nextScope = i - 1
					matched = true
					break
				}
			}
			for i := nextClosed; !matched && i < len(closed); i++ {
				if closed[i].Func == fr.Function {
					lf.Locals = closed[i].Vars
					nextClosed = i + 1
					matched = true
				}
			}
			out = append(out, lf)
		}
		if !more {
			break
		}
	}
	return out
}

func liveCodeFor(fr runtime.Frame) LiveCode {
	lc := LiveCode{
		File: fr.File,
		Name: fr.Function,
	}
	if fr.Func != nil {
		entry := fr.Func.Entry()
		lc.Key = pcKey(entry)
		_, lc.FirstLine = fr.Func.FileLine(entry)
	} else {
		// Inlined frame: no Func, key on location instead.
		lc.Key = "loc:" + fr.File + ":" + fr.Function
		lc.FirstLine = fr.Line
	}
	return lc
}

func isRuntimeInternal(fn string) bool {
	if !strings.HasPrefix(fn, "runtime.") {
		return false
	}
	// runtime.main and runtime.goexit terminate every stack; everything
	// else under runtime. is panic/scheduler plumbing.
	return fn != "runtime.main"
}
