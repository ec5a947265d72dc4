package capture

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/mattn/go-isatty"

	"github.com/lawnmowerlatte/debuglater/pkg/dump"
)

// Failure is an in-flight failure being captured: the recovered panic
// value, if any, and the live frames at the failure point.
type Failure struct {
	Value  any
	Frames []LiveFrame
}

// CurrentFailure builds a failure context from the calling goroutine's
// stack. skip elides that many additional frames beyond CurrentFailure
// itself.
func CurrentFailure(recovered any, skip int) *Failure {
	return &Failure{
		Value:  recovered,
		Frames: Callers(skip + 1),
	}
}

// AndSave captures fc into a snapshot and writes it to path with default
// options. It is intended to be called from a host error-handling path.
func AndSave(path string, fc *Failure) error {
	return AndSaveWithOptions(path, fc, Options{}, dump.DefaultOptions())
}

// AndSaveWithOptions captures fc and writes it to path with explicit
// capture and persistence options.
func AndSaveWithOptions(path string, fc *Failure, opts Options, dopts dump.Options) error {
	if fc == nil {
		fc = CurrentFailure(nil, 1)
	}
	return dump.SaveWithOptions(path, New(fc.Frames, opts), dopts)
}

// PanicHook is the process-wide failure hook. Deferred at the top of a
// goroutine:
//
//	defer capture.PanicHook("crash.dump")
//
// it lets normal returns pass untouched; on a panic it prints the failure
// and stack to stderr, captures and saves a dump, then re-raises the panic
// so the crash proceeds as it would have. Interrupt signals never reach it,
// so user interrupts do not produce dumps.
func PanicHook(path string) {
	r := recover()
	if r == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "panic: %v\n\n%s", r, debug.Stack())

	notify("Failure caught, writing %s", path)
	fc := CurrentFailure(r, 1)
	if err := AndSave(path, fc); err != nil {
		fmt.Fprintf(os.Stderr, "debuglater: could not write dump: %v\n", err)
	} else {
		notify("To debug, run:\n  debuglater %s", path)
	}
	panic(r)
}

// notify prints a status line to stderr, red when it is a terminal.
func notify(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m\n", msg)
		return
	}
	fmt.Fprintln(os.Stderr, msg)
}
