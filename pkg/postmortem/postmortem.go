// Package postmortem reopens a saved snapshot and re-presents it so a
// generic debugger accepts the reconstructed chain as a live call stack:
// archived sources go back into the process source cache, builtin bindings
// return to every frame, and the type-acceptance shim widens the debugger's
// frame/code/traceback predicates to the snapshot model.
package postmortem

import (
	"fmt"

	"github.com/lawnmowerlatte/debuglater/pkg/dump"
	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
	"github.com/lawnmowerlatte/debuglater/pkg/sourcecache"
)

// PostMortemFunc is the contract with the interactive debugger: any
// callable accepting a traceback-chain-shaped argument.
type PostMortemFunc func(top *snapshot.StackLink) error

// OpenOptions configures Open.
type OpenOptions struct {
	// ProjectRoot, when set, is temporarily added to the source search
	// path while the dump loads so relative references resolve against
	// the dump's original project root.
	ProjectRoot string
	// Chdir additionally makes ProjectRoot the working directory for the
	// duration of the load.
	Chdir bool
	// DumpOptions selects the persistence codecs.
	DumpOptions dump.Options
}

// DefaultOpenOptions returns the default open configuration.
func DefaultOpenOptions() OpenOptions {
	return OpenOptions{DumpOptions: dump.DefaultOptions()}
}

// Open loads the dump at path, prepares it for debugging, and hands the
// restored chain's outermost entry to pm.
func Open(path string, pm PostMortemFunc) error {
	return OpenWithOptions(path, pm, DefaultOpenOptions())
}

// OpenWithOptions is Open with explicit options.
func OpenWithOptions(path string, pm PostMortemFunc, opts OpenOptions) error {
	var d *snapshot.Dump
	err := WithSearchPath(opts.ProjectRoot, opts.Chdir, func() error {
		var loadErr error
		d, loadErr = dump.LoadWithOptions(path, opts.DumpOptions)
		return loadErr
	})
	if err != nil {
		return err
	}
	if d.Stack == nil {
		return fmt.Errorf("postmortem: dump %s contains no stack", path)
	}
	Prepare(d)
	if pm == nil {
		return nil
	}
	return pm(d.Stack)
}

// Prepare installs the session-scoped process state for debugging d:
// archived sources (re-populating, not merging, the source cache, with
// invalidation disabled so on-disk edits cannot contradict the capture),
// builtin bindings in every frame, and the acceptance shim. Calling it
// twice is idempotent for the shim and re-populates the source cache.
func Prepare(d *snapshot.Dump) {
	sourcecache.Install(d.Files)
	sourcecache.DisableInvalidation()
	injectBuiltins(d.Stack)
	InstallShim()
}

// injectBuiltins is the inverse of the capture-time stripping: every frame
// reachable from the chain gets the predeclared identifiers back in its
// globals. Captured bindings win over builtin ones.
func injectBuiltins(top *snapshot.StackLink) {
	builtins := snapshot.BuiltinBindings()
	for tb := top; tb != nil; tb = tb.Next {
		for f := tb.Frame; f != nil; f = f.Caller {
			if f.Globals == nil {
				f.Globals = make(map[string]snapshot.Value, len(builtins))
			}
			for name, val := range builtins {
				if _, exists := f.Globals[name]; !exists {
					f.Globals[name] = val
				}
			}
		}
	}
}
