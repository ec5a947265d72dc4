// Package capture deep-copies a live call stack into an inert snapshot.
// The pipeline is read-only with respect to the process under inspection
// and never fails a capture as a whole: unserializable values degrade to
// sanitized substitutes and unreadable source files to placeholder text.
package capture

import (
	"os"
	"path/filepath"
	"strconv"

	lru "github.com/hashicorp/golang-lru"

	"github.com/lawnmowerlatte/debuglater/pkg/sanitize"
	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// LiveCode is a capture source's view of one code unit.
type LiveCode struct {
	// Key deduplicates conversions of the same unit. Empty disables
	// caching for this unit.
	Key          string
	File         string
	Name         string
	ArgCount     int
	FirstLine    int
	VarNames     []string
	Flags        uint32
	Instructions []byte
	Lines        []snapshot.LineRange
	Consts       []*LiveCode
}

// LiveFrame is a capture source's view of one activation record.
type LiveFrame struct {
	Code    LiveCode
	Line    int
	Locals  map[string]any
	Globals map[string]any
}

// Options configures a capture.
type Options struct {
	// Sanitizer converts variable bindings. Defaults to a full-fidelity
	// sanitizer.
	Sanitizer *sanitize.Sanitizer
	// ReadFile reads source files for the archive. Defaults to
	// os.ReadFile.
	ReadFile func(path string) ([]byte, error)
}

func (o Options) withDefaults() Options {
	if o.Sanitizer == nil {
		o.Sanitizer = sanitize.New(sanitize.FullFidelity)
	}
	if o.ReadFile == nil {
		o.ReadFile = os.ReadFile
	}
	return o
}

// codeCache keeps converted CodeMeta across captures, one conversion per
// distinct code unit. Entries are immutable and safely shared.
var codeCache, _ = lru.New(512)

// New builds a snapshot from live frames ordered innermost first. The link
// chain runs outermost to innermost and each frame's caller chain mirrors
// it in the opposite direction.
func New(frames []LiveFrame, opts Options) *snapshot.Dump {
	opts = opts.withDefaults()

	var head *snapshot.StackLink
	var deeper *snapshot.StackLink
	var caller *snapshot.StackFrame
	for i := len(frames) - 1; i >= 0; i-- {
		lf := frames[i]
		frame := &snapshot.StackFrame{
			Code:    convertCode(&lf.Code),
			Locals:  sanitizeBindings(opts.Sanitizer, lf.Locals),
			Globals: stripBuiltins(sanitizeBindings(opts.Sanitizer, lf.Globals)),
			Line:    lf.Line,
			Caller:  caller,
		}
		link := &snapshot.StackLink{Frame: frame, Line: lf.Line}
		if head == nil {
			head = link
		} else {
			deeper.Next = link
		}
		deeper = link
		caller = frame
	}

	return &snapshot.Dump{
		Stack:         head,
		Files:         collectSources(head, opts.ReadFile),
		FormatVersion: snapshot.FormatVersion,
	}
}

func convertCode(lc *LiveCode) *snapshot.CodeMeta {
	if lc.Key != "" {
		if cached, ok := codeCache.Get(lc.Key); ok {
			return cached.(*snapshot.CodeMeta)
		}
	}
	cm := &snapshot.CodeMeta{
		File:      absPath(lc.File),
		Name:      lc.Name,
		ArgCount:  lc.ArgCount,
		FirstLine: lc.FirstLine,
		Flags:     lc.Flags,
	}
	if len(lc.VarNames) > 0 {
		cm.VarNames = append([]string(nil), lc.VarNames...)
	}
	if len(lc.Instructions) > 0 {
		cm.Instructions = append([]byte(nil), lc.Instructions...)
	}
	if len(lc.Lines) > 0 {
		cm.Lines = append([]snapshot.LineRange(nil), lc.Lines...)
		cm.LineTable = packLineTable(lc.Lines)
	}
	for _, nested := range lc.Consts {
		cm.Consts = append(cm.Consts, convertCode(nested))
	}
	if lc.Key != "" {
		codeCache.Add(lc.Key, cm)
	}
	return cm
}

// packLineTable folds the fine-grained line map into the compact
// offset/line delta table carried by CodeMeta.
func packLineTable(lines []snapshot.LineRange) []byte {
	var table []byte
	prevEnd, prevLine := 0, 0
	for _, lr := range lines {
		table = append(table, byte(clampDelta(lr.Start-prevEnd)), byte(clampDelta(lr.Line-prevLine)))
		prevEnd = lr.Start
		prevLine = lr.Line
	}
	return table
}

func clampDelta(d int) int {
	if d < 0 {
		return 0
	}
	if d > 255 {
		return 255
	}
	return d
}

func sanitizeBindings(s *sanitize.Sanitizer, vars map[string]any) map[string]snapshot.Value {
	out := make(map[string]snapshot.Value, len(vars))
	for name, v := range vars {
		out[name] = s.Sanitize(v)
	}
	return out
}

// stripBuiltins drops global bindings shadowing predeclared identifiers so
// the dump does not encode a redundant copy of the universe scope. They are
// reinstated at load time.
func stripBuiltins(globals map[string]snapshot.Value) map[string]snapshot.Value {
	for name := range globals {
		if snapshot.IsBuiltinName(name) {
			delete(globals, name)
		}
	}
	return globals
}

// collectSources is the second capture pass: every distinct source path
// referenced by any code unit in the chain gets an archive entry, either
// the file text or the placeholder.
func collectSources(head *snapshot.StackLink, readFile func(string) ([]byte, error)) snapshot.SourceArchive {
	files := snapshot.SourceArchive{}
	for cur := head; cur != nil; cur = cur.Next {
		archiveCode(files, cur.Frame.Code, readFile)
	}
	return files
}

func archiveCode(files snapshot.SourceArchive, cm *snapshot.CodeMeta, readFile func(string) ([]byte, error)) {
	if cm == nil || cm.File == "" {
		return
	}
	if _, ok := files[cm.File]; !ok {
		if data, err := readFile(cm.File); err == nil {
			files[cm.File] = string(data)
		} else {
			files[cm.File] = snapshot.PlaceholderText(cm.File)
		}
	}
	for _, nested := range cm.Consts {
		archiveCode(files, nested, readFile)
	}
}

func absPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func pcKey(entry uintptr) string {
	return "pc:" + strconv.FormatUint(uint64(entry), 16)
}
