package snapshot

import "fmt"

// FormatVersion is the current dump layout version. It is stored in every
// Dump so future readers can detect an incompatible layout.
const FormatVersion = 1

// PlaceholderText returns the text stored in a SourceArchive for a file that
// could not be read at capture time.
func PlaceholderText(path string) string {
	return fmt.Sprintf("couldn't locate '%s' during dump", path)
}

// LineRange maps a half-open instruction byte range to a source line.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Line  int `json:"line"`
}

// CodeMeta is an immutable description of a compiled code unit. It is fully
// self-contained and never references the live function it was built from.
type CodeMeta struct {
	// File is the absolute path of the source file defining the unit.
	File string `json:"file"`
	// Name is the function (or closure) name.
	Name string `json:"name"`
	// ArgCount is the number of declared parameters.
	ArgCount int `json:"arg_count"`
	// Consts holds nested code units (closures, function literals).
	Consts []*CodeMeta `json:"consts,omitempty"`
	// FirstLine is the line the unit's definition starts on.
	FirstLine int `json:"first_line"`
	// LineTable is a compact line-number/byte-offset table, when the
	// capture source can provide one.
	LineTable []byte `json:"line_table,omitempty"`
	// VarNames lists the unit's local variable names, when known.
	VarNames []string `json:"var_names,omitempty"`
	// Flags is a capture-source specific bitmask.
	Flags uint32 `json:"flags,omitempty"`
	// Instructions holds raw instruction bytes, when available.
	Instructions []byte `json:"instructions,omitempty"`
	// Lines optionally maps instruction byte ranges to lines, finer
	// grained than LineTable.
	Lines []LineRange `json:"lines,omitempty"`
}

// StackFrame is one captured activation record. Each frame exclusively owns
// its Caller; the chain is singly linked and acyclic, terminating at the
// outermost frame.
type StackFrame struct {
	Code    *CodeMeta        `json:"code"`
	Locals  map[string]Value `json:"locals"`
	Globals map[string]Value `json:"globals"`
	Line    int              `json:"line"`
	Caller  *StackFrame      `json:"-"`
}

// StackLink is one node of the captured trace. Next points deeper into the
// call, toward the failure point. The link chain and the frames' caller
// chains describe the same logical stack from the two conventional
// traversal directions.
type StackLink struct {
	Frame *StackFrame `json:"frame"`
	Line  int         `json:"line"`
	Next  *StackLink  `json:"-"`
}

// SourceArchive maps absolute file paths to full file text, or to the
// placeholder text when the file was unreadable at capture time.
type SourceArchive map[string]string

// Dump is the top-level persisted unit. It is created once by capture,
// written and read once by the persistence layer, and never mutated after
// creation except for builtin reinstatement during post-mortem preparation.
type Dump struct {
	Stack         *StackLink
	Files         SourceArchive
	FormatVersion int
}

// Depth returns the number of links in the chain starting at l.
func (l *StackLink) Depth() int {
	n := 0
	for cur := l; cur != nil; cur = cur.Next {
		n++
	}
	return n
}

// Innermost returns the deepest link of the chain, the failure point.
func (l *StackLink) Innermost() *StackLink {
	if l == nil {
		return nil
	}
	cur := l
	for cur.Next != nil {
		cur = cur.Next
	}
	return cur
}

// Frames returns the frames of the chain in link order, outermost first.
func (l *StackLink) Frames() []*StackFrame {
	var frames []*StackFrame
	for cur := l; cur != nil; cur = cur.Next {
		frames = append(frames, cur.Frame)
	}
	return frames
}

// Validate checks the structural invariants of the chain: both the link
// chain and the caller chains are finite and acyclic, every link carries a
// frame, and the two directions describe the same stack.
func (l *StackLink) Validate() error {
	seenLinks := make(map[*StackLink]bool)
	seenFrames := make(map[*StackFrame]bool)
	var prev *StackFrame
	for cur := l; cur != nil; cur = cur.Next {
		if seenLinks[cur] {
			return fmt.Errorf("snapshot: link chain contains a cycle")
		}
		seenLinks[cur] = true
		if cur.Frame == nil {
			return fmt.Errorf("snapshot: link without frame")
		}
		if seenFrames[cur.Frame] {
			return fmt.Errorf("snapshot: frame chain contains a cycle")
		}
		seenFrames[cur.Frame] = true
		if cur.Frame.Code == nil {
			return fmt.Errorf("snapshot: frame %q without code metadata", frameName(cur.Frame))
		}
		if cur.Frame.Caller != prev {
			return fmt.Errorf("snapshot: frame %q caller out of sync with link chain", frameName(cur.Frame))
		}
		prev = cur.Frame
	}
	return nil
}

func frameName(f *StackFrame) string {
	if f == nil || f.Code == nil {
		return "<nil>"
	}
	return f.Code.Name
}
