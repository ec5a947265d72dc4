package dump

import (
	"fmt"

	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// The wire form flattens the doubly-threaded stack (link chain plus each
// frame's caller chain) into a list of levels referencing a deduplicated
// CodeMeta table. Both codecs share it, and decoding rebuilds the shared
// pointers so the two chain directions stay in sync without writing each
// frame twice.

type wireDump struct {
	FormatVersion int                  `json:"format_version"`
	Codes         []*snapshot.CodeMeta `json:"codes"`
	Levels        []wireLevel          `json:"levels"`
	Files         map[string]string    `json:"files"`
}

// wireLevel is one stack level, outermost first.
type wireLevel struct {
	Code      int                       `json:"code"`
	Locals    map[string]snapshot.Value `json:"locals,omitempty"`
	Globals   map[string]snapshot.Value `json:"globals,omitempty"`
	FrameLine int                       `json:"frame_line"`
	LinkLine  int                       `json:"link_line"`
}

func flatten(d *snapshot.Dump) (*wireDump, error) {
	if d == nil {
		return nil, fmt.Errorf("dump: nil dump")
	}
	if err := d.Stack.Validate(); err != nil {
		return nil, err
	}
	w := &wireDump{
		FormatVersion: d.FormatVersion,
		Files:         d.Files,
	}
	codeIdx := make(map[*snapshot.CodeMeta]int)
	for cur := d.Stack; cur != nil; cur = cur.Next {
		idx, ok := codeIdx[cur.Frame.Code]
		if !ok {
			idx = len(w.Codes)
			codeIdx[cur.Frame.Code] = idx
			w.Codes = append(w.Codes, cur.Frame.Code)
		}
		w.Levels = append(w.Levels, wireLevel{
			Code:      idx,
			Locals:    cur.Frame.Locals,
			Globals:   cur.Frame.Globals,
			FrameLine: cur.Frame.Line,
			LinkLine:  cur.Line,
		})
	}
	return w, nil
}

func rebuild(w *wireDump) (*snapshot.Dump, error) {
	d := &snapshot.Dump{
		Files:         w.Files,
		FormatVersion: w.FormatVersion,
	}
	if d.Files == nil {
		d.Files = snapshot.SourceArchive{}
	}
	var prevFrame *snapshot.StackFrame
	var prevLink *snapshot.StackLink
	for _, lvl := range w.Levels {
		if lvl.Code < 0 || lvl.Code >= len(w.Codes) {
			return nil, fmt.Errorf("dump: level references unknown code unit %d", lvl.Code)
		}
		frame := &snapshot.StackFrame{
			Code:    w.Codes[lvl.Code],
			Locals:  lvl.Locals,
			Globals: lvl.Globals,
			Line:    lvl.FrameLine,
			Caller:  prevFrame,
		}
		if frame.Locals == nil {
			frame.Locals = map[string]snapshot.Value{}
		}
		if frame.Globals == nil {
			frame.Globals = map[string]snapshot.Value{}
		}
		link := &snapshot.StackLink{Frame: frame, Line: lvl.LinkLine}
		if prevLink == nil {
			d.Stack = link
		} else {
			prevLink.Next = link
		}
		prevFrame = frame
		prevLink = link
	}
	if d.Stack != nil {
		if err := d.Stack.Validate(); err != nil {
			return nil, err
		}
	}
	return d, nil
}
