package capture

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lawnmowerlatte/debuglater/pkg/dump"
	"github.com/lawnmowerlatte/debuglater/pkg/instrumentation"
	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

func fakeFrames(t *testing.T, srcPath string) []LiveFrame {
	t.Helper()
	// Innermost first, as a capture source delivers them.
	return []LiveFrame{
		{
			Code:   LiveCode{Key: "t:inner:" + srcPath, File: srcPath, Name: "app.inner", FirstLine: 9},
			Line:   11,
			Locals: map[string]any{"n": 3},
			Globals: map[string]any{
				"mode": "live",
				"len":  "shadowed builtin",
			},
		},
		{
			Code:    LiveCode{Key: "t:outer:" + srcPath, File: srcPath, Name: "app.outer", FirstLine: 1},
			Line:    4,
			Locals:  map[string]any{"orders": []string{"a", "b"}},
			Globals: map[string]any{"mode": "live"},
		},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.go")
	src := "package app\n\nfunc outer() {\n\tinner()\n}\n\nfunc inner() {\n\tpanic(\"boom\")\n}\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNewBuildsSynchronizedChains(t *testing.T) {
	src := writeSource(t)
	d := New(fakeFrames(t, src), Options{})

	if d.FormatVersion != snapshot.FormatVersion {
		t.Errorf("FormatVersion = %d", d.FormatVersion)
	}
	if got := d.Stack.Depth(); got != 2 {
		t.Fatalf("Expected depth 2, got %d", got)
	}
	if err := d.Stack.Validate(); err != nil {
		t.Fatalf("Chain invalid: %v", err)
	}
	// Outermost first in the link chain, failure point last.
	if d.Stack.Frame.Code.Name != "app.outer" {
		t.Errorf("Head should be the outermost frame, got %s", d.Stack.Frame.Code.Name)
	}
	inner := d.Stack.Innermost()
	if inner.Frame.Code.Name != "app.inner" || inner.Line != 11 {
		t.Errorf("Innermost wrong: %s:%d", inner.Frame.Code.Name, inner.Line)
	}
	if inner.Frame.Caller != d.Stack.Frame {
		t.Error("Caller chain out of sync with link chain")
	}
}

func TestBuiltinGlobalsStripped(t *testing.T) {
	src := writeSource(t)
	d := New(fakeFrames(t, src), Options{})

	globals := d.Stack.Innermost().Frame.Globals
	if _, ok := globals["len"]; ok {
		t.Error("Builtin-shadowing global should be stripped at capture time")
	}
	if _, ok := globals["mode"]; !ok {
		t.Error("Ordinary global should survive capture")
	}
}

func TestSourceArchiveCompleteness(t *testing.T) {
	src := writeSource(t)
	missing := filepath.Join(t.TempDir(), "gone.go")
	frames := fakeFrames(t, src)
	frames[0].Code = LiveCode{Key: "t:gone:" + missing, File: missing, Name: "app.gone", FirstLine: 1}

	d := New(frames, Options{})

	text, ok := d.Files[src]
	if !ok || !strings.Contains(text, "package app") {
		t.Errorf("Archive missing exact text for %s", src)
	}
	placeholder, ok := d.Files[missing]
	if !ok || placeholder != snapshot.PlaceholderText(missing) {
		t.Errorf("Unreadable file should archive the placeholder, got %q", placeholder)
	}
	for cur := d.Stack; cur != nil; cur = cur.Next {
		if _, ok := d.Files[cur.Frame.Code.File]; !ok {
			t.Errorf("No archive entry for %s", cur.Frame.Code.File)
		}
	}
}

func TestCodeMetaConvertedOncePerUnit(t *testing.T) {
	src := writeSource(t)
	frames := fakeFrames(t, src)
	// The same code unit at two stack levels, as in recursion.
	frames = append(frames, frames[0])

	d := New(frames, Options{})
	first := d.Stack.Innermost().Frame.Code
	var again *snapshot.CodeMeta
	for cur := d.Stack; cur != nil; cur = cur.Next {
		if cur.Frame.Code.Name == "app.inner" && cur != d.Stack.Innermost() {
			again = cur.Frame.Code
		}
	}
	if again == nil || again != first {
		t.Error("Distinct levels of one code unit should share a CodeMeta")
	}
}

func TestUnserializableLocalDegrades(t *testing.T) {
	src := writeSource(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	frames := fakeFrames(t, src)
	frames[0].Locals["done"] = make(chan int)
	frames[0].Locals["conn"] = client

	d := New(frames, Options{})
	inner := d.Stack.Innermost().Frame
	if got := inner.Locals["done"]; got.Kind != snapshot.KindFallback {
		t.Errorf("Channel local should degrade to a fallback, got %v", got.Kind)
	}
	sock := inner.Locals["conn"]
	if sock.Kind != snapshot.KindObject && sock.Kind != snapshot.KindFallback {
		t.Errorf("Open connection should degrade to a description, got %v", sock.Kind)
	}

	// The degraded form is what persists, permanently.
	path := filepath.Join(t.TempDir(), "socket.dump")
	if err := dump.Save(path, d); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := dump.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := loaded.Stack.Innermost().Frame.Locals["conn"]
	if got.Kind != sock.Kind || got.Repr != sock.Repr {
		t.Errorf("Degraded local changed across the round trip: %v vs %v", got, sock)
	}
}

func TestNestedCodeUnitsArchived(t *testing.T) {
	src := writeSource(t)
	nestedSrc := writeSource(t)
	frames := fakeFrames(t, src)
	frames[0].Code.Consts = []*LiveCode{
		{Key: "t:closure:" + nestedSrc, File: nestedSrc, Name: "app.inner.func1", FirstLine: 10},
	}

	d := New(frames, Options{})
	if _, ok := d.Files[nestedSrc]; !ok {
		t.Error("Nested code unit's source should be archived")
	}
	code := d.Stack.Innermost().Frame.Code
	if len(code.Consts) != 1 || code.Consts[0].Name != "app.inner.func1" {
		t.Errorf("Nested code units not converted: %v", code.Consts)
	}
}

func TestCallersMergesInstrumentationScopes(t *testing.T) {
	defer instrumentation.Enter()()
	instrumentation.Bind("answer", 42)
	instrumentation.RegisterGlobal("release", "1.2.3")

	frames := Callers(0)
	if len(frames) == 0 {
		t.Fatal("Callers returned no frames")
	}
	var testFrame *LiveFrame
	for i := range frames {
		if strings.Contains(frames[i].Code.Name, "TestCallersMergesInstrumentationScopes") {
			testFrame = &frames[i]
			break
		}
	}
	if testFrame == nil {
		t.Fatalf("Test frame not found in %d captured frames", len(frames))
	}
	if got := testFrame.Locals["answer"]; got != 42 {
		t.Errorf("Scope binding not merged, got %v", got)
	}
	if got := testFrame.Globals["release"]; got != "1.2.3" {
		t.Errorf("Registered global missing, got %v", got)
	}
	if testFrame.Code.File == "" || testFrame.Line == 0 {
		t.Error("Runtime frame location missing")
	}
}

func TestCurrentFailureCarriesPanicValue(t *testing.T) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				fc := CurrentFailure(r, 0)
				if fc.Value != "boom" {
					t.Errorf("Failure value = %v", fc.Value)
				}
				if len(fc.Frames) == 0 {
					t.Error("Failure context has no frames")
				}
			}
		}()
		panic("boom")
	}()
}

func TestAndSaveWritesLoadableDump(t *testing.T) {
	src := writeSource(t)
	path := filepath.Join(t.TempDir(), "crash.dump")
	fc := &Failure{Value: fmt.Errorf("boom"), Frames: fakeFrames(t, src)}

	if err := AndSave(path, fc); err != nil {
		t.Fatalf("AndSave failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Dump file missing: %v", err)
	}
}
