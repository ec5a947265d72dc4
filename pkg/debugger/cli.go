// Package debugger is the interactive post-mortem CLI driven by a
// reconstructed stack chain. Its only contract with the rest of the system
// is the traceback shape it is handed.
package debugger

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/lawnmowerlatte/debuglater/pkg/postmortem"
	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
	"github.com/lawnmowerlatte/debuglater/pkg/sourcecache"
)

// PostMortem launches the interactive session on the outermost entry of a
// reconstructed chain. It satisfies postmortem.PostMortemFunc.
func PostMortem(top *snapshot.StackLink) error {
	if !postmortem.IsTraceback(top) {
		return fmt.Errorf("debugger: %T is not an accepted traceback shape", top)
	}
	return NewCLI(top).Start()
}

// CLI is the command loop for one post-mortem session.
type CLI struct {
	links   []*snapshot.StackLink
	current int
	running bool
	in      *bufio.Reader
	out     io.Writer
}

// NewCLI creates a session positioned at the failure point, the innermost
// frame.
func NewCLI(top *snapshot.StackLink) *CLI {
	var links []*snapshot.StackLink
	for cur := top; cur != nil; cur = cur.Next {
		links = append(links, cur)
	}
	return &CLI{
		links:   links,
		current: len(links) - 1,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}
}

// SetIO redirects the session's input and output, for hosts that drive a
// session over something other than the process terminal.
func (c *CLI) SetIO(in *bufio.Reader, out io.Writer) {
	c.in = in
	c.out = out
}

// Start begins the command loop and blocks until the user quits or input
// ends.
func (c *CLI) Start() error {
	if len(c.links) == 0 {
		return fmt.Errorf("debugger: empty stack chain")
	}
	c.running = true
	fmt.Fprintln(c.out, "debuglater post-mortem debugger")
	c.printFrameHeader()

	for c.running {
		fmt.Fprint(c.out, "(debuglater) ")
		input, err := c.in.ReadString('\n')
		if err != nil {
			fmt.Fprintln(c.out)
			return nil
		}
		c.handleCommand(strings.TrimSpace(input))
	}
	return nil
}

// handleCommand processes one line of user input.
func (c *CLI) handleCommand(input string) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return
	}
	cmd, args := parts[0], parts[1:]

	switch cmd {
	case "h", "help":
		c.printHelp()
	case "bt", "where", "w":
		c.handleBacktrace()
	case "u", "up":
		c.moveFrame(-1)
	case "d", "down":
		c.moveFrame(1)
	case "f", "frame":
		c.handleFrame(args)
	case "l", "list":
		c.handleList(args)
	case "p", "print":
		c.handlePrint(args)
	case "locals":
		c.printBindings(c.frame().Locals)
	case "globals":
		c.printBindings(c.frame().Globals)
	case "i", "info":
		c.handleInfo()
	case "q", "quit", "exit":
		c.running = false
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n", cmd)
		c.printHelp()
	}
}

func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\nAvailable commands:")
	fmt.Fprintln(c.out, "  backtrace (bt)    - Show the captured call stack")
	fmt.Fprintln(c.out, "  up (u)            - Move to the caller frame")
	fmt.Fprintln(c.out, "  down (d)          - Move toward the failure frame")
	fmt.Fprintln(c.out, "  frame (f) <n>     - Select frame n")
	fmt.Fprintln(c.out, "  list (l) [n]      - List source around the current (or given) line")
	fmt.Fprintln(c.out, "  print (p) <name>  - Print a local or global binding")
	fmt.Fprintln(c.out, "  locals            - Print all local bindings")
	fmt.Fprintln(c.out, "  globals           - Print all global bindings")
	fmt.Fprintln(c.out, "  info (i)          - Show session state")
	fmt.Fprintln(c.out, "  help (h)          - Show this help message")
	fmt.Fprintln(c.out, "  quit (q)          - Exit the debugger")
}

func (c *CLI) frame() *snapshot.StackFrame {
	return c.links[c.current].Frame
}

func (c *CLI) handleBacktrace() {
	for i, link := range c.links {
		marker := "  "
		if i == c.current {
			marker = "> "
		}
		fmt.Fprintf(c.out, "%s#%d %s\n", marker, i, describeFrame(link.Frame))
	}
}

// moveFrame shifts the selected frame; -1 is up toward the caller, +1 down
// toward the failure point.
func (c *CLI) moveFrame(delta int) {
	next := c.current + delta
	if next < 0 || next >= len(c.links) {
		fmt.Fprintln(c.out, "Already at the end of the stack")
		return
	}
	c.current = next
	c.printFrameHeader()
}

func (c *CLI) handleFrame(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: frame <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(c.links) {
		fmt.Fprintf(c.out, "Invalid frame number: %s\n", args[0])
		return
	}
	c.current = n
	c.printFrameHeader()
}

func (c *CLI) handleList(args []string) {
	frame := c.frame()
	center := frame.Line
	if len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			center = n
		}
	}
	const window = 5
	printed := false
	for n := center - window; n <= center+window; n++ {
		if n < 1 {
			continue
		}
		text, ok := sourceLine(frame.Code.File, n)
		if !ok {
			continue
		}
		marker := "  "
		if n == frame.Line {
			marker = "->"
		}
		fmt.Fprintf(c.out, "%s %4d  %s\n", marker, n, text)
		printed = true
	}
	if !printed {
		fmt.Fprintf(c.out, "No source available for %s\n", frame.Code.File)
	}
}

func (c *CLI) handlePrint(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: print <name>")
		return
	}
	name := args[0]
	frame := c.frame()
	if val, ok := frame.Locals[name]; ok {
		fmt.Fprintf(c.out, "%s = %s\n", name, val.String())
		return
	}
	if val, ok := frame.Globals[name]; ok {
		fmt.Fprintf(c.out, "%s = %s\n", name, val.String())
		return
	}
	fmt.Fprintf(c.out, "No binding named %q in this frame\n", name)
}

func (c *CLI) handleInfo() {
	fmt.Fprintf(c.out, "Stack depth: %d\n", len(c.links))
	fmt.Fprintf(c.out, "Current frame: #%d %s\n", c.current, describeFrame(c.frame()))
	fmt.Fprintf(c.out, "Locals: %d, globals: %d\n", len(c.frame().Locals), len(c.frame().Globals))
}

func (c *CLI) printFrameHeader() {
	fmt.Fprintf(c.out, "#%d %s\n", c.current, describeFrame(c.frame()))
	if text, ok := sourceLine(c.frame().Code.File, c.frame().Line); ok {
		fmt.Fprintf(c.out, "-> %4d  %s\n", c.frame().Line, text)
	}
}

func (c *CLI) printBindings(vars map[string]snapshot.Value) {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "%s = %s\n", name, vars[name].String())
	}
}

func describeFrame(f *snapshot.StackFrame) string {
	return fmt.Sprintf("%s at %s:%d", f.Code.Name, f.Code.File, f.Line)
}

// sourceLine prefers the installed archive entry and falls back to
// resolving the path against the search roots.
func sourceLine(file string, n int) (string, bool) {
	if text := sourcecache.Line(file, n); text != "" {
		return text, true
	}
	resolved := postmortem.ResolveSource(file)
	if resolved != file {
		if text := sourcecache.Line(resolved, n); text != "" {
			return text, true
		}
	}
	return "", false
}
