package capture

import (
	"fmt"
	"net"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"time"

	"github.com/go-delve/delve/service/api"
	"github.com/go-delve/delve/service/rpc2"

	"github.com/lawnmowerlatte/debuglater/pkg/sanitize"
)

// Session wraps a Delve RPC connection used as an out-of-process capture
// source: it pulls a goroutine's stack, with loaded variables, out of a
// stopped target and converts it to live frames for the pipeline.
type Session struct {
	client *rpc2.RPCClient
	target string
	dlvCmd *exec.Cmd
	listen string
}

// NewSession launches a headless Delve server for the target binary with
// the given arguments and connects to it.
func NewSession(targetPath string, args []string) (*Session, error) {
	absPath, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, fmt.Errorf("capture: resolve target %s: %w", targetPath, err)
	}
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("capture: find port for delve: %w", err)
	}
	listen := "localhost:" + strconv.Itoa(port)

	cmdArgs := []string{
		"exec", absPath,
		"--headless",
		"--listen=" + listen,
		"--api-version=2",
		"--accept-multiclient",
	}
	if len(args) > 0 {
		cmdArgs = append(cmdArgs, "--")
		cmdArgs = append(cmdArgs, args...)
	}
	dlvCmd := exec.Command("dlv", cmdArgs...)
	setupProcAttr(dlvCmd)
	if err := dlvCmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start delve: %w", err)
	}

	// Give the server a moment to come up before connecting.
	time.Sleep(time.Second)
	client := rpc2.NewClient(listen)
	if _, err := client.GetState(); err != nil {
		_ = dlvCmd.Process.Kill()
		_, _ = dlvCmd.Process.Wait()
		return nil, fmt.Errorf("capture: connect to delve at %s: %w", listen, err)
	}

	return &Session{client: client, target: absPath, dlvCmd: dlvCmd, listen: listen}, nil
}

// CaptureGoroutine returns the live frames of the target's goroutine gid,
// innermost first. A gid of -1 selects the current goroutine.
func (s *Session) CaptureGoroutine(gid int64, depth int) ([]LiveFrame, error) {
	if depth <= 0 {
		depth = maxStackDepth
	}
	cfg := api.LoadConfig{
		FollowPointers:     true,
		MaxVariableRecurse: 2,
		MaxStringLen:       256,
		MaxArrayValues:     64,
		MaxStructFields:    -1,
	}
	stack, err := s.client.Stacktrace(gid, depth, 0, &cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: stacktrace goroutine %d: %w", gid, err)
	}

	frames := make([]LiveFrame, 0, len(stack))
	for _, sf := range stack {
		lf := LiveFrame{
			Code:    remoteCodeFor(sf),
			Line:    sf.Line,
			Locals:  map[string]any{},
			Globals: map[string]any{},
		}
		for _, v := range sf.Arguments {
			lf.Locals[v.Name] = remoteValue(v, 0)
		}
		for _, v := range sf.Locals {
			lf.Locals[v.Name] = remoteValue(v, 0)
		}
		frames = append(frames, lf)
	}
	return frames, nil
}

// Close disconnects from and terminates the Delve process.
func (s *Session) Close() error {
	var closeErr error
	if s.client != nil {
		if err := s.client.Disconnect(false); err != nil {
			closeErr = fmt.Errorf("capture: disconnect delve client: %w", err)
		}
		s.client = nil
	}
	if s.dlvCmd != nil && s.dlvCmd.Process != nil {
		if err := s.dlvCmd.Process.Kill(); err != nil && err.Error() != "os: process already finished" {
			if closeErr == nil {
				closeErr = fmt.Errorf("capture: kill delve process: %w", err)
			}
		}
		_, _ = s.dlvCmd.Process.Wait()
		s.dlvCmd = nil
	}
	return closeErr
}

func remoteCodeFor(sf api.Stackframe) LiveCode {
	lc := LiveCode{
		File:      sf.File,
		Name:      "unknown",
		FirstLine: sf.Line,
	}
	if sf.Function != nil {
		lc.Name = sf.Function.Name()
		lc.Key = "dlv:" + strconv.FormatUint(sf.Function.Value, 16)
	}
	return lc
}

// remoteValue converts a loaded Delve variable tree into a plain Go value
// the sanitizer understands. Anything the target could not read becomes an
// Opaque fallback.
func remoteValue(v api.Variable, depth int) any {
	if v.Unreadable != "" {
		return sanitize.Opaque{Repr: fmt.Sprintf("unreadable %s: %s", v.Type, v.Unreadable)}
	}
	if depth > sanitize.DefaultMaxDepth {
		return sanitize.Opaque{Repr: v.Type + " " + v.Value}
	}
	switch v.Kind {
	case reflect.Bool:
		return v.Value == "true"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, _ := strconv.ParseUint(v.Value, 10, 64)
		return n
	case reflect.Float32, reflect.Float64:
		f, _ := strconv.ParseFloat(v.Value, 64)
		return f
	case reflect.String:
		return v.Value
	case reflect.Slice, reflect.Array:
		elems := make([]any, 0, len(v.Children))
		for _, c := range v.Children {
			elems = append(elems, remoteValue(c, depth+1))
		}
		return elems
	case reflect.Map:
		// Children alternate key, value.
		m := make(map[string]any, len(v.Children)/2)
		for i := 0; i+1 < len(v.Children); i += 2 {
			m[v.Children[i].SinglelineString()] = remoteValue(v.Children[i+1], depth+1)
		}
		return m
	case reflect.Struct:
		return remoteObject{typeName: v.Type, fields: v.Children, depth: depth}
	case reflect.Ptr, reflect.Interface:
		if len(v.Children) == 1 {
			return remoteValue(v.Children[0], depth+1)
		}
		return sanitize.Opaque{Repr: v.Type + " " + v.Value}
	default:
		return sanitize.Opaque{Repr: v.Type + " " + v.Value}
	}
}

// remoteObject feeds a remote struct through the sanitizer's object
// stand-in strategy.
type remoteObject struct {
	typeName string
	fields   []api.Variable
	depth    int
}

// DescribeValue implements sanitize.Describer.
func (r remoteObject) DescribeValue() (string, map[string]any) {
	attrs := make(map[string]any, len(r.fields))
	for _, f := range r.fields {
		attrs[f.Name] = remoteValue(f, r.depth+1)
	}
	return "<" + r.typeName + ">", attrs
}

var _ sanitize.Describer = remoteObject{}

// Goroutines lists the target's goroutine ids.
func (s *Session) Goroutines() ([]int64, error) {
	gs, _, err := s.client.ListGoroutines(0, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(gs))
	for _, g := range gs {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

func freePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
