package sandbox

import (
	"bufio"
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"
	"time"

	"hypoforge/domain/dataset"
	"hypoforge/internal"
	"hypoforge/internal/errors"
)

//go:embed driver.py
var driverSource string

var logger = internal.DefaultLogger.Named("Sandbox")

// ErrRuntimeGone marks failures after which the runtime cannot be reused.
var ErrRuntimeGone = stderrors.New("sandbox runtime is no longer running")

type request struct {
	Op       string          `json:"op"`
	Name     string          `json:"name,omitempty"`
	Source   string          `json:"source,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	Columns  []string        `json:"columns,omitempty"`
	Rows     [][]any         `json:"rows,omitempty"`
	Temporal []string        `json:"temporal,omitempty"`
}

type response struct {
	OK        bool            `json:"ok"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error"`
	Traceback string          `json:"traceback"`
}

// PythonRuntime is one long-lived python3 process with numpy, pandas and
// scipy preloaded, driven over a line-delimited JSON protocol. All calls share
// the interpreter's global namespace.
type PythonRuntime struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	gone  bool

	lines      chan []byte
	readErr    error
	stdoutDone chan struct{}
	stderrDone chan struct{}
	killed     chan struct{}
	exited     chan struct{}
}

// StartPython launches the interpreter and waits until the scientific stack
// has imported.
func StartPython(ctx context.Context, pythonBin string) (*PythonRuntime, error) {
	startTime := time.Now()

	cmd := exec.Command(pythonBin, "-u", "-c", driverSource)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.SandboxExecution("failed to open sandbox stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.SandboxExecution("failed to open sandbox stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.SandboxExecution("failed to open sandbox stderr", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.SandboxExecution(fmt.Sprintf("failed to start %s", pythonBin), err)
	}

	rt := &PythonRuntime{
		cmd:        cmd,
		stdin:      stdin,
		lines:      make(chan []byte),
		stdoutDone: make(chan struct{}),
		stderrDone: make(chan struct{}),
		killed:     make(chan struct{}),
		exited:     make(chan struct{}),
	}
	go rt.readResponses(bufio.NewReaderSize(stdout, 1<<20))
	go rt.forwardOutput(stderr)
	go rt.reap()

	versions, err := rt.call(ctx, request{Op: "ping"})
	if err != nil {
		rt.Close()
		return nil, errors.Wrap(err, "sandbox failed to initialise")
	}
	logger.Info("python sandbox ready in %s: %s", time.Since(startTime).Round(time.Millisecond), versions)
	return rt, nil
}

// readResponses hands each stdout line to the waiting call until the pipe
// reaches EOF or the runtime is killed.
func (rt *PythonRuntime) readResponses(stdout *bufio.Reader) {
	defer close(rt.stdoutDone)
	for {
		line, err := stdout.ReadBytes('\n')
		if err != nil {
			rt.readErr = err
			return
		}
		select {
		case rt.lines <- line:
		case <-rt.killed:
			rt.readErr = io.ErrClosedPipe
			return
		}
	}
}

// reap waits for the process once both pipes have been drained
func (rt *PythonRuntime) reap() {
	<-rt.stdoutDone
	<-rt.stderrDone
	err := rt.cmd.Wait()
	logger.Debug("python exited: %v", err)
	close(rt.exited)
}

// forwardOutput logs what user code prints
func (rt *PythonRuntime) forwardOutput(stderr io.Reader) {
	defer close(rt.stderrDone)
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for scanner.Scan() {
		logger.Debug("python: %s", scanner.Text())
	}
	// keep draining past an overlong line so the process never blocks on stderr
	io.Copy(io.Discard, stderr)
}

// BindFrame sends ds row-wise and binds it as a pandas DataFrame. Temporal
// columns are converted with pd.to_datetime.
func (rt *PythonRuntime) BindFrame(ctx context.Context, name string, ds *dataset.Dataset) error {
	columns := ds.Columns()
	rows := make([][]any, ds.Len())
	for i := range rows {
		rec := ds.Row(i)
		row := make([]any, len(columns))
		for j, col := range columns {
			row[j] = encodeCell(rec[col])
		}
		rows[i] = row
	}

	_, err := rt.call(ctx, request{
		Op:       "bind_frame",
		Name:     name,
		Columns:  columns,
		Rows:     rows,
		Temporal: ds.TemporalColumns(),
	})
	return err
}

// encodeCell maps a cell to JSON. Non-finite numbers become null, which
// pandas reads back as NaN.
func encodeCell(v any) any {
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		return val
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return val
	}
}

// Bind binds a JSON value to name
func (rt *PythonRuntime) Bind(ctx context.Context, name string, value json.RawMessage) error {
	_, err := rt.call(ctx, request{Op: "bind", Name: name, Value: value})
	return err
}

// Exec runs source in the global namespace
func (rt *PythonRuntime) Exec(ctx context.Context, source string) error {
	_, err := rt.call(ctx, request{Op: "exec", Source: source})
	return err
}

// Get reads a named global back as JSON
func (rt *PythonRuntime) Get(ctx context.Context, name string) (json.RawMessage, error) {
	return rt.call(ctx, request{Op: "get", Name: name})
}

// Close kills the interpreter
func (rt *PythonRuntime) Close() error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.kill()
	return nil
}

func (rt *PythonRuntime) kill() {
	if rt.gone {
		return
	}
	rt.gone = true
	close(rt.killed)
	rt.stdin.Close()
	if rt.cmd.Process != nil {
		rt.cmd.Process.Kill()
	}
}

// call sends one request and waits for its response. If ctx ends first the
// process is killed, since its namespace is then in an unknown state.
func (rt *PythonRuntime) call(ctx context.Context, req request) (json.RawMessage, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.gone {
		return nil, errors.SandboxExecution("sandbox runtime is closed", ErrRuntimeGone)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.SandboxExecution("failed to encode sandbox request", err)
	}
	logger.Trace("-> %s (%d bytes)", req.Op, len(payload))

	if _, err := rt.stdin.Write(append(payload, '\n')); err != nil {
		rt.kill()
		return nil, errors.SandboxExecution("sandbox runtime exited", fmt.Errorf("%w: %v", ErrRuntimeGone, err))
	}

	var line []byte
	select {
	case line = <-rt.lines:
	case <-rt.stdoutDone:
		rt.kill()
		return nil, errors.SandboxExecution("sandbox runtime exited", fmt.Errorf("%w: %v", ErrRuntimeGone, rt.readErr))
	case <-ctx.Done():
		rt.kill()
		return nil, errors.SandboxExecution("sandbox call interrupted", fmt.Errorf("%w: %v", ErrRuntimeGone, ctx.Err()))
	}

	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		rt.kill()
		return nil, errors.SandboxExecution("malformed sandbox response", fmt.Errorf("%w: %v", ErrRuntimeGone, err))
	}
	logger.Trace("<- %s ok=%t", req.Op, resp.OK)

	if !resp.OK {
		logger.Debug("%s failed:\n%s", req.Op, resp.Traceback)
		return nil, errors.SandboxExecution(resp.Error, nil)
	}
	return resp.Value, nil
}
