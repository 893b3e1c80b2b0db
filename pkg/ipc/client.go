package ipc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/xlttj/sshfwd/pkg/logging"
)

// scanBufferSize bounds a single protocol line; a profiles_list carrying a
// large profile set can exceed bufio's 64KB default.
const scanBufferSize = 1024 * 1024

// Handlers receive the client's inbound traffic. All callbacks are invoked
// from the client's reader goroutines, as messages arrive, asynchronously
// relative to Send calls.
type Handlers struct {
	// Event receives each decoded protocol message from the worker's stdout.
	Event func(Event)
	// Diagnostic receives each free-text line from the worker's stderr.
	// These lines are never parsed as protocol data.
	Diagnostic func(string)
	// Crashed is called once if the worker process exits without Stop
	// having been requested.
	Crashed func(err error)
}

// Client owns the single worker process: it spawns it, writes requests to
// its stdin (fire-and-forget), reads protocol events from its stdout and
// diagnostics from its stderr, and reports the process dying.
type Client struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	writeMutex sync.Mutex
	handlers   Handlers

	stopOnce sync.Once
	stopping chan struct{}
	readers  sync.WaitGroup
}

// Start spawns the worker command with stdin/stdout/stderr pipes and begins
// reading both output streams.
func Start(command []string, handlers Handlers) (*Client, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("worker command cannot be empty")
	}

	cmd := exec.Command(command[0], command[1:]...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}

	c := &Client{
		cmd:      cmd,
		stdin:    stdin,
		handlers: handlers,
		stopping: make(chan struct{}),
	}

	c.readers.Add(2)
	go c.readEvents(stdout)
	go c.readDiagnostics(stderr)
	go c.watchExit()

	logging.LogDebug("Worker process started: %v (pid %d)", command, cmd.Process.Pid)
	return c, nil
}

// NewPipeClient attaches a client to pre-connected streams instead of a
// spawned process. Crash detection does not apply; used by tests and by
// embedders that manage the worker themselves.
func NewPipeClient(stdin io.WriteCloser, stdout, stderr io.Reader, handlers Handlers) *Client {
	c := &Client{
		stdin:    stdin,
		handlers: handlers,
		stopping: make(chan struct{}),
	}
	c.readers.Add(1)
	go c.readEvents(stdout)
	if stderr != nil {
		c.readers.Add(1)
		go c.readDiagnostics(stderr)
	}
	return c
}

// Send writes one request line to the worker. Fire-and-forget: it returns
// once the line is written, without waiting for any response.
func (c *Client) Send(req Request) error {
	line, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()
	if _, err := c.stdin.Write(line); err != nil {
		return fmt.Errorf("failed to write %s request: %w", req.Type, err)
	}
	return nil
}

// readEvents dispatches worker stdout line by line. A line that fails to
// decode is logged and skipped; decoding errors never stop the stream.
func (c *Client) readEvents(r io.Reader) {
	defer c.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			logging.LogError("Skipping unparseable worker message: %v", err)
			continue
		}
		if c.handlers.Event != nil {
			c.handlers.Event(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		logging.LogError("Worker stdout read error: %v", err)
	}
}

// readDiagnostics surfaces worker stderr as free-text notifications.
func (c *Client) readDiagnostics(r io.Reader) {
	defer c.readers.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), scanBufferSize)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		logging.LogDebug("Worker stderr: %s", line)
		if c.handlers.Diagnostic != nil {
			c.handlers.Diagnostic(line)
		}
	}
}

// watchExit waits for the process and reports a crash unless Stop was
// requested first.
func (c *Client) watchExit() {
	err := c.cmd.Wait()
	c.readers.Wait()

	select {
	case <-c.stopping:
		// Deliberate shutdown, not a crash.
		return
	default:
	}

	if err == nil {
		err = fmt.Errorf("worker process exited")
	}
	logging.LogError("Worker process died: %v", err)
	if c.handlers.Crashed != nil {
		c.handlers.Crashed(err)
	}
}

// Stop shuts the worker down: stdin is closed to signal EOF, then SIGTERM,
// then SIGKILL after the timeout. Crash handlers are suppressed.
func (c *Client) Stop(timeout time.Duration) {
	c.stopOnce.Do(func() {
		close(c.stopping)

		c.writeMutex.Lock()
		_ = c.stdin.Close()
		c.writeMutex.Unlock()

		if c.cmd == nil || c.cmd.Process == nil {
			return
		}
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Process already gone.
			return
		}

		done := make(chan struct{})
		go func() {
			c.readers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			logging.LogError("Worker did not exit within %v, killing", timeout)
			_ = c.cmd.Process.Kill()
		}
	})
}
