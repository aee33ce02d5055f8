package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/warden/internal/config"
)

// Output line sources.
const (
	SourceStdout = "stdout"
	SourceStderr = "stderr"
)

// OutputLine is one line of child output, never batched: each line keeps its
// own source so it can be classified and timestamped individually.
type OutputLine struct {
	Source string
	Text   string
}

// ExitStatus describes how the child ended.
type ExitStatus struct {
	Code int
	Err  error // nil on a clean zero exit
}

// Child is a live supervised process. It bridges stdout/stderr into Lines
// and records termination exactly once, observable by any number of callers
// through Done and Status.
type Child struct {
	cmd   *exec.Cmd
	lines chan OutputLine

	done   chan struct{}
	status ExitStatus

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	killOnce sync.Once
}

// Start spawns the configured executable with a piped stdin and line-bridged
// stdout/stderr. The child runs in its own process group so Stop and Kill
// reach any grandchildren too. A spawn failure is reported immediately; there
// is no spawn timeout.
func Start(cfg config.ServerConfig) (*Child, error) {
	// #nosec G204 -- executable and arguments come from the operator's config
	cmd := exec.Command(cfg.Executable, cfg.Arguments...)
	if cfg.WorkingDirectory != "" {
		cmd.Dir = cfg.WorkingDirectory
	}
	setSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", cfg.Executable, err)
	}

	c := &Child{
		cmd:   cmd,
		lines: make(chan OutputLine, 256),
		done:  make(chan struct{}),
		stdin: stdin,
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go c.readLines(stdout, SourceStdout, &readers)
	go c.readLines(stderr, SourceStderr, &readers)

	go func() {
		// Pipes must be drained before Wait reaps the process.
		readers.Wait()
		close(c.lines)
		err := cmd.Wait()
		code := 0
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			code = ee.ExitCode()
		}
		c.status = ExitStatus{Code: code, Err: err}
		close(c.done)
	}()

	return c, nil
}

func (c *Child) readLines(r io.Reader, source string, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		c.lines <- OutputLine{Source: source, Text: sc.Text()}
	}
}

// PID returns the child's process id.
func (c *Child) PID() int { return c.cmd.Process.Pid }

// Lines streams output lines. Closed when both pipes hit EOF.
func (c *Child) Lines() <-chan OutputLine { return c.lines }

// Done is closed once the child has been reaped.
func (c *Child) Done() <-chan struct{} { return c.done }

// Status reports how the child exited. Valid only after Done is closed.
func (c *Child) Status() ExitStatus {
	<-c.done
	return c.status
}

// WriteLine writes one line to the child's stdin.
func (c *Child) WriteLine(text string) error {
	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()
	if c.stdin == nil {
		return errors.New("stdin closed")
	}
	_, err := io.WriteString(c.stdin, text+"\n")
	return err
}

func (c *Child) closeStdin() {
	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()
	if c.stdin != nil {
		_ = c.stdin.Close()
		c.stdin = nil
	}
}

// Stop requests graceful termination (stdin EOF plus SIGTERM to the group)
// and waits up to grace before escalating to Kill.
func (c *Child) Stop(grace time.Duration) ExitStatus {
	c.closeStdin()
	c.terminate()
	select {
	case <-c.done:
		return c.status
	case <-time.After(grace):
	}
	return c.Kill()
}

// Kill forcibly terminates the process group and waits for the reaper.
func (c *Child) Kill() ExitStatus {
	c.killOnce.Do(func() {
		c.closeStdin()
		c.kill()
	})
	select {
	case <-c.done:
		return c.status
	case <-time.After(5 * time.Second):
		return ExitStatus{Code: -1, Err: errors.New("process did not exit after kill")}
	}
}
