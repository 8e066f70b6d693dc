package backend

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	stderrTailBytes = 8 * 1024
	maxChunkBytes   = 4 * 1024 * 1024
	killWaitDelay   = 3 * time.Second
)

// ProcessSpec describes one subprocess invocation.
type ProcessSpec struct {
	Name string // short label for logs, e.g. "yt-dlp"
	Path string
	Args []string

	// CaptureStdout buffers stdout whole instead of splitting it into chunks.
	CaptureStdout bool
	// OnChunk receives every \n or \r delimited chunk of both streams.
	// It is called from two goroutines and must be safe for that.
	OnChunk func(stream, chunk string)
}

// Process is an owned handle to a running subprocess. The subprocess runs
// in its own process group; Kill and context cancellation terminate that
// group and nothing else.
type Process struct {
	spec ProcessSpec
	cmd  *exec.Cmd

	stdout bytes.Buffer
	tail   tailBuffer

	done chan struct{}
	err  error
}

// StartProcess spawns spec under ctx. A spawn failure is returned directly.
func StartProcess(ctx context.Context, spec ProcessSpec) (*Process, error) {
	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	configureProcessGroup(cmd)
	cmd.WaitDelay = killWaitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout pipe: %w", spec.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stderr pipe: %w", spec.Name, err)
	}

	p := &Process{
		spec: spec,
		cmd:  cmd,
		tail: tailBuffer{max: stderrTailBytes},
		done: make(chan struct{}),
	}

	Logger.Debug("starting subprocess", "name", spec.Name, "path", spec.Path, "args", strings.Join(spec.Args, " "))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if spec.CaptureStdout {
			_, _ = io.Copy(&p.stdout, stdout)
			return
		}
		p.consume("stdout", stdout)
	}()
	go func() {
		defer wg.Done()
		p.consume("stderr", stderr)
	}()

	go func() {
		wg.Wait()
		p.err = cmd.Wait()
		Logger.Debug("subprocess exited", "name", spec.Name, "exitCode", p.ExitCode())
		close(p.done)
	}()

	return p, nil
}

func (p *Process) consume(stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxChunkBytes)
	scanner.Split(scanChunks)
	for scanner.Scan() {
		chunk := scanner.Text()
		if chunk == "" {
			continue
		}
		if stream == "stderr" {
			p.tail.WriteLine(chunk)
		}
		if p.spec.OnChunk != nil {
			p.spec.OnChunk(stream, chunk)
		}
	}
	if err := scanner.Err(); err != nil {
		Logger.Debug("subprocess output scan stopped", "name", p.spec.Name, "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// Wait blocks until the subprocess exits and its output is drained.
func (p *Process) Wait() error {
	<-p.done
	return p.err
}

// Stdout returns the buffered stdout. Only valid after Wait with CaptureStdout.
func (p *Process) Stdout() []byte {
	return p.stdout.Bytes()
}

// StderrTail returns the last few kilobytes of stderr.
func (p *Process) StderrTail() string {
	return p.tail.String()
}

// ExitCode returns the exit status, or -1 if the process did not exit normally.
func (p *Process) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// scanChunks splits on either \n or \r so carriage-return progress
// redraws arrive as separate chunks.
func scanChunks(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line...)
	t.buf = append(t.buf, '\n')
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
