// Package testing provides helpers shared by the hops tests.
package testing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dorcha-inc/hops/internal/core"
)

// ErrCaptureStopped is returned by Stop after the first call
var ErrCaptureStopped = errors.New("output capture already stopped")

// CapturedOutput redirects os.Stdout and os.Stderr into buffers until Stop.
// The pipes are drained while capturing, so large outputs do not block writers.
type CapturedOutput struct {
	OriginalStdout *os.File
	OriginalStderr *os.File

	stdoutW *os.File
	stderrW *os.File
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	readers sync.WaitGroup
	errs    [2]error
	stopped bool
}

// NewCapturedOutput starts capturing stdout and stderr
func NewCapturedOutput() (*CapturedOutput, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		core.LogDeferredError(stdoutR.Close)
		core.LogDeferredError(stdoutW.Close)
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	captured := &CapturedOutput{
		OriginalStdout: os.Stdout,
		OriginalStderr: os.Stderr,
		stdoutW:        stdoutW,
		stderrW:        stderrW,
	}

	captured.readers.Add(2)
	go captured.drain(stdoutR, &captured.stdout, 0)
	go captured.drain(stderrR, &captured.stderr, 1)

	os.Stdout = stdoutW
	os.Stderr = stderrW

	return captured, nil
}

func (c *CapturedOutput) drain(r *os.File, into *bytes.Buffer, slot int) {
	defer c.readers.Done()
	defer core.LogDeferredError(r.Close)
	if _, err := io.Copy(into, r); err != nil {
		c.errs[slot] = err
	}
}

// Stop restores the original streams and returns what was written to them
func (c *CapturedOutput) Stop() (string, string, error) {
	if c.stopped {
		return "", "", ErrCaptureStopped
	}
	c.stopped = true

	// restore first so late writers go to the real streams
	os.Stdout = c.OriginalStdout
	os.Stderr = c.OriginalStderr

	core.LogDeferredError(c.stdoutW.Close)
	core.LogDeferredError(c.stderrW.Close)
	c.readers.Wait()

	if err := errors.Join(c.errs[0], c.errs[1]); err != nil {
		return "", "", fmt.Errorf("failed to read captured output: %w", err)
	}
	return c.stdout.String(), c.stderr.String(), nil
}
