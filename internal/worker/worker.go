// Package worker starts a local solver process and waits for it to report
// the address it listens on.
package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/server"
)

// DefaultHandshakeTimeout bounds the wait for the hello line
const DefaultHandshakeTimeout = 15 * time.Second

// State is the lifecycle state of a worker process
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateReady    State = "READY"
	StateFailed   State = "FAILED"
)

// HandshakeTimeoutError is returned when the worker does not say hello in time
type HandshakeTimeoutError struct {
	Timeout time.Duration
}

func NewHandshakeTimeoutError(timeout time.Duration) *HandshakeTimeoutError {
	return &HandshakeTimeoutError{Timeout: timeout}
}

func (e *HandshakeTimeoutError) Error() string {
	return fmt.Sprintf("worker did not announce itself within %v", e.Timeout)
}

var _ error = &HandshakeTimeoutError{}

// Options configures a worker
type Options struct {
	// Command starts the hops binary; empty means the running executable
	Command []string
	// DefinitionsDir is passed to the worker's serve command when set
	DefinitionsDir string
	// HandshakeTimeout bounds the wait for the hello line; zero means the default
	HandshakeTimeout time.Duration
}

// Worker owns one local solver process
type Worker struct {
	opts   Options
	clock  clockwork.Clock
	runner core.CommandRunner

	mu     sync.Mutex
	state  State
	url    string
	cancel context.CancelFunc
	exited chan struct{}
}

// New creates a worker that runs real processes
func New(opts Options) *Worker {
	return NewWithClockAndRunner(opts, clockwork.NewRealClock(), core.NewCommandRunner())
}

// NewWithClockAndRunner creates a worker with a custom clock and command runner
func NewWithClockAndRunner(opts Options, clock clockwork.Clock, runner core.CommandRunner) *Worker {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Worker{
		opts:   opts,
		clock:  clock,
		runner: runner,
		state:  StateStopped,
	}
}

// setStateLocked changes the state and logs the transition. Callers hold w.mu.
func (w *Worker) setStateLocked(state State) {
	if w.state == state {
		return
	}
	zap.L().Debug("Worker state changed",
		zap.String("old_state", string(w.state)),
		zap.String("new_state", string(state)))
	w.state = state
}

func (w *Worker) GetState() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// URL returns the base URL of a ready worker
func (w *Worker) URL() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.url
}

func (w *Worker) command() ([]string, error) {
	command := slices.Clone(w.opts.Command)
	if len(command) == 0 {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate hops executable: %w", err)
		}
		command = []string{executable}
	}

	command = append(command, "serve", "--announce", "--addr", "127.0.0.1:0")
	if w.opts.DefinitionsDir != "" {
		command = append(command, "--definitions-dir", w.opts.DefinitionsDir)
	}
	return command, nil
}

// Start spawns the worker and returns its base URL once it has said hello.
// Starting a ready worker returns its URL.
func (w *Worker) Start(ctx context.Context) (string, error) {
	w.mu.Lock()
	if w.state == StateReady {
		url := w.url
		w.mu.Unlock()
		return url, nil
	}
	if w.state == StateStarting {
		w.mu.Unlock()
		return "", fmt.Errorf("worker is already starting")
	}
	w.setStateLocked(StateStarting)
	w.mu.Unlock()

	url, err := w.start(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.setStateLocked(StateFailed)
		return "", err
	}
	w.url = url
	w.setStateLocked(StateReady)
	zap.L().Info("Worker ready", zap.String("address", url))
	return url, nil
}

func (w *Worker) start(ctx context.Context) (string, error) {
	command, err := w.command()
	if err != nil {
		return "", err
	}

	// the process outlives ctx; Stop ends it
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := w.runner.CommandContext(procCtx, command[0], command[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return "", fmt.Errorf("failed to start worker: %w", err)
	}

	zap.L().Debug("Worker process started", zap.Strings("command", command))

	hello := make(chan string, 1)
	go readHello(stdout, hello)
	go drain(stderr)

	exited := make(chan struct{})
	go func() {
		defer close(exited)
		err := cmd.Wait()
		w.onExit(err)
	}()

	w.mu.Lock()
	w.cancel = cancel
	w.exited = exited
	w.mu.Unlock()

	timeout := w.clock.NewTimer(w.opts.HandshakeTimeout)
	defer timeout.Stop()

	select {
	case url, ok := <-hello:
		if ok {
			return url, nil
		}
		w.stopProcess()
		return "", fmt.Errorf("worker exited before announcing itself")
	case <-timeout.Chan():
		w.stopProcess()
		return "", NewHandshakeTimeoutError(w.opts.HandshakeTimeout)
	case <-ctx.Done():
		w.stopProcess()
		return "", ctx.Err()
	}
}

// readHello sends the first announced URL on hello, then keeps draining so
// the worker never blocks on a full pipe. hello is closed if the output ends
// without one.
func readHello(r io.Reader, hello chan<- string) {
	scanner := bufio.NewScanner(r)
	announced := false
	for scanner.Scan() {
		line := scanner.Text()
		if !announced {
			if url, ok := server.ParseHello(line); ok {
				hello <- url
				announced = true
				continue
			}
		}
		zap.L().Debug("Worker output", zap.String("line", line))
	}
	if !announced {
		close(hello)
	}
}

func drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		zap.L().Debug("Worker stderr", zap.String("line", scanner.Text()))
	}
}

func (w *Worker) onExit(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.url = ""
	if w.state == StateReady && err != nil {
		zap.L().Warn("Worker exited unexpectedly", zap.Error(err))
		w.setStateLocked(StateFailed)
		return
	}
	if w.state == StateReady {
		w.setStateLocked(StateStopped)
	}
}

// stopProcess cancels the process and waits for it to exit
func (w *Worker) stopProcess() {
	w.mu.Lock()
	cancel, exited := w.cancel, w.exited
	w.cancel, w.exited = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-exited
}

// Stop ends the worker process
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.state == StateReady {
		w.setStateLocked(StateStopped)
	}
	w.mu.Unlock()

	w.stopProcess()

	w.mu.Lock()
	w.url = ""
	w.mu.Unlock()
}
