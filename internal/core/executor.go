package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// CommandRunner is an interface for running commands, allowing for testing with mocks
type CommandRunner interface {
	CommandContext(ctx context.Context, name string, arg ...string) Command
}

// Command is an interface for exec.Cmd, allowing for testing with mocks
type Command interface {
	StdoutPipe() (io.ReadCloser, error)
	StderrPipe() (io.ReadCloser, error)
	SetStdin(io.Reader)
	SetDir(dir string)
	SetEnv(env map[string]string)
	Start() error
	Wait() error
}

// execCommand wraps exec.Cmd to implement Command interface
type execCommand struct {
	*exec.Cmd
}

func (e *execCommand) SetStdin(r io.Reader) {
	e.Stdin = r
}

func (e *execCommand) SetDir(dir string) {
	e.Dir = dir
}

func (e *execCommand) SetEnv(env map[string]string) {
	if len(env) == 0 {
		return
	}
	merged := e.Environ()
	for key, value := range env {
		merged = append(merged, fmt.Sprintf("%s=%s", key, value))
	}
	e.Env = merged
}

var _ Command = &execCommand{}

type execCommandRunner struct{}

func (e *execCommandRunner) CommandContext(ctx context.Context, name string, arg ...string) Command {
	return &execCommand{Cmd: exec.CommandContext(ctx, name, arg...)}
}

var _ CommandRunner = &execCommandRunner{}

// NewCommandRunner returns a CommandRunner backed by os/exec
func NewCommandRunner() CommandRunner {
	return &execCommandRunner{}
}

// DefinitionExecutor runs local definition programs
type DefinitionExecutor struct {
	timeout       time.Duration
	clock         clockwork.Clock
	commandRunner CommandRunner
}

// NewDefinitionExecutor creates a new executor with a real clock
func NewDefinitionExecutor(timeoutSeconds int) *DefinitionExecutor {
	return NewDefinitionExecutorWithClock(timeoutSeconds, clockwork.NewRealClock())
}

// NewDefinitionExecutorWithClock creates a new executor with a custom clock
func NewDefinitionExecutorWithClock(timeoutSeconds int, clock clockwork.Clock) *DefinitionExecutor {
	return NewDefinitionExecutorWithClockAndRunner(timeoutSeconds, clock, NewCommandRunner())
}

// NewDefinitionExecutorWithClockAndRunner creates a new executor with a custom clock and command runner
func NewDefinitionExecutorWithClockAndRunner(timeoutSeconds int, clock clockwork.Clock, runner CommandRunner) *DefinitionExecutor {
	return &DefinitionExecutor{
		timeout:       time.Duration(timeoutSeconds) * time.Second,
		clock:         clock,
		commandRunner: runner,
	}
}

// ExecutionResult represents the result of running a definition program
type ExecutionResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	Error    error  `json:"-"`
}

// Execute runs the entrypoint with the given stdin. A non-zero exit code is
// reported through ExitCode, not as an error.
func (e *DefinitionExecutor) Execute(ctx context.Context, entry *Entrypoint, stdin string) (*ExecutionResult, error) {
	execCtx, cancel := clockwork.WithTimeout(ctx, e.clock, e.timeout)
	defer cancel()

	var cmd Command
	if entry.Interpreter != "" {
		cmdArgs := make([]string, 0, len(entry.InterpreterArgs)+1+len(entry.Args))
		cmdArgs = append(cmdArgs, entry.InterpreterArgs...)
		cmdArgs = append(cmdArgs, entry.Path)
		cmdArgs = append(cmdArgs, entry.Args...)
		cmd = e.commandRunner.CommandContext(execCtx, entry.Interpreter, cmdArgs...)
	} else {
		cmd = e.commandRunner.CommandContext(execCtx, entry.Path, entry.Args...)
	}

	if dir := filepath.Dir(entry.Path); dir != "" {
		cmd.SetDir(dir)
	}
	cmd.SetEnv(entry.Env)

	if stdin != "" {
		cmd.SetStdin(strings.NewReader(stdin))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	done := make(chan error, 2)

	go func() {
		_, copyErr := io.Copy(&stdoutBuf, stdout)
		done <- copyErr
	}()

	go func() {
		_, copyErr := io.Copy(&stderrBuf, stderr)
		done <- copyErr
	}()

	<-done
	<-done

	err = cmd.Wait()

	result := &ExecutionResult{
		Stdout: stdoutBuf.String(),
		Stderr: stderrBuf.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Errorf("definition %s timed out after %v", entry.Name, e.timeout)
		return result, result.Error
	}

	if err != nil {
		var exitError *exec.ExitError
		if !errors.As(err, &exitError) {
			result.Error = err
			return result, err
		}
		result.ExitCode = exitError.ExitCode()
	}

	return result, nil
}

// ExecuteJSON writes input as a JSON object to the program's stdin and decodes
// a JSON object from its stdout.
func (e *DefinitionExecutor) ExecuteJSON(ctx context.Context, entry *Entrypoint, input map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input for %s: %w", entry.Name, err)
	}

	result, err := e.Execute(ctx, entry, string(payload))
	if err != nil {
		return nil, err
	}

	if result.ExitCode != 0 {
		return nil, fmt.Errorf("definition %s exited with code %d: %s",
			entry.Name, result.ExitCode, strings.TrimSpace(result.Stderr))
	}

	output := map[string]any{}
	if strings.TrimSpace(result.Stdout) == "" {
		return output, nil
	}

	if err := json.Unmarshal([]byte(result.Stdout), &output); err != nil {
		return nil, fmt.Errorf("definition %s wrote invalid JSON output: %w", entry.Name, err)
	}

	return output, nil
}
