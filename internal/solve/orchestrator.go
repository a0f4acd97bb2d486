// Package solve runs remote solves for a component's evaluation passes.
//
// Hosts evaluate a node once per iteration of a pass. When the host supports
// it, each iteration is visited twice: PreSolve collects inputs and starts the
// remote solve in the background, and Solve later consumes the result and
// writes outputs. Hosts without a pre-solve phase just call Solve, which then
// solves inline.
package solve

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/remote"
)

const (
	// DefaultTimeout bounds a single remote solve
	DefaultTimeout = 5 * time.Minute

	noIdentityMessage = "No URL or path defined for definition"
	headlessReason    = "remote definitions cannot be solved from a headless host"
)

// CachePolicy controls where solve results are reused
type CachePolicy struct {
	// CacheInMemory memoizes results on the handle by input fingerprint
	CacheInMemory bool `yaml:"cache_in_memory"`
	// CacheOnServer asks the solver to cache results on its side
	CacheOnServer bool `yaml:"cache_on_server"`
}

// DefaultCachePolicy caches both in memory and on the server
func DefaultCachePolicy() CachePolicy {
	return CachePolicy{CacheInMemory: true, CacheOnServer: true}
}

// Solver is the part of a remote.Handle the orchestrator drives
type Solver interface {
	Identity() remote.Identity
	CreateSolveInput(ctx context.Context, access host.DataAccess, cacheOnServer bool) (*remote.Schema, []string, error)
	Cached(fingerprint string) (*remote.Schema, bool)
	Remember(fingerprint string, output *remote.Schema)
	SolveRemote(ctx context.Context, input *remote.Schema) (*remote.Schema, error)
	SetOutputs(output *remote.Schema, access host.DataAccess) (int, error)
}

var _ Solver = &remote.Handle{}

// Target is what the orchestrator needs from the host
type Target interface {
	Outputs() []host.Slot
	host.Messenger
}

// future is the result of a solve started during pre-solve
type future struct {
	iteration   int
	fingerprint string
	done        chan struct{}

	// written once before done is closed
	output   *remote.Schema
	err      error
	cached   bool
	duration time.Duration
}

// Orchestrator owns the in-flight solves of one component
type Orchestrator struct {
	clock    clockwork.Clock
	timeout  time.Duration
	headless bool

	mu      sync.Mutex
	passID  string
	pending map[int]*future
}

// Options configures an orchestrator
type Options struct {
	// Timeout bounds each remote solve; zero means DefaultTimeout
	Timeout time.Duration
	// Headless marks a disallowed execution context
	Headless bool
}

// NewOrchestrator creates an orchestrator with a real clock
func NewOrchestrator(opts Options) *Orchestrator {
	return NewOrchestratorWithClock(opts, clockwork.NewRealClock())
}

// NewOrchestratorWithClock creates an orchestrator with a custom clock
func NewOrchestratorWithClock(opts Options, clock clockwork.Clock) *Orchestrator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Orchestrator{
		clock:    clock,
		timeout:  timeout,
		headless: opts.Headless,
		pending:  make(map[int]*future),
	}
}

// PassID identifies the current pass in log output
func (o *Orchestrator) PassID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.passID
}

// PreSolve collects the iteration's inputs and starts the solve without
// waiting for it. Iteration 0 starts a new pass and discards anything still
// pending from the previous one.
func (o *Orchestrator) PreSolve(ctx context.Context, solver Solver, target Target, access host.DataAccess, policy CachePolicy) error {
	if err := o.guard(solver, target); err != nil {
		return err
	}

	if access.Iteration() == 0 {
		o.startPass()
	}

	input, fingerprint, ok, err := o.prepare(ctx, solver, target, access, policy)
	if err != nil || !ok {
		return err
	}

	f := &future{
		iteration:   access.Iteration(),
		fingerprint: fingerprint,
		done:        make(chan struct{}),
	}

	o.mu.Lock()
	o.pending[f.iteration] = f
	o.mu.Unlock()

	if policy.CacheInMemory {
		if output, hit := solver.Cached(fingerprint); hit {
			f.output = output
			f.cached = true
			close(f.done)
			return nil
		}
	}

	go o.run(ctx, solver, input, f)
	return nil
}

// Solve writes the iteration's outputs. A result started by PreSolve is used
// when it was computed from the same inputs; otherwise the solve runs inline.
func (o *Orchestrator) Solve(ctx context.Context, solver Solver, target Target, access host.DataAccess, policy CachePolicy) error {
	_, err := o.SolveOutputs(ctx, solver, target, access, policy)
	return err
}

// SolveOutputs is Solve that also reports whether the iteration produced
// outputs from a result without remote errors. It is false when incomplete
// inputs stopped the pass before anything was solved.
func (o *Orchestrator) SolveOutputs(ctx context.Context, solver Solver, target Target, access host.DataAccess, policy CachePolicy) (bool, error) {
	if err := o.guard(solver, target); err != nil {
		return false, err
	}

	input, fingerprint, ok, err := o.prepare(ctx, solver, target, access, policy)
	if err != nil || !ok {
		return false, err
	}

	output, cached, duration, err := o.result(ctx, solver, input, fingerprint, access.Iteration(), policy)
	core.LogSolve(solver.Identity().String(), duration.Seconds(), cached, err)
	if err != nil {
		o.report(target, err)
		return false, err
	}

	if access.Iteration() == 0 {
		for _, slot := range target.Outputs() {
			slot.ClearData()
		}
	}

	if _, err := solver.SetOutputs(output, access); err != nil {
		o.report(target, err)
		return false, err
	}

	for _, warning := range output.Warnings {
		target.AddRuntimeMessage(host.LevelWarning, warning)
	}
	for _, message := range output.Errors {
		target.AddRuntimeMessage(host.LevelError, message)
	}

	return len(output.Errors) == 0, nil
}

// Wait blocks until every solve started by PreSolve has finished
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	futures := make([]*future, 0, len(o.pending))
	for _, f := range o.pending {
		futures = append(futures, f)
	}
	o.mu.Unlock()

	for _, f := range futures {
		select {
		case <-f.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Pending returns how many pre-solved iterations have not been consumed
func (o *Orchestrator) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Discard forgets every pending solve. Their results are never applied.
func (o *Orchestrator) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) > 0 {
		zap.L().Debug("Discarding pending solves",
			zap.String("pass", o.passID),
			zap.Int("count", len(o.pending)))
	}
	o.pending = make(map[int]*future)
}

func (o *Orchestrator) startPass() {
	o.Discard()

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	o.mu.Lock()
	o.passID = id.String()
	o.mu.Unlock()
}

func (o *Orchestrator) guard(solver Solver, target Target) error {
	if solver == nil || solver.Identity().IsEmpty() {
		err := NewConfigurationError(noIdentityMessage)
		target.AddRuntimeMessage(host.LevelWarning, err.Error())
		return err
	}

	if o.headless {
		err := NewDisallowedExecutionContextError(headlessReason)
		target.AddRuntimeMessage(host.LevelError, err.Error())
		return err
	}

	return nil
}

// prepare builds the payload and its fingerprint. ok is false when inputs
// are incomplete; the warnings have then been reported.
func (o *Orchestrator) prepare(ctx context.Context, solver Solver, target Target, access host.DataAccess, policy CachePolicy) (*remote.Schema, string, bool, error) {
	input, warnings, err := solver.CreateSolveInput(ctx, access, policy.CacheOnServer)
	if err != nil {
		o.report(target, err)
		return nil, "", false, err
	}

	if len(warnings) > 0 {
		for _, warning := range warnings {
			target.AddRuntimeMessage(host.LevelWarning, warning)
		}
		return nil, "", false, nil
	}

	fingerprint, err := remote.Fingerprint(input)
	if err != nil {
		o.report(target, err)
		return nil, "", false, err
	}

	return input, fingerprint, true, nil
}

// result takes the pending future for the iteration if it matches the
// fingerprint, or solves inline. The memo cache is written here so that only
// the owner goroutine writes it, and only with results free of remote errors.
func (o *Orchestrator) result(ctx context.Context, solver Solver, input *remote.Schema, fingerprint string, iteration int, policy CachePolicy) (*remote.Schema, bool, time.Duration, error) {
	o.mu.Lock()
	f, ok := o.pending[iteration]
	delete(o.pending, iteration)
	o.mu.Unlock()

	if ok && f.fingerprint != fingerprint {
		zap.L().Debug("Discarding stale solve result",
			zap.String("definition", solver.Identity().String()),
			zap.Int("iteration", iteration))
		ok = false
	}

	if ok {
		select {
		case <-f.done:
		case <-ctx.Done():
			return nil, false, 0, ctx.Err()
		}

		if f.err == nil && !f.cached && policy.CacheInMemory && len(f.output.Errors) == 0 {
			solver.Remember(fingerprint, f.output)
		}
		return f.output, f.cached, f.duration, f.err
	}

	if policy.CacheInMemory {
		if output, hit := solver.Cached(fingerprint); hit {
			return output, true, 0, nil
		}
	}

	start := o.clock.Now()
	output, err := o.solveWithTimeout(ctx, solver, input)
	duration := o.clock.Since(start)
	if err != nil {
		return nil, false, duration, err
	}

	// failed solves are retried on the next pass
	if policy.CacheInMemory && len(output.Errors) == 0 {
		solver.Remember(fingerprint, output)
	}
	return output, false, duration, nil
}

func (o *Orchestrator) run(ctx context.Context, solver Solver, input *remote.Schema, f *future) {
	defer close(f.done)
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("solve", r)
			f.err = fmt.Errorf("panic recovered during solve: %v", r)
		}
	}()

	start := o.clock.Now()
	f.output, f.err = o.solveWithTimeout(ctx, solver, input)
	f.duration = o.clock.Since(start)
}

func (o *Orchestrator) solveWithTimeout(ctx context.Context, solver Solver, input *remote.Schema) (*remote.Schema, error) {
	solveCtx, cancel := clockwork.WithTimeout(ctx, o.clock, o.timeout)
	defer cancel()

	output, err := solver.SolveRemote(solveCtx, input)
	if err != nil && errors.Is(solveCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("solve of %s timed out after %v: %w", solver.Identity(), o.timeout, err)
	}
	return output, err
}

// report turns a failure into a runtime message. Unreachable solvers are a
// warning; anything else is an error.
func (o *Orchestrator) report(target Target, err error) {
	level := host.LevelError
	if remote.IsRemoteUnavailable(err) {
		level = host.LevelWarning
	}
	target.AddRuntimeMessage(level, err.Error())
}
