// Package component is the node that solves a remote definition inside a
// host graph. It owns the definition handle and wires the reconciler,
// orchestrator, rebuild scheduler and persistence together.
package component

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/persist"
	"github.com/dorcha-inc/hops/internal/rebuild"
	"github.com/dorcha-inc/hops/internal/reconcile"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/solve"
)

const lockedMessage = "Parameters are locked to the definition they were first solved with"

// Policy decides whether a component follows schema changes of its definition
type Policy struct {
	// AllowSchemaChange rebuilds slots whenever the definition changes. When
	// false, the slot set is locked after the first successful solve.
	AllowSchemaChange bool
}

// Options configures a component
type Options struct {
	Policy Policy
	Cache  solve.CachePolicy
	Dialer remote.Dialer
	Solve  solve.Options
	// Watch rebuilds when a file-backed definition changes on disk
	Watch bool
}

// DefaultOptions follows schema changes and caches everywhere
func DefaultOptions(dialer remote.Dialer) Options {
	return Options{
		Policy: Policy{AllowSchemaChange: true},
		Cache:  solve.DefaultCachePolicy(),
		Dialer: dialer,
	}
}

// Component is one remote definition node
type Component struct {
	id     string
	host   host.Host
	dialer remote.Dialer
	policy Policy
	watch  bool

	reconciler   *reconcile.Reconciler
	orchestrator *solve.Orchestrator
	scheduler    *rebuild.Scheduler

	mu        sync.Mutex
	identity  remote.Identity
	handle    *remote.Handle
	cache     solve.CachePolicy
	version   persist.Version
	isDefined bool
}

// New creates a component attached to h
func New(h host.Host, opts Options) *Component {
	return NewWithOrchestrator(h, opts, solve.NewOrchestrator(opts.Solve))
}

// NewWithOrchestrator creates a component with a custom orchestrator
func NewWithOrchestrator(h host.Host, opts Options, orchestrator *solve.Orchestrator) *Component {
	c := &Component{
		id:           newID(),
		host:         h,
		dialer:       opts.Dialer,
		policy:       opts.Policy,
		watch:        opts.Watch,
		reconciler:   reconcile.New(),
		orchestrator: orchestrator,
		cache:        opts.Cache,
		version:      persist.CurrentVersion,
	}
	c.scheduler = rebuild.NewScheduler(c.id, h, c.rebuildFromIdle)
	return c
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ID identifies the component in logs and record stores
func (c *Component) ID() string {
	return c.id
}

// Identity returns the identity the component was last given
func (c *Component) Identity() remote.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// CachePolicy returns the component's cache settings
func (c *Component) CachePolicy() solve.CachePolicy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache
}

// SetCachePolicy changes the component's cache settings
func (c *Component) SetCachePolicy(policy solve.CachePolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = policy
}

// IsDefined reports whether the slot set has been locked
func (c *Component) IsDefined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isDefined
}

// SetIdentity points the component at a definition and rebuilds its slots.
// Identities are compared case-insensitively; setting an equal one does
// nothing. Registered names are resolved through the host first.
func (c *Component) SetIdentity(ctx context.Context, identity remote.Identity) error {
	c.mu.Lock()
	if c.identity.Equal(identity) {
		c.mu.Unlock()
		return nil
	}

	old := c.handle
	c.handle = nil
	c.identity = identity
	c.mu.Unlock()

	c.scheduler.Cancel()
	c.orchestrator.Discard()
	if old != nil {
		if err := old.Close(); err != nil {
			zap.L().Warn("Failed to close definition handle",
				zap.String("component", c.id),
				zap.String("definition", old.Identity().String()),
				zap.Error(err))
		}
	}

	if identity.IsEmpty() {
		zap.L().Debug("Definition cleared", zap.String("component", c.id))
		return nil
	}

	handle, err := c.connect(ctx)
	if err != nil {
		return err
	}
	return c.rebuild(ctx, handle)
}

// OnSolveRequested runs one iteration of a pass. With preSolve the remote
// solve is only started; a later call without preSolve writes the outputs.
func (c *Component) OnSolveRequested(ctx context.Context, access host.DataAccess, preSolve bool) error {
	handle, err := c.currentHandle(ctx)
	if err != nil {
		return err
	}

	// a nil *remote.Handle must reach the orchestrator as a nil interface
	var solver solve.Solver
	if handle != nil {
		solver = handle
	}

	policy := c.CachePolicy()
	if preSolve {
		return c.orchestrator.PreSolve(ctx, solver, c.host, access, policy)
	}

	solved, err := c.orchestrator.SolveOutputs(ctx, solver, c.host, access, policy)
	if err != nil || !solved {
		return err
	}

	if !c.policy.AllowSchemaChange {
		c.mu.Lock()
		if !c.isDefined {
			zap.L().Info("Locking parameters after first solve", zap.String("component", c.id))
		}
		c.isDefined = true
		c.mu.Unlock()
	}
	return nil
}

// Wait blocks until every pre-solved iteration has a result
func (c *Component) Wait(ctx context.Context) error {
	return c.orchestrator.Wait(ctx)
}

// OnScheduleRebuild asks for a rebuild on the host's next idle tick. It is
// safe to call from any goroutine.
func (c *Component) OnScheduleRebuild() {
	c.scheduler.Notify()
}

// Rebuild refetches the definition's interface and reconciles the slots
func (c *Component) Rebuild(ctx context.Context) error {
	handle, err := c.currentHandle(ctx)
	if err != nil {
		return err
	}
	if handle == nil {
		return nil
	}
	handle.Invalidate()
	return c.rebuild(ctx, handle)
}

// State returns what the component persists
func (c *Component) State() persist.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return persist.State{
		Version:       c.version,
		Path:          c.identity.String(),
		CacheOnServer: c.cache.CacheOnServer,
		CacheInMemory: c.cache.CacheInMemory,
		Immutable:     !c.policy.AllowSchemaChange,
		IsDefined:     c.isDefined,
	}
}

// Write stores the component's settings
func (c *Component) Write(w persist.Writer) {
	persist.Write(w, c.State())
}

// Read restores the component's settings. Failing to reach the definition
// while restoring is logged and does not fail the read.
func (c *Component) Read(ctx context.Context, r persist.Reader) error {
	state, err := persist.Read(r, c.State())
	if err != nil {
		return fmt.Errorf("failed to read component %s: %w", c.id, err)
	}

	c.mu.Lock()
	c.version = state.Version
	c.cache = solve.CachePolicy{CacheInMemory: state.CacheInMemory, CacheOnServer: state.CacheOnServer}
	if !c.policy.AllowSchemaChange {
		c.isDefined = state.IsDefined
	}
	c.mu.Unlock()

	if err := c.SetIdentity(ctx, remote.Identity(state.Path)); err != nil {
		zap.L().Debug("Definition unavailable while restoring",
			zap.String("component", c.id),
			zap.String("definition", state.Path),
			zap.Error(err))
	}
	return nil
}

// Close releases the handle and any pending work
func (c *Component) Close() error {
	c.scheduler.Cancel()
	c.orchestrator.Discard()

	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle == nil {
		return nil
	}
	return handle.Close()
}

// currentHandle returns the handle, reconnecting if a previous dial failed.
// It returns nil without error when no identity is set.
func (c *Component) currentHandle(ctx context.Context) (*remote.Handle, error) {
	c.mu.Lock()
	handle, identity := c.handle, c.identity
	c.mu.Unlock()

	if handle != nil || identity.IsEmpty() {
		return handle, nil
	}
	return c.connect(ctx)
}

func (c *Component) connect(ctx context.Context) (*remote.Handle, error) {
	c.mu.Lock()
	identity := c.identity
	c.mu.Unlock()

	if c.dialer == nil {
		return nil, remote.NewRemoteUnavailableError(identity, errors.New("no dialer configured"))
	}

	target := identity
	if resolved, ok := c.host.ResolveIdentity(identity.String()); ok {
		zap.L().Debug("Resolved registered definition",
			zap.String("name", identity.String()),
			zap.String("identity", resolved))
		target = remote.Identity(resolved)
	}

	transport, err := c.dialer.Dial(ctx, target)
	if err != nil {
		c.host.AddRuntimeMessage(host.LevelWarning, err.Error())
		return nil, err
	}

	handle := remote.NewHandle(target, transport)

	c.mu.Lock()
	if !c.identity.Equal(identity) || c.handle != nil {
		// the identity changed while dialing
		c.mu.Unlock()
		_ = handle.Close()
		return nil, fmt.Errorf("identity changed while connecting to %s", target)
	}
	c.handle = handle
	c.mu.Unlock()

	if c.watch {
		if err := handle.Watch(c.OnScheduleRebuild); err != nil {
			zap.L().Warn("Failed to watch definition",
				zap.String("definition", target.String()),
				zap.Error(err))
		}
	}

	return handle, nil
}

func (c *Component) rebuild(ctx context.Context, handle *remote.Handle) error {
	if c.locked() {
		c.host.AddRuntimeMessage(host.LevelRemark, lockedMessage)
		return nil
	}

	c.host.ClearRuntimeMessages()

	description, icon, err := handle.GetDescription(ctx)
	if err != nil {
		c.host.AddRuntimeMessage(host.LevelWarning, err.Error())
		return err
	}

	inputs, err := handle.GetInputParams(ctx)
	if err != nil {
		c.host.AddRuntimeMessage(host.LevelWarning, err.Error())
		return err
	}

	outputs, err := handle.GetOutputParams(ctx)
	if err != nil {
		c.host.AddRuntimeMessage(host.LevelWarning, err.Error())
		return err
	}

	plan, err := c.reconciler.Reconcile(c.host, reconcile.Schema{
		Description: description,
		Icon:        icon,
		Inputs:      inputs,
		Outputs:     outputs,
	})
	if err != nil {
		c.host.AddRuntimeMessage(host.LevelError, err.Error())
		return err
	}

	zap.L().Debug("Component rebuilt",
		zap.String("component", c.id),
		zap.String("definition", handle.Identity().String()),
		zap.Bool("changed", plan.Changed()))
	return nil
}

// locked reports whether the slot set must be kept as it is
func (c *Component) locked() bool {
	if c.policy.AllowSchemaChange || !c.IsDefined() {
		return false
	}
	// nothing to preserve yet, for example right after a restore
	return len(c.host.Inputs())+len(c.host.Outputs()) > 0
}

func (c *Component) rebuildFromIdle() {
	if err := c.Rebuild(context.Background()); err != nil {
		zap.L().Warn("Scheduled rebuild failed",
			zap.String("component", c.id),
			zap.Error(err))
	}
}
