// Package rebuild defers parameter rebuilds until the host is idle.
package rebuild

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/host"
)

// State is the scheduler's position in its lifecycle
type State string

const (
	StateIdle           State = "IDLE"
	StatePendingRebuild State = "PENDING_REBUILD"
)

// Scheduler coalesces rebuild requests and runs at most one rebuild per idle
// tick, never while the document is evaluating.
type Scheduler struct {
	mu       sync.Mutex
	state    State
	name     string
	document host.Document
	rebuild  func()
}

var _ host.IdleHandler = &Scheduler{}

// NewScheduler creates a scheduler that calls rebuild on the idle tick after
// Notify. name identifies the owner in log output.
func NewScheduler(name string, document host.Document, rebuild func()) *Scheduler {
	return &Scheduler{
		state:    StateIdle,
		name:     name,
		document: document,
		rebuild:  rebuild,
	}
}

// Notify requests a rebuild. It is safe to call from any goroutine; requests
// made while one is already pending are merged into it.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StatePendingRebuild {
		return
	}

	s.setStateLocked(StatePendingRebuild)
	s.document.RegisterIdleHandler(s)
}

// OnIdle runs the pending rebuild unless the document is mid-evaluation, in
// which case it waits for the next idle tick.
func (s *Scheduler) OnIdle() {
	s.mu.Lock()
	if s.state != StatePendingRebuild {
		s.mu.Unlock()
		return
	}

	if s.document.IsEvaluationInProgress() {
		s.mu.Unlock()
		zap.L().Debug("Rebuild deferred, evaluation in progress", zap.String("component", s.name))
		return
	}

	s.document.UnregisterIdleHandler(s)
	s.setStateLocked(StateIdle)
	s.mu.Unlock()

	s.rebuild()
}

// Cancel drops a pending rebuild
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePendingRebuild {
		return
	}

	s.document.UnregisterIdleHandler(s)
	s.setStateLocked(StateIdle)
}

// GetState returns the current state
func (s *Scheduler) GetState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsPending returns true if a rebuild is waiting for an idle tick
func (s *Scheduler) IsPending() bool {
	return s.GetState() == StatePendingRebuild
}

// setStateLocked sets the state (assumes lock IS held)
func (s *Scheduler) setStateLocked(newState State) {
	oldState := s.state
	s.state = newState
	if oldState != newState {
		zap.L().Debug("Rebuild scheduler state changed",
			zap.String("component", s.name),
			zap.String("old_state", string(oldState)),
			zap.String("new_state", string(newState)))
	}
}
