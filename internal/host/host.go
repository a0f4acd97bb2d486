// Package host describes what a hops component needs from the graph editor
// that owns it. The editor itself lives outside this module; Memory is a
// self-contained implementation used by the CLI and in tests.
package host

import (
	"github.com/dorcha-inc/hops/internal/param"
)

// MessageLevel is the severity of a runtime message shown on the node
type MessageLevel string

const (
	LevelRemark  MessageLevel = "remark"
	LevelWarning MessageLevel = "warning"
	LevelError   MessageLevel = "error"
)

// Slot is a typed parameter exposed on the node
type Slot interface {
	Name() string
	Spec() param.SlotSpec
	Access() param.Access
	SetAccess(access param.Access)
	ClearData()
}

// SlotBuilder adds slots in order. A host hands out a fresh builder per rebuild.
type SlotBuilder interface {
	Add(spec param.SlotSpec) (Slot, error)
}

// Parameters is the node's parameter list
type Parameters interface {
	Inputs() []Slot
	Outputs() []Slot
	CreateInputSlots() SlotBuilder
	CreateOutputSlots() SlotBuilder
	UnregisterSlot(slot Slot)
	NotifyParametersChanged()
}

// IdleHandler is notified each time the host becomes idle
type IdleHandler interface {
	OnIdle()
}

// Document is the evaluation state of the graph that contains the node
type Document interface {
	IsEvaluationInProgress() bool
	RequestNewEvaluationPass()
	RegisterIdleHandler(handler IdleHandler)
	UnregisterIdleHandler(handler IdleHandler)
}

// Canvas is the editor surface the node is drawn on
type Canvas interface {
	RequestCanvasRefresh()
}

// Registry resolves symbolic names to identities of registered objects
type Registry interface {
	ResolveIdentity(name string) (string, bool)
}

// Messenger attaches user visible messages to the node
type Messenger interface {
	AddRuntimeMessage(level MessageLevel, text string)
	ClearRuntimeMessages()
}

// Appearance is the node's description and icon
type Appearance interface {
	Description() string
	SetDescription(description string)
	SetIcon(icon []byte)
}

// Host bundles every collaborator a component needs
type Host interface {
	Parameters
	Document
	Canvas
	Registry
	Messenger
	Appearance
}

// DataAccess is the view of one solve iteration: input values in, output trees out
type DataAccess interface {
	Iteration() int
	// Input returns the values currently held by the named input, and whether
	// the slot exists.
	Input(name string) ([]any, bool)
	// SetOutput replaces the values of the named output, grouped by tree path.
	SetOutput(name string, tree map[string][]any) bool
}
