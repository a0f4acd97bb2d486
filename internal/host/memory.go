package host

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/dorcha-inc/hops/internal/param"
)

// Message is a runtime message recorded by Memory
type Message struct {
	Level MessageLevel
	Text  string
}

// MemorySlot is a slot held in memory
type MemorySlot struct {
	mu     sync.RWMutex
	spec   param.SlotSpec
	values []any
	tree   map[string][]any
}

func (s *MemorySlot) Name() string {
	return s.spec.Name
}

func (s *MemorySlot) Spec() param.SlotSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec
}

func (s *MemorySlot) Access() param.Access {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spec.Access
}

func (s *MemorySlot) SetAccess(access param.Access) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spec.Access = access
}

func (s *MemorySlot) ClearData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = nil
	s.tree = nil
}

// SetValues replaces the values held by an input slot
func (s *MemorySlot) SetValues(values ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = slices.Clone(values)
}

// Values returns the slot's values, falling back to its default when empty
func (s *MemorySlot) Values() []any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.values) == 0 && s.spec.HasDefault {
		return []any{s.spec.Default}
	}
	return slices.Clone(s.values)
}

// Tree returns the values written to an output slot, keyed by path
func (s *MemorySlot) Tree() map[string][]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.tree)
}

var _ Slot = &MemorySlot{}

// Memory is an in-process Host. Nothing is rendered; every request is
// recorded so callers can inspect what a component asked for.
type Memory struct {
	mu sync.Mutex

	inputs  []*MemorySlot
	outputs []*MemorySlot

	description string
	icon        []byte
	messages    []Message
	registry    map[string]string

	idleHandlers []IdleHandler
	evaluating   bool

	parametersChanged int
	canvasRefreshes   int
	newPasses         int
	unregistered      int
	added             int
}

// NewMemory creates an empty in-memory host
func NewMemory() *Memory {
	return &Memory{registry: map[string]string{}}
}

var _ Host = &Memory{}

func (m *Memory) Inputs() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return toSlots(m.inputs)
}

func (m *Memory) Outputs() []Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return toSlots(m.outputs)
}

// Input returns the named input slot
func (m *Memory) Input(name string) (*MemorySlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return findSlot(m.inputs, name)
}

// Output returns the named output slot
func (m *Memory) Output(name string) (*MemorySlot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return findSlot(m.outputs, name)
}

func (m *Memory) CreateInputSlots() SlotBuilder {
	return &memoryBuilder{host: m, direction: param.DirectionInput}
}

func (m *Memory) CreateOutputSlots() SlotBuilder {
	return &memoryBuilder{host: m, direction: param.DirectionOutput}
}

func (m *Memory) UnregisterSlot(slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	memorySlot, ok := slot.(*MemorySlot)
	if !ok {
		return
	}

	before := len(m.inputs) + len(m.outputs)
	m.inputs = slices.DeleteFunc(m.inputs, func(s *MemorySlot) bool { return s == memorySlot })
	m.outputs = slices.DeleteFunc(m.outputs, func(s *MemorySlot) bool { return s == memorySlot })
	if len(m.inputs)+len(m.outputs) < before {
		m.unregistered++
	}
}

func (m *Memory) NotifyParametersChanged() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parametersChanged++
}

func (m *Memory) RequestCanvasRefresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canvasRefreshes++
}

func (m *Memory) RequestNewEvaluationPass() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newPasses++
}

func (m *Memory) IsEvaluationInProgress() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluating
}

// SetEvaluating marks the document as mid-evaluation
func (m *Memory) SetEvaluating(evaluating bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluating = evaluating
}

func (m *Memory) RegisterIdleHandler(handler IdleHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.idleHandlers, handler) {
		m.idleHandlers = append(m.idleHandlers, handler)
	}
}

func (m *Memory) UnregisterIdleHandler(handler IdleHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleHandlers = slices.DeleteFunc(m.idleHandlers, func(h IdleHandler) bool { return h == handler })
}

// Idle delivers one idle tick to every registered handler. Handlers may
// unregister themselves while being notified.
func (m *Memory) Idle() {
	m.mu.Lock()
	handlers := slices.Clone(m.idleHandlers)
	m.mu.Unlock()

	for _, handler := range handlers {
		handler.OnIdle()
	}
}

// IdleHandlerCount returns how many handlers are waiting for idle ticks
func (m *Memory) IdleHandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.idleHandlers)
}

// Register makes name resolvable to identity
func (m *Memory) Register(name, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = identity
}

func (m *Memory) ResolveIdentity(name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.registry[name]
	return identity, ok
}

func (m *Memory) AddRuntimeMessage(level MessageLevel, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Level: level, Text: text})
}

func (m *Memory) ClearRuntimeMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
}

// Messages returns the runtime messages recorded since the last clear
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

func (m *Memory) Description() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.description
}

func (m *Memory) SetDescription(description string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.description = description
}

func (m *Memory) SetIcon(icon []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.icon = slices.Clone(icon)
}

// Icon returns the icon override, if any
func (m *Memory) Icon() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.icon)
}

// Counters reports how often each host request has been made
type Counters struct {
	ParametersChanged int
	CanvasRefreshes   int
	NewPasses         int
	Unregistered      int
	Added             int
}

// Counters returns a snapshot of the recorded host requests
func (m *Memory) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{
		ParametersChanged: m.parametersChanged,
		CanvasRefreshes:   m.canvasRefreshes,
		NewPasses:         m.newPasses,
		Unregistered:      m.unregistered,
		Added:             m.added,
	}
}

// Access returns the data access for one iteration of a pass
func (m *Memory) Access(iteration int) DataAccess {
	return &memoryAccess{host: m, iteration: iteration}
}

type memoryBuilder struct {
	host      *Memory
	direction param.Direction
}

func (b *memoryBuilder) Add(spec param.SlotSpec) (Slot, error) {
	b.host.mu.Lock()
	defer b.host.mu.Unlock()

	slots := b.host.inputs
	if b.direction == param.DirectionOutput {
		slots = b.host.outputs
	}

	if _, exists := findSlot(slots, spec.Name); exists {
		return nil, fmt.Errorf("%s slot %q already exists", b.direction, spec.Name)
	}

	spec.Direction = b.direction
	slot := &MemorySlot{spec: spec}
	if b.direction == param.DirectionOutput {
		b.host.outputs = append(b.host.outputs, slot)
	} else {
		b.host.inputs = append(b.host.inputs, slot)
	}
	b.host.added++

	return slot, nil
}

type memoryAccess struct {
	host      *Memory
	iteration int
}

func (a *memoryAccess) Iteration() int {
	return a.iteration
}

func (a *memoryAccess) Input(name string) ([]any, bool) {
	slot, ok := a.host.Input(name)
	if !ok {
		return nil, false
	}
	return slot.Values(), true
}

func (a *memoryAccess) SetOutput(name string, tree map[string][]any) bool {
	slot, ok := a.host.Output(name)
	if !ok {
		return false
	}

	slot.mu.Lock()
	defer slot.mu.Unlock()
	slot.tree = maps.Clone(tree)
	return true
}

func toSlots(slots []*MemorySlot) []Slot {
	out := make([]Slot, len(slots))
	for i, s := range slots {
		out[i] = s
	}
	return out
}

func findSlot(slots []*MemorySlot, name string) (*MemorySlot, bool) {
	for _, s := range slots {
		if s.spec.Name == name {
			return s, true
		}
	}
	return nil, false
}
