package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dorcha-inc/hops/internal/param"
)

type countingIdleHandler struct {
	calls  int
	onIdle func()
}

func (h *countingIdleHandler) OnIdle() {
	h.calls++
	if h.onIdle != nil {
		h.onIdle()
	}
}

func TestMemory_AddSlots(t *testing.T) {
	memory := NewMemory()

	slot, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius", Access: param.AccessItem})
	require.NoError(t, err)
	assert.Equal(t, "Radius", slot.Name())
	assert.Equal(t, param.DirectionInput, slot.Spec().Direction)

	_, err = memory.CreateOutputSlots().Add(param.SlotSpec{Name: "Area", Access: param.AccessTree})
	require.NoError(t, err)

	_, err = memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius"})
	assert.Error(t, err)

	// the same name may exist once per direction
	_, err = memory.CreateOutputSlots().Add(param.SlotSpec{Name: "Radius"})
	assert.NoError(t, err)

	assert.Len(t, memory.Inputs(), 1)
	assert.Len(t, memory.Outputs(), 2)
	assert.Equal(t, 3, memory.Counters().Added)
}

func TestMemory_UnregisterSlot(t *testing.T) {
	memory := NewMemory()
	slot, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius"})
	require.NoError(t, err)

	memory.UnregisterSlot(slot)
	memory.UnregisterSlot(slot)

	assert.Empty(t, memory.Inputs())
	assert.Equal(t, 1, memory.Counters().Unregistered)
}

func TestMemorySlot_ValuesFallBackToDefault(t *testing.T) {
	memory := NewMemory()
	_, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius", Default: 5.0, HasDefault: true})
	require.NoError(t, err)

	slot, ok := memory.Input("Radius")
	require.True(t, ok)
	assert.Equal(t, []any{5.0}, slot.Values())

	slot.SetValues(2.0, 3.0)
	assert.Equal(t, []any{2.0, 3.0}, slot.Values())

	slot.ClearData()
	assert.Equal(t, []any{5.0}, slot.Values())
}

func TestMemorySlot_SetAccess(t *testing.T) {
	memory := NewMemory()
	slot, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Points", Access: param.AccessItem})
	require.NoError(t, err)

	slot.SetAccess(param.AccessList)
	assert.Equal(t, param.AccessList, slot.Access())
	assert.Equal(t, param.AccessList, slot.Spec().Access)
}

func TestMemory_Access(t *testing.T) {
	memory := NewMemory()
	_, err := memory.CreateInputSlots().Add(param.SlotSpec{Name: "Radius"})
	require.NoError(t, err)
	_, err = memory.CreateOutputSlots().Add(param.SlotSpec{Name: "Area"})
	require.NoError(t, err)

	radius, _ := memory.Input("Radius")
	radius.SetValues(5.0)

	access := memory.Access(3)
	assert.Equal(t, 3, access.Iteration())

	values, ok := access.Input("Radius")
	require.True(t, ok)
	assert.Equal(t, []any{5.0}, values)

	_, ok = access.Input("Missing")
	assert.False(t, ok)

	assert.True(t, access.SetOutput("Area", map[string][]any{"0": {78.5}}))
	assert.False(t, access.SetOutput("Perimeter", map[string][]any{"0": {31.4}}))

	area, _ := memory.Output("Area")
	assert.Equal(t, map[string][]any{"0": {78.5}}, area.Tree())
}

func TestMemory_IdleHandlers(t *testing.T) {
	memory := NewMemory()
	handler := &countingIdleHandler{}
	handler.onIdle = func() { memory.UnregisterIdleHandler(handler) }

	memory.RegisterIdleHandler(handler)
	memory.RegisterIdleHandler(handler)
	assert.Equal(t, 1, memory.IdleHandlerCount())

	memory.Idle()
	memory.Idle()

	assert.Equal(t, 1, handler.calls)
	assert.Equal(t, 0, memory.IdleHandlerCount())
}

func TestMemory_Requests(t *testing.T) {
	memory := NewMemory()

	memory.NotifyParametersChanged()
	memory.RequestCanvasRefresh()
	memory.RequestCanvasRefresh()
	memory.RequestNewEvaluationPass()

	counters := memory.Counters()
	assert.Equal(t, 1, counters.ParametersChanged)
	assert.Equal(t, 2, counters.CanvasRefreshes)
	assert.Equal(t, 1, counters.NewPasses)

	assert.False(t, memory.IsEvaluationInProgress())
	memory.SetEvaluating(true)
	assert.True(t, memory.IsEvaluationInProgress())
}

func TestMemory_MessagesAndAppearance(t *testing.T) {
	memory := NewMemory()

	memory.AddRuntimeMessage(LevelWarning, "Input parameter Radius is missing")
	memory.AddRuntimeMessage(LevelError, "boom")
	assert.Equal(t, []Message{
		{Level: LevelWarning, Text: "Input parameter Radius is missing"},
		{Level: LevelError, Text: "boom"},
	}, memory.Messages())

	memory.ClearRuntimeMessages()
	assert.Empty(t, memory.Messages())

	memory.SetDescription("Area of a circle")
	assert.Equal(t, "Area of a circle", memory.Description())

	memory.SetIcon([]byte("<svg/>"))
	assert.Equal(t, []byte("<svg/>"), memory.Icon())

	memory.Register("area", "/defs/area.yaml")
	identity, ok := memory.ResolveIdentity("area")
	assert.True(t, ok)
	assert.Equal(t, "/defs/area.yaml", identity)
}
