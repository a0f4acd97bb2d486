// Package reconcile brings a node's typed slots in line with the parameters a
// remote definition declares.
//
// Reconciliation happens in two steps. Plan classifies every declaration that
// would be built and decides, per direction, whether the slot set must be
// rebuilt or only corrected in place. Apply then performs the mutations. A
// failing Plan leaves the host untouched.
package reconcile

import (
	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/param"
)

// Correction changes the cardinality of an existing input slot
type Correction struct {
	Slot   host.Slot
	Access param.Access
}

// Plan is the set of slot changes needed to match a declared schema
type Plan struct {
	RebuildInputs  bool
	RebuildOutputs bool

	// Inputs and Outputs are the classified slots to build, in declaration
	// order. They are only populated for directions being rebuilt.
	Inputs  []param.SlotSpec
	Outputs []param.SlotSpec

	Corrections []Correction

	// TriggerRecompute is set when the inputs were rebuilt and every declared
	// input carries a default, so the node can be evaluated straight away.
	TriggerRecompute bool
}

// Changed reports whether the plan rebuilds either direction
func (p *Plan) Changed() bool {
	return p.RebuildInputs || p.RebuildOutputs
}

// Schema is what a definition declares about itself
type Schema struct {
	Description string
	Icon        []byte
	// nil Inputs or Outputs means the definition did not declare that direction
	Inputs  []param.Declaration
	Outputs []param.Declaration
}

// Reconciler plans and applies slot changes
type Reconciler struct{}

// New creates a reconciler
func New() *Reconciler {
	return &Reconciler{}
}

// Plan compares the current slots with the declared parameters
func (r *Reconciler) Plan(currentInputs, currentOutputs []host.Slot, declaredInputs, declaredOutputs []param.Declaration) (*Plan, error) {
	plan := &Plan{}

	if declaredInputs != nil {
		plan.RebuildInputs = needsRebuild(currentInputs, declaredInputs)
		if !plan.RebuildInputs {
			plan.Corrections = accessCorrections(currentInputs, declaredInputs)
		}
	}

	if declaredOutputs != nil {
		plan.RebuildOutputs = needsRebuild(currentOutputs, declaredOutputs)
	}

	// classify everything before anything is mutated
	if plan.RebuildInputs {
		specs, err := classifyAll(declaredInputs, param.DirectionInput)
		if err != nil {
			return nil, err
		}
		plan.Inputs = specs
	}

	if plan.RebuildOutputs {
		specs, err := classifyAll(declaredOutputs, param.DirectionOutput)
		if err != nil {
			return nil, err
		}
		plan.Outputs = specs
	}

	plan.TriggerRecompute = plan.RebuildInputs && allHaveDefaults(declaredInputs)

	zap.L().Debug("Reconcile planned",
		zap.Bool("rebuild_inputs", plan.RebuildInputs),
		zap.Bool("rebuild_outputs", plan.RebuildOutputs),
		zap.Int("corrections", len(plan.Corrections)),
		zap.Bool("trigger_recompute", plan.TriggerRecompute))

	return plan, nil
}

// Apply performs the plan against the host
func (r *Reconciler) Apply(plan *Plan, h host.Host) error {
	for _, correction := range plan.Corrections {
		if correction.Slot.Access() != correction.Access {
			correction.Slot.SetAccess(correction.Access)
		}
	}

	if plan.RebuildInputs {
		if err := rebuild(h, h.Inputs(), h.CreateInputSlots(), plan.Inputs); err != nil {
			return err
		}
	}

	if plan.RebuildOutputs {
		if err := rebuild(h, h.Outputs(), h.CreateOutputSlots(), plan.Outputs); err != nil {
			return err
		}
	}

	if !plan.Changed() {
		return nil
	}

	zap.L().Info("Rebuilt parameters",
		zap.Int("inputs", len(h.Inputs())),
		zap.Int("outputs", len(h.Outputs())),
		zap.Bool("trigger_recompute", plan.TriggerRecompute))

	h.NotifyParametersChanged()
	h.RequestCanvasRefresh()
	if plan.TriggerRecompute {
		h.RequestNewEvaluationPass()
	}
	return nil
}

// Reconcile plans and applies in one step, and updates the node's description
// and icon from the schema. The returned plan describes what was done.
func (r *Reconciler) Reconcile(h host.Host, schema Schema) (*Plan, error) {
	plan, err := r.Plan(h.Inputs(), h.Outputs(), schema.Inputs, schema.Outputs)
	if err != nil {
		return nil, err
	}

	if schema.Description != "" && schema.Description != h.Description() {
		h.SetDescription(schema.Description)
	}
	if len(schema.Icon) > 0 {
		h.SetIcon(schema.Icon)
	}

	if err := r.Apply(plan, h); err != nil {
		return nil, err
	}
	return plan, nil
}

// needsRebuild reports whether the slot set no longer matches the declared
// names. Cardinality alone never forces a rebuild.
func needsRebuild(current []host.Slot, declared []param.Declaration) bool {
	if len(current) != len(declared) {
		return true
	}

	names := declaredNames(declared)
	for _, slot := range current {
		if !names.Contains(slot.Name()) {
			return true
		}
	}
	return false
}

func accessCorrections(current []host.Slot, declared []param.Declaration) []Correction {
	byName := make(map[string]param.Declaration, len(declared))
	for _, decl := range declared {
		byName[decl.Name] = decl
	}

	var corrections []Correction
	for _, slot := range current {
		decl, ok := byName[slot.Name()]
		if !ok {
			continue
		}
		access := param.InputAccess(decl.AtLeast, decl.AtMost)
		if slot.Access() != access {
			corrections = append(corrections, Correction{Slot: slot, Access: access})
		}
	}
	return corrections
}

func declaredNames(declared []param.Declaration) mapset.Set[string] {
	names := mapset.NewThreadUnsafeSet[string]()
	for _, decl := range declared {
		names.Add(decl.Name)
	}
	return names
}

// classifyAll also rejects duplicate names, so Apply never hits a builder
// error after the old slots are gone
func classifyAll(declared []param.Declaration, direction param.Direction) ([]param.SlotSpec, error) {
	specs := make([]param.SlotSpec, 0, len(declared))
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, decl := range declared {
		if !seen.Add(decl.Name) {
			return nil, param.NewDuplicateParameterError(decl.Name, direction)
		}
		spec, err := param.Classify(decl, direction)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func allHaveDefaults(declared []param.Declaration) bool {
	for _, decl := range declared {
		if !decl.HasDefault() {
			return false
		}
	}
	return true
}

func rebuild(h host.Parameters, existing []host.Slot, builder host.SlotBuilder, specs []param.SlotSpec) error {
	for _, slot := range existing {
		h.UnregisterSlot(slot)
	}
	for _, spec := range specs {
		if _, err := builder.Add(spec); err != nil {
			return err
		}
	}
	return nil
}
