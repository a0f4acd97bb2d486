package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/component"
	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/host"
	"github.com/dorcha-inc/hops/internal/param"
	"github.com/dorcha-inc/hops/internal/persist"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/tui"
)

// idleInterval is how often a watching solve gives the host an idle tick
const idleInterval = 200 * time.Millisecond

type solveOptions struct {
	sets       []string
	jsonOutput bool
	immutable  bool
	noCache    bool
	statePath  string
	node       string
	watch      bool
}

// newSolveCmd creates the solve command
func newSolveCmd(flags *globalFlags) *cobra.Command {
	opts := &solveOptions{}

	cmd := &cobra.Command{
		Use:   "solve [IDENTITY]",
		Short: "Solve a definition and print its outputs",
		Long: `Solve a definition once and print its outputs.

Inputs are set with --set NAME=VALUE. Repeat --set for list inputs. Values are
converted to the input's kind; structured kinds such as Point take JSON.
Inputs that are not set use their declared default.

With --state the component's settings are restored before solving and saved
afterwards, so the identity can be omitted on later runs.`,
		Example: `  hops solve ./definitions/area/definition.yaml --set Radius=3
  hops solve area --set Radius=3 --json
  hops solve https://compute.example.com/definitions/area --state area.yaml
  hops solve --state nodes.db --node area --set Radius=4`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // sync errors on stderr are not actionable

			var identity remote.Identity
			if len(args) == 1 {
				identity = remote.Identity(args[0])
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if opts.watch {
				var stop context.CancelFunc
				ctx, stop = signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer stop()
			}

			return runSolve(ctx, cfg, identity, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringArrayVar(&opts.sets, "set", nil, "Set an input, as NAME=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the results as JSON")
	cmd.Flags().BoolVar(&opts.immutable, "immutable", false, "Lock the parameters after the first successful solve")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Disable the in-memory and server result caches")
	cmd.Flags().StringVar(&opts.statePath, "state", "", "Restore and save component settings (YAML file, or .db for SQLite)")
	cmd.Flags().StringVar(&opts.node, "node", "default", "Record name inside a SQLite state file")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Solve again whenever a file-backed definition changes")

	return cmd
}

func runSolve(ctx context.Context, cfg *config.HopsConfig, identity remote.Identity, opts *solveOptions, w io.Writer) error {
	assignments, err := parseAssignments(opts.sets)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	cache := cfg.CachePolicy()
	if opts.noCache {
		cache.CacheInMemory = false
		cache.CacheOnServer = false
	}

	memory := host.NewMemory()
	comp := component.New(memory, component.Options{
		Policy: component.Policy{AllowSchemaChange: !opts.immutable},
		Cache:  cache,
		Dialer: s.dialer,
		Solve:  cfg.SolveOptions(),
		Watch:  opts.watch,
	})
	defer core.LogDeferredError(comp.Close)

	var store stateStore
	if opts.statePath != "" {
		if store, err = openStateStore(opts.statePath, opts.node); err != nil {
			return err
		}
		defer core.LogDeferredError(store.Close)

		if err := restoreComponent(ctx, comp, store); err != nil {
			return err
		}
	}

	if !identity.IsEmpty() {
		if err := comp.SetIdentity(ctx, identity); err != nil {
			tui.Messages(memory.Messages())
			return fmt.Errorf("failed to load %s: %w", identity, err)
		}
	}
	if comp.Identity().IsEmpty() {
		return fmt.Errorf("no definition given: pass an identity or a --state file that has one")
	}

	if err := solveAndPrint(ctx, comp, memory, assignments, opts.jsonOutput, w); err != nil {
		return err
	}

	if store != nil {
		record := persist.NewRecord()
		comp.Write(record)
		if err := store.Save(ctx, record); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		zap.L().Debug("Saved component state", zap.String("path", opts.statePath))
	}

	if !opts.watch {
		return nil
	}
	return watchAndSolve(ctx, comp, memory, assignments, opts.jsonOutput, w)
}

func restoreComponent(ctx context.Context, comp *component.Component, store stateStore) error {
	record, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if record == nil {
		return nil
	}
	return comp.Read(ctx, record)
}

// watchAndSolve gives the host idle ticks until ctx is done and solves again
// after every rebuild the component schedules
func watchAndSolve(ctx context.Context, comp *component.Component, memory *host.Memory, assignments []assignment, jsonOutput bool, w io.Writer) error {
	tui.Info("Watching %s for changes, press Ctrl+C to stop\n", comp.Identity())

	ticker := time.NewTicker(idleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			pending := memory.IdleHandlerCount() > 0
			memory.Idle()
			if !pending || memory.IdleHandlerCount() > 0 {
				continue
			}
			if err := solveAndPrint(ctx, comp, memory, assignments, jsonOutput, w); err != nil {
				zap.L().Warn("Solve after change failed", zap.Error(err))
			}
		}
	}
}

// solveAndPrint runs one evaluation pass and prints the outputs and runtime messages
func solveAndPrint(ctx context.Context, comp *component.Component, memory *host.Memory, assignments []assignment, jsonOutput bool, w io.Writer) error {
	defer memory.ClearRuntimeMessages()

	if err := applyAssignments(memory, assignments); err != nil {
		return err
	}

	tui.Progress("Solving " + comp.Identity().String() + "...")
	err := evaluate(ctx, comp, memory)
	if err != nil {
		tui.ProgressFailure("")
	} else {
		tui.ProgressSuccess("Solved " + comp.Identity().String())
	}

	tui.Messages(memory.Messages())
	if err != nil {
		return fmt.Errorf("failed to solve %s: %w", comp.Identity(), err)
	}

	return printOutputs(memory, jsonOutput, w)
}

// evaluate runs a single-iteration pass the way a host does: pre-solve,
// wait for the result, then solve to write the outputs
func evaluate(ctx context.Context, comp *component.Component, memory *host.Memory) error {
	memory.SetEvaluating(true)
	defer memory.SetEvaluating(false)

	access := memory.Access(0)
	if err := comp.OnSolveRequested(ctx, access, true); err != nil {
		return err
	}
	if err := comp.Wait(ctx); err != nil {
		return err
	}
	return comp.OnSolveRequested(ctx, access, false)
}

func printOutputs(memory *host.Memory, jsonOutput bool, w io.Writer) error {
	outputs := map[string]map[string][]any{}
	names := make([]string, 0)
	for _, slot := range memory.Outputs() {
		output, ok := memory.Output(slot.Name())
		if !ok {
			continue
		}
		names = append(names, slot.Name())
		outputs[slot.Name()] = output.Tree()
	}

	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(outputs)
	}

	width := 0
	if ui := tui.Default(); ui.StdoutIsTTY() {
		width = ui.Width()
	}
	for _, name := range names {
		for _, line := range tui.FormatTree(name, outputs[name], width) {
			core.MustFprintf(w, "%s\n", line)
		}
	}
	return nil
}

// assignment is one --set flag
type assignment struct {
	name  string
	value string
}

func parseAssignments(sets []string) ([]assignment, error) {
	assignments := make([]assignment, 0, len(sets))
	for _, set := range sets {
		name, value, ok := strings.Cut(set, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q: expected NAME=VALUE", set)
		}
		assignments = append(assignments, assignment{name: name, value: value})
	}
	return assignments, nil
}

// applyAssignments converts the values to each input's kind and stores them.
// Repeated names become a list.
func applyAssignments(memory *host.Memory, assignments []assignment) error {
	values := map[string][]any{}
	order := []string{}
	slots := map[string]*host.MemorySlot{}

	for _, a := range assignments {
		slot, err := findInput(memory, a.name)
		if err != nil {
			return err
		}
		spec := slot.Spec()

		value, err := param.ParseValue(spec.Kind, a.value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %w", spec.Name, err)
		}

		if _, seen := values[spec.Name]; !seen {
			order = append(order, spec.Name)
			slots[spec.Name] = slot
		}
		values[spec.Name] = append(values[spec.Name], value)
	}

	for _, name := range order {
		slot := slots[name]
		if slot.Access() == param.AccessItem && len(values[name]) > 1 {
			return fmt.Errorf("input %s takes a single value, got %d", name, len(values[name]))
		}
		slot.SetValues(values[name]...)
	}
	return nil
}

var errUnknownInput = errors.New("unknown input")

func findInput(memory *host.Memory, name string) (*host.MemorySlot, error) {
	if slot, ok := memory.Input(name); ok {
		return slot, nil
	}

	names := make([]string, 0)
	for _, slot := range memory.Inputs() {
		if strings.EqualFold(slot.Name(), name) {
			if found, ok := memory.Input(slot.Name()); ok {
				return found, nil
			}
		}
		names = append(names, slot.Name())
	}
	return nil, fmt.Errorf("%w %q (inputs: %s)", errUnknownInput, name, strings.Join(names, ", "))
}
