package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/tui"
)

// newDescribeCmd creates the describe command
func newDescribeCmd(flags *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "describe IDENTITY",
		Short: "Show the inputs and outputs a definition declares",
		Example: `  hops describe https://compute.example.com/definitions/area
  hops describe ./definitions/area/definition.yaml
  hops describe mcp:area --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // sync errors on stderr are not actionable

			return runDescribe(cmd.Context(), cfg, remote.Identity(args[0]), jsonOutput, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the declared interface as JSON")

	return cmd
}

func runDescribe(ctx context.Context, cfg *config.HopsConfig, identity remote.Identity, jsonOutput bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	transport, err := s.dialer.Dial(ctx, identity)
	if err != nil {
		return err
	}
	defer core.LogDeferredError(transport.Close)

	described, err := transport.Describe(ctx)
	if err != nil {
		return fmt.Errorf("failed to describe %s: %w", identity, err)
	}

	if jsonOutput {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(described)
	}

	ui := tui.Default()
	rendered, err := ui.RenderMarkdown(tui.DescribeMarkdown(identity.String(), described), ui.Width())
	if err != nil {
		zap.L().Debug("Falling back to plain markdown", zap.Error(err))
	}
	core.MustFprintf(w, "%s", rendered)
	return nil
}
