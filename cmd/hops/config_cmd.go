package main

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
)

// newConfigCmd creates the config command and its subcommands
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and change hops settings",
		Long: `Read and change hops settings.

Settings come from, in order of precedence: HOPS_* environment variables, the
project hops.yaml in the current directory, the user hops.yaml in
$XDG_CONFIG_HOME/hops, and built-in defaults.`,
	}

	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigListCmd())

	return cmd
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print a setting and where it comes from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := config.GetConfigValue(args[0])
			if err != nil {
				return err
			}
			core.MustFprintf(cmd.OutOrStdout(), "%s (%s)\n", formatConfigValue(value.Value), value.Source)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Change a setting in the project or user hops.yaml",
		Long: `Change a setting. The project hops.yaml is written when one exists in the
current directory, otherwise the user hops.yaml. List settings take a
comma-separated value.`,
		Example: `  hops config set solve_timeout 60
  hops config set servers http://localhost:6500,http://compute:6500`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.SetConfigValue(args[0], args[1]); err != nil {
				return err
			}
			core.MustFprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every setting with its value and source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := config.ListConfig()
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(values))
			for key := range values {
				keys = append(keys, key)
			}
			slices.Sort(keys)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			core.MustFprintf(w, "KEY\tVALUE\tSOURCE\n")
			for _, key := range keys {
				core.MustFprintf(w, "%s\t%s\t%s\n", key, formatConfigValue(values[key].Value), values[key].Source)
			}
			return w.Flush()
		},
	}
}

// formatConfigValue prints lists comma-separated, the way set accepts them
func formatConfigValue(value any) string {
	switch v := value.(type) {
	case []string:
		return strings.Join(v, ",")
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(value)
}
