package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
)

var (
	version = "dev"
	// build time date
	buildDate = "unknown"
)

// globalFlags are shared by every command
type globalFlags struct {
	configPath string
	prettyLog  bool
	logLevel   string
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			core.LogPanicRecovery("hops", r)
			fmt.Fprintf(os.Stderr, "Error: %v%s\n", r, core.BugReportMessage())
			os.Exit(2)
		}
	}()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "hops",
		Short: "Solve remote definitions from the command line",
		Long: `hops connects to remote definitions, builds typed parameters from their
declared interface and solves them on a compute server.

A definition is named by an identity: an http(s) endpoint, a path or name
known to the configured compute server, or mcp:<tool> for an MCP solver.`,
		Version:       fmt.Sprintf("%s (built: %s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a hops.yaml config file")
	rootCmd.PersistentFlags().BoolVar(&flags.prettyLog, "pretty", false, "Use pretty-printed logs instead of JSON")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides config file)")

	rootCmd.AddCommand(newServeCmd(flags))
	rootCmd.AddCommand(newDescribeCmd(flags))
	rootCmd.AddCommand(newSolveCmd(flags))
	rootCmd.AddCommand(newWorkerCmd(flags))
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

// loadSettings loads the configuration and initializes the global logger from it
func loadSettings(flags *globalFlags) (*config.HopsConfig, error) {
	cfg, err := config.LoadConfig(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level := flags.logLevel
	if level == "" {
		level = cfg.LogLevel
	}

	if err := core.Init(resolveLogFormat(cfg, flags.prettyLog), level); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	zap.L().Debug("Configuration loaded",
		zap.Strings("servers", cfg.Servers),
		zap.String("definitions_dir", cfg.DefinitionsDir))
	return cfg, nil
}

// resolveLogFormat determines the log format based on CLI flag and config
func resolveLogFormat(cfg *config.HopsConfig, prettyLog bool) bool {
	return prettyLog || cfg.LogFormat == config.HopsLogFormatPretty
}
