package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/worker"
)

// newWorkerCmd creates the worker command
func newWorkerCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start a local solver in the background and print its address",
		Long: `Start a local solver as a child process, wait for it to announce its
address and print it. The solver runs until this command is interrupted.

The address can be used as a compute server, for example with
HOPS_SERVERS=<address> hops solve ...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // sync errors on stderr are not actionable

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := worker.New(worker.Options{
				Command:        cfg.WorkerCommand,
				DefinitionsDir: cfg.DefinitionsDir,
			})
			return runWorker(ctx, cfg, w, cmd.OutOrStdout())
		},
	}

	return cmd
}

func runWorker(ctx context.Context, cfg *config.HopsConfig, w *worker.Worker, out io.Writer) error {
	url, err := w.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start local solver: %w", err)
	}
	defer w.Stop()

	zap.L().Info("Local solver started",
		zap.String("address", url),
		zap.String("definitions_dir", cfg.DefinitionsDir))
	core.MustFprintf(out, "%s\n", url)

	<-ctx.Done()
	return nil
}
