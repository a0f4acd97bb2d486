package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/core"
	"github.com/dorcha-inc/hops/internal/server"
)

const defaultServeAddr = "127.0.0.1:6500"

type serveOptions struct {
	addr           string
	useStdio       bool
	announce       bool
	definitionsDir string
}

// newServeCmd creates the serve command
func newServeCmd(flags *globalFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local solver",
		Long: `Run the local solver. It hosts the definitions found in the definitions
directory and serves them over HTTP (GET/POST /definitions/{name}, /io, /solve
and /mcp) or as an MCP server on stdio.

With --announce a "hops.hello <url>" line is printed on stdout once the server
is listening, which is how a parent process learns the address of a worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings(flags)
			if err != nil {
				return err
			}
			defer zap.L().Sync() //nolint:errcheck // sync errors on stderr are not actionable

			return runServe(cmd.Context(), cfg, flags.configPath, opts)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "Address to listen on (default "+defaultServeAddr+", or :$PORT)")
	cmd.Flags().BoolVar(&opts.useStdio, "stdio", false, "Serve MCP on stdin/stdout instead of HTTP")
	cmd.Flags().BoolVar(&opts.announce, "announce", false, "Print a hello line with the listen address on stdout")
	cmd.Flags().StringVar(&opts.definitionsDir, "definitions-dir", "", "Directory containing definitions (overrides config file)")

	return cmd
}

// resolveAddr picks the listen address: flag, then PORT/HOPS_PORT, then the default
func resolveAddr(flagAddr string) string {
	if flagAddr != "" {
		return flagAddr
	}
	if port := core.GetEnv("PORT"); port != "" {
		return ":" + port
	}
	return defaultServeAddr
}

func runServe(ctx context.Context, cfg *config.HopsConfig, configPath string, opts *serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.useStdio && opts.announce {
		return fmt.Errorf("--announce cannot be used with --stdio")
	}

	if opts.definitionsDir != "" {
		dir, err := filepath.Abs(opts.definitionsDir)
		if err != nil {
			return fmt.Errorf("failed to resolve definitions directory: %w", err)
		}
		cfg.DefinitionsDir = dir
	}

	srv := server.NewServer(cfg, configPath)

	ctx, cancel := setupSignalHandling(ctx, srv)
	defer cancel()

	if cfg.WatchDefinitions {
		if err := srv.WatchDefinitions(ctx, server.DefaultWatchDebounce); err != nil {
			zap.L().Warn("Not watching definitions", zap.Error(err))
		}
	}

	if err := runServer(ctx, srv, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			zap.L().Info("Server context canceled, exiting gracefully")
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// setupSignalHandling reloads on SIGHUP and cancels the returned context on SIGINT or SIGTERM
func setupSignalHandling(ctx context.Context, srv *server.Server) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigChan:
				switch sig {
				case syscall.SIGHUP:
					zap.L().Info("Received SIGHUP, reloading configuration and definitions")
					if err := srv.Reload(); err != nil {
						zap.L().Error("Failed to reload", zap.Error(err))
					} else {
						zap.L().Info("Successfully reloaded configuration and definitions")
					}
				case syscall.SIGINT, syscall.SIGTERM:
					zap.L().Info("Received shutdown signal")
					cancel()
					return
				}
			}
		}
	}()

	return ctx, cancel
}

// runServer starts the server in either stdio or HTTP mode
func runServer(ctx context.Context, srv *server.Server, opts *serveOptions) error {
	if opts.useStdio {
		zap.L().Info("Starting hops solver on stdio")
		return srv.ServeStdio(ctx)
	}

	var announce func(string) error
	if opts.announce {
		announce = func(baseURL string) error {
			return server.WriteHello(os.Stdout, baseURL)
		}
	}

	addr := resolveAddr(opts.addr)
	zap.L().Info("Starting hops solver", zap.String("address", addr))
	return srv.Serve(ctx, addr, announce)
}
