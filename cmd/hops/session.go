package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hops/internal/config"
	"github.com/dorcha-inc/hops/internal/remote"
	"github.com/dorcha-inc/hops/internal/tui"
	"github.com/dorcha-inc/hops/internal/worker"
)

// session holds what a client command needs to reach definitions
type session struct {
	cfg    *config.HopsConfig
	dialer remote.Dialer
	worker *worker.Worker
}

// openSession builds the dialer, starting a local worker first when the
// configuration asks for one and names no compute server
func openSession(ctx context.Context, cfg *config.HopsConfig) (*session, error) {
	opts := cfg.DialerOptions()
	s := &session{cfg: cfg}

	if cfg.NeedsWorker() {
		s.worker = worker.New(worker.Options{
			Command:        cfg.WorkerCommand,
			DefinitionsDir: cfg.DefinitionsDir,
		})

		tui.Progress("Starting local solver...")
		url, err := s.worker.Start(ctx)
		if err != nil {
			tui.ProgressFailure("Failed to start local solver")
			return nil, fmt.Errorf("failed to start local solver: %w", err)
		}
		tui.ProgressSuccess("Local solver listening on " + url)
		opts.Servers = []string{url}
	}

	s.dialer = remote.NewDialer(opts)
	return s, nil
}

func (s *session) Close() {
	if s.worker != nil {
		zap.L().Debug("Stopping local solver", zap.String("address", s.worker.URL()))
		s.worker.Stop()
	}
}
