// Package app wires configuration into a running application: the broker
// client, the per-client strategies, the control-loop worker, and the
// read-only status server.
package app

import (
	"context"
	"fmt"

	"mirra/internal/config"
	"mirra/internal/logger"
	statushttp "mirra/internal/transport/http/status"
	"mirra/internal/worker"

	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg    *config.Config
	worker *worker.Worker
	http   *statushttp.Server
	close  func()
}

// NewApp builds the application from configuration without starting it.
// Account refs are resolved against the broker here, so a bad token fails
// fast instead of on the first tick.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(ctx, cfg)
}

// Run starts the worker loop and, when enabled, the status HTTP server,
// blocking until ctx is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.worker == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)

	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
		logger.Infof("status server listening on %s", a.http.Addr())
	}

	group.Go(func() error {
		return a.worker.Run(ctx)
	})

	return group.Wait()
}

func (a *App) Close() {
	if a != nil && a.close != nil {
		a.close()
	}
}
