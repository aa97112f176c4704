package cli

import (
	"context"
	"log/slog"

	"github.com/cruciblehq/cruxenv/internal/server"
)

// Represents the 'cruxenv start' command.
type StartCmd struct{}

// Executes the start command.
//
// Serves on a Unix domain socket and blocks until the context is cancelled
// (e.g. via SIGINT or SIGTERM) or a client requests shutdown.
func (c *StartCmd) Run(ctx context.Context, g *Globals) error {
	srv, err := server.New(ctx, server.Config{
		SocketPath: g.Socket,
		Runtime:    g.runtimeOptions(),
	})
	if err != nil {
		return err
	}

	if err := srv.Start(); err != nil {
		return err
	}

	slog.Info("cruxenv daemon is running")

	select {
	case <-ctx.Done():
	case <-srv.Done():
	}

	slog.Info("shutting down")
	return srv.Stop()
}
