package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/cruciblehq/cruxenv/internal/protocol"
)

// Represents the 'cruxenv status' command.
type StatusCmd struct{}

// Executes the status command.
func (c *StatusCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	var status protocol.StatusResult
	if err := protocol.Call(ctx, socketPath(g), protocol.CmdStatus, nil, &status); err != nil {
		return err
	}

	fmt.Fprintf(out, "version: %s\npid:     %d\nuptime:  %s\nbuilds:  %d\n",
		status.Version, status.Pid, status.Uptime, status.Builds)
	return nil
}

// Represents the 'cruxenv stop' command.
type StopCmd struct{}

// Executes the stop command.
func (c *StopCmd) Run(ctx context.Context, g *Globals) error {
	return protocol.Call(ctx, socketPath(g), protocol.CmdShutdown, nil, nil)
}
