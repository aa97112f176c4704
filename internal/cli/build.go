package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/cruciblehq/cruxenv/internal/build"
	"github.com/cruciblehq/cruxenv/internal/paths"
	"github.com/cruciblehq/cruxenv/internal/protocol"
	"github.com/cruciblehq/cruxenv/internal/runtime"
	"github.com/dustin/go-humanize"
)

// Represents the 'cruxenv build' command.
type BuildCmd struct {
	TargetFlags
	Output string `short:"o" help:"Directory for the exported image.tar. Defaults to a per-project directory under the user data directory." placeholder:"DIR"`
	Tag    string `short:"t" help:"Import the exported image into containerd under this tag." placeholder:"REF"`
	Daemon bool   `help:"Build through the running daemon instead of in-process."`
}

// Executes the build command.
func (c *BuildCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	target, err := c.target(g)
	if err != nil {
		return err
	}

	output, err := c.output(ctx, target)
	if err != nil {
		return err
	}

	var result *protocol.BuildResult
	if c.Daemon {
		result, err = c.remote(ctx, g, target, output)
	} else {
		result, err = c.local(ctx, g, target, output)
	}
	if err != nil {
		return err
	}

	printBuild(out, result)
	return nil
}

// Returns the absolute output directory.
//
// Without --output, archives go to <images>/<project>/<runtime version>,
// which needs the plan to learn the profile's default version.
func (c *BuildCmd) output(ctx context.Context, target build.Target) (string, error) {
	if c.Output != "" {
		output, err := filepath.Abs(c.Output)
		if err != nil {
			return "", fmt.Errorf("resolve output directory: %w", err)
		}
		return output, nil
	}

	_, p, err := build.Resolve(ctx, target)
	if err != nil {
		return "", err
	}
	return filepath.Join(paths.Images(), filepath.Base(target.Root), p.RuntimeVersion), nil
}

// Builds in this process against containerd.
func (c *BuildCmd) local(ctx context.Context, g *Globals, target build.Target, output string) (*protocol.BuildResult, error) {
	rt, err := runtime.New(ctx, g.runtimeOptions())
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	res, err := build.Provision(ctx, rt, build.ProvisionOptions{
		Target: target,
		Output: output,
		Tag:    c.Tag,
	})
	if err != nil {
		return nil, err
	}

	return protocol.NewBuildResult(res), nil
}

// Sends the build to the daemon.
func (c *BuildCmd) remote(ctx context.Context, g *Globals, target build.Target, output string) (*protocol.BuildResult, error) {
	req := &protocol.BuildRequest{
		Profile:        target.Profile,
		Root:           target.Root,
		RuntimeVersion: target.RuntimeVersion,
		Output:         output,
		Tag:            c.Tag,
	}

	slog.Info("submitting build to daemon", "socket", socketPath(g))

	var result protocol.BuildResult
	if err := protocol.Call(ctx, socketPath(g), protocol.CmdBuild, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Writes a short build summary.
func printBuild(out io.Writer, r *protocol.BuildResult) {
	fmt.Fprintf(out, "runtime version: %s\n", r.RuntimeVersion)
	fmt.Fprintf(out, "image:           %s (%s)\n", r.Archive, humanize.IBytes(uint64(r.Size)))
	if r.Tag != "" {
		fmt.Fprintf(out, "tag:             %s\n", r.Tag)
	}

	stages := make([]string, 0, len(r.Skipped))
	for stage := range r.Skipped {
		stages = append(stages, stage)
	}
	sort.Strings(stages)
	for _, stage := range stages {
		fmt.Fprintf(out, "skipped %s: %s\n", stage, r.Skipped[stage])
	}
}

// Returns the daemon socket path.
func socketPath(g *Globals) string {
	if g.Socket != "" {
		return g.Socket
	}
	return paths.Socket()
}
