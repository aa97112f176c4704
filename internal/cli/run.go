package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// Represents the 'cruxenv run' command.
type RunCmd struct {
	Image string   `arg:"" help:"Tag the image was imported under with 'cruxenv build --tag'." placeholder:"REF"`
	Args  []string `arg:"" optional:"" passthrough:"" help:"Command replacing the image's entry command, after '--'."`
}

// Executes the run command.
//
// Without arguments the image's recorded entry command runs. With
// arguments they run instead and the entry command is ignored. The
// command's exit code becomes the exit code of cruxenv.
func (c *RunCmd) Run(ctx context.Context, g *Globals) error {
	rt, err := runtime.New(ctx, g.runtimeOptions())
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Run(ctx, runtime.RunOptions{
		Image:    c.Image,
		ID:       fmt.Sprintf("cruxenv-run-%d", os.Getpid()),
		Override: c.override(),
		Stdin:    os.Stdin,
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})
}

// Returns the override command with a leading "--" separator removed.
func (c *RunCmd) override() []string {
	if len(c.Args) > 0 && c.Args[0] == "--" {
		return c.Args[1:]
	}
	return c.Args
}
