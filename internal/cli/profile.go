package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/cruciblehq/cruxenv/internal/profile"
)

// Represents the 'cruxenv profile' command.
type ProfileCmd struct {
	Root string `arg:"" optional:"" type:"existingdir" default:"." help:"Project root searched for cruxenv.toml."`
}

// Executes the profile command.
//
// Prints the effective profile after merging the built-in defaults, the
// profile file, and CRUXENV_* environment overrides.
func (c *ProfileCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	p, err := profile.Load(ctx, profile.LoadOptions{Path: g.Profile, Dir: c.Root})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "# source: %s\n", p.Source())
	return p.WriteTOML(out)
}
