package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/cruciblehq/cruxenv/internal/build"
)

// Represents the 'cruxenv plan' command.
type PlanCmd struct {
	TargetFlags
	Format string `short:"f" enum:"text,json,dockerfile" default:"text" help:"Output format (${enum})."`
}

// Executes the plan command.
//
// Prints the stages that a build would run for the runtime version, with
// the reason for every skipped stage and any entry command warnings.
func (c *PlanCmd) Run(ctx context.Context, g *Globals, out io.Writer) error {
	target, err := c.target(g)
	if err != nil {
		return err
	}

	_, p, err := build.Resolve(ctx, target)
	if err != nil {
		return err
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case "dockerfile":
		return p.WriteDockerfile(out)
	default:
		return p.WriteText(out)
	}
}
