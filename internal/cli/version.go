package cli

import (
	"fmt"
	"io"

	"github.com/cruciblehq/cruxenv/internal"
)

// Represents the 'cruxenv version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run(out io.Writer) error {
	fmt.Fprintln(out, internal.VersionString())
	return nil
}
