package cli

import (
	"fmt"
	"path/filepath"

	"github.com/cruciblehq/cruxenv/internal/build"
)

// Flags selecting a project and runtime version.
type TargetFlags struct {
	RuntimeVersion string `name:"runtime-version" short:"r" env:"CRUXENV_RUNTIME_VERSION" help:"Runtime version to provision. Defaults to the profile's runtime.default." placeholder:"VERSION"`
	Root           string `arg:"" optional:"" type:"existingdir" default:"." help:"Project root."`
}

// Returns the build target with an absolute root.
func (f *TargetFlags) target(g *Globals) (build.Target, error) {
	root, err := filepath.Abs(f.Root)
	if err != nil {
		return build.Target{}, fmt.Errorf("resolve project root: %w", err)
	}
	return build.Target{
		Profile:        g.Profile,
		Root:           root,
		RuntimeVersion: f.RuntimeVersion,
	}, nil
}
