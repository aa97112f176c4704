package build

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cruciblehq/cruxenv/internal"
	"github.com/cruciblehq/cruxenv/internal/fetch"
	"github.com/cruciblehq/cruxenv/internal/plan"
	"github.com/cruciblehq/cruxenv/internal/profile"
	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// Identifies a project and the environment to provision for it.
type Target struct {
	Profile        string // Profile file. Empty selects the default lookup.
	Root           string // Project root.
	RuntimeVersion string // Empty selects the profile default.
}

// Loads the profile for a target and resolves its plan.
func Resolve(ctx context.Context, t Target) (*profile.Profile, *plan.Plan, error) {
	prof, err := profile.Load(ctx, profile.LoadOptions{Path: t.Profile, Dir: t.Root})
	if err != nil {
		return nil, nil, err
	}

	slog.Debug("profile loaded", "name", prof.Name, "source", prof.Source())

	p, err := plan.New(prof, t.RuntimeVersion)
	if err != nil {
		return nil, nil, err
	}
	return prof, p, nil
}

// Parameters for [Provision].
type ProvisionOptions struct {
	Target
	Output string // Directory for the exported image.
	Tag    string // Imports the exported image under this tag when set.
}

// Outcome of [Provision].
type Provisioned struct {
	*Result
	Plan *plan.Plan
	Tag  string // Normalized tag the image was imported under, if any.
}

// Resolves a target, builds it against containerd, and optionally imports
// the exported image under a tag.
func Provision(ctx context.Context, rt *runtime.Runtime, opts ProvisionOptions) (*Provisioned, error) {
	prof, p, err := Resolve(ctx, opts.Target)
	if err != nil {
		return nil, err
	}

	var tag string
	if opts.Tag != "" {
		if tag, err = runtime.NormalizeRef(opts.Tag); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBuild, err)
		}
	}

	fetcher := fetch.New(fetch.Options{
		Timeout:   prof.Toolchain.FetchTimeout,
		UserAgent: internal.Name + "/" + internal.Version(),
	})

	result, err := Run(ctx, FromRuntime(rt), Options{
		Plan:       p,
		Root:       opts.Root,
		IgnoreFile: prof.Workspace.IgnoreFile,
		Output:     opts.Output,
		Name:       tag,
		Fetcher:    fetcher,
	})
	if err != nil {
		return nil, err
	}

	out := &Provisioned{Result: result, Plan: p}

	if tag != "" {
		if err := rt.ImportImage(ctx, result.Archive.Path, tag); err != nil {
			return nil, fmt.Errorf("%w: import: %w", ErrBuild, err)
		}
		out.Tag = tag
	}

	return out, nil
}
