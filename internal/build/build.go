package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/cruciblehq/cruxenv/internal"
	"github.com/cruciblehq/cruxenv/internal/paths"
	"github.com/cruciblehq/cruxenv/internal/plan"
	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// Prefix of build container IDs.
const containerPrefix = "cruxenv-build"

// Container runtime the executor drives.
type Runtime interface {
	StartContainer(ctx context.Context, ref, id string) (Container, error)
}

// Build container operations used by the executor.
type Container interface {
	ID() string
	Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error)
	MkdirAll(ctx context.Context, path string) error
	CopyTo(ctx context.Context, r io.Reader, destDir string) error
	Stop(ctx context.Context) error
	Export(ctx context.Context, output string, cfg runtime.ImageConfig) (*runtime.ExportResult, error)
	Destroy(ctx context.Context)
}

// Downloads fetch step sources on the host.
type Fetcher interface {
	Fetch(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Controls plan execution.
type Options struct {
	Plan       *plan.Plan // Plan to execute.
	Root       string     // Project root, the source of copy steps.
	IgnoreFile string     // Ignore file name inside Root, honored when present.
	Output     string     // Directory for the exported image.
	Name       string     // Image reference recorded in the archive. Defaults to [ImageName].
	Fetcher    Fetcher    // Required when the plan contains fetch steps.
}

// Returned after successful plan execution.
type Result struct {
	Output  string                    // Directory containing the exported image.
	Archive *runtime.ExportResult     // Exported archive.
	Skipped map[plan.StageKind]string // Skipped stages and their reasons.
}

// Executes a plan against the container runtime.
//
// One container is started from the plan's base image and every active
// stage runs in it in order. The first failing step aborts the build; the
// container is always destroyed and nothing is exported on failure. On
// success the container filesystem is exported with the plan's entry
// command, environment, and working directory recorded on the image.
func Run(ctx context.Context, rt Runtime, opts Options) (*Result, error) {
	p := opts.Plan

	slog.Info("executing plan",
		"profile", p.Profile,
		"runtime_version", p.RuntimeVersion,
		"image", p.BaseImage,
		"output", opts.Output,
	)

	if err := os.MkdirAll(opts.Output, paths.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileSystemOperation, err)
	}

	ignore, err := loadIgnore(opts.Root, opts.IgnoreFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	ctr, err := rt.StartContainer(ctx, p.BaseImage, containerID(p.RuntimeVersion, os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("%w: stage %s: %w", ErrBuild, plan.StageBase, err)
	}
	defer ctr.Destroy(context.WithoutCancel(ctx))

	slog.Debug("build container started", "id", ctr.ID())

	ex := &executor{
		ctr:     ctr,
		fetcher: opts.Fetcher,
		root:    opts.Root,
		ignore:  ignore,
		state:   newStepState(),
	}

	result := &Result{Output: opts.Output, Skipped: make(map[plan.StageKind]string)}

	for _, stage := range p.Stages {
		if stage.Skipped {
			slog.Info("stage skipped", "stage", stage.Kind, "reason", stage.Reason)
			result.Skipped[stage.Kind] = stage.Reason
			continue
		}
		if len(stage.Steps) == 0 {
			continue
		}
		slog.Info(fmt.Sprintf("running stage %s", stage.Kind), "steps", len(stage.Steps))
		if err := ex.executeSteps(ctx, stage.Steps); err != nil {
			return nil, fmt.Errorf("%w: stage %s: %w", ErrBuild, stage.Kind, err)
		}
	}

	if err := ctr.Stop(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBuild, err)
	}

	name := opts.Name
	if name == "" {
		name = ImageName(p.Profile, p.RuntimeVersion)
	}

	archive, err := ctr.Export(ctx, opts.Output, runtime.ImageConfig{
		Name:       name,
		Cmd:        p.Entry.Command,
		Env:        p.Env(),
		WorkingDir: ex.state.workdir,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: export: %w", ErrBuild, err)
	}
	result.Archive = archive

	return result, nil
}

var (
	unsafeID   = regexp.MustCompile(`[^A-Za-z0-9_.-]+`) // Outside container IDs and image tags.
	unsafeRepo = regexp.MustCompile(`[^a-z0-9]+`)       // Outside a repository path component.
)

// Returns the image reference for an environment built without a tag.
//
// The name lives under the cruxenv/ repository so that it can never collide
// with the base image it was built from.
func ImageName(profileName, version string) string {
	repo := strings.Trim(unsafeRepo.ReplaceAllString(strings.ToLower(profileName), "-"), "-")
	if repo == "" {
		repo = "env"
	}
	tag := strings.TrimLeft(unsafeID.ReplaceAllString(version, "_"), ".-")
	if tag == "" {
		tag = "latest"
	}
	if len(tag) > 128 {
		tag = tag[:128]
	}
	return internal.Name + "/" + repo + ":" + tag
}

// Returns the build container ID for a Runtime Version.
//
// The PID keeps a daemon build and a concurrent in-process build of the same
// version from removing each other's container.
func containerID(version string, pid int) string {
	return fmt.Sprintf("%s-%s-%d", containerPrefix, unsafeID.ReplaceAllString(version, "_"), pid)
}

// Adapts a containerd [runtime.Runtime] to [Runtime].
func FromRuntime(rt *runtime.Runtime) Runtime {
	return containerdRuntime{rt}
}

type containerdRuntime struct {
	rt *runtime.Runtime
}

func (c containerdRuntime) StartContainer(ctx context.Context, ref, id string) (Container, error) {
	ctr, err := c.rt.StartContainer(ctx, ref, id)
	if err != nil {
		return nil, err
	}
	return ctr, nil
}
