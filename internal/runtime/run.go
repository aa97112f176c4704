package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Parameters for [Runtime.Run].
type RunOptions struct {
	Image    string    // Tag of a previously imported image.
	ID       string    // Container ID.
	Override []string  // Replaces the image command entirely when non-empty.
	Stdin    io.Reader // Optional.
	Stdout   io.Writer // Optional.
	Stderr   io.Writer // Optional.
}

// Starts the image's command in a fresh container and waits for it.
//
// Without an override the image's recorded command runs; with one, the
// override runs instead and the recorded command is ignored. A non-zero exit
// is returned as an [*ExitError]. The container is removed afterwards.
func (rt *Runtime) Run(ctx context.Context, opts RunOptions) error {
	name, err := NormalizeRef(opts.Image)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	image, err := rt.resolveImage(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	config, err := image.Spec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	args := ResolveArgs(config.Config, opts.Override)
	if len(args) == 0 {
		return fmt.Errorf("%w: image %s records no command", ErrRuntime, name)
	}

	c := rt.container(opts.ID)
	c.remove(ctx)
	defer c.Destroy(context.WithoutCancel(ctx))

	ctr, err := c.create(ctx, image, args...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("running", "image", name, "args", args)

	code, err := runTask(ctx, ctr, opts)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// Returns the process arguments for a run.
//
// A non-empty override is used verbatim. Otherwise the image entrypoint and
// command are concatenated, the way the OCI image config defines them.
func ResolveArgs(config ocispec.ImageConfig, override []string) []string {
	if len(override) > 0 {
		return append([]string(nil), override...)
	}
	args := append([]string(nil), config.Entrypoint...)
	return append(args, config.Cmd...)
}

// Creates and starts the container's primary task with attached streams and
// waits for it to exit.
func runTask(ctx context.Context, ctr containerd.Container, opts RunOptions) (int, error) {
	streams := []cio.Opt{cio.WithStreams(opts.Stdin, orDiscard(opts.Stdout), orDiscard(opts.Stderr))}

	task, err := ctr.NewTask(ctx, cio.NewCreator(streams...))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer task.Delete(context.WithoutCancel(ctx), containerd.WithProcessKill)

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := task.Start(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	var status containerd.ExitStatus
	select {
	case status = <-statusC:
	case <-ctx.Done():
		task.Kill(context.WithoutCancel(ctx), syscall.SIGTERM)
		status = <-statusC
	}

	code, _, err := status.Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	return int(code), nil
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
