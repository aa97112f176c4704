package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	goruntime "runtime"
	"time"

	"github.com/cenkalti/backoff/v4"
	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/platforms"
	"github.com/distribution/reference"
)

const (

	// Snapshotter used when none is configured.
	DefaultSnapshotter = "overlayfs"

	// Namespace used when none is configured.
	DefaultNamespace = "cruxenv"

	// Socket of a system containerd.
	DefaultAddress = "/run/containerd/containerd.sock"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"

	// Upper bound on the time spent connecting to containerd.
	defaultConnectTimeout = 30 * time.Second
)

// Connection settings for [New].
type Options struct {
	Address        string        // Containerd socket.
	Namespace      string        // Scopes every containerd operation.
	Snapshotter    string        // Snapshotter for container filesystems.
	Platform       string        // OCI platform, e.g. "linux/amd64". Defaults to the host.
	ConnectTimeout time.Duration // Retry budget for the initial connection.
}

// Manages the containerd client and provides image and container operations.
type Runtime struct {
	client      *containerd.Client // Containerd client for managing containers and images.
	snapshotter string             // Snapshotter for container filesystems.
	platform    string             // OCI platform for pulled images and containers.
}

// Creates a runtime connected to containerd.
//
// The connection is retried with exponential backoff until it answers a
// version request or the connect timeout elapses. Nothing after the
// connection is ever retried. The runtime must be closed when no longer
// needed.
func New(ctx context.Context, opts Options) (*Runtime, error) {
	opts = opts.withDefaults()

	if _, err := platforms.Parse(opts.Platform); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = opts.ConnectTimeout

	var client *containerd.Client
	connect := func() error {
		c, err := containerd.New(opts.Address, containerd.WithDefaultNamespace(opts.Namespace))
		if err != nil {
			return err
		}
		if _, err := c.Version(ctx); err != nil {
			c.Close()
			return err
		}
		client = c
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Debug("containerd not ready, retrying", "address", opts.Address, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(connect, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrRuntime, opts.Address, err)
	}

	slog.Debug("connected to containerd", "address", opts.Address, "namespace", opts.Namespace)

	return &Runtime{
		client:      client,
		snapshotter: opts.Snapshotter,
		platform:    opts.Platform,
	}, nil
}

// Fills unset options.
func (o Options) withDefaults() Options {
	if o.Address == "" {
		o.Address = DefaultAddress
	}
	if o.Namespace == "" {
		o.Namespace = DefaultNamespace
	}
	if o.Snapshotter == "" {
		o.Snapshotter = DefaultSnapshotter
	}
	if o.Platform == "" {
		o.Platform = defaultPlatform()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	return o
}

// Closes the containerd client connection.
func (rt *Runtime) Close() error {
	return rt.client.Close()
}

// Pulls an image for the runtime platform and unpacks it into the
// snapshotter.
//
// Short references such as "python:3.8" are normalized to their fully
// qualified form first. An unknown tag fails here.
func (rt *Runtime) Pull(ctx context.Context, ref string) (containerd.Image, error) {
	name, err := NormalizeRef(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	p, err := platforms.Parse(rt.platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("pulling image", "ref", name, "platform", rt.platform)

	image, err := rt.client.Pull(ctx, name,
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(rt.snapshotter),
		containerd.WithPlatformMatcher(platforms.Only(p)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: pull %s: %w", ErrRuntime, name, err)
	}

	return image, nil
}

// Pulls an image and starts a build container from it.
//
// A long-running task (sleep infinity) is started so that subsequent Exec
// calls have a running process to attach to. Any existing container with the
// same ID is removed before the new one is created.
func (rt *Runtime) StartContainer(ctx context.Context, ref, id string) (*Container, error) {
	image, err := rt.Pull(ctx, ref)
	if err != nil {
		return nil, err
	}

	c := rt.container(id)

	// Remove any stale container from a previous build with the same ID.
	c.remove(ctx)

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Debug("container started", "id", id, "image", image.Name())

	return c, nil
}

// Imports an OCI archive under tag and unpacks it for the runtime platform.
//
// Whatever name the archive carries is replaced by tag, so the import only
// ever creates or moves the tag itself.
func (rt *Runtime) ImportImage(ctx context.Context, path, tag string) error {
	name, err := NormalizeRef(tag)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := rt.importArchive(ctx, path, name); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	image, err := rt.resolveImage(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := image.Unpack(ctx, rt.snapshotter); err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image imported", "tag", name)
	return nil
}

// Imports a single-image OCI archive into the content store as name.
func (rt *Runtime) importArchive(ctx context.Context, path, name string) error {
	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	imported, err := rt.client.Import(ctx, fh, containerd.WithImageRefTranslator(renameTo(name)))
	if err != nil {
		return err
	}

	if len(imported) == 0 {
		return ErrEmptyArchive
	} else if len(imported) > 1 {
		return ErrMultipleImages
	}

	return nil
}

// Returns a ref translator mapping every archived name to name.
func renameTo(name string) func(string) string {
	return func(string) string { return name }
}

// Looks up a tagged image bound to the runtime platform.
func (rt *Runtime) resolveImage(ctx context.Context, name string) (containerd.Image, error) {
	p, err := platforms.Parse(rt.platform)
	if err != nil {
		return nil, err
	}

	img, err := rt.client.ImageService().Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(rt.client, img, platforms.Only(p)), nil
}

// Returns an unstarted handle for a container ID.
func (rt *Runtime) container(id string) *Container {
	return &Container{
		client:      rt.client,
		id:          id,
		platform:    rt.platform,
		snapshotter: rt.snapshotter,
	}
}

// Normalizes an image reference to its fully qualified form.
//
// "python:3.8" becomes "docker.io/library/python:3.8"; a reference without
// tag or digest gets ":latest".
func NormalizeRef(ref string) (string, error) {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return reference.TagNameOnly(named).String(), nil
}

// Returns the default OCI platform for the host architecture.
func defaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
