package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/containerd/containerd/v2/core/containers"
	"github.com/containerd/containerd/v2/core/content"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/containerd/v2/core/images/archive"
	"github.com/containerd/containerd/v2/pkg/rootfs"
	"github.com/containerd/platforms"
	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Filename of the OCI archive produced by Export.
const ExportFilename = "image.tar"

// Value recorded in the image history for the committed layer.
const historyCreatedBy = "cruxenv build"

// Image metadata written on export.
type ImageConfig struct {
	Name       string   // Reference recorded in the archive. Required.
	Cmd        []string // Default command. The entrypoint is cleared.
	Env        []string // Merged over the base image environment.
	WorkingDir string
}

// Archive written by [Container.Export].
type ExportResult struct {
	Path   string
	Size   int64
	Digest digest.Digest // Digest of the exported manifest or index.
}

// Commits the container's filesystem changes and exports the result as an
// OCI archive at output/image.tar.
//
// The diff between the container's snapshot and its parent becomes one new
// layer, and cfg is applied to the image config. The stored base image
// record is never modified: the rewritten manifest, config, and index exist
// only as content blobs held by a lease for the duration of the export.
//
// The archive names the image cfg.Name, never the base image, so loading it
// elsewhere cannot replace the base image.
func (c *Container) Export(ctx context.Context, output string, cfg ImageConfig) (*ExportResult, error) {
	name, err := archiveName(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	loaded, err := c.client.LoadContainer(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	info, err := loaded.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	layer, diffID, err := c.snapshotDiff(ctx, info)
	if err != nil {
		return nil, fmt.Errorf("%w: commit: %w", ErrRuntime, err)
	}

	ctx, done, err := c.client.WithLease(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}
	defer done(context.Background())

	target, err := c.rewriteImage(ctx, info.Image, func(manifest *ocispec.Manifest, config *ocispec.Image) {
		manifest.Layers = append(manifest.Layers, layer)
		applyImageConfig(config, diffID, cfg)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	if err := os.MkdirAll(output, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	exportPath := filepath.Join(output, ExportFilename)
	if err := c.writeArchive(ctx, target, name, exportPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	st, err := os.Stat(exportPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	slog.Info("image exported", "name", name, "path", exportPath, "size", humanize.IBytes(uint64(st.Size())), "digest", target.Digest)

	return &ExportResult{Path: exportPath, Size: st.Size(), Digest: target.Digest}, nil
}

// Returns the normalized reference an exported archive is named by.
func archiveName(name string) (string, error) {
	if name == "" {
		return "", errors.New("exported image needs a name")
	}
	return NormalizeRef(name)
}

// Records the committed layer and the runtime metadata on an image config.
func applyImageConfig(config *ocispec.Image, diffID digest.Digest, cfg ImageConfig) {
	config.RootFS.DiffIDs = append(config.RootFS.DiffIDs, diffID)
	config.History = append(config.History, ocispec.History{CreatedBy: historyCreatedBy})

	config.Config.Entrypoint = nil
	config.Config.Cmd = append([]string(nil), cfg.Cmd...)
	if len(cfg.Env) > 0 {
		config.Config.Env = mergeEnv(config.Config.Env, cfg.Env)
	}
	if cfg.WorkingDir != "" {
		config.Config.WorkingDir = cfg.WorkingDir
	}
}

// Computes the diff between the container's snapshot and its parent, returning
// the layer descriptor and its diff ID.
func (c *Container) snapshotDiff(ctx context.Context, info containers.Container) (ocispec.Descriptor, digest.Digest, error) {
	layer, err := rootfs.CreateDiff(ctx,
		info.SnapshotKey,
		c.client.SnapshotService(info.Snapshotter),
		c.client.DiffService(),
	)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	diffID, err := images.GetDiffID(ctx, c.client.ContentStore(), layer)
	if err != nil {
		return ocispec.Descriptor{}, "", err
	}

	return layer, diffID, nil
}

// Writes the target to an OCI tar archive, restricted to the container's
// platform and annotated with the image name.
func (c *Container) writeArchive(ctx context.Context, target ocispec.Descriptor, imageName, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	p, err := platforms.Parse(c.platform)
	if err != nil {
		return err
	}

	if err := c.client.Export(ctx, f,
		archive.WithManifest(target, imageName),
		archive.WithPlatform(platforms.Only(p)),
	); err != nil {
		return err
	}

	return f.Close()
}

// Rewrites the platform manifest and config of an image and returns the new
// root descriptor.
//
// When the root is an index a new single-entry index referencing only the
// rewritten manifest is written; manifests for other platforms are dropped
// because their layers were never pulled.
func (c *Container) rewriteImage(ctx context.Context, imageName string, mutate func(*ocispec.Manifest, *ocispec.Image)) (ocispec.Descriptor, error) {
	img, err := c.client.ImageService().Get(ctx, imageName)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	root := img.Target
	manifestDesc := root
	var index *ocispec.Index

	if images.IsIndexType(root.MediaType) {
		idx, err := readJSON[ocispec.Index](ctx, c.client.ContentStore(), root)
		if err != nil {
			return ocispec.Descriptor{}, err
		}
		if len(idx.Manifests) == 0 {
			return ocispec.Descriptor{}, fmt.Errorf("%w: %s", ErrEmptyIndex, imageName)
		}
		index = &idx
		manifestDesc = c.selectManifest(ctx, idx)
	}

	manifest, err := readJSON[ocispec.Manifest](ctx, c.client.ContentStore(), manifestDesc)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	config, err := readJSON[ocispec.Image](ctx, c.client.ContentStore(), manifest.Config)
	if err != nil {
		return ocispec.Descriptor{}, err
	}

	mutate(&manifest, &config)

	if manifest.Config, err = c.writeJSON(ctx, manifest.Config.MediaType, config, imageName+"-config"); err != nil {
		return ocispec.Descriptor{}, err
	}

	newManifest, err := c.writeJSON(ctx, manifestDesc.MediaType, manifest, imageName+"-manifest",
		content.WithLabels(manifestGCLabels(manifest)))
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	if index == nil {
		return newManifest, nil
	}

	newManifest.Platform = manifestDesc.Platform
	index.Manifests = []ocispec.Descriptor{newManifest}
	return c.writeJSON(ctx, root.MediaType, index, imageName+"-index",
		content.WithLabels(indexGCLabels(*index)))
}

// Picks the manifest for the container's platform from an index.
//
// Descriptors carrying a platform are matched first. Registries that omit
// platform metadata are handled by reading each manifest's config. Falls
// back to the first manifest.
func (c *Container) selectManifest(ctx context.Context, idx ocispec.Index) ocispec.Descriptor {
	p, err := platforms.Parse(c.platform)
	if err != nil {
		return idx.Manifests[0]
	}
	matcher := platforms.OnlyStrict(p)

	for _, m := range idx.Manifests {
		if m.Platform != nil && matcher.Match(*m.Platform) {
			return m
		}
	}

	cs := c.client.ContentStore()
	for _, m := range idx.Manifests {
		if m.Platform != nil || !images.IsManifestType(m.MediaType) {
			continue
		}
		manifest, err := readJSON[ocispec.Manifest](ctx, cs, m)
		if err != nil {
			continue
		}
		config, err := readJSON[ocispec.Image](ctx, cs, manifest.Config)
		if err != nil {
			continue
		}
		if matcher.Match(config.Platform) {
			return m
		}
	}

	return idx.Manifests[0]
}

// Reads and decodes a JSON blob from the content store.
func readJSON[T any](ctx context.Context, cs content.Provider, desc ocispec.Descriptor) (T, error) {
	var v T
	b, err := content.ReadBlob(ctx, cs, desc)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Encodes v and writes it to the content store, returning its descriptor.
func (c *Container) writeJSON(ctx context.Context, mediaType string, v any, ref string, opts ...content.Opt) (ocispec.Descriptor, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return ocispec.Descriptor{}, err
	}
	desc := ocispec.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(b),
		Size:      int64(len(b)),
	}
	if err := content.WriteBlob(ctx, c.client.ContentStore(), ref, bytes.NewReader(b), desc, opts...); err != nil {
		return ocispec.Descriptor{}, err
	}
	return desc, nil
}

// Computes containerd GC reference labels for a manifest's children.
func manifestGCLabels(m ocispec.Manifest) map[string]string {
	labels := map[string]string{
		"containerd.io/gc.ref.content.config": m.Config.Digest.String(),
	}
	for i, layer := range m.Layers {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.l.%d", i)] = layer.Digest.String()
	}
	return labels
}

// Computes containerd GC reference labels for an index's children.
func indexGCLabels(idx ocispec.Index) map[string]string {
	labels := make(map[string]string, len(idx.Manifests))
	for i, m := range idx.Manifests {
		labels[fmt.Sprintf("containerd.io/gc.ref.content.m.%d", i)] = m.Digest.String()
	}
	return labels
}
