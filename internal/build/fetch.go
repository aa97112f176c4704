package build

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/cruciblehq/cruxenv/internal/plan"
)

// Mode of files written by fetch steps.
const fetchedFileMode = 0o755

// Downloads a URL on the host and places it in the container.
//
// The download completes before anything is written to the container, so a
// failed or truncated fetch never leaves a partial file behind.
func (ex *executor) executeFetch(ctx context.Context, step plan.Step) error {
	if ex.fetcher == nil {
		return fmt.Errorf("%w: no fetcher configured for %s", ErrBuild, step.URL)
	}

	dest, err := resolveDest(step.Dest, ex.state.workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Info("fetching", "url", step.URL, "dest", dest)

	var body bytes.Buffer
	if _, err := ex.fetcher.Fetch(ctx, step.URL, &body); err != nil {
		return err
	}

	var archive bytes.Buffer
	tw := tar.NewWriter(&archive)
	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     path.Base(dest),
		Mode:     fetchedFileMode,
		Size:     int64(body.Len()),
		ModTime:  time.Now(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	if _, err := tw.Write(body.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := ex.ctr.MkdirAll(ctx, path.Dir(dest)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	if err := ex.ctr.CopyTo(ctx, &archive, path.Dir(dest)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}
	return nil
}
