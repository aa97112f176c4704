package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/cruciblehq/cruxenv/internal/plan"
	"github.com/moby/patternmatcher"
)

// Copies a file or directory from the project root into the container.
//
// The source is resolved against the project root and the destination
// against the current working directory. Directory sources are copied
// recursively, minus the entries excluded by the ignore file. The contents
// travel as a tar stream extracted inside the container.
func (ex *executor) executeCopy(ctx context.Context, step plan.Step) error {
	src := step.Src
	if !filepath.IsAbs(src) {
		src = filepath.Join(ex.root, src)
	}

	dest, err := resolveDest(step.Dest, ex.state.workdir)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := ex.ctr.MkdirAll(ctx, path.Dir(dest)); err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy", "src", src, "dest", dest, "dir", info.IsDir())

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		var writeErr error

		if info.IsDir() {
			writeErr = writeDirToTar(tw, src, path.Base(dest), ex.ignore)
		} else {
			writeErr = writeFileToTar(tw, src, path.Base(dest))
		}

		if closeErr := tw.Close(); writeErr == nil {
			writeErr = closeErr
		}
		pw.CloseWithError(writeErr)
	}()

	err = ex.ctr.CopyTo(ctx, pr, path.Dir(dest))
	pr.CloseWithError(err)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return nil
}

// Resolves a container destination against the working directory.
//
// Absolute destinations are cleaned and returned as is. Relative ones need a
// working directory.
func resolveDest(dest, workdir string) (string, error) {
	if dest == "" {
		return "", fmt.Errorf("empty destination")
	}
	if path.IsAbs(dest) {
		return path.Clean(dest), nil
	}
	if workdir == "" {
		return "", fmt.Errorf("relative destination %q requires a working directory", dest)
	}
	return path.Join(workdir, dest), nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Lstat(hostPath)
	if err != nil {
		return err
	}
	return writeTarEntry(tw, hostPath, name, info)
}

// Writes a directory tree to a tar writer rooted at the given archive prefix,
// skipping entries the matcher excludes.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string, ignore *patternmatcher.PatternMatcher) error {
	return filepath.WalkDir(hostDir, func(hostPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(hostDir, hostPath)
		if err != nil {
			return err
		}

		exclude, skipDir, err := excluded(ignore, rel, d.IsDir())
		if err != nil {
			return err
		}
		if skipDir {
			return filepath.SkipDir
		}
		if exclude {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		return writeTarEntry(tw, hostPath, path.Join(prefix, filepath.ToSlash(rel)), info)
	})
}

// Writes a single file, directory, or symlink entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, name string, info fs.FileInfo) error {
	var link string
	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := os.Readlink(hostPath)
		if err != nil {
			return err
		}
		link = target
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}
