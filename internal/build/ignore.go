package build

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
)

// Reads the ignore file from the project root.
//
// Returns nil without error when name is empty or the file does not exist;
// the project tree is then copied without exclusions.
func loadIgnore(root, name string) (*patternmatcher.PatternMatcher, error) {
	if name == "" {
		return nil, nil
	}

	f, err := os.Open(filepath.Join(root, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrCopy, err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCopy, name, err)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCopy, name, err)
	}
	return pm, nil
}

// Reports whether a path relative to the copy source is excluded.
//
// skipDir is true when rel is an excluded directory that contains no
// re-included entries, so the walk can prune it.
func excluded(pm *patternmatcher.PatternMatcher, rel string, isDir bool) (exclude, skipDir bool, err error) {
	if pm == nil || rel == "." {
		return false, false, nil
	}

	exclude, err = pm.MatchesOrParentMatches(filepath.ToSlash(rel))
	if err != nil {
		return false, false, err
	}
	return exclude, exclude && isDir && !pm.Exclusions(), nil
}
