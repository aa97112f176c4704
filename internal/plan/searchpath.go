package plan

import (
	"encoding/json"
	"slices"
	"strings"
)

// Ordered list of directories consulted to resolve command names.
//
// Earlier entries shadow later ones. The zero value is an empty path. Values
// are immutable: [SearchPath.Prepend] returns a new path and leaves the
// receiver untouched.
type SearchPath struct {
	dirs []string
}

// Creates a search path from directories in priority order. Blank entries
// are dropped.
func NewSearchPath(dirs ...string) SearchPath {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			out = append(out, d)
		}
	}
	return SearchPath{dirs: out}
}

// Returns a new path with dir at the highest priority.
//
// A later occurrence of dir is removed, so prepending a directory that is
// already present moves it to the front instead of duplicating it.
func (p SearchPath) Prepend(dir string) SearchPath {
	out := make([]string, 0, len(p.dirs)+1)
	out = append(out, dir)
	for _, d := range p.dirs {
		if d != dir {
			out = append(out, d)
		}
	}
	return SearchPath{dirs: out}
}

// Returns a copy of the directories in priority order.
func (p SearchPath) Dirs() []string {
	return slices.Clone(p.dirs)
}

// Renders the path in PATH form (colon separated).
func (p SearchPath) String() string {
	return strings.Join(p.dirs, ":")
}

// Encodes the path as a JSON array of directories.
func (p SearchPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Dirs())
}

// Decodes a JSON array of directories.
func (p *SearchPath) UnmarshalJSON(data []byte) error {
	var dirs []string
	if err := json.Unmarshal(data, &dirs); err != nil {
		return err
	}
	*p = NewSearchPath(dirs...)
	return nil
}
