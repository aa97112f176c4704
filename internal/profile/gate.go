package profile

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
)

// Keyword that makes a gate unconditional.
const gateAlways = "always"

// Shape of a Runtime Version listed in a gate. Anything else is most likely a
// misspelled keyword.
var gateVersion = regexp.MustCompile(`^[0-9][0-9A-Za-z.+-]*$`)

// Declarative mapping from Runtime Versions to whether a stage runs.
//
// In a profile a gate is written as the "when" key, either the string
// "always" or a list of exact versions. Exactly one of Always or Versions is
// set; a gate with neither is rejected by [Gate.Validate] rather than
// silently skipping the stage for every version.
type Gate struct {
	Always   bool
	Versions []string
}

// Reports whether the stage runs for the given Runtime Version.
//
// Matching is exact string equality; "3.9" does not admit "3.9.1".
func (g Gate) Admits(version string) bool {
	if g.Always {
		return true
	}
	return slices.Contains(g.Versions, version)
}

// Describes the gate for plan output and skip reasons.
func (g Gate) String() string {
	if g.Always {
		return gateAlways
	}
	return "versions [" + strings.Join(g.Versions, ", ") + "]"
}

// Checks that the gate is either unconditional or lists at least one version.
func (g Gate) Validate() error {
	switch {
	case g.Always && len(g.Versions) > 0:
		return errors.New("gate sets both always and versions")
	case !g.Always && len(g.Versions) == 0:
		return errors.New(`gate admits no runtime version; use "always" or list versions`)
	}
	for _, v := range g.Versions {
		if !gateVersion.MatchString(v) {
			return fmt.Errorf(`gate value %q is neither "always" nor a runtime version`, v)
		}
	}
	return nil
}

// Decode hook turning a "when" value into a [Gate].
//
// Accepts "always" in any case, a comma-separated string (the form environment overrides
// take), or a list of strings.
func gateHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(Gate{}) {
		return data, nil
	}

	switch d := data.(type) {
	case Gate:
		return d, nil
	case nil:
		return Gate{}, nil
	case string:
		if strings.EqualFold(strings.TrimSpace(d), gateAlways) {
			return Gate{Always: true}, nil
		}
		return Gate{Versions: splitList(d)}, nil
	case []string:
		return Gate{Versions: slices.Clone(d)}, nil
	case []any:
		versions := make([]string, 0, len(d))
		for _, item := range d {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("gate version %v is not a string", item)
			}
			versions = append(versions, s)
		}
		return Gate{Versions: versions}, nil
	default:
		return nil, fmt.Errorf("unsupported gate value %T", data)
	}
}

// Splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
