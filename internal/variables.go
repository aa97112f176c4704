package internal

import (
	"fmt"
	"runtime"
	"strings"
)

const (

	// Program name, used for the CLI, log group, and path naming.
	Name = "cruxenv"

	// Placeholder for variables that were not injected at link time.
	defaultUndefined = "(undefined)"

	// Version string reported by builds made outside the release pipeline.
	defaultLocalBuild = "(local)"

	// Branch whose builds carry no stage suffix.
	mainBranch = "main"
)

var (
	version   = "" // Release version (e.g., "0.4.0")
	stage     = "" // Git branch the binary was built from (e.g., "main")
	gitCommit = "" // Abbreviated commit hash

	rawQuiet   = "false" // Link-time default for quiet mode
	rawDebug   = "false" // Link-time default for debug mode
	rawVerbose = "false" // Link-time default for verbose logging
)

// Returns the release version without a leading "v".
//
// Returns "(undefined)" when the version was not injected at link time.
func Version() string {
	v := strings.ToLower(strings.TrimSpace(version))
	if v == "" {
		return defaultUndefined
	}
	return strings.TrimPrefix(v, "v")
}

// Returns the lowercase branch name, or "(undefined)".
func Stage() string {
	s := strings.ToLower(strings.TrimSpace(stage))
	if s == "" {
		return defaultUndefined
	}
	return s
}

// Returns the commit hash, or "(undefined)".
func GitCommit() string {
	if c := strings.TrimSpace(gitCommit); c != "" {
		return c
	}
	return defaultUndefined
}

// Reports whether the binary was built outside the release pipeline.
//
// All three of version, commit, and stage must be injected for a build to
// count as a pipeline build.
func IsLocal() bool {
	for _, v := range []string{version, gitCommit, stage} {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

// Returns the version line printed by "cruxenv version".
//
// Pipeline builds render as "<version>[+<stage>] <commit> [<arch>]", where the
// stage suffix is omitted for the main branch. Local builds render "(local)".
func VersionString() string {
	if IsLocal() {
		return defaultLocalBuild
	}

	suffix := ""
	if s := Stage(); s != mainBranch {
		suffix = "+" + s
	}

	return fmt.Sprintf("%s%s %s [%s]", Version(), suffix, GitCommit(), runtime.GOARCH)
}
