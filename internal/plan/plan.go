package plan

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/cruciblehq/cruxenv/internal/profile"
)

// Identifies one of the fixed provisioning stages.
type StageKind string

const (
	StageBase           StageKind = "base"
	StageSystem         StageKind = "system"
	StageWorkspace      StageKind = "workspace"
	StageToolchain      StageKind = "toolchain"
	StagePackageManager StageKind = "package-manager"
	StageDependencies   StageKind = "dependencies"
	StageEntry          StageKind = "entry"
)

// Identifies what a step does.
//
// Run, copy, and fetch are operations. Env and workdir are modifiers that
// persist for every later step and are recorded on the final image.
type StepKind string

const (
	StepRun     StepKind = "run"
	StepCopy    StepKind = "copy"
	StepFetch   StepKind = "fetch"
	StepEnv     StepKind = "env"
	StepWorkdir StepKind = "workdir"
)

// One unit of work inside a stage. Which fields are meaningful depends on
// Kind.
type Step struct {
	Kind  StepKind `json:"kind"`
	Run   string   `json:"run,omitempty"`   // Shell script (run).
	Src   string   `json:"src,omitempty"`   // Host path relative to the project root (copy).
	Dest  string   `json:"dest,omitempty"`  // Destination, relative to the workdir unless absolute (copy, fetch).
	URL   string   `json:"url,omitempty"`   // HTTPS source (fetch).
	Key   string   `json:"key,omitempty"`   // Variable name (env).
	Value string   `json:"value,omitempty"` // Variable value (env).
	Dir   string   `json:"dir,omitempty"`   // Absolute directory (workdir).
}

// One provisioning stage.
type Stage struct {
	Kind    StageKind `json:"kind"`
	Skipped bool      `json:"skipped,omitempty"`
	Reason  string    `json:"reason,omitempty"` // Why the stage was skipped.
	Steps   []Step    `json:"steps,omitempty"`
}

// Gate outcomes for one Runtime Version, evaluated once per plan.
type Decisions struct {
	Toolchain    bool `json:"toolchain"`
	Dependencies bool `json:"dependencies"`
}

// Default command recorded on the image.
type Entry struct {
	Command []string `json:"command"`
}

// A resolved provisioning plan for one Runtime Version.
type Plan struct {
	Profile        string     `json:"profile"`
	RuntimeVersion string     `json:"runtime_version"`
	BaseImage      string     `json:"base_image"`
	Workdir        string     `json:"workdir"`
	Decisions      Decisions  `json:"decisions"`
	Stages         []Stage    `json:"stages"`
	Path           SearchPath `json:"search_path"`
	Entry          Entry      `json:"entry"`
	Warnings       []string   `json:"warnings,omitempty"`
}

// Evaluates every version gate of the profile for one Runtime Version.
func Decide(p *profile.Profile, version string) Decisions {
	return Decisions{
		Toolchain:    p.Toolchain.When.Admits(version),
		Dependencies: p.Dependencies.When.Admits(version),
	}
}

// Builds the plan for a Runtime Version.
//
// An empty version selects the profile default. The version is bound once;
// the gates are evaluated from that bound value and never re-evaluated. The
// version itself is not validated. Entry command warnings are recorded on the
// plan and logged.
func New(p *profile.Profile, version string) (*Plan, error) {
	if version == "" {
		version = p.Runtime.Default
	}

	decisions := Decide(p, version)
	path := NewSearchPath(p.Runtime.SearchPath...)

	plan := &Plan{
		Profile:        p.Name,
		RuntimeVersion: version,
		BaseImage:      p.Image(version),
		Workdir:        p.Workspace.Dir,
		Decisions:      decisions,
		Entry:          Entry{Command: append([]string(nil), p.Entry.Command...)},
	}

	system, err := systemStage(p.System)
	if err != nil {
		return nil, stageError(StageSystem, err)
	}

	toolchain, path, err := toolchainStage(p.Toolchain, path, decisions.Toolchain, version)
	if err != nil {
		return nil, stageError(StageToolchain, err)
	}

	pm, err := packageManagerStage(p.PackageManager)
	if err != nil {
		return nil, stageError(StagePackageManager, err)
	}

	deps, err := dependenciesStage(p.Dependencies, p.PackageManager, decisions.Dependencies, version)
	if err != nil {
		return nil, stageError(StageDependencies, err)
	}

	plan.Stages = []Stage{
		{Kind: StageBase},
		system,
		workspaceStage(p.Workspace),
		toolchain,
		pm,
		deps,
		{Kind: StageEntry},
	}
	plan.Path = path

	if err := plan.checkScripts(); err != nil {
		return nil, err
	}

	plan.Warnings = CheckEntry(p.Entry)
	for _, w := range plan.Warnings {
		slog.Warn(w)
	}

	return plan, nil
}

// Returns the stage of the given kind, or nil.
func (p *Plan) Stage(kind StageKind) *Stage {
	for i := range p.Stages {
		if p.Stages[i].Kind == kind {
			return &p.Stages[i]
		}
	}
	return nil
}

// Returns the environment recorded on the image as "key=value" pairs.
//
// Variables appear in the order they were first set; a later env step for
// the same key replaces the value in place. Skipped stages contribute
// nothing.
func (p *Plan) Env() []string {
	var env Environment
	for _, st := range p.Stages {
		if st.Skipped {
			continue
		}
		for _, step := range st.Steps {
			if step.Kind == StepEnv {
				env.Set(step.Key, step.Value)
			}
		}
	}
	return env.List()
}

// Parses every run step of every active stage.
func (p *Plan) checkScripts() error {
	for _, st := range p.Stages {
		if st.Skipped {
			continue
		}
		for _, step := range st.Steps {
			if step.Kind != StepRun {
				continue
			}
			if err := checkScript(step.Run); err != nil {
				return stageError(st.Kind, err)
			}
		}
	}
	return nil
}

// Checks the entry command's subcommand against the known list.
//
// The command is never rewritten. When the second token is not a flag and is
// not among the known subcommands a warning is returned, so a truncated or
// misspelled subcommand is flagged for confirmation at plan time instead of
// failing when the image first runs.
func CheckEntry(e profile.Entry) []string {
	if len(e.Command) < 2 || len(e.KnownSubcommands) == 0 {
		return nil
	}

	sub := e.Command[1]
	if strings.HasPrefix(sub, "-") {
		return nil
	}
	for _, known := range e.KnownSubcommands {
		if sub == known {
			return nil
		}
	}

	return []string{fmt.Sprintf(
		"entry command %q: %q is not a known %s subcommand (known: %s)",
		strings.Join(e.Command, " "), sub, e.Command[0], strings.Join(e.KnownSubcommands, ", "),
	)}
}

// Labels an error with the stage it came from.
func stageError(kind StageKind, err error) error {
	return fmt.Errorf("%w: stage %s: %w", ErrPlan, kind, err)
}

// Marks a gated stage as skipped for a version.
func skipped(kind StageKind, version string, gate profile.Gate) Stage {
	return Stage{
		Kind:    kind,
		Skipped: true,
		Reason:  fmt.Sprintf("runtime version %s not admitted by gate (%s)", version, gate),
	}
}
