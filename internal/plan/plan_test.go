package plan

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/cruciblehq/cruxenv/internal/profile"
	"github.com/google/go-cmp/cmp"
)

func testProfile() *profile.Profile {
	return &profile.Profile{
		Name: "test",
		Runtime: profile.Runtime{
			Default:    "3.8",
			Image:      "python:{version}",
			SearchPath: []string{"/usr/local/bin", "/usr/bin", "/bin"},
		},
		System: profile.System{
			Frontend:  "noninteractive",
			Packages:  []string{"git", "curl"},
			CacheDirs: []string{"/var/lib/apt/lists"},
		},
		Workspace: profile.Workspace{Dir: "/workspace", IgnoreFile: ".dockerignore"},
		Toolchain: profile.Toolchain{
			Name:          "rust",
			Version:       "1.61.0",
			InstallerURL:  "https://sh.rustup.rs",
			InstallerPath: "/tmp/rustup-init.sh",
			BinDir:        "/root/.cargo/bin",
			FetchTimeout:  5 * time.Minute,
			When:          profile.Gate{Versions: []string{"3.6"}},
		},
		PackageManager: profile.PackageManager{Python: "python"},
		Dependencies: profile.Dependencies{
			Constraints:     "constraints.txt",
			Requirements:    "requirements.txt",
			DevRequirements: "requirements-dev.txt",
			Editable:        ".",
			When:            profile.Gate{Always: true},
		},
		Entry: profile.Entry{
			Command:          []string{"stestr", "run"},
			KnownSubcommands: []string{"run", "last", "list"},
		},
	}
}

func stageKinds(p *Plan) []StageKind {
	var kinds []StageKind
	for _, st := range p.Stages {
		kinds = append(kinds, st.Kind)
	}
	return kinds
}

func allRuns(p *Plan) []string {
	var runs []string
	for _, st := range p.Stages {
		for _, step := range st.Steps {
			if step.Kind == StepRun {
				runs = append(runs, step.Run)
			}
		}
	}
	return runs
}

func TestNewEveryVersion(t *testing.T) {
	want := []StageKind{
		StageBase, StageSystem, StageWorkspace, StageToolchain,
		StagePackageManager, StageDependencies, StageEntry,
	}

	for _, version := range []string{"3.6", "3.7", "3.8", "3.9", "3.10", "2.7"} {
		t.Run(version, func(t *testing.T) {
			p, err := New(testProfile(), version)
			if err != nil {
				t.Fatalf("New(%q) failed: %v", version, err)
			}
			if p.RuntimeVersion != version {
				t.Errorf("RuntimeVersion = %q, want %q", p.RuntimeVersion, version)
			}
			if p.BaseImage != "python:"+version {
				t.Errorf("BaseImage = %q", p.BaseImage)
			}
			if diff := cmp.Diff(want, stageKinds(p)); diff != "" {
				t.Errorf("stage order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewDefaultVersion(t *testing.T) {
	p, err := New(testProfile(), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if p.RuntimeVersion != "3.8" {
		t.Errorf("RuntimeVersion = %q, want profile default 3.8", p.RuntimeVersion)
	}
	if p.Workdir != "/workspace" {
		t.Errorf("Workdir = %q", p.Workdir)
	}
}

func TestDependenciesAdmitted(t *testing.T) {
	p, err := New(testProfile(), "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	st := p.Stage(StageDependencies)
	if st == nil || st.Skipped {
		t.Fatalf("dependencies stage missing or skipped: %+v", st)
	}

	want := []string{
		"python -m pip install --upgrade -c constraints.txt -r requirements.txt",
		"python -m pip install --upgrade -c constraints.txt -r requirements-dev.txt",
		"python -m pip install --upgrade -c constraints.txt -e .",
	}
	var got []string
	for _, step := range st.Steps {
		if step.Kind != StepRun {
			t.Fatalf("unexpected step kind %q", step.Kind)
		}
		got = append(got, step.Run)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("dependency installs mismatch (-want +got):\n%s", diff)
	}
}

func TestDependenciesNotAdmitted(t *testing.T) {
	prof := testProfile()
	prof.Dependencies.When = profile.Gate{Versions: []string{"3.9"}}

	p, err := New(prof, "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if p.Decisions.Dependencies {
		t.Error("Decisions.Dependencies = true, want false")
	}

	st := p.Stage(StageDependencies)
	if !st.Skipped || len(st.Steps) != 0 {
		t.Fatalf("dependencies stage = %+v, want skipped with no steps", st)
	}
	if !strings.Contains(st.Reason, "3.8") {
		t.Errorf("Reason = %q, want the runtime version", st.Reason)
	}

	for _, run := range allRuns(p) {
		if strings.Contains(run, "requirements") || strings.Contains(run, "-e .") {
			t.Errorf("unexpected install step %q", run)
		}
	}
}

func TestToolchainAdmitted(t *testing.T) {
	p, err := New(testProfile(), "3.6")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if !p.Decisions.Toolchain {
		t.Fatal("Decisions.Toolchain = false, want true")
	}

	st := p.Stage(StageToolchain)
	if st.Skipped {
		t.Fatalf("toolchain stage skipped: %s", st.Reason)
	}

	kinds := make([]StepKind, 0, len(st.Steps))
	for _, step := range st.Steps {
		kinds = append(kinds, step.Kind)
	}
	if diff := cmp.Diff([]StepKind{StepFetch, StepRun, StepEnv, StepRun}, kinds); diff != "" {
		t.Fatalf("toolchain steps mismatch (-want +got):\n%s", diff)
	}

	fetch := st.Steps[0]
	if fetch.URL != "https://sh.rustup.rs" || fetch.Dest != "/tmp/rustup-init.sh" {
		t.Errorf("fetch step = %+v", fetch)
	}
	install := st.Steps[1].Run
	for _, want := range []string{"sh /tmp/rustup-init.sh -y", "--default-toolchain 1.61.0", "--profile default"} {
		if !strings.Contains(install, want) {
			t.Errorf("install %q does not contain %q", install, want)
		}
	}

	if got := p.Path.Dirs()[0]; got != "/root/.cargo/bin" {
		t.Errorf("search path head = %q, want /root/.cargo/bin", got)
	}
	if !slices.Contains(p.Env(), "PATH=/root/.cargo/bin:/usr/local/bin:/usr/bin:/bin") {
		t.Errorf("Env() = %v, want toolchain PATH", p.Env())
	}
}

func TestToolchainNotAdmitted(t *testing.T) {
	for _, version := range []string{"3.7", "3.8", "3.9", "3.6.1"} {
		t.Run(version, func(t *testing.T) {
			p, err := New(testProfile(), version)
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}

			st := p.Stage(StageToolchain)
			if !st.Skipped || len(st.Steps) != 0 {
				t.Fatalf("toolchain stage = %+v, want skipped", st)
			}
			if diff := cmp.Diff([]string{"/usr/local/bin", "/usr/bin", "/bin"}, p.Path.Dirs()); diff != "" {
				t.Errorf("search path changed (-want +got):\n%s", diff)
			}
			for _, kv := range p.Env() {
				if strings.HasPrefix(kv, "PATH=") {
					t.Errorf("unexpected %s", kv)
				}
			}
			for _, run := range allRuns(p) {
				if strings.Contains(run, "rustup") || strings.Contains(run, "rustc") {
					t.Errorf("unexpected toolchain step %q", run)
				}
			}
		})
	}
}

func TestSystemStage(t *testing.T) {
	p, err := New(testProfile(), "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	st := p.Stage(StageSystem)
	if len(st.Steps) != 2 {
		t.Fatalf("system steps = %d, want 2", len(st.Steps))
	}
	if env := st.Steps[0]; env.Kind != StepEnv || env.Key != "DEBIAN_FRONTEND" || env.Value != "noninteractive" {
		t.Errorf("first step = %+v, want DEBIAN_FRONTEND env", env)
	}

	run := st.Steps[1].Run
	want := "apt-get update && apt-get install -y git curl && rm -rf /var/lib/apt/lists/*"
	if run != want {
		t.Errorf("system run = %q, want %q", run, want)
	}
}

func TestSystemStageRemovesEveryCache(t *testing.T) {
	prof := testProfile()
	prof.System.CacheDirs = []string{"/var/lib/apt/lists", "/var/cache/apt/archives"}

	p, err := New(prof, "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	run := p.Stage(StageSystem).Steps[1].Run
	if !strings.HasSuffix(run, "rm -rf /var/lib/apt/lists/* && rm -rf /var/cache/apt/archives/*") {
		t.Errorf("system run %q does not end with cache removal", run)
	}
}

func TestWorkspaceStage(t *testing.T) {
	p, err := New(testProfile(), "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []Step{
		{Kind: StepWorkdir, Dir: "/workspace"},
		{Kind: StepCopy, Src: ".", Dest: "."},
	}
	if diff := cmp.Diff(want, p.Stage(StageWorkspace).Steps); diff != "" {
		t.Errorf("workspace steps mismatch (-want +got):\n%s", diff)
	}
}

func TestPackageManagerStage(t *testing.T) {
	for _, version := range []string{"3.6", "3.8"} {
		p, err := New(testProfile(), version)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		st := p.Stage(StagePackageManager)
		if st.Skipped || len(st.Steps) != 1 || st.Steps[0].Run != "python -m pip install --upgrade pip" {
			t.Errorf("version %s: package-manager stage = %+v", version, st)
		}
	}
}

func TestStageOrderAcrossGates(t *testing.T) {
	p, err := New(testProfile(), "3.6")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	runs := allRuns(p)
	index := func(sub string) int {
		return slices.IndexFunc(runs, func(r string) bool { return strings.Contains(r, sub) })
	}

	order := []string{"apt-get", "rustup-init", "rustc --version", "install --upgrade pip", "-r requirements.txt", "-r requirements-dev.txt", "-e ."}
	prev := -1
	for _, sub := range order {
		i := index(sub)
		if i <= prev {
			t.Fatalf("%q at %d, want after %d in %v", sub, i, prev, runs)
		}
		prev = i
	}
}

func TestEnv(t *testing.T) {
	p, err := New(testProfile(), "3.6")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	want := []string{
		"DEBIAN_FRONTEND=noninteractive",
		"PATH=/root/.cargo/bin:/usr/local/bin:/usr/bin:/bin",
	}
	if diff := cmp.Diff(want, p.Env()); diff != "" {
		t.Errorf("Env() mismatch (-want +got):\n%s", diff)
	}
}

func TestEntryRecorded(t *testing.T) {
	prof := testProfile()
	p, err := New(prof, "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	prof.Entry.Command[0] = "changed"
	if diff := cmp.Diff([]string{"stestr", "run"}, p.Entry.Command); diff != "" {
		t.Errorf("entry mismatch (-want +got):\n%s", diff)
	}
	if st := p.Stage(StageEntry); len(st.Steps) != 0 {
		t.Errorf("entry stage has build steps: %+v", st.Steps)
	}
	if len(p.Warnings) != 0 {
		t.Errorf("Warnings = %v, want none", p.Warnings)
	}
}

func TestCheckEntry(t *testing.T) {
	known := []string{"run", "last", "list"}

	tests := []struct {
		name    string
		command []string
		known   []string
		warn    bool
	}{
		{"known subcommand", []string{"stestr", "run"}, known, false},
		{"truncated subcommand", []string{"stestr", "ru"}, known, true},
		{"flag", []string{"stestr", "--test-path", "tests"}, known, false},
		{"single token", []string{"pytest"}, known, false},
		{"no known list", []string{"pytest", "tests"}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckEntry(profile.Entry{Command: tt.command, KnownSubcommands: tt.known})
			if (len(got) > 0) != tt.warn {
				t.Errorf("CheckEntry(%v) = %v, want warning %v", tt.command, got, tt.warn)
			}
		})
	}
}

func TestNewEntryWarning(t *testing.T) {
	prof := testProfile()
	prof.Entry.Command = []string{"stestr", "ru"}

	p, err := New(prof, "3.8")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if len(p.Warnings) != 1 || !strings.Contains(p.Warnings[0], `"ru"`) {
		t.Errorf("Warnings = %v", p.Warnings)
	}
	if diff := cmp.Diff([]string{"stestr", "ru"}, p.Entry.Command); diff != "" {
		t.Errorf("entry was rewritten (-want +got):\n%s", diff)
	}
}

func TestDecide(t *testing.T) {
	prof := testProfile()

	tests := []struct {
		version string
		want    Decisions
	}{
		{"3.6", Decisions{Toolchain: true, Dependencies: true}},
		{"3.8", Decisions{Toolchain: false, Dependencies: true}},
	}

	for _, tt := range tests {
		if got := Decide(prof, tt.version); got != tt.want {
			t.Errorf("Decide(%q) = %+v, want %+v", tt.version, got, tt.want)
		}
	}
}

func TestCheckScript(t *testing.T) {
	if err := checkScript("apt-get update && apt-get install -y git"); err != nil {
		t.Errorf("valid script rejected: %v", err)
	}
	if err := checkScript("echo 'unterminated"); !errors.Is(err, ErrScript) {
		t.Errorf("expected ErrScript, got %v", err)
	}
}

func TestScriptQuoting(t *testing.T) {
	var s script
	s.run("echo", "hello world")
	s.clear("/tmp/my cache")

	got, err := s.String()
	if err != nil {
		t.Fatalf("String failed: %v", err)
	}
	if err := checkScript(got); err != nil {
		t.Errorf("quoted script %q does not parse: %v", got, err)
	}
	if !strings.Contains(got, "'hello world'") {
		t.Errorf("script %q does not quote the argument", got)
	}
}
