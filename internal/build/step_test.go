package build

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/cruxenv/internal/plan"
	"github.com/google/go-cmp/cmp"
)

func TestStepStateApply(t *testing.T) {
	s := newStepState()

	if s.shell != defaultShell || s.workdir != "" || len(s.environ()) != 0 {
		t.Fatalf("unexpected initial state: %+v", s)
	}

	s.apply(plan.Step{Kind: plan.StepEnv, Key: "DEBIAN_FRONTEND", Value: "noninteractive"})
	s.apply(plan.Step{Kind: plan.StepWorkdir, Dir: "/workspace"})
	s.apply(plan.Step{Kind: plan.StepEnv, Key: "PATH", Value: "/usr/bin"})
	s.apply(plan.Step{Kind: plan.StepEnv, Key: "DEBIAN_FRONTEND", Value: "readline"})
	s.apply(plan.Step{Kind: plan.StepRun, Run: "true"})

	want := []string{"DEBIAN_FRONTEND=readline", "PATH=/usr/bin"}
	if diff := cmp.Diff(want, s.environ()); diff != "" {
		t.Errorf("environ mismatch (-want +got):\n%s", diff)
	}
	if s.workdir != "/workspace" {
		t.Errorf("workdir = %q", s.workdir)
	}
}

func TestResolveDest(t *testing.T) {
	tests := []struct {
		name    string
		dest    string
		workdir string
		want    string
		wantErr bool
	}{
		{name: "absolute", dest: "/tmp/rustup-init.sh", want: "/tmp/rustup-init.sh"},
		{name: "absolute cleaned", dest: "/opt/../tmp/x", want: "/tmp/x"},
		{name: "relative with workdir", dest: ".", workdir: "/workspace", want: "/workspace"},
		{name: "nested relative", dest: "conf/app.ini", workdir: "/workspace", want: "/workspace/conf/app.ini"},
		{name: "relative without workdir", dest: ".", wantErr: true},
		{name: "empty", dest: "", workdir: "/workspace", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveDest(tt.dest, tt.workdir)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("resolveDest(%q, %q) = %q, want %q", tt.dest, tt.workdir, got, tt.want)
			}
		})
	}
}

func TestTail(t *testing.T) {
	if got := tail("a\nb\nc\n", 2); got != "b\nc" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("only", 5); got != "only" {
		t.Errorf("tail = %q", got)
	}
}

func TestLoadIgnore(t *testing.T) {
	root := t.TempDir()

	pm, err := loadIgnore(root, ".dockerignore")
	if err != nil || pm != nil {
		t.Fatalf("missing file: pm=%v err=%v, want nil, nil", pm, err)
	}

	pm, err = loadIgnore(root, "")
	if err != nil || pm != nil {
		t.Fatalf("empty name: pm=%v err=%v, want nil, nil", pm, err)
	}

	content := "# comment\n\n**/__pycache__\n.tox\n!.tox/keep\n"
	if err := os.WriteFile(filepath.Join(root, ".dockerignore"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	pm, err = loadIgnore(root, ".dockerignore")
	if err != nil || pm == nil {
		t.Fatalf("loadIgnore failed: pm=%v err=%v", pm, err)
	}

	tests := []struct {
		rel     string
		isDir   bool
		exclude bool
		skipDir bool
	}{
		{".", true, false, false},
		{"src/pkg/__pycache__", true, true, false},
		{"src/pkg/mod.py", false, false, false},
		{".tox", true, true, false},
		{".tox/keep", false, false, false},
		{".tox/other", false, true, false},
	}
	for _, tt := range tests {
		exclude, skipDir, err := excluded(pm, tt.rel, tt.isDir)
		if err != nil {
			t.Fatalf("excluded(%q) failed: %v", tt.rel, err)
		}
		if exclude != tt.exclude || skipDir != tt.skipDir {
			t.Errorf("excluded(%q) = %v, %v, want %v, %v", tt.rel, exclude, skipDir, tt.exclude, tt.skipDir)
		}
	}
}

func TestLoadIgnoreSkipsDirs(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, ".dockerignore"), []byte(".git\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pm, err := loadIgnore(root, ".dockerignore")
	if err != nil {
		t.Fatalf("loadIgnore failed: %v", err)
	}

	exclude, skipDir, err := excluded(pm, ".git", true)
	if err != nil || !exclude || !skipDir {
		t.Errorf("excluded(.git) = %v, %v, %v, want true, true, nil", exclude, skipDir, err)
	}
}

func TestExecuteStepUnknownKind(t *testing.T) {
	ex := &executor{ctr: newFakeContainer(), state: newStepState()}

	err := ex.executeStep(t.Context(), plan.Step{Kind: "mount"})
	if !errors.Is(err, ErrBuild) || !strings.Contains(err.Error(), "mount") {
		t.Fatalf("expected ErrBuild for unknown kind, got %v", err)
	}
}
