package plan

import (
	"github.com/cruciblehq/cruxenv/internal/profile"
)

// Installs the fixed OS package list non-interactively, then removes the
// package index caches.
func systemStage(sys profile.System) (Stage, error) {
	st := Stage{Kind: StageSystem}

	if sys.Frontend != "" {
		st.Steps = append(st.Steps, Step{Kind: StepEnv, Key: "DEBIAN_FRONTEND", Value: sys.Frontend})
	}

	var s script
	if len(sys.Packages) > 0 {
		s.run("apt-get", "update")
		s.run(append([]string{"apt-get", "install", "-y"}, sys.Packages...)...)
	}
	for _, dir := range sys.CacheDirs {
		s.clear(dir)
	}

	if len(s.parts) == 0 {
		return st, nil
	}

	run, err := s.String()
	if err != nil {
		return Stage{}, err
	}
	st.Steps = append(st.Steps, Step{Kind: StepRun, Run: run})
	return st, nil
}

// Copies the whole project tree into the working directory.
func workspaceStage(ws profile.Workspace) Stage {
	return Stage{
		Kind: StageWorkspace,
		Steps: []Step{
			{Kind: StepWorkdir, Dir: ws.Dir},
			{Kind: StepCopy, Src: ".", Dest: "."},
		},
	}
}

// Fetches and runs the toolchain installer, then exposes the toolchain on
// the search path.
//
// When the gate does not admit the version the stage is skipped and the
// search path is returned unchanged.
func toolchainStage(tc profile.Toolchain, path SearchPath, admit bool, version string) (Stage, SearchPath, error) {
	if !admit {
		return skipped(StageToolchain, version, tc.When), path, nil
	}

	var install script
	install.run("sh", tc.InstallerPath, "-y", "--default-toolchain", tc.Version, "--profile", "default")
	install.run("rm", "-f", tc.InstallerPath)
	installRun, err := install.String()
	if err != nil {
		return Stage{}, path, err
	}

	var verify script
	verify.run("rustc", "--version")
	verifyRun, err := verify.String()
	if err != nil {
		return Stage{}, path, err
	}

	path = path.Prepend(tc.BinDir)

	return Stage{
		Kind: StageToolchain,
		Steps: []Step{
			{Kind: StepFetch, URL: tc.InstallerURL, Dest: tc.InstallerPath},
			{Kind: StepRun, Run: installRun},
			{Kind: StepEnv, Key: "PATH", Value: path.String()},
			{Kind: StepRun, Run: verifyRun},
		},
	}, path, nil
}

// Upgrades pip to the latest release. Unconditional and unpinned.
func packageManagerStage(pm profile.PackageManager) (Stage, error) {
	var s script
	s.run(pm.Python, "-m", "pip", "install", "--upgrade", "pip")
	run, err := s.String()
	if err != nil {
		return Stage{}, err
	}
	return Stage{Kind: StagePackageManager, Steps: []Step{{Kind: StepRun, Run: run}}}, nil
}

// Installs runtime requirements, development requirements, and the project
// itself in editable mode, in that order, all constrained by one lock file.
func dependenciesStage(deps profile.Dependencies, pm profile.PackageManager, admit bool, version string) (Stage, error) {
	if !admit {
		return skipped(StageDependencies, version, deps.When), nil
	}

	pip := []string{pm.Python, "-m", "pip", "install", "--upgrade", "-c", deps.Constraints}
	installs := [][]string{
		{"-r", deps.Requirements},
		{"-r", deps.DevRequirements},
		{"-e", deps.Editable},
	}

	st := Stage{Kind: StageDependencies}
	for _, args := range installs {
		var s script
		s.run(append(append([]string(nil), pip...), args...)...)
		run, err := s.String()
		if err != nil {
			return Stage{}, err
		}
		st.Steps = append(st.Steps, Step{Kind: StepRun, Run: run})
	}
	return st, nil
}
