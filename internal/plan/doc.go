// Package plan turns a provisioning profile and a Runtime Version into an
// ordered, inspectable provisioning plan.
//
// A [Plan] is a fixed sequence of stages: base image selection, system
// packages, workspace materialization, the secondary toolchain, the package
// manager upgrade, project dependencies, and the entry point. Version gates
// are evaluated exactly once, in [New], and recorded as [Decisions]; gated
// stages that do not apply stay in the plan marked as skipped with a reason,
// so an omission is visible rather than silent.
//
// The executable search path is an explicit [SearchPath] value threaded
// through the stages instead of a process-wide variable, which keeps its
// ordering and shadowing testable without a container.
//
// Plans are pure data. The build package executes them against containerd,
// and [Plan.Dockerfile] renders an equivalent Dockerfile.
//
//	p, err := plan.New(prof, "3.6")
//	if err != nil {
//	    return err
//	}
//	fmt.Print(p.Dockerfile())
package plan
