package build

import (
	"github.com/cruciblehq/cruxenv/internal/plan"
)

// Shell used for run steps.
const defaultShell = "/bin/sh"

// Tracks accumulated modifiers during step execution.
//
// State flows linearly through the plan. Env and workdir steps update it
// permanently; run, copy, and fetch steps only read it.
type stepState struct {
	shell   string
	workdir string
	env     plan.Environment
}

// Creates a new [stepState] with default values.
func newStepState() *stepState {
	return &stepState{shell: defaultShell}
}

// Persists an env or workdir step. Other step kinds are ignored.
func (s *stepState) apply(step plan.Step) {
	switch step.Kind {
	case plan.StepEnv:
		s.env.Set(step.Key, step.Value)
	case plan.StepWorkdir:
		s.workdir = step.Dir
	}
}

// Returns the environment visible to the next step.
func (s *stepState) environ() []string {
	return s.env.List()
}
