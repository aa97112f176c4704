package build

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cruciblehq/cruxenv/internal/plan"
	"github.com/moby/patternmatcher"
)

// Number of stderr lines kept in a failed command's error.
const stderrTail = 20

// Runs plan steps against one build container.
type executor struct {
	ctr     Container
	fetcher Fetcher
	root    string                         // Project root on the host.
	ignore  *patternmatcher.PatternMatcher // Nil when no ignore file is present.
	state   *stepState
}

// Executes steps in order, stopping at the first failure.
func (ex *executor) executeSteps(ctx context.Context, steps []plan.Step) error {
	for i, step := range steps {
		if err := ex.executeStep(ctx, step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Kind, err)
		}
	}
	return nil
}

// Dispatches a step to its operation, or persists it as a modifier.
func (ex *executor) executeStep(ctx context.Context, step plan.Step) error {
	switch step.Kind {
	case plan.StepEnv:
		ex.state.apply(step)
		return nil

	case plan.StepWorkdir:
		ex.state.apply(step)
		return ex.ctr.MkdirAll(ctx, ex.state.workdir)

	case plan.StepRun:
		return ex.executeRun(ctx, step.Run)

	case plan.StepCopy:
		return ex.executeCopy(ctx, step)

	case plan.StepFetch:
		return ex.executeFetch(ctx, step)
	}

	return fmt.Errorf("%w: unknown step kind %q", ErrBuild, step.Kind)
}

// Runs a shell command with the accumulated environment and working
// directory. A non-zero exit fails the step.
func (ex *executor) executeRun(ctx context.Context, command string) error {
	slog.Debug("run", "command", command, "workdir", ex.state.workdir)

	result, err := ex.ctr.Exec(ctx, ex.state.shell, command, ex.state.environ(), ex.state.workdir)
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: %q exited with code %d: %s", ErrCommandFailed, command, result.ExitCode, tail(result.Stderr, stderrTail))
	}
	return nil
}

// Returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
