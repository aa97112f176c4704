package plan

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Writes the plan as an equivalent Dockerfile.
//
// Fetch steps are rendered as a curl download restricted to HTTPS and
// TLS 1.2 or later. Skipped stages are rendered as a comment carrying the
// skip reason so the output shows every stage.
func (p *Plan) WriteDockerfile(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# cruxenv profile %q, runtime version %s\n", p.Profile, p.RuntimeVersion)
	for _, warning := range p.Warnings {
		fmt.Fprintf(bw, "# warning: %s\n", warning)
	}

	for _, st := range p.Stages {
		if st.Kind == StageEntry {
			continue
		}
		fmt.Fprintf(bw, "\n# %s\n", st.Kind)
		if st.Kind == StageBase {
			fmt.Fprintf(bw, "FROM %s\n", p.BaseImage)
			continue
		}
		if st.Skipped {
			fmt.Fprintf(bw, "# skipped: %s\n", st.Reason)
			continue
		}
		for _, step := range st.Steps {
			line, err := dockerfileLine(step)
			if err != nil {
				return err
			}
			fmt.Fprintln(bw, line)
		}
	}

	cmd, err := json.Marshal(p.Entry.Command)
	if err != nil {
		return err
	}
	fmt.Fprintf(bw, "\n# %s\nCMD %s\n", StageEntry, cmd)

	return bw.Flush()
}

// Escapes the characters that stay special inside a double-quoted ENV value.
var envEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)

// Renders one step as a Dockerfile instruction.
func dockerfileLine(step Step) (string, error) {
	switch step.Kind {
	case StepRun:
		return "RUN " + step.Run, nil
	case StepCopy:
		return "COPY " + step.Src + " " + step.Dest, nil
	case StepWorkdir:
		return "WORKDIR " + step.Dir, nil
	case StepEnv:
		return "ENV " + step.Key + `="` + envEscaper.Replace(step.Value) + `"`, nil
	case StepFetch:
		var s script
		s.run("curl", "--proto", "=https", "--tlsv1.2", "-sSf", step.URL, "-o", step.Dest)
		run, err := s.String()
		if err != nil {
			return "", err
		}
		return "RUN " + run, nil
	}
	return "", fmt.Errorf("%w: unknown step kind %q", ErrPlan, step.Kind)
}

// Writes a human-readable summary of the plan.
func (p *Plan) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "profile:         %s\n", p.Profile)
	fmt.Fprintf(bw, "runtime version: %s\n", p.RuntimeVersion)
	fmt.Fprintf(bw, "base image:      %s\n", p.BaseImage)
	fmt.Fprintf(bw, "workdir:         %s\n", p.Workdir)
	fmt.Fprintf(bw, "search path:     %s\n", p.Path)
	fmt.Fprintf(bw, "entry:           %s\n", strings.Join(p.Entry.Command, " "))

	for i, st := range p.Stages {
		status := fmt.Sprintf("%d steps", len(st.Steps))
		if st.Skipped {
			status = "skipped: " + st.Reason
		}
		fmt.Fprintf(bw, "\n%d. %s (%s)\n", i+1, st.Kind, status)
		for _, step := range st.Steps {
			fmt.Fprintf(bw, "   %-7s %s\n", step.Kind, describe(step))
		}
	}

	for _, warning := range p.Warnings {
		fmt.Fprintf(bw, "\nwarning: %s\n", warning)
	}

	return bw.Flush()
}

// Returns the salient argument of a step.
func describe(step Step) string {
	switch step.Kind {
	case StepRun:
		return step.Run
	case StepCopy:
		return step.Src + " -> " + step.Dest
	case StepFetch:
		return step.URL + " -> " + step.Dest
	case StepEnv:
		return step.Key + "=" + step.Value
	case StepWorkdir:
		return step.Dir
	}
	return ""
}
