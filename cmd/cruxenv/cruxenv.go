package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/cruciblehq/cruxenv/internal"
	"github.com/cruciblehq/cruxenv/internal/cli"
	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// The entry point for the cruxenv command.
//
// Initializes logging, displays startup information, and executes the root
// command. A command run inside a container passes its exit code through;
// any other error exits with code 1.
func main() {
	slog.SetDefault(cli.NewLogger(os.Stderr))

	slog.Debug("build", "version", internal.VersionString())

	slog.Debug("cruxenv is running",
		"pid", os.Getpid(),
		"cwd", cwd(),
		"args", os.Args,
	)

	if err := cli.Execute(); err != nil {
		var exitErr *runtime.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		slog.Error(err.Error())
		os.Exit(1)
	}
}

// Returns the current working directory or "(unknown)".
func cwd() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "(unknown)"
	}
	return cwd
}
