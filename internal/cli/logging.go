package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/cruciblehq/cruxenv/internal"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Creates the process logger writing to f.
//
// The level follows [internal.LogLevel], so it can change after the logger
// is installed. Colour is disabled when f is not a terminal.
func NewLogger(f *os.File) *slog.Logger {
	handler := tint.NewHandler(f, &tint.Options{
		Level:      internal.LogLevel(),
		AddSource:  internal.IsVerbose(),
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()),
	})
	return slog.New(handler)
}
