package internal

import (
	"log/slog"
	"strconv"
	"sync/atomic"
)

var (
	quietMode   atomic.Bool // Suppress informational output.
	debugMode   atomic.Bool // Emit debug records.
	verboseMode atomic.Bool // Attach source locations to log records.

	logLevel slog.LevelVar // Level shared by every handler installed by the CLI.
)

// Seeds the modes from link-time flags. Unparseable values leave the mode off.
func init() {
	for _, m := range []struct {
		raw  string
		mode *atomic.Bool
	}{
		{rawQuiet, &quietMode},
		{rawDebug, &debugMode},
		{rawVerbose, &verboseMode},
	} {
		if v, err := strconv.ParseBool(m.raw); err == nil {
			m.mode.Store(v)
		}
	}
	logLevel.Set(levelFor(IsDebug(), IsQuiet()))
}

// Enables or disables quiet mode.
func SetQuiet(enabled bool) {
	quietMode.Store(enabled)
}

// Returns true if quiet mode is enabled.
func IsQuiet() bool {
	return quietMode.Load()
}

// Enables or disables debug mode.
func SetDebug(enabled bool) {
	debugMode.Store(enabled)
}

// Returns true if debug mode is enabled.
func IsDebug() bool {
	return debugMode.Load()
}

// Enables or disables verbose logging.
func SetVerbose(enabled bool) {
	verboseMode.Store(enabled)
}

// Returns true if verbose logging is enabled.
func IsVerbose() bool {
	return verboseMode.Load()
}

// Returns the level variable consulted by the process-wide log handler.
//
// Handlers hold the variable rather than a fixed level, so updating it after
// flag parsing takes effect without rebuilding the handler.
func LogLevel() *slog.LevelVar {
	return &logLevel
}

// Recomputes the log level from the current debug and quiet modes.
func SyncLogLevel() {
	logLevel.Set(levelFor(IsDebug(), IsQuiet()))
}

// Debug wins over quiet.
func levelFor(debug, quiet bool) slog.Level {
	switch {
	case debug:
		return slog.LevelDebug
	case quiet:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
