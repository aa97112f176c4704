package internal

import (
	"log/slog"
	"testing"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		debug, quiet bool
		want         slog.Level
	}{
		{false, false, slog.LevelInfo},
		{true, false, slog.LevelDebug},
		{false, true, slog.LevelWarn},
		{true, true, slog.LevelDebug},
	}

	for _, tt := range tests {
		if got := levelFor(tt.debug, tt.quiet); got != tt.want {
			t.Errorf("levelFor(%v, %v) = %v, want %v", tt.debug, tt.quiet, got, tt.want)
		}
	}
}

func TestSyncLogLevel(t *testing.T) {
	defer SetDebug(IsDebug())
	defer SetQuiet(IsQuiet())

	SetDebug(false)
	SetQuiet(true)
	SyncLogLevel()
	if LogLevel().Level() != slog.LevelWarn {
		t.Fatalf("level = %v, want WARN", LogLevel().Level())
	}

	SetDebug(true)
	SyncLogLevel()
	if LogLevel().Level() != slog.LevelDebug {
		t.Fatalf("level = %v, want DEBUG", LogLevel().Level())
	}
}

func TestVersionStringLocal(t *testing.T) {
	saved := version
	defer func() { version = saved }()

	version = ""
	if got := VersionString(); got != defaultLocalBuild {
		t.Fatalf("VersionString() = %q, want %q", got, defaultLocalBuild)
	}
}

func TestVersionStringPipeline(t *testing.T) {
	sv, ss, sc := version, stage, gitCommit
	defer func() { version, stage, gitCommit = sv, ss, sc }()

	version, stage, gitCommit = "V1.2.3", "main", "abc123"
	got := VersionString()
	if got[:len("1.2.3 abc123 [")] != "1.2.3 abc123 [" {
		t.Fatalf("VersionString() = %q, want 1.2.3 abc123 [<arch>]", got)
	}

	stage = "Staging"
	got = VersionString()
	if got[:len("1.2.3+staging ")] != "1.2.3+staging " {
		t.Fatalf("VersionString() = %q, want stage suffix", got)
	}
}
