package paths

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestSocketAndPIDShareRuntimeDir(t *testing.T) {
	dir := Runtime()
	if filepath.Dir(Socket()) != dir {
		t.Fatalf("Socket() = %q, want parent %q", Socket(), dir)
	}
	if filepath.Dir(PIDFile()) != dir {
		t.Fatalf("PIDFile() = %q, want parent %q", PIDFile(), dir)
	}
	if !strings.HasSuffix(Socket(), "cruxenv.sock") {
		t.Fatalf("Socket() = %q, want cruxenv.sock suffix", Socket())
	}
}

func TestProfilePath(t *testing.T) {
	p := Profile()
	if filepath.Base(p) != profileName {
		t.Fatalf("Profile() = %q, want base %q", p, profileName)
	}
	if filepath.Base(filepath.Dir(p)) != programName {
		t.Fatalf("Profile() = %q, want %q directory", p, programName)
	}
}
