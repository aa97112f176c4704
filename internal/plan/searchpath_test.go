package plan

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSearchPathPrepend(t *testing.T) {
	base := NewSearchPath("/usr/local/bin", "/usr/bin")
	next := base.Prepend("/root/.cargo/bin")

	if diff := cmp.Diff([]string{"/root/.cargo/bin", "/usr/local/bin", "/usr/bin"}, next.Dirs()); diff != "" {
		t.Errorf("Prepend mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"/usr/local/bin", "/usr/bin"}, base.Dirs()); diff != "" {
		t.Errorf("receiver modified (-want +got):\n%s", diff)
	}
}

func TestSearchPathPrependExisting(t *testing.T) {
	p := NewSearchPath("/a", "/b", "/c").Prepend("/c")

	if got := p.String(); got != "/c:/a:/b" {
		t.Errorf("String() = %q, want /c:/a:/b", got)
	}
}

func TestSearchPathDropsBlank(t *testing.T) {
	p := NewSearchPath("/a", " ", "", "/b")

	if got := p.String(); got != "/a:/b" {
		t.Errorf("String() = %q, want /a:/b", got)
	}
}

func TestSearchPathDirsIsCopy(t *testing.T) {
	p := NewSearchPath("/a", "/b")
	dirs := p.Dirs()
	dirs[0] = "/x"

	if got := p.String(); got != "/a:/b" {
		t.Errorf("String() = %q after mutating Dirs()", got)
	}
}

func TestSearchPathJSON(t *testing.T) {
	p := NewSearchPath("/a", "/b")

	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `["/a","/b"]` {
		t.Errorf("Marshal = %s", data)
	}

	var decoded SearchPath
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.String() != p.String() {
		t.Errorf("decoded = %q, want %q", decoded, p)
	}
}
