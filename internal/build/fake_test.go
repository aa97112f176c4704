package build

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cruciblehq/cruxenv/internal/runtime"
)

// Records the operations the executor performs.
type fakeRuntime struct {
	ctr      *fakeContainer
	startErr error
	ref      string
	id       string
}

func (f *fakeRuntime) StartContainer(ctx context.Context, ref, id string) (Container, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.ref, f.id = ref, id
	return f.ctr, nil
}

type fakeExec struct {
	command string
	env     []string
	workdir string
}

type fakeContainer struct {
	mu        sync.Mutex
	calls     []string
	execs     []fakeExec
	files     map[string]string // Extracted regular files by full container path.
	fail      map[string]int    // Exit codes for commands containing the key.
	exported  *runtime.ImageConfig
	destroyed bool
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{files: make(map[string]string), fail: make(map[string]int)}
}

func (c *fakeContainer) record(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *fakeContainer) ID() string { return "fake" }

func (c *fakeContainer) Exec(ctx context.Context, shell, command string, env []string, workdir string) (*runtime.ExecResult, error) {
	c.record("exec %s", command)
	c.execs = append(c.execs, fakeExec{command: command, env: env, workdir: workdir})
	for key, code := range c.fail {
		if strings.Contains(command, key) {
			return &runtime.ExecResult{ExitCode: code, Stderr: "boom\n"}, nil
		}
	}
	return &runtime.ExecResult{}, nil
}

func (c *fakeContainer) MkdirAll(ctx context.Context, path string) error {
	c.record("mkdir %s", path)
	return nil
}

func (c *fakeContainer) CopyTo(ctx context.Context, r io.Reader, destDir string) error {
	c.record("copy %s", destDir)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.files[strings.TrimSuffix(destDir, "/")+"/"+hdr.Name] = string(data)
		c.mu.Unlock()
	}
}

func (c *fakeContainer) Stop(ctx context.Context) error {
	c.record("stop")
	return nil
}

func (c *fakeContainer) Export(ctx context.Context, output string, cfg runtime.ImageConfig) (*runtime.ExportResult, error) {
	c.record("export %s", output)
	c.exported = &cfg
	return &runtime.ExportResult{Path: output + "/" + runtime.ExportFilename}, nil
}

func (c *fakeContainer) Destroy(ctx context.Context) {
	c.record("destroy")
	c.destroyed = true
}

// Serves fixed bodies by URL.
type fakeFetcher struct {
	bodies map[string]string
	err    error
	urls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, w io.Writer) (int64, error) {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return 0, f.err
	}
	n, err := io.WriteString(w, f.bodies[url])
	return int64(n), err
}
