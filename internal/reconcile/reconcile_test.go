package reconcile

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/manifest"
	"github.com/bianoble/update-gate/internal/scan"
)

type recordedFetch struct {
	loc  *url.URL
	dest string
	size int64
	dig  digest.Digest
}

type recordingDeployer struct {
	mu       sync.Mutex
	served   map[string]string
	fetches  []recordedFetch
	deploys  int
	fetchErr error
}

func (d *recordingDeployer) Deploy(*gate.Snapshot) {
	d.mu.Lock()
	d.deploys++
	d.mu.Unlock()
}

func (d *recordingDeployer) Fetch(loc *url.URL, dest string, size int64, dig digest.Digest, cb gate.FetchCallback, build int) (gate.Fetcher, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fetchErr != nil {
		return nil, d.fetchErr
	}
	d.fetches = append(d.fetches, recordedFetch{loc: loc, dest: dest, size: size, dig: dig})
	return noopFetcher{}, nil
}

func (d *recordingDeployer) AddDependency(dig digest.Digest, path string) {
	d.mu.Lock()
	if d.served == nil {
		d.served = make(map[string]string)
	}
	d.served[dig.Encoded()] = path
	d.mu.Unlock()
}

type noopFetcher struct{}

func (noopFetcher) Cancel() {}

func writeWorkdir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func entryFor(name, version, filename, content string) string {
	return fmt.Sprintf(
		"%[1]s.version=%[2]s\n%[1]s.filename=%[3]s\n%[1]s.key=https://r.example.net/%[3]s\n%[1]s.filename-regex=%[1]s-.*\\\\.zip\n%[1]s.sha256=%[4]s\n%[1]s.size=%[5]d\n",
		name, version, filename, digest.FromString(content).Encoded(), len(content))
}

func mustDoc(t *testing.T, text string) *manifest.Document {
	t.Helper()
	doc, err := manifest.Parse([]byte(text))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc
}

func staticVersions(m map[string]string) func(string) (string, error) {
	return func(path string) (string, error) {
		if v, ok := m[filepath.Base(path)]; ok {
			return v, nil
		}
		return "", fmt.Errorf("no version in %s", path)
	}
}

func listZips(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".zip") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func newPass(dir string, dep *recordingDeployer, versions map[string]string) *Pass {
	ws := scan.NewWorkspace(dir, ".zip", nil, filepath.Join(dir, "launcher.conf"))
	return &Pass{
		Deployer: dep,
		Env:      ws,
		Root:     dir,
		Version:  staticVersions(versions),
	}
}

func TestRunServesValidInUse(t *testing.T) {
	content := "lib artifact v2"
	dir := writeWorkdir(t, map[string]string{
		"lib-2.zip":     content,
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, map[string]string{"lib-2.zip": "2"})

	if !p.Run(mustDoc(t, entryFor("lib", "2", "lib-2.zip", content)), 2) {
		t.Fatal("Run = false, want true")
	}

	want := filepath.Join(dir, "lib-2.zip")
	if got := dep.served[digest.FromString(content).Encoded()]; got != want {
		t.Errorf("served path = %q, want %q", got, want)
	}
	if len(dep.fetches) != 0 {
		t.Errorf("fetches = %d, want 0", len(dep.fetches))
	}
	if got := listZips(t, dir); len(got) != 1 || got[0] != "lib-2.zip" {
		t.Errorf("surviving files = %v, want [lib-2.zip]", got)
	}
}

func TestRunCorruptInUseNotServed(t *testing.T) {
	dir := writeWorkdir(t, map[string]string{
		"lib-2.zip":     "tampered bytes!",
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, nil)

	// Manifest digest is for different content; same length so the
	// digest check is what fails.
	if !p.Run(mustDoc(t, entryFor("lib", "2", "lib-2.zip", "expected bytes!")), 2) {
		t.Fatal("Run = false, want true")
	}
	if len(dep.served) != 0 {
		t.Errorf("served = %v, want none", dep.served)
	}
	// The digest mismatch deletes the corrupt file.
	if _, err := os.Stat(filepath.Join(dir, "lib-2.zip")); !os.IsNotExist(err) {
		t.Errorf("corrupt file should be deleted, stat err = %v", err)
	}
}

func TestRunPreloadsMissing(t *testing.T) {
	content := "lib artifact v2"
	dir := writeWorkdir(t, map[string]string{
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, nil)

	if !p.Run(mustDoc(t, entryFor("lib", "2", "lib-2.zip", content)), 2) {
		t.Fatal("Run = false, want true")
	}
	if len(dep.fetches) != 1 {
		t.Fatalf("fetches = %d, want 1", len(dep.fetches))
	}
	f := dep.fetches[0]
	if f.dest != filepath.Join(dir, "lib-2.zip") {
		t.Errorf("fetch dest = %q", f.dest)
	}
	if f.size != int64(len(content)) {
		t.Errorf("fetch size = %d, want %d", f.size, len(content))
	}
}

func TestRunPreloadFailureStillSucceeds(t *testing.T) {
	dir := writeWorkdir(t, map[string]string{
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{fetchErr: fmt.Errorf("release host unreachable")}
	p := newPass(dir, dep, nil)

	if !p.Run(mustDoc(t, entryFor("lib", "2", "lib-2.zip", "content")), 2) {
		t.Fatal("Run = false, preload failures are not fatal")
	}
}

func TestRunPurgesStaleCopies(t *testing.T) {
	content := "lib artifact v2"
	dir := writeWorkdir(t, map[string]string{
		"lib-2.zip":     content,
		"lib-1.zip":     "old artifact",
		"lib-3.zip":     "newer artifact",
		"lib-x.zip":     "mystery artifact",
		"notes.txt":     "not an artifact",
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, map[string]string{
		"lib-1.zip": "1",
		"lib-2.zip": "2",
		"lib-3.zip": "3",
	})

	if !p.Run(mustDoc(t, entryFor("lib", "2", "lib-2.zip", content)), 2) {
		t.Fatal("Run = false, want true")
	}

	got := listZips(t, dir)
	want := []string{"lib-2.zip", "lib-3.zip"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("surviving files = %v, want %v", got, want)
	}
}

func TestRunPurgeMatchesExactCase(t *testing.T) {
	content := "lib artifact v2"
	dir := writeWorkdir(t, map[string]string{
		"Lib-2.zip":     content,
		"Lib-1.zip":     "old artifact",
		"lib-1.zip":     "unrelated artifact",
		"launcher.conf": "archive.1=Lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, map[string]string{
		"Lib-1.zip": "1",
		"Lib-2.zip": "2",
	})

	if !p.Run(mustDoc(t, entryFor("Lib", "2", "Lib-2.zip", content)), 2) {
		t.Fatal("Run = false, want true")
	}

	// Lib-1.zip is a stale copy and goes; lib-1.zip differs in case,
	// so it belongs to something else and stays.
	got := listZips(t, dir)
	want := []string{"Lib-2.zip", "lib-1.zip"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("surviving files = %v, want %v", got, want)
	}
}

func TestRunRequiredFieldsFatal(t *testing.T) {
	content := "lib artifact v2"
	full := entryFor("lib", "2", "lib-2.zip", content)

	drops := []struct {
		name string
		line string
	}{
		{name: "version", line: "lib.version=2\n"},
		{name: "filename", line: "lib.filename=lib-2.zip\n"},
		{name: "key", line: "lib.key=https://r.example.net/lib-2.zip\n"},
		{name: "filename-regex", line: "lib.filename-regex=lib-.*\\\\.zip\n"},
		{name: "sha256", line: fmt.Sprintf("lib.sha256=%s\n", digest.FromString(content).Encoded())},
		{name: "size", line: fmt.Sprintf("lib.size=%d\n", len(content))},
	}

	for _, tt := range drops {
		t.Run(tt.name, func(t *testing.T) {
			text := strings.Replace(full, tt.line, "", 1)
			if text == full {
				t.Fatalf("fixture line %q not found", tt.line)
			}

			dir := writeWorkdir(t, map[string]string{
				"lib-2.zip":     content,
				"launcher.conf": "archive.1=lib-2.zip\n",
			})
			dep := &recordingDeployer{}
			p := newPass(dir, dep, nil)

			if p.Run(mustDoc(t, text), 2) {
				t.Errorf("Run = true with %s missing, want false", tt.name)
			}
		})
	}
}

func TestRunIdempotent(t *testing.T) {
	content := "lib artifact v2"
	dir := writeWorkdir(t, map[string]string{
		"lib-2.zip":     content,
		"lib-1.zip":     "old artifact",
		"lib-3.zip":     "newer artifact",
		"launcher.conf": "archive.1=lib-2.zip\n",
	})
	dep := &recordingDeployer{}
	p := newPass(dir, dep, map[string]string{
		"lib-1.zip": "1",
		"lib-2.zip": "2",
		"lib-3.zip": "3",
	})
	doc := mustDoc(t, entryFor("lib", "2", "lib-2.zip", content))

	if !p.Run(doc, 2) {
		t.Fatal("first Run = false")
	}
	after1 := listZips(t, dir)

	if !p.Run(doc, 2) {
		t.Fatal("second Run = false")
	}
	after2 := listZips(t, dir)

	if len(after1) != len(after2) {
		t.Fatalf("state changed between runs: %v then %v", after1, after2)
	}
	for i := range after1 {
		if after1[i] != after2[i] {
			t.Errorf("state changed between runs: %v then %v", after1, after2)
		}
	}
	if len(dep.fetches) != 0 {
		t.Errorf("fetches = %d, want 0", len(dep.fetches))
	}
	if dep.deploys != 0 {
		t.Errorf("deploys = %d, reconciliation must never deploy", dep.deploys)
	}
}
