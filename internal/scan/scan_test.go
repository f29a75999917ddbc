package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func writeFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListCandidatesFilters(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir,
		"lib-1.zip",
		"Extra-2.ZIP",
		"agentd.zip",
		"AGENTD.ZIP.NEW",
		"notes.txt",
	)
	if err := os.Mkdir(filepath.Join(dir, "subdir.zip"), 0755); err != nil {
		t.Fatal(err)
	}

	ws := NewWorkspace(dir, ".zip", []string{"agentd.zip", "agentd.zip.new"}, "")

	got := ws.ListCandidates()
	want := []string{
		filepath.Join(dir, "Extra-2.ZIP"),
		filepath.Join(dir, "lib-1.zip"),
	}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidates[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestListCandidatesMissingDir(t *testing.T) {
	ws := NewWorkspace(filepath.Join(t.TempDir(), "absent"), ".zip", nil, "")
	if got := ws.ListCandidates(); got != nil {
		t.Errorf("candidates = %v, want none", got)
	}
}

func TestActivePathsFromLauncherConf(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "launcher.conf")
	text := `# launcher archives
archive.2=lib-2.zip
archive.1=/opt/agentd/agentd.zip
archive.10=extra-1.zip
archive.x=ignored.zip
other.key=ignored
`
	if err := os.WriteFile(conf, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}

	ws := NewWorkspace(dir, ".zip", nil, conf)

	got := ws.ActivePaths()
	want := []string{
		"/opt/agentd/agentd.zip",
		filepath.Join(dir, "lib-2.zip"),
		filepath.Join(dir, "extra-1.zip"),
	}
	if len(got) != len(want) {
		t.Fatalf("active = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("active[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestActivePathsMissingConf(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), ".zip", nil, "/nonexistent/launcher.conf")
	if got := ws.ActivePaths(); len(got) != 0 {
		t.Errorf("active = %v, want empty", got)
	}
}

func TestLookupActive(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "launcher.conf")
	text := "archive.1=agentd.zip\narchive.2=lib-1.zip\narchive.3=lib-2.zip\narchive.4=Extra-1.zip\n"
	if err := os.WriteFile(conf, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}

	ws := NewWorkspace(dir, ".zip", nil, conf)

	re := regexp.MustCompile(`^lib-.*\.zip$`)
	if got, want := ws.LookupActive(re), filepath.Join(dir, "lib-1.zip"); got != want {
		t.Errorf("LookupActive = %q, want %q", got, want)
	}

	// Matching is case-exact either way round.
	if got, want := ws.LookupActive(regexp.MustCompile(`^Extra-.*\.zip$`)), filepath.Join(dir, "Extra-1.zip"); got != want {
		t.Errorf("LookupActive = %q, want %q", got, want)
	}
	if got := ws.LookupActive(regexp.MustCompile(`^extra-.*\.zip$`)); got != "" {
		t.Errorf("LookupActive = %q, want empty for a case mismatch", got)
	}

	if got := ws.LookupActive(regexp.MustCompile(`^missing-.*\.zip$`)); got != "" {
		t.Errorf("LookupActive = %q, want empty", got)
	}

	if got := ws.LookupActive(nil); got != "" {
		t.Errorf("LookupActive(nil) = %q, want empty", got)
	}
}

func TestTargetPath(t *testing.T) {
	ws := NewWorkspace("/srv/agentd", ".zip", nil, "")
	if got, want := ws.TargetPath("lib-2.zip"), filepath.Join("/srv/agentd", "lib-2.zip"); got != want {
		t.Errorf("TargetPath = %q, want %q", got, want)
	}
}
