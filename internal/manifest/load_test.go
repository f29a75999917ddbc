package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadManifestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dependencies.properties")
	if err := os.WriteFile(path, []byte(exampleEntry), 0644); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	names := doc.Names()
	if len(names) != 1 || names[0] != "lib" {
		t.Errorf("names = %v, want [lib]", names)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/dependencies.properties")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseCommentsAndBlanks(t *testing.T) {
	doc := mustParse(t, `# build 42 dependencies
! also a comment

lib.version=2
`)

	if v, _ := doc.Get("lib.version"); v != "2" {
		t.Errorf("lib.version = %q, want %q", v, "2")
	}
	if names := doc.Names(); len(names) != 1 {
		t.Errorf("names = %v, want one entry", names)
	}
}
