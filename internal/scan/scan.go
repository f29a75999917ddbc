package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/magiconair/properties"
	"go.uber.org/zap"
)

// Workspace is the on-disk environment dependency resolution runs
// against: the node workdir holding artifact archives, plus the
// launcher configuration naming the archives the running process was
// started with.
type Workspace struct {
	// Dir is the node workdir where artifacts live.
	Dir string
	// Ext is the artifact filename extension, matched case-insensitively.
	Ext string

	reserved map[string]bool
	active   []string
}

// NewWorkspace builds a Workspace. reserved names (the launcher's own
// archives, live and staged) are never offered as candidates. The
// ordered archive path list is read from the launcher configuration at
// confPath; a missing or unreadable configuration just leaves the
// active list empty.
func NewWorkspace(dir, ext string, reserved []string, confPath string) *Workspace {
	w := &Workspace{
		Dir:      dir,
		Ext:      strings.ToLower(ext),
		reserved: make(map[string]bool, len(reserved)),
	}
	for _, name := range reserved {
		w.reserved[strings.ToLower(name)] = true
	}
	w.loadActive(confPath)
	return w
}

// ListCandidates returns the artifact files in the workdir that could
// satisfy dependency entries: files with the configured extension,
// minus the reserved launcher archives. Paths are joined under Dir, in
// name order.
func (w *Workspace) ListCandidates() []string {
	log := zap.L().Sugar()

	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		log.Warnf("unable to list workdir %s: %v", w.Dir, err)
		return nil
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := strings.ToLower(e.Name())
		if !strings.HasSuffix(name, w.Ext) {
			continue
		}
		if w.reserved[name] {
			continue
		}
		out = append(out, filepath.Join(w.Dir, e.Name()))
	}
	return out
}

// ActivePaths returns the launcher's archive paths in launcher order.
// The paths are not required to exist.
func (w *Workspace) ActivePaths() []string {
	return w.active
}

// LookupActive returns the first active archive path whose basename
// matches pattern, or "" when there is none. Matching is case-exact;
// only the extension and reserved-name filters fold case. A nil
// pattern matches nothing.
func (w *Workspace) LookupActive(pattern *regexp.Regexp) string {
	if pattern == nil {
		return ""
	}
	for _, p := range w.active {
		if pattern.MatchString(filepath.Base(p)) {
			return p
		}
	}
	return ""
}

// TargetPath returns where the named artifact belongs in the workdir.
func (w *Workspace) TargetPath(filename string) string {
	return filepath.Join(w.Dir, filename)
}

// loadActive reads archive.N keys out of the launcher configuration.
// Relative paths are taken relative to the workdir.
func (w *Workspace) loadActive(confPath string) {
	log := zap.L().Sugar()
	if confPath == "" {
		return
	}

	data, err := os.ReadFile(confPath)
	if err != nil {
		log.Warnf("unable to read launcher configuration %s: %v", confPath, err)
		return
	}
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(data)
	if err != nil {
		log.Warnf("unable to parse launcher configuration %s: %v", confPath, err)
		return
	}

	type indexed struct {
		n    int
		path string
	}
	var found []indexed
	for _, k := range p.Keys() {
		rest, ok := strings.CutPrefix(k, "archive.")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil {
			continue
		}
		v, _ := p.Get(k)
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !filepath.IsAbs(v) {
			v = filepath.Join(w.Dir, v)
		}
		found = append(found, indexed{n: n, path: v})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	for _, f := range found {
		w.active = append(w.active, f.path)
	}
}
