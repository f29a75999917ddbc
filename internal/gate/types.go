package gate

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Dependency records how one manifest entry is satisfied.
type Dependency struct {
	// InUse is the archive path the running process was started with,
	// "" when no active archive matched the entry.
	InUse string
	// Target is the path the artifact must live at for the next run.
	Target string
	// Pattern recognizes alternate copies of the artifact by
	// basename.
	Pattern *regexp.Regexp
}

// Snapshot is a complete, verified dependency set for one build. It is
// always a copy; the checker keeps no reference to it.
type Snapshot struct {
	Build int
	Deps  []Dependency

	// MustRewriteLauncher is true when deploying this set requires the
	// launcher configuration to change before the next start.
	MustRewriteLauncher bool
}

// Deployer is everything the checker asks of its host node.
type Deployer interface {
	// Deploy hands over a fully verified dependency set. It is called
	// without the checker lock held and must not call back into the
	// checker.
	Deploy(snap *Snapshot)

	// Fetch starts an asynchronous artifact download to dest. cb fires
	// at most once, from another goroutine, never synchronously from
	// Fetch itself. A non-nil error means the download could not even
	// start.
	Fetch(loc *url.URL, dest string, size int64, dig digest.Digest, cb FetchCallback, build int) (Fetcher, error)

	// AddDependency announces that path holds verified content with
	// the given digest, so peers can retrieve it from this node.
	AddDependency(dig digest.Digest, path string)
}

// Fetcher is a handle on one running download.
type Fetcher interface {
	// Cancel stops the download. It is safe to call more than once,
	// must not block, and must not synchronously invoke the callback.
	// A completion already in flight may still deliver; after that the
	// callback never fires. The checker drops cancelled sessions, so a
	// late delivery cannot touch its state.
	Cancel()
}

// FetchCallback receives the outcome of a Fetch.
type FetchCallback interface {
	OnSuccess()
	OnFailure(err error)
}

// Environment answers the checker's questions about the node's disk
// and launcher state.
type Environment interface {
	// ListCandidates returns artifact files in the workdir that may
	// satisfy entries via their match patterns.
	ListCandidates() []string

	// LookupActive returns the first launcher archive path whose
	// basename matches pattern, "" when none does. A nil pattern
	// matches nothing.
	LookupActive(pattern *regexp.Regexp) string

	// TargetPath returns where the named artifact belongs on disk.
	TargetPath(filename string) string
}

// mustRewriteLauncher reports whether deploying deps forces a launcher
// configuration rewrite.
func mustRewriteLauncher(deps []Dependency) bool {
	for _, d := range deps {
		if d.InUse == "" || d.InUse != d.Target {
			return true
		}
		// An active archive still named *.new has to be renamed by a
		// rewrite before the next start, on every platform.
		if strings.HasSuffix(strings.ToLower(filepath.Base(d.InUse)), ".new") {
			return true
		}
	}
	return false
}
