package reconcile

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/bianoble/update-gate/internal/archive"
	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/integrity"
	"github.com/bianoble/update-gate/internal/manifest"
	"github.com/bianoble/update-gate/internal/workdir"
)

// Pass reconciles the workdir with the running build's manifest at
// startup: valid in-use artifacts are registered as servable, missing
// ones are preloaded opportunistically, and stale duplicate copies are
// purged. A Pass holds no resolution state and is safe to repeat.
type Pass struct {
	Deployer gate.Deployer
	Env      gate.Environment
	// Root is the workdir; purged files are removed through its
	// containment checks.
	Root string
	Log  *zap.SugaredLogger

	// Verify and Version are swappable in tests. They default to
	// integrity.Verify and archive.EmbeddedVersion.
	Verify  func(path string, dig digest.Digest, size int64) bool
	Version func(path string) (string, error)
}

// Run works through doc, the manifest of the running build. It reports
// false as soon as any entry cannot be fully parsed, including its
// fetch key and filename-regex; the caller then has to fetch a fresh
// manifest instead of trusting this one.
func (p *Pass) Run(doc *manifest.Document, build int) bool {
	log := p.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	candidates := p.Env.ListCandidates()
	for _, name := range doc.Names() {
		e, err := manifest.ParseEntry(doc, name)
		if err != nil {
			log.Errorf("manifest for running build %d is unusable: %v", build, err)
			return false
		}
		if e.Locator == nil {
			log.Errorf("dependency %s in the running build's manifest has no usable fetch key", name)
			return false
		}
		if e.Pattern == nil {
			log.Errorf("dependency %s in the running build's manifest has no usable filename-regex", name)
			return false
		}

		p.reconcileEntry(e, candidates, build, log)
	}
	return true
}

func (p *Pass) reconcileEntry(e *manifest.Entry, candidates []string, build int, log *zap.SugaredLogger) {
	verify := p.Verify
	if verify == nil {
		verify = integrity.Verify
	}

	inUse := p.Env.LookupActive(e.Pattern)

	if inUse != "" && exists(inUse) {
		if verify(inUse, e.Digest, e.Size) {
			log.Infof("serving %s for dependency %s", inUse, e.Name)
			p.Deployer.AddDependency(e.Digest, inUse)
		} else {
			log.Warnf("dependency %s runs from a non-standard file %s, not serving it", e.Name, inUse)
		}
	} else {
		// Not on disk under its active name; grab a copy now so the
		// next build does not have to wait for it.
		target := p.Env.TargetPath(e.Filename)
		cb := gate.BestEffortCallback(e.Name, log)
		if _, err := p.Deployer.Fetch(e.Locator, target, e.Size, e.Digest, cb, build); err != nil {
			log.Warnf("cannot preload %s: %v", e.Filename, err)
		}
	}

	p.purge(e, candidates, inUse, log)
}

// purge deletes duplicate copies of e's artifact that are no newer
// than what the running build requires. The in-use file is never
// touched; strictly newer copies are kept for the coming upgrade.
func (p *Pass) purge(e *manifest.Entry, candidates []string, inUse string, log *zap.SugaredLogger) {
	version := p.Version
	if version == nil {
		version = archive.EmbeddedVersion
	}

	required, err := semver.NewVersion(e.Version)
	if err != nil {
		log.Warnf("dependency %s requires version %q which does not compare, keeping existing copies", e.Name, e.Version)
	}

	for _, cand := range candidates {
		if cand == inUse {
			continue
		}
		if !e.Pattern.MatchString(filepath.Base(cand)) {
			continue
		}

		fv, err := version(cand)
		if err != nil {
			log.Infof("deleting stale copy %s (no readable version): %v", cand, err)
			p.remove(cand, log)
			continue
		}
		cv, err := semver.NewVersion(fv)
		if err != nil {
			log.Infof("deleting stale copy %s (unrecognized version %q)", cand, fv)
			p.remove(cand, log)
			continue
		}
		if required == nil {
			continue
		}
		if !cv.GreaterThan(required) {
			log.Infof("deleting stale copy %s (version %s is not newer than %s)", cand, fv, e.Version)
			p.remove(cand, log)
		}
	}
}

// remove is best effort; losing the race against another deleter is
// fine.
func (p *Pass) remove(path string, log *zap.SugaredLogger) {
	rel, err := filepath.Rel(p.Root, path)
	if err != nil {
		log.Warnf("cannot resolve %s against workdir %s: %v", path, p.Root, err)
		return
	}
	if err := workdir.Remove(p.Root, rel); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("cannot delete %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
