package gate

import (
	"path/filepath"

	"github.com/bianoble/update-gate/internal/manifest"
)

// resolveAllLocked resolves every entry of the manifest. A malformed
// entry marks the build broken but never stops the others from being
// resolved or fetched.
func (c *Checker) resolveAllLocked(doc *manifest.Document) {
	candidates := c.env.ListCandidates()
	for _, name := range doc.Names() {
		e, err := manifest.ParseEntry(doc, name)
		if err != nil {
			c.log.Errorf("manifest for build %d is unusable: %v", c.build, err)
			c.broken = true
			continue
		}
		c.resolveEntryLocked(e, candidates)
	}
}

// resolveEntryLocked satisfies one entry from local files when it can,
// in strict preference order, and falls back to an essential fetch.
func (c *Checker) resolveEntryLocked(e *manifest.Entry, candidates []string) {
	inUse := c.env.LookupActive(e.Pattern)
	target := c.env.TargetPath(e.Filename)

	// The wanted file under its wanted name.
	if c.Verify(target, e.Digest, e.Size) {
		c.deps[Dependency{InUse: inUse, Target: target, Pattern: e.Pattern}] = struct{}{}
		return
	}

	// The archive already in use, kept under its current name until
	// the next restart renames things.
	if inUse != "" && c.Verify(inUse, e.Digest, e.Size) {
		c.log.Infof("dependency %s: still using %s", e.Name, inUse)
		c.deps[Dependency{InUse: inUse, Target: inUse, Pattern: e.Pattern}] = struct{}{}
		return
	}

	// Without a pattern there is no recognizing other copies on disk.
	if e.Pattern == nil {
		if e.Locator == nil {
			c.log.Errorf("dependency %s is not present and cannot be fetched", e.Name)
			c.broken = true
			return
		}
		c.startFetchLocked(e, Dependency{InUse: inUse, Target: target})
		return
	}

	// Any other local copy with the right content. Patterns see the
	// name exactly as it is on disk.
	for _, cand := range candidates {
		if !e.Pattern.MatchString(filepath.Base(cand)) {
			continue
		}
		if c.Verify(cand, e.Digest, e.Size) {
			c.log.Infof("dependency %s: using existing copy %s", e.Name, cand)
			c.deps[Dependency{InUse: inUse, Target: cand, Pattern: e.Pattern}] = struct{}{}
			return
		}
	}

	if e.Locator == nil {
		c.log.Errorf("dependency %s is not present and cannot be fetched", e.Name)
		c.broken = true
		return
	}
	c.startFetchLocked(e, Dependency{InUse: inUse, Target: target, Pattern: e.Pattern})
}
