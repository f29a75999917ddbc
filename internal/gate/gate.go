package gate

import (
	"sort"
	"sync"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/bianoble/update-gate/internal/integrity"
	"github.com/bianoble/update-gate/internal/manifest"
)

// Checker resolves dependency manifests for new builds and withholds
// the deploy decision until every required artifact verifies. A node
// creates one Checker per update cycle.
type Checker struct {
	deployer Deployer
	env      Environment
	log      *zap.SugaredLogger

	// Verify checks an artifact on disk. Swappable in tests; defaults
	// to integrity.Verify.
	Verify func(path string, dig digest.Digest, size int64) bool

	mu        sync.Mutex
	build     int
	deps      map[Dependency]struct{}
	sessions  map[*session]struct{}
	broken    bool
	deploying bool
}

// New builds a Checker around the given deployer and environment. A
// nil log disables logging.
func New(deployer Deployer, env Environment, log *zap.SugaredLogger) *Checker {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Checker{
		deployer: deployer,
		env:      env,
		log:      log,
		Verify:   integrity.Verify,
		deps:     make(map[Dependency]struct{}),
		sessions: make(map[*session]struct{}),
	}
}

// Submit resolves the dependency manifest for build. It returns a
// Snapshot immediately when every entry verified locally, in which
// case the caller owns the deploy. It returns nil when the outcome is
// deferred behind downloads (the deployer's Deploy fires once the last
// one lands) or when the manifest cannot be satisfied (IsBroken
// reports which).
//
// Submitting again replaces all state from the previous manifest and
// cancels its downloads. Once a deploy has been triggered the checker
// is done: every later submission is rejected.
func (c *Checker) Submit(doc *manifest.Document, build int) *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deploying {
		c.log.Errorf("manifest for build %d submitted while already deploying, ignoring it", build)
		return nil
	}

	c.clearLocked(build)

	defer func() {
		if r := recover(); r != nil {
			c.broken = true
			c.log.Errorf("dependency resolution for build %d broke: %v", build, r)
			panic(r)
		}
	}()

	c.resolveAllLocked(doc)

	if c.readyLocked() {
		return c.snapshotLocked()
	}
	return nil
}

// IsBroken reports whether the current build's manifest cannot be
// satisfied.
func (c *Checker) IsBroken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// Deploy pushes the current dependency set at the deployer. The set is
// copied under the lock; the deployer runs outside it.
func (c *Checker) Deploy() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.deployer.Deploy(snap)
}

// clearLocked drops all resolution state and aims the checker at
// build. Running downloads are cancelled; a callback that was already
// in flight finds its session unregistered and does nothing.
func (c *Checker) clearLocked(build int) {
	c.deps = make(map[Dependency]struct{})
	c.broken = false
	c.build = build
	for s := range c.sessions {
		s.cancelLocked()
	}
	c.sessions = make(map[*session]struct{})
}

// readyLocked reports whether the build can deploy, and commits to
// deploying when it can.
func (c *Checker) readyLocked() bool {
	if c.broken {
		return false
	}
	if len(c.sessions) > 0 {
		return false
	}
	c.deploying = true
	return true
}

func (c *Checker) snapshotLocked() *Snapshot {
	deps := make([]Dependency, 0, len(c.deps))
	for d := range c.deps {
		deps = append(deps, d)
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Target < deps[j].Target })
	return &Snapshot{
		Build:               c.build,
		Deps:                deps,
		MustRewriteLauncher: mustRewriteLauncher(deps),
	}
}
