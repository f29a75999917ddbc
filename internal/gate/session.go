package gate

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bianoble/update-gate/internal/manifest"
)

// session tracks one artifact download. Essential sessions gate the
// deploy decision for a build; best-effort sessions only log their
// outcome.
type session struct {
	name      string
	id        string
	essential bool
	build     int

	checker   *Checker // nil for best-effort sessions
	dep       Dependency
	log       *zap.SugaredLogger
	fetcher   Fetcher
	cancelled bool
}

// startFetchLocked begins an essential download for dep and registers
// the session. A start failure marks the build broken.
func (c *Checker) startFetchLocked(e *manifest.Entry, dep Dependency) {
	s := &session{
		name:      e.Name,
		id:        uuid.NewString(),
		essential: true,
		build:     c.build,
		checker:   c,
		dep:       dep,
		log:       c.log,
	}

	c.log.Infof("fetching %s for build %d (session %s)", e.Filename, c.build, s.id)
	f, err := c.deployer.Fetch(e.Locator, dep.Target, e.Size, e.Digest, s, c.build)
	if err != nil {
		c.log.Errorf("cannot start fetch of %s for build %d: %v", e.Filename, c.build, err)
		c.broken = true
		return
	}
	s.fetcher = f
	c.sessions[s] = struct{}{}
}

// BestEffortCallback returns a fetch callback that records the outcome
// of an opportunistic download and nothing more. A nil log disables
// logging.
func BestEffortCallback(name string, log *zap.SugaredLogger) FetchCallback {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &session{
		name: name,
		id:   uuid.NewString(),
		log:  log,
	}
}

func (s *session) OnSuccess() {
	if !s.essential {
		s.log.Infof("preloaded %s (session %s)", s.name, s.id)
		return
	}

	c := s.checker
	c.log.Infof("downloaded %s needed for build %d (session %s)", s.dep.Target, s.build, s.id)

	c.mu.Lock()
	if _, active := c.sessions[s]; !active {
		// Superseded by a later manifest; this build is history.
		c.mu.Unlock()
		return
	}
	delete(c.sessions, s)
	c.deps[s.dep] = struct{}{}
	ready := c.readyLocked()
	c.mu.Unlock()

	if ready {
		c.Deploy()
	}
}

func (s *session) OnFailure(err error) {
	if !s.essential {
		s.log.Warnf("preload of %s failed (session %s): %v", s.name, s.id, err)
		return
	}

	c := s.checker
	c.log.Errorf("failed to fetch %s for build %d (session %s): %v", s.dep.Target, s.build, s.id, err)

	c.mu.Lock()
	if _, active := c.sessions[s]; !active {
		c.mu.Unlock()
		return
	}
	delete(c.sessions, s)
	c.broken = true
	c.mu.Unlock()
}

// cancelLocked stops the download. Idempotent; callers hold the
// checker lock.
func (s *session) cancelLocked() {
	if s.cancelled {
		return
	}
	s.cancelled = true
	if s.fetcher != nil {
		s.fetcher.Cancel()
	}
}
