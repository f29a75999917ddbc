package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/workdir"
)

const defaultWorkers = 4

// HTTPClient abstracts the HTTP transport for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Pool downloads artifacts over http(s), implementing the fetch half
// of the deployer contract. Downloads run on a bounded number of
// workers; each one streams through digest verification and lands
// atomically in the workdir, so the destination name never holds
// unverified bytes.
type Pool struct {
	// Root is the workdir; every destination must resolve inside it.
	Root string
	// Client is the HTTP transport, http.DefaultClient when nil.
	Client HTTPClient
	// Workers bounds concurrent downloads (defaults to 4).
	Workers int
	// Timeout bounds a single download (0 = none).
	Timeout time.Duration
	// MaxSize refuses artifacts declared larger than this (0 = no limit).
	MaxSize int64
	Log     *zap.SugaredLogger

	once  sync.Once
	sem   chan struct{}
	group errgroup.Group
}

func (p *Pool) init() {
	p.once.Do(func() {
		w := p.Workers
		if w <= 0 {
			w = defaultWorkers
		}
		p.sem = make(chan struct{}, w)
	})
}

func (p *Pool) logger() *zap.SugaredLogger {
	if p.Log != nil {
		return p.Log
	}
	return zap.NewNop().Sugar()
}

// Fetch starts a download of loc to dest. It returns as soon as the
// job is queued; cb fires from a worker goroutine once the outcome is
// known. Errors are start failures: bad scheme, destination outside
// the workdir, or a declared size over the limit.
func (p *Pool) Fetch(loc *url.URL, dest string, size int64, dig digest.Digest, cb gate.FetchCallback, build int) (gate.Fetcher, error) {
	p.init()

	if loc == nil {
		return nil, fmt.Errorf("no locator")
	}
	if loc.Scheme != "http" && loc.Scheme != "https" {
		return nil, fmt.Errorf("unsupported locator scheme %q", loc.Scheme)
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		return nil, fmt.Errorf("artifact of %d bytes exceeds the configured limit %d", size, p.MaxSize)
	}
	rel, err := filepath.Rel(p.Root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("destination %s is outside the workdir %s", dest, p.Root)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &job{
		p:      p,
		id:     uuid.NewString(),
		loc:    loc,
		rel:    rel,
		size:   size,
		dig:    dig,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
	}

	p.logger().Infof("fetch %s: %s -> %s (build %d)", j.id, loc, dest, build)
	p.group.Go(j.run)
	return j, nil
}

// Close waits for every outstanding download to settle. Cancel the
// jobs first to make it prompt.
func (p *Pool) Close() error {
	return p.group.Wait()
}

// job is one queued download.
type job struct {
	p    *Pool
	id   string
	loc  *url.URL
	rel  string
	size int64
	dig  digest.Digest
	cb   gate.FetchCallback

	ctx    context.Context
	cancel context.CancelFunc
}

// Cancel stops the job. Idempotent and non-blocking; a completion
// already in flight may still deliver its callback, later ones never
// do.
func (j *job) Cancel() { j.cancel() }

func (j *job) run() error {
	defer j.cancel()

	select {
	case j.p.sem <- struct{}{}:
		defer func() { <-j.p.sem }()
	case <-j.ctx.Done():
		// Cancelled while queued; nobody wants the outcome.
		return nil
	}

	err := j.download()
	if j.ctx.Err() != nil {
		j.p.logger().Infof("fetch %s cancelled", j.id)
		return nil
	}
	if err != nil {
		j.p.logger().Warnf("fetch %s of %s failed: %v", j.id, j.loc, err)
		j.cb.OnFailure(err)
		return nil
	}
	j.p.logger().Infof("fetch %s of %s complete", j.id, j.loc)
	j.cb.OnSuccess()
	return nil
}

func (j *job) download() error {
	ctx := j.ctx
	if j.p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.p.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.loc.String(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	client := j.p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", j.loc, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, j.loc)
	}

	verifier := j.dig.Verifier()
	vr := &verifyReader{
		r:        io.TeeReader(resp.Body, verifier),
		verifier: verifier,
		want:     j.size,
	}

	// A stream that is too long, too short or mishashed errors out
	// before the staging file can be renamed into place.
	if _, err := workdir.WriteFileAtomic(j.p.Root, j.rel, vr, 0644); err != nil {
		return err
	}
	return nil
}

// verifyReader passes bytes through while counting them, and turns a
// clean EOF into an error unless exactly want bytes arrived with the
// right digest.
type verifyReader struct {
	r        io.Reader
	verifier digest.Verifier
	want     int64
	n        int64
}

func (v *verifyReader) Read(p []byte) (int, error) {
	n, err := v.r.Read(p)
	v.n += int64(n)
	if v.n > v.want {
		return n, fmt.Errorf("artifact length is wrong: more than the declared %d bytes", v.want)
	}
	if err == io.EOF {
		if v.n != v.want {
			return n, fmt.Errorf("artifact length is wrong: %d, should be %d", v.n, v.want)
		}
		if !v.verifier.Verified() {
			return n, fmt.Errorf("artifact digest mismatch")
		}
	}
	return n, err
}
