// Package updategate provides the public Go library API for update-gate.
//
// update-gate decides when a staged agent upgrade is safe to deploy. It
// resolves a build's manifest of content-addressed archive dependencies
// against the workdir, downloads whatever is missing, and hands the
// final dependency set to the Deploy hook exactly once, when every
// required artifact has verified on disk.
//
// # Basic Usage
//
//	client, err := updategate.New(updategate.Options{
//	    ConfigPath: "/etc/update-gate/update-gate.yaml",
//	    Deploy: func(snap *updategate.Snapshot) {
//	        // hand the dependency set to the restart machinery
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Gate a staged build
//	snap, err := client.Submit("dependencies.properties", 1477)
//
//	// Reconcile the running build at startup
//	ok, err := client.Reconcile("dependencies.properties", 1476)
package updategate

import (
	"net/url"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"

	"github.com/bianoble/update-gate/internal/config"
	"github.com/bianoble/update-gate/internal/fetch"
	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/integrity"
	"github.com/bianoble/update-gate/internal/manifest"
	"github.com/bianoble/update-gate/internal/reconcile"
	"github.com/bianoble/update-gate/internal/scan"
)

// Options configures an update-gate client.
type Options struct {
	// ConfigPath locates update-gate.yaml. Empty falls back to
	// $UPDATE_GATE_CONFIG and then the platform defaults.
	ConfigPath string

	// Deploy receives the final dependency set, exactly once per
	// client, when a submitted build has every artifact verified.
	Deploy func(*Snapshot)

	// Serve, when set, receives each verified artifact that can be
	// re-served to other nodes.
	Serve func(dig digest.Digest, path string)

	// Logger for all subsystems. Nil disables logging.
	Logger *zap.SugaredLogger

	// HTTPClient overrides the download transport.
	HTTPClient fetch.HTTPClient
}

// Client is the main entry point for the update-gate library.
type Client struct {
	cfg      *config.Config
	workdir  *scan.Workspace
	pool     *fetch.Pool
	deployer *hookDeployer
	checker  *gate.Checker
	log      *zap.SugaredLogger
}

// New creates a new update-gate Client.
func New(opts Options) (*Client, error) {
	cfg, err := config.Load(config.DiscoverPath(opts.ConfigPath))
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	ws := scan.NewWorkspace(cfg.Workdir, cfg.ArchiveExt, cfg.Reserved, cfg.LauncherConfPath())
	pool := &fetch.Pool{
		Root:    cfg.Workdir,
		Client:  opts.HTTPClient,
		Workers: cfg.Fetch.Workers,
		Timeout: cfg.FetchTimeout(),
		MaxSize: cfg.Fetch.MaxSize,
		Log:     log,
	}
	dep := &hookDeployer{pool: pool, deploy: opts.Deploy, serve: opts.Serve, log: log}

	return &Client{
		cfg:      cfg,
		workdir:  ws,
		pool:     pool,
		deployer: dep,
		checker:  gate.New(dep, ws, log),
		log:      log,
	}, nil
}

// Config returns the loaded configuration.
func (c *Client) Config() *Config {
	return c.cfg
}

// Submit feeds the manifest for build into the gate. The returned
// snapshot is non-nil when the build was already complete on disk, in
// which case the Deploy hook has run synchronously. Otherwise it is
// nil: either downloads are in flight and the hook fires when the last
// one lands, or the manifest can never be satisfied, which IsBroken
// reports.
func (c *Client) Submit(manifestPath string, build int) (*Snapshot, error) {
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return nil, err
	}
	snap := c.checker.Submit(doc, build)
	if snap != nil {
		c.deployer.Deploy(snap)
	}
	return snap, nil
}

// IsBroken reports whether the last submitted manifest cannot be
// satisfied.
func (c *Client) IsBroken() bool {
	return c.checker.IsBroken()
}

// Reconcile audits the manifest the running build was started from:
// verified in-use artifacts are offered to the Serve hook, missing ones
// are preloaded and stale staged copies purged. It reports whether
// every manifest entry was usable.
func (c *Client) Reconcile(manifestPath string, build int) (bool, error) {
	doc, err := manifest.Load(manifestPath)
	if err != nil {
		return false, err
	}
	pass := &reconcile.Pass{
		Deployer: c.deployer,
		Env:      c.workdir,
		Root:     c.cfg.Workdir,
		Log:      c.log,
	}
	return pass.Run(doc, build), nil
}

// Verify checks one artifact against its expected digest and size. A
// mishashed file is deleted.
func (c *Client) Verify(path string, dig digest.Digest, size int64) bool {
	return integrity.Verify(path, dig, size)
}

// Close waits for outstanding downloads to settle.
func (c *Client) Close() error {
	return c.pool.Close()
}

// hookDeployer adapts the caller's hooks and the download pool to the
// gate's deployer contract.
type hookDeployer struct {
	pool   *fetch.Pool
	deploy func(*Snapshot)
	serve  func(digest.Digest, string)
	log    *zap.SugaredLogger
}

func (d *hookDeployer) Deploy(snap *gate.Snapshot) {
	d.log.Infof("build %d ready to deploy with %d dependencies", snap.Build, len(snap.Deps))
	if d.deploy != nil {
		d.deploy(snap)
	}
}

func (d *hookDeployer) Fetch(loc *url.URL, dest string, size int64, dig digest.Digest, cb gate.FetchCallback, build int) (gate.Fetcher, error) {
	return d.pool.Fetch(loc, dest, size, dig, cb, build)
}

func (d *hookDeployer) AddDependency(dig digest.Digest, path string) {
	if d.serve == nil {
		return
	}
	d.serve(dig, path)
}
