package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/opencontainers/go-digest"

	"github.com/bianoble/update-gate/internal/config"
	"github.com/bianoble/update-gate/internal/fetch"
	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/scan"
)

// loadConfig resolves and loads the update-gate.yaml in effect.
func loadConfig() (*config.Config, error) {
	return config.Load(config.DiscoverPath(configPath))
}

// parseBuild parses a build number argument.
func parseBuild(arg string) (int, error) {
	build, err := strconv.Atoi(arg)
	if err != nil || build < 0 {
		return 0, fmt.Errorf("build number %q is not a non-negative integer", arg)
	}
	return build, nil
}

// newWorkspace builds the workdir view the gate resolves against.
func newWorkspace(cfg *config.Config) *scan.Workspace {
	return scan.NewWorkspace(cfg.Workdir, cfg.ArchiveExt, cfg.Reserved, cfg.LauncherConfPath())
}

// newPool builds the download pool.
func newPool(cfg *config.Config) *fetch.Pool {
	return &fetch.Pool{
		Root:    cfg.Workdir,
		Workers: cfg.Fetch.Workers,
		Timeout: cfg.FetchTimeout(),
		MaxSize: cfg.Fetch.MaxSize,
		Log:     log,
	}
}

// gateDeployer wires the CLI output and the download pool into the
// gate's deployer contract.
type gateDeployer struct {
	pool     *fetch.Pool
	noFetch  bool
	deployed chan *gate.Snapshot
}

func newGateDeployer(pool *fetch.Pool, noFetch bool) *gateDeployer {
	return &gateDeployer{pool: pool, noFetch: noFetch, deployed: make(chan *gate.Snapshot, 1)}
}

func (d *gateDeployer) Deploy(snap *gate.Snapshot) {
	d.deployed <- snap
}

func (d *gateDeployer) Fetch(loc *url.URL, dest string, size int64, dig digest.Digest, cb gate.FetchCallback, build int) (gate.Fetcher, error) {
	if d.noFetch {
		return nil, fmt.Errorf("downloads disabled by --no-fetch")
	}
	return d.pool.Fetch(loc, dest, size, dig, cb, build)
}

func (d *gateDeployer) AddDependency(dig digest.Digest, path string) {
	detail("serving %s (%s)", path, dig)
}

// humanSize formats a byte count for display.
func humanSize(bytes int64) string {
	if bytes == 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB"}
	size := float64(bytes)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", bytes)
	}
	return fmt.Sprintf("%.1f %s", size, units[i])
}

// info prints a line unless quiet mode is active.
func info(format string, args ...any) {
	if !quiet {
		fmt.Printf(format+"\n", args...)
	}
}

// detail prints a line only in verbose mode.
func detail(format string, args ...any) {
	if verbose {
		fmt.Printf("  "+format+"\n", args...)
	}
}

// errorf prints an error message to stderr.
func errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
