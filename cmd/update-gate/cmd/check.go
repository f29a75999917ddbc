package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/manifest"
)

var (
	checkWait    bool
	checkNoFetch bool
)

var checkCmd = &cobra.Command{
	Use:   "check <manifest> <build>",
	Short: "Gate a staged build on its dependency manifest",
	Long: `Resolves every dependency named in the manifest against the workdir,
starting downloads for whatever is missing. Prints the final dependency
set once the build is ready to deploy.
Exit 0 when ready; non-zero when the manifest is broken or downloads
are still outstanding.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		build, err := parseBuild(args[1])
		if err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		doc, err := manifest.Load(args[0])
		if err != nil {
			return err
		}
		detail("gating %d dependencies from %s", len(doc.Names()), args[0])

		pool := newPool(cfg)
		dep := newGateDeployer(pool, checkNoFetch)
		checker := gate.New(dep, newWorkspace(cfg), log)

		snap := checker.Submit(doc, build)
		if snap == nil {
			if checker.IsBroken() {
				return fmt.Errorf("build %d cannot be satisfied from %s", build, args[0])
			}
			if !checkWait {
				return fmt.Errorf("downloads in flight for build %d; re-run with --wait to block", build)
			}
			snap = waitForDeploy(checker, dep)
			if snap == nil {
				errorf("a download for build %d failed; the log names the artifact", build)
				pool.Close()
				return fmt.Errorf("build %d cannot be satisfied from %s", build, args[0])
			}
		}

		info("build %d ready to deploy (%d dependencies)", snap.Build, len(snap.Deps))
		for _, d := range snap.Deps {
			info("  %s", d.Target)
			if d.InUse != "" && d.InUse != d.Target {
				detail("replaces %s", d.InUse)
			}
		}
		if snap.MustRewriteLauncher {
			info("launcher conf must be rewritten before the next start")
		}
		return pool.Close()
	},
}

// waitForDeploy blocks until the outstanding downloads settle, one way
// or the other.
func waitForDeploy(checker *gate.Checker, dep *gateDeployer) *gate.Snapshot {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case snap := <-dep.deployed:
			return snap
		case <-ticker.C:
			if checker.IsBroken() {
				return nil
			}
		}
	}
}

func init() {
	checkCmd.Flags().BoolVar(&checkWait, "wait", false, "block until outstanding downloads finish")
	checkCmd.Flags().BoolVar(&checkNoFetch, "no-fetch", false, "resolve locally only, never download")
	rootCmd.AddCommand(checkCmd)
}
