package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bianoble/update-gate/internal/manifest"
	"github.com/bianoble/update-gate/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <manifest> <build>",
	Short: "Audit the running build's dependencies at startup",
	Long: `Checks every dependency of the manifest the running build was started
from: verified in-use archives are registered for re-serving, missing
ones are preloaded in the background, and stale staged copies are
purged from the workdir.
Exit 0 when every entry was usable.`,
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

		pool := newPool(cfg)
		pass := &reconcile.Pass{
			Deployer: newGateDeployer(pool, false),
			Env:      newWorkspace(cfg),
			Root:     cfg.Workdir,
			Log:      log,
		}

		ok := pass.Run(doc, build)
		closeErr := pool.Close()
		if !ok {
			return fmt.Errorf("build %d has dependencies this node cannot serve", build)
		}
		info("build %d reconciled", build)
		return closeErr
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
