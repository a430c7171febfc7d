package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"taskctl/internal/progresslog"
	"taskctl/internal/supervisor"
)

func newCleanupCommand() *cobra.Command {
	var retentionDays, maxRunsMB int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete archived runs past retention_days or over max_runs_mb",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cwd()
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(dir)
			if err != nil {
				return err
			}
			if retentionDays <= 0 {
				retentionDays = cfg.RetentionDays
			}
			if maxRunsMB <= 0 {
				maxRunsMB = cfg.MaxRunsMB
			}

			st := openStore(dir)
			log, err := progresslog.New(filepath.Join(dir, cfg.ProgressFile))
			if err != nil {
				return err
			}
			sup := supervisor.New(dir, st, log, cfg)

			deleted, err := sup.Cleanup(retentionDays, maxRunsMB)
			if err != nil {
				return err
			}
			fmt.Println(green(fmt.Sprintf("cleanup complete: deleted %d archive(s)", deleted)))
			return nil
		},
	}

	cmd.Flags().IntVar(&retentionDays, "retention-days", 0, "override retention_days")
	cmd.Flags().IntVar(&maxRunsMB, "max-runs-mb", 0, "override max_runs_mb")
	return cmd
}
