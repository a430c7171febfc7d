package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"taskctl/internal/progresslog"
	"taskctl/internal/supervisor"
)

func newReclaimCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Run ReclaimExpired once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cwd()
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(dir)
			if err != nil {
				return err
			}
			st := openStore(dir)
			log, err := progresslog.New(filepath.Join(dir, cfg.ProgressFile))
			if err != nil {
				return err
			}
			sup := supervisor.New(dir, st, log, cfg)
			if err := sup.Reclaim(); err != nil {
				return err
			}
			fmt.Println(green("reclaim pass complete"))
			return nil
		},
	}
}
