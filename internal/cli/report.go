package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"taskctl/internal/report"
)

func newReportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Regenerate status.md from the current store and archive directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cwd()
			if err != nil {
				return err
			}
			cfg, ts, err := loadConfig(dir)
			if err != nil {
				return err
			}
			runsDir := filepath.Join(dir, cfg.RunsDir)
			statusPath := filepath.Join(dir, cfg.StatusFile)
			if err := report.Write(ts, runsDir, statusPath); err != nil {
				return err
			}
			fmt.Println(green(fmt.Sprintf("wrote %s", cfg.StatusFile)))
			return nil
		},
	}
}
