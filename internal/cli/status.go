package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskctl/internal/report"
	"taskctl/internal/scheduler"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print task counts by status and the next eligible task",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cwd()
			if err != nil {
				return err
			}
			_, ts, err := loadConfig(dir)
			if err != nil {
				return err
			}
			next, ok := scheduler.SelectNext(ts.Tasks, time.Now().UTC())
			nextID := ""
			if ok {
				nextID = next.ID
			}
			fmt.Print(report.Summary(ts, nextID))
			return nil
		},
	}
}
