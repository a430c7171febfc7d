package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"taskctl/internal/gate"
	"taskctl/internal/intake"
	"taskctl/internal/progresslog"
	"taskctl/internal/task"
)

func newIntakeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "intake",
		Short: "Process requirement packets in inbox/ into Task.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := cwd()
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig(dir)
			if err != nil {
				return err
			}

			inboxDir := filepath.Join(dir, cfg.InboxDir)
			paths, err := intake.ScanInbox(inboxDir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Println(yellow("no requirement packets pending in " + cfg.InboxDir))
				return nil
			}

			st := openStore(dir)
			log, err := progresslog.New(filepath.Join(dir, cfg.ProgressFile))
			if err != nil {
				return err
			}
			g := gate.New(dir, cfg.VerifyCommand)
			pipeline := intake.New(dir, filepath.Join(dir, cfg.ClaudeMDPath), st, log, g)

			for _, path := range paths {
				runID := task.GenerateRunID(time.Now().UTC())
				result := pipeline.ProcessPacket(runID, path)
				switch result.Status {
				case "completed":
					fmt.Println(green(fmt.Sprintf("%s: added %v (commit %s)", result.ReqID, result.TasksAdded, result.Git.Commit)))
				case "blocked":
					fmt.Println(yellow(fmt.Sprintf("%s: blocked — %s", result.ReqID, result.Error)))
				default:
					fmt.Println(red(fmt.Sprintf("%s: %s", path, result.Error)))
				}
			}
			return nil
		},
	}
}
