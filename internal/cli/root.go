package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"taskctl/internal/scheduler"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

type rootFlags struct {
	loop        bool
	count       int
	dryRun      bool
	workerCmd   string
	maxTurns    int
	timeoutSecs int
	leaseTTL    int
	cron        string
}

// NewRootCommand builds the taskctl command tree: a one-shot supervisor
// iteration by default, a --loop modifier that drives RunLoop, and
// status/reclaim/cleanup/report/intake/diagnose subcommands.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "taskctl",
		Short: "Supervisor for a durable, crash-safe task queue driven by a coding agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSupervise(cmd.Context(), flags)
		},
	}

	root.PersistentFlags().StringVar(&flags.workerCmd, "worker-command", "", "override the worker command")
	root.Flags().BoolVar(&flags.loop, "loop", false, "run until STOP, completion, a blocked task, or the circuit breaker opens")
	root.Flags().IntVar(&flags.count, "count", 0, "with --loop, stop after this many successful completions")
	root.Flags().BoolVar(&flags.dryRun, "dry-run", false, "print what would be claimed; make no changes")
	root.Flags().IntVar(&flags.maxTurns, "max-turns", 0, "override max_turns for this invocation")
	root.Flags().IntVar(&flags.timeoutSecs, "timeout", 0, "override the worker timeout in seconds")
	root.Flags().IntVar(&flags.leaseTTL, "lease-ttl", 0, "override lease_ttl_seconds for this invocation")
	root.Flags().StringVar(&flags.cron, "cron", "", "with --loop, run cleanup+report on this cron schedule alongside the loop")

	root.AddCommand(newStatusCommand())
	root.AddCommand(newReclaimCommand())
	root.AddCommand(newCleanupCommand())
	root.AddCommand(newReportCommand())
	root.AddCommand(newIntakeCommand())
	root.AddCommand(newDiagnoseCommand())

	return root
}

func runSupervise(ctx context.Context, flags *rootFlags) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}

	if flags.dryRun {
		return printDryRun(dir)
	}

	sup, err := newSupervisor(dir, flags)
	if err != nil {
		return err
	}

	if flags.loop {
		cronSchedule := flags.cron
		if cronSchedule == "" {
			cronSchedule = sup.Cfg.CronSchedule
		}
		housekeeping, err := sup.StartHousekeepingCron(cronSchedule)
		if err != nil {
			return err
		}
		if housekeeping != nil {
			defer housekeeping.Stop()
		}
		return sup.RunLoop(ctx, flags.count)
	}

	outcome, err := sup.RunOnce(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return err
	}
	fmt.Println(green(fmt.Sprintf("iteration finished: %s", outcome)))
	return nil
}

func printDryRun(dir string) error {
	_, ts, err := loadConfig(dir)
	if err != nil {
		return err
	}
	next, ok := scheduler.SelectNext(ts.Tasks, time.Now().UTC())
	if !ok {
		fmt.Println(yellow("no task would be claimed"))
		return nil
	}
	fmt.Printf("would claim: %s — %s\n", next.ID, next.Description)
	return nil
}
