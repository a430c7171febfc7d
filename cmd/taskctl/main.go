// Command taskctl supervises a durable, crash-safe task queue driven by an
// external code-generating agent: one process, one Task.json, one worker
// spawned per claimed task.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"taskctl/internal/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	root := cli.NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
