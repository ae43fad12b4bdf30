package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dispatchwait/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "dispatchwait",
		Short: "Trigger a GitHub Actions workflow and wait for its runs",
		Long: `dispatchwait fires a workflow_dispatch event, works out which runs the
dispatch started and waits for each of them to complete, turning their
conclusions into its own exit status.`,
		Version:       version,
		SilenceErrors: true,
	}

	root.AddCommand(
		commands.NewRunCmd(version),
		commands.NewCheckCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
