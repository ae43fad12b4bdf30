package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/internal/watch"
)

const serviceName = "dispatchwait"

// NewRunCmd creates the run command.
func NewRunCmd(version string) *cobra.Command {
	var flags sharedFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch a workflow and wait for the runs it starts",
		Long: `run fires a workflow_dispatch event, identifies the runs it created by
comparing run listings taken before and after the dispatch, and polls each
run until it completes. The exit status reflects the run conclusions unless
--propagate-failure=false.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDispatch(cmd, &flags, version)
		},
	}
	flags.register(cmd)
	return cmd
}

func runDispatch(cmd *cobra.Command, flags *sharedFlags, version string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger, err := newLogger(cmd.ErrOrStderr(), flags.logFormat, flags.verbose)
	if err != nil {
		return err
	}

	cfg, err := flags.loadConfig(ctx, cmd)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	shutdown, err := telemetry.Setup(ctx, serviceName, logger)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	runner, err := watch.FromConfig(ctx, cfg, watch.Env{
		Stdout:    cmd.OutOrStdout(),
		Logger:    logger,
		Metrics:   metrics,
		UserAgent: serviceName + "/" + version,
	})
	if err != nil {
		return err
	}

	logger.Info("starting",
		"repository", cfg.Owner+"/"+cfg.Repo,
		"workflow", cfg.WorkflowFile,
		"ref", cfg.Ref,
		"trigger", cfg.TriggerWorkflow,
		"wait", cfg.WaitWorkflow)

	out, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("all runs finished", "runs", len(out.RunIDs), "ok", out.OK)
	return nil
}
