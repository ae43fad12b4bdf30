// dispatch Lambda triggers a GitHub Actions workflow and waits for its runs.
package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awslambda "github.com/aws/aws-lambda-go/lambda"

	"github.com/dwsmith1983/dispatchwait/internal/config"
	intlambda "github.com/dwsmith1983/dispatchwait/internal/lambda"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/internal/watch"
)

var (
	deps     *intlambda.Deps
	depsOnce sync.Once
	depsErr  error
)

func getDeps() (*intlambda.Deps, error) {
	depsOnce.Do(func() {
		deps, depsErr = intlambda.Init(context.Background())
	})
	return deps, depsErr
}

// handleDispatch applies the event to the cold-start configuration and runs
// the dispatch-and-wait sequence. Workflow failures are reported in the
// response; only invalid configuration is returned as an error.
func handleDispatch(ctx context.Context, d *intlambda.Deps, ev intlambda.DispatchEvent) (intlambda.DispatchResponse, error) {
	cfg := ev.Apply(d.Config)
	if err := config.Validate(cfg); err != nil {
		return intlambda.DispatchResponse{}, err
	}

	runner, err := watch.FromConfig(ctx, cfg, watch.Env{
		Logger:    d.Logger,
		Metrics:   d.Metrics,
		UserAgent: "dispatchwait-lambda",
	})
	if err != nil {
		return intlambda.DispatchResponse{}, err
	}

	out, err := runner.Run(ctx)
	resp := intlambda.DispatchResponse{
		RunIDs:   out.RunIDs,
		Verdicts: out.Verdicts,
		Pulls:    out.Pulls,
		OK:       out.OK && err == nil,
	}
	if err != nil {
		d.Logger.Error("dispatch failed",
			"workflow", cfg.WorkflowFile,
			"ref", cfg.Ref,
			"error", err,
		)
		resp.Error = err.Error()
	}
	return resp, nil
}

func handler(ctx context.Context, ev intlambda.DispatchEvent) (intlambda.DispatchResponse, error) {
	d, err := getDeps()
	if err != nil {
		return intlambda.DispatchResponse{}, err
	}
	resp, err := handleDispatch(ctx, d, ev)
	if ferr := telemetry.Flush(ctx); ferr != nil {
		d.Logger.Warn("telemetry flush failed", "error", ferr)
	}
	return resp, err
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	awslambda.Start(handler)
}
