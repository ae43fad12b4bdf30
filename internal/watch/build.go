package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/notify"
	"github.com/dwsmith1983/dispatchwait/internal/report"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Env carries the process-level collaborators used by FromConfig.
type Env struct {
	Stdout    io.Writer
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
	UserAgent string

	// EventBridge overrides the EventBridge client; nil loads the default
	// AWS configuration when eventbridge_bus is set.
	EventBridge notify.EventBridgeAPI
}

// FromConfig builds a Runner with the GitHub clients and notification sinks
// described by cfg. The primary token drives workflow calls, the secondary
// token drives pull request listing and the downstream webhook.
func FromConfig(ctx context.Context, cfg *types.Config, env Env) (*Runner, error) {
	logger := env.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ua := env.UserAgent
	if ua == "" {
		ua = "dispatchwait"
	}

	primary := ghapi.New(cfg.APIURL, cfg.Owner, cfg.Repo, cfg.GitHubToken, ghapi.WithUserAgent(ua))
	secondary := ghapi.New(cfg.APIURL, cfg.Owner, cfg.Repo, cfg.SecondaryToken(), ghapi.WithUserAgent(ua))

	opts := []Option{
		WithPullsAPI(secondary),
		WithLogger(logger),
		WithMetrics(env.Metrics),
	}
	if env.Stdout != nil {
		opts = append(opts, WithOutput(report.NewOutput(env.Stdout)))
	}

	notifier := notify.NewDispatcher(cfg.Owner+"/"+cfg.Repo, cfg.WorkflowFile,
		notify.WithLogger(logger), notify.WithMetrics(env.Metrics))
	if cfg.CommentDownstreamURL != "" {
		notifier.AddSink(notify.NewWebhookSink(cfg.CommentDownstreamURL, cfg.SecondaryToken()))
	}
	if cfg.EventBridgeBus != "" {
		var ebOpts []notify.EventBridgeSinkOption
		if env.EventBridge != nil {
			ebOpts = append(ebOpts, notify.WithEventBridgeClient(env.EventBridge))
		}
		sink, err := notify.NewEventBridgeSink(ctx, cfg.EventBridgeBus, ebOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating eventbridge sink: %w", err)
		}
		notifier.AddSink(sink)
	}
	if notifier.Len() > 0 {
		opts = append(opts, WithNotifier(notifier))
	}

	return New(cfg, primary, opts...), nil
}
