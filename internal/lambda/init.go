package lambda

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"

	"github.com/dwsmith1983/dispatchwait/internal/config"
	"github.com/dwsmith1983/dispatchwait/internal/telemetry"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// Deps holds shared dependencies for the Lambda handler.
type Deps struct {
	Config  *types.Config
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Init creates shared dependencies from the environment.
// Reads: CONFIG_PATH, the INPUT_* variables and GITHUB_API_URL.
// Secret references in token values are resolved once here.
func Init(ctx context.Context) (*Deps, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(envOrDefault("CONFIG_PATH", ""), nil)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("INPUT_GITHUB_TOKEN environment variable required")
	}
	if err := config.ResolveSecrets(ctx, cfg, nil); err != nil {
		return nil, err
	}

	// Providers live for the life of the execution environment; the handler
	// flushes them after each invocation.
	if _, err := telemetry.Setup(ctx, "dispatchwait-lambda", logger); err != nil {
		logger.Warn("telemetry disabled", "error", err)
	}
	metrics, err := telemetry.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	}

	return &Deps{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
