// Package commands implements the CLI subcommands for the dispatchwait binary.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dwsmith1983/dispatchwait/internal/config"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// sharedFlags are the options accepted by every subcommand that loads a
// configuration.
type sharedFlags struct {
	configPath string
	logFormat  string
	verbose    bool

	owner            string
	repo             string
	workflow         string
	ref              string
	payload          string
	actor            string
	correlationInput string
	waitInterval     time.Duration
	pollTimeout      time.Duration
	trigger          bool
	wait             bool
	propagate        bool
	parallel         bool
}

func (f *sharedFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "YAML configuration file")
	fl.StringVar(&f.logFormat, "log-format", "text", "log format: text or json")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "enable debug logging")

	fl.StringVar(&f.owner, "owner", "", "repository owner")
	fl.StringVar(&f.repo, "repo", "", "repository name")
	fl.StringVarP(&f.workflow, "workflow", "w", "", "workflow file name, e.g. deploy.yml")
	fl.StringVar(&f.ref, "ref", "", "git ref to run the workflow on")
	fl.StringVar(&f.payload, "payload", "", "workflow inputs as a JSON object")
	fl.StringVar(&f.actor, "github-user", "", "only consider runs triggered by this user")
	fl.StringVar(&f.correlationInput, "correlation-input", "", "workflow input that receives a correlation token")
	fl.DurationVar(&f.waitInterval, "wait-interval", 0, "initial delay between polls")
	fl.DurationVar(&f.pollTimeout, "poll-timeout", 0, "give up waiting after this long")
	fl.BoolVar(&f.trigger, "trigger", true, "dispatch the workflow")
	fl.BoolVar(&f.wait, "wait", true, "wait for the dispatched runs to finish")
	fl.BoolVar(&f.propagate, "propagate-failure", true, "fail when a run does not succeed")
	fl.BoolVar(&f.parallel, "parallel", false, "wait for several runs concurrently")
}

// apply overlays flags the user actually set onto cfg.
func (f *sharedFlags) apply(cmd *cobra.Command, cfg *types.Config) error {
	changed := cmd.Flags().Changed
	set := func(name, v string, dst *string) {
		if changed(name) {
			*dst = v
		}
	}
	set("owner", f.owner, &cfg.Owner)
	set("repo", f.repo, &cfg.Repo)
	set("workflow", f.workflow, &cfg.WorkflowFile)
	set("ref", f.ref, &cfg.Ref)
	set("github-user", f.actor, &cfg.Actor)
	set("correlation-input", f.correlationInput, &cfg.CorrelationInput)

	if changed("payload") {
		payload, err := config.ParsePayload(f.payload)
		if err != nil {
			return err
		}
		cfg.ClientPayload = payload
	}
	if changed("wait-interval") {
		cfg.WaitInterval = f.waitInterval
		if cfg.MaxWaitInterval < cfg.WaitInterval {
			cfg.MaxWaitInterval = cfg.WaitInterval
		}
	}
	if changed("poll-timeout") {
		cfg.PollTimeout = f.pollTimeout
	}
	if changed("trigger") {
		cfg.TriggerWorkflow = f.trigger
	}
	if changed("wait") {
		cfg.WaitWorkflow = f.wait
	}
	if changed("propagate-failure") {
		cfg.PropagateFailure = f.propagate
	}
	if changed("parallel") {
		cfg.ParallelWait = f.parallel
	}
	return nil
}

// loadConfig layers file, environment and flags, resolves secret references
// and validates the result.
func (f *sharedFlags) loadConfig(ctx context.Context, cmd *cobra.Command) (*types.Config, error) {
	cfg, err := config.Load(f.configPath, nil)
	if err != nil {
		return nil, err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return nil, err
	}
	if err := config.ResolveSecrets(ctx, cfg, nil); err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, format string, verbose bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if verbose || os.Getenv("RUNNER_DEBUG") == "1" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// redacted is the printable form of a Config, without credentials.
func redacted(cfg *types.Config) ([]byte, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}
