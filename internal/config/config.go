// Package config builds the dispatchwait configuration from defaults, an
// optional YAML file and GitHub Actions style INPUT_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwsmith1983/dispatchwait/internal/ghapi"
	"github.com/dwsmith1983/dispatchwait/internal/runid"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
)

// ValidationError names the option that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Default returns a Config with every optional field at its default.
func Default() *types.Config {
	return &types.Config{
		APIURL:              ghapi.DefaultAPIURL,
		Ref:                 types.DefaultRef,
		ClientPayload:       map[string]interface{}{},
		WaitInterval:        10 * time.Second,
		MaxWaitInterval:     2 * time.Minute,
		SinceSkew:           runid.DefaultSkew,
		PollTimeout:         6 * time.Hour,
		DiscoveryTimeout:    5 * time.Minute,
		MaxTransientRetries: 10,
		TriggerWorkflow:     true,
		WaitWorkflow:        true,
		PropagateFailure:    true,
	}
}

// Load layers defaults, the YAML file at path (skipped when path is empty)
// and the environment. It does not validate; call Validate once every
// source, including flags, has been applied.
func Load(path string, lookup LookupFunc) (*types.Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays INPUT_* variables (and GITHUB_API_URL) onto cfg.
func ApplyEnv(cfg *types.Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("GITHUB_API_URL", &cfg.APIURL)
	str("INPUT_OWNER", &cfg.Owner)
	str("INPUT_REPO", &cfg.Repo)
	str("INPUT_WORKFLOW_FILE_NAME", &cfg.WorkflowFile)
	str("INPUT_GITHUB_TOKEN", &cfg.GitHubToken)
	str("INPUT_GITHUB_USER", &cfg.Actor)
	str("INPUT_REF", &cfg.Ref)
	str("INPUT_CORRELATION_INPUT", &cfg.CorrelationInput)
	str("INPUT_COMMENT_DOWNSTREAM_URL", &cfg.CommentDownstreamURL)
	str("INPUT_COMMENT_GITHUB_TOKEN", &cfg.CommentGitHubToken)
	str("INPUT_EVENTBRIDGE_BUS", &cfg.EventBridgeBus)

	if v, ok := lookup("INPUT_CLIENT_PAYLOAD"); ok && strings.TrimSpace(v) != "" {
		payload, err := ParsePayload(v)
		if err != nil {
			return err
		}
		cfg.ClientPayload = payload
	}

	durations := []struct {
		key   string
		field string
		dst   *time.Duration
	}{
		{"INPUT_WAIT_INTERVAL", "wait_interval", &cfg.WaitInterval},
		{"INPUT_MAX_WAIT_INTERVAL", "max_wait_interval", &cfg.MaxWaitInterval},
		{"INPUT_SINCE_SKEW", "since_skew", &cfg.SinceSkew},
		{"INPUT_POLL_TIMEOUT", "poll_timeout", &cfg.PollTimeout},
		{"INPUT_DISCOVERY_TIMEOUT", "discovery_timeout", &cfg.DiscoveryTimeout},
	}
	for _, d := range durations {
		if v, ok := lookup(d.key); ok && v != "" {
			parsed, err := ParseDuration(v)
			if err != nil {
				return &ValidationError{Field: d.field, Reason: err.Error()}
			}
			*d.dst = parsed
		}
	}

	if v, ok := lookup("INPUT_MAX_TRANSIENT_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: "max_transient_retries", Reason: "must be an integer"}
		}
		cfg.MaxTransientRetries = n
	}

	bools := []struct {
		key   string
		field string
		dst   *bool
	}{
		{"INPUT_TRIGGER_WORKFLOW", "trigger_workflow", &cfg.TriggerWorkflow},
		{"INPUT_WAIT_WORKFLOW", "wait_workflow", &cfg.WaitWorkflow},
		{"INPUT_PROPAGATE_FAILURE", "propagate_failure", &cfg.PropagateFailure},
		{"INPUT_PARALLEL_WAIT", "parallel_wait", &cfg.ParallelWait},
	}
	for _, b := range bools {
		if v, ok := lookup(b.key); ok && v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return &ValidationError{Field: b.field, Reason: "must be true or false"}
			}
			*b.dst = parsed
		}
	}
	return nil
}

// ParsePayload decodes a JSON object used as dispatch inputs.
func ParsePayload(raw string) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, &ValidationError{Field: "client_payload", Reason: "must be a JSON object: " + err.Error()}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return payload, nil
}

// ParseDuration accepts a Go duration ("90s") or a bare number of seconds.
func ParseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("must be a duration or a number of seconds")
	}
	return d, nil
}

// Validate checks required fields and bounds. It must run before any
// network call.
func Validate(cfg *types.Config) error {
	required := []struct {
		field string
		value string
	}{
		{"owner", cfg.Owner},
		{"repo", cfg.Repo},
		{"workflow_file_name", cfg.WorkflowFile},
		{"github_token", cfg.GitHubToken},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	if cfg.WaitInterval <= 0 {
		return &ValidationError{Field: "wait_interval", Reason: "must be positive"}
	}
	if cfg.MaxWaitInterval < cfg.WaitInterval {
		return &ValidationError{Field: "max_wait_interval", Reason: "must not be below wait_interval"}
	}
	if cfg.SinceSkew < 0 {
		return &ValidationError{Field: "since_skew", Reason: "must not be negative"}
	}
	if cfg.PollTimeout < 0 || cfg.DiscoveryTimeout < 0 {
		return &ValidationError{Field: "poll_timeout", Reason: "timeouts must not be negative"}
	}
	if cfg.MaxTransientRetries < 0 {
		return &ValidationError{Field: "max_transient_retries", Reason: "must not be negative"}
	}
	if cfg.Ref == "" {
		cfg.Ref = types.DefaultRef
	}
	if cfg.ClientPayload == nil {
		cfg.ClientPayload = map[string]interface{}{}
	}
	return nil
}
