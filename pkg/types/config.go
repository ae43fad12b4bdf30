package types

import "time"

// Config holds every option recognised by dispatchwait. It is built once at
// startup and shared read-only by pointer.
type Config struct {
	Owner        string `yaml:"owner" json:"owner"`
	Repo         string `yaml:"repo" json:"repo"`
	WorkflowFile string `yaml:"workflow_file_name" json:"workflowFileName"`
	GitHubToken  string `yaml:"github_token" json:"-"`
	Actor        string `yaml:"github_user,omitempty" json:"githubUser,omitempty"`
	APIURL       string `yaml:"api_url,omitempty" json:"apiUrl,omitempty"`

	Ref           string                 `yaml:"ref,omitempty" json:"ref,omitempty"`
	ClientPayload map[string]interface{} `yaml:"client_payload,omitempty" json:"clientPayload,omitempty"`

	WaitInterval        time.Duration `yaml:"wait_interval,omitempty" json:"waitInterval,omitempty"`
	MaxWaitInterval     time.Duration `yaml:"max_wait_interval,omitempty" json:"maxWaitInterval,omitempty"`
	SinceSkew           time.Duration `yaml:"since_skew,omitempty" json:"sinceSkew,omitempty"`
	PollTimeout         time.Duration `yaml:"poll_timeout,omitempty" json:"pollTimeout,omitempty"`
	DiscoveryTimeout    time.Duration `yaml:"discovery_timeout,omitempty" json:"discoveryTimeout,omitempty"`
	MaxTransientRetries int           `yaml:"max_transient_retries,omitempty" json:"maxTransientRetries,omitempty"`

	TriggerWorkflow  bool `yaml:"trigger_workflow" json:"triggerWorkflow"`
	WaitWorkflow     bool `yaml:"wait_workflow" json:"waitWorkflow"`
	PropagateFailure bool `yaml:"propagate_failure" json:"propagateFailure"`
	ParallelWait     bool `yaml:"parallel_wait,omitempty" json:"parallelWait,omitempty"`

	CorrelationInput string `yaml:"correlation_input,omitempty" json:"correlationInput,omitempty"`

	CommentDownstreamURL string `yaml:"comment_downstream_url,omitempty" json:"commentDownstreamUrl,omitempty"`
	CommentGitHubToken   string `yaml:"comment_github_token,omitempty" json:"-"`

	EventBridgeBus string `yaml:"eventbridge_bus,omitempty" json:"eventBridgeBus,omitempty"`
}

// SecondaryToken returns the token for notification and pull request calls,
// falling back to the primary token.
func (c *Config) SecondaryToken() string {
	if c.CommentGitHubToken != "" {
		return c.CommentGitHubToken
	}
	return c.GitHubToken
}
