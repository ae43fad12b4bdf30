package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/dwsmith1983/dispatchwait/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func requiredEnv() map[string]string {
	return map[string]string{
		"INPUT_OWNER":              "acme",
		"INPUT_REPO":               "widgets",
		"INPUT_WORKFLOW_FILE_NAME": "deploy.yml",
		"INPUT_GITHUB_TOKEN":       "tok",
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", envMap(requiredEnv()))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "main", cfg.Ref)
	assert.Equal(t, map[string]interface{}{}, cfg.ClientPayload)
	assert.Equal(t, 10*time.Second, cfg.WaitInterval)
	assert.Equal(t, 2*time.Minute, cfg.SinceSkew)
	assert.True(t, cfg.TriggerWorkflow)
	assert.True(t, cfg.WaitWorkflow)
	assert.True(t, cfg.PropagateFailure)
	assert.False(t, cfg.ParallelWait)
	assert.Equal(t, "https://api.github.com", cfg.APIURL)
}

func TestLoad_EnvOverrides(t *testing.T) {
	env := requiredEnv()
	env["INPUT_REF"] = "release"
	env["INPUT_CLIENT_PAYLOAD"] = `{"env":"prod"}`
	env["INPUT_WAIT_INTERVAL"] = "30"
	env["INPUT_POLL_TIMEOUT"] = "45m"
	env["INPUT_PROPAGATE_FAILURE"] = "false"
	env["INPUT_TRIGGER_WORKFLOW"] = "false"
	env["INPUT_GITHUB_USER"] = "octocat"
	env["GITHUB_API_URL"] = "https://ghe.example.com/api/v3"

	cfg, err := Load("", envMap(env))
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Ref)
	assert.Equal(t, map[string]interface{}{"env": "prod"}, cfg.ClientPayload)
	assert.Equal(t, 30*time.Second, cfg.WaitInterval)
	assert.Equal(t, 45*time.Minute, cfg.PollTimeout)
	assert.False(t, cfg.PropagateFailure)
	assert.False(t, cfg.TriggerWorkflow)
	assert.Equal(t, "octocat", cfg.Actor)
	assert.Equal(t, "https://ghe.example.com/api/v3", cfg.APIURL)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatchwait.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
owner: acme
repo: widgets
workflow_file_name: ci.yml
github_token: from-file
wait_interval: 5s
wait_workflow: false
client_payload:
  env: staging
  replicas: 2
`), 0o644))

	cfg, err := Load(path, envMap(map[string]string{"INPUT_GITHUB_TOKEN": "from-env"}))
	require.NoError(t, err)
	require.NoError(t, Validate(cfg))
	assert.Equal(t, "ci.yml", cfg.WorkflowFile)
	assert.Equal(t, "from-env", cfg.GitHubToken)
	assert.Equal(t, 5*time.Second, cfg.WaitInterval)
	assert.False(t, cfg.WaitWorkflow)
	assert.True(t, cfg.TriggerWorkflow)
	assert.Equal(t, "staging", cfg.ClientPayload["env"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	assert.Error(t, err)
}

func TestLoad_InvalidPayload(t *testing.T) {
	env := requiredEnv()
	env["INPUT_CLIENT_PAYLOAD"] = `["not","an","object"]`

	_, err := Load("", envMap(env))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "client_payload", verr.Field)
}

func TestLoad_InvalidBool(t *testing.T) {
	env := requiredEnv()
	env["INPUT_WAIT_WORKFLOW"] = "maybe"

	_, err := Load("", envMap(env))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "wait_workflow", verr.Field)
}

func TestValidate_NamesMissingField(t *testing.T) {
	for _, field := range []string{"INPUT_OWNER", "INPUT_REPO", "INPUT_WORKFLOW_FILE_NAME", "INPUT_GITHUB_TOKEN"} {
		t.Run(field, func(t *testing.T) {
			env := requiredEnv()
			delete(env, field)
			cfg, err := Load("", envMap(env))
			require.NoError(t, err)

			err = Validate(cfg)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, err.Error(), "is required")
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	cfg, err := Load("", envMap(requiredEnv()))
	require.NoError(t, err)
	cfg.MaxWaitInterval = time.Second
	assert.Error(t, Validate(cfg))
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("10")
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)

	d, err = ParseDuration("1m30s")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	_, err = ParseDuration("soon")
	assert.Error(t, err)
}

type mockSecrets struct {
	values map[string]string
	calls  int
}

func (m *mockSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	v, ok := m.values[*in.SecretId]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestResolveSecrets(t *testing.T) {
	mock := &mockSecrets{values: map[string]string{"ci/gh-token": "ghp_resolved\n"}}
	cfg := &types.Config{GitHubToken: "secretsmanager:ci/gh-token", CommentGitHubToken: "plain"}

	require.NoError(t, ResolveSecrets(context.Background(), cfg, mock))
	assert.Equal(t, "ghp_resolved", cfg.GitHubToken)
	assert.Equal(t, "plain", cfg.CommentGitHubToken)
	assert.Equal(t, 1, mock.calls)
}

func TestResolveSecrets_NoReferencesNoClient(t *testing.T) {
	cfg := &types.Config{GitHubToken: "tok"}
	assert.NoError(t, ResolveSecrets(context.Background(), cfg, nil))
}

func TestResolveSecrets_Missing(t *testing.T) {
	mock := &mockSecrets{}
	cfg := &types.Config{GitHubToken: "secretsmanager:missing"}
	assert.Error(t, ResolveSecrets(context.Background(), cfg, mock))
}
