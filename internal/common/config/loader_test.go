package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: crm
  redis:
    address: localhost:6379
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// ==========================
// Loading & Defaults
// ==========================

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "crm-assistant", cfg.App.Name)
	assert.Equal(t, 8080, cfg.App.HTTPPort)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 24*time.Hour, cfg.Conversation.TTL())
	assert.Equal(t, 10, cfg.Conversation.HistoryLimit)
	assert.Equal(t, 5, cfg.Conversation.MaxSuggestions)
	assert.Equal(t, "conv:ctx", cfg.Conversation.KeyPrefix)
	assert.Equal(t, "opportunities", cfg.Executor.SearchIndex)
	assert.Equal(t, 50, cfg.Executor.RowLimit)
	assert.Equal(t, 5000, cfg.Analytics.Timeout)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_ReadsConversationSection(t *testing.T) {
	body := minimalYAML + `
conversation:
  context_ttl: 600
  history_limit: 4
  store_timeout: 250
executor:
  routes:
    account_opportunities: sql
workers:
  process-message:
    enabled: true
    max_jobs_active: 20
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Conversation.TTL())
	assert.Equal(t, 4, cfg.Conversation.HistoryLimit)
	assert.Equal(t, 250*time.Millisecond, GetDuration(cfg.Conversation.StoreTimeout))
	assert.Equal(t, "sql", cfg.Executor.Routes["account_opportunities"])

	worker := GetWorkerConfig(cfg, "process-message")
	assert.Equal(t, 20, worker.MaxJobsActive)
	assert.Equal(t, 30000, worker.Timeout)
	assert.Equal(t, 3, worker.MaxRetries)
}

func TestLoadFromFile_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_BROKER", "zeebe:26500")
	t.Setenv("ZOHO_CRM_OAUTH_TOKEN", "token-from-env")

	body := `
camunda:
  broker_address: ${TEST_BROKER}
database:
  postgres:
    host: localhost
    database: crm
  redis:
    address: localhost:6379
`
	cfg, err := LoadFromFile(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, "zeebe:26500", cfg.Camunda.BrokerAddress)
	assert.Equal(t, "token-from-env", cfg.Integrations.Zoho.AuthToken)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

// ==========================
// Validation
// ==========================

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{
			name:    "unknown route backend",
			extra:   "executor:\n  routes:\n    pipeline_summary: graphql\n",
			wantErr: "unknown backend",
		},
		{
			name:    "search route without elasticsearch",
			extra:   "executor:\n  routes:\n    account_opportunities: search\n",
			wantErr: "elasticsearch.addresses is empty",
		},
		{
			name:    "sns analytics without topic",
			extra:   "analytics:\n  sns: true\n",
			wantErr: "topic_arn is required",
		},
		{
			name:    "email analytics without sender",
			extra:   "analytics:\n  email: true\n",
			wantErr: "from_email is required",
		},
		{
			name:    "sample ratio out of range",
			extra:   "tracing:\n  sample_ratio: 1.5\n",
			wantErr: "sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FEEDBACK_TOPIC_ARN", "")
			_, err := LoadFromFile(writeConfig(t, minimalYAML+tt.extra))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfig_RequiresBroker(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "database:\n  redis:\n    address: localhost:6379\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camunda.broker_address")
}

func TestIsWorkerEnabled(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{"reset-context": {Enabled: false}}}
	assert.False(t, IsWorkerEnabled(cfg, "reset-context"))
	assert.True(t, IsWorkerEnabled(cfg, "process-message"))
}
