package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
store:
  base_url: "https://example.supabase.co"
  api_key: "test-key"
  timeout_seconds: 45

queue:
  batch_queue_url: "https://sqs.us-east-1.amazonaws.com/1/batches"
  wait_time_seconds: 10
  visibility_seconds: 300
  max_messages: 10

scheduler:
  rule_name: "collection-wakeup"
  lease_ttl_seconds: 300
  safety_wakeup_minutes: 60

provider:
  name: "brevo"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "https://example.supabase.co", cfg.Store.BaseURL)
	assert.Equal(t, 45, cfg.Store.TimeoutSeconds)
	assert.Equal(t, int32(10), cfg.Queue.WaitTimeSeconds)
	assert.Equal(t, "brevo", cfg.Provider.Name)
	// defaults fill in unset fields
	assert.Equal(t, 3, cfg.Store.MaxRetries)
	assert.Equal(t, "us-east-1", cfg.SES.Region)
	assert.Equal(t, "apex-collection-tracking", cfg.SES.ConfigurationSet)
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("store:\n  base_url: x\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.Store.TimeoutSeconds)
	assert.Equal(t, int32(5), cfg.Queue.WaitTimeSeconds)
	assert.Equal(t, int32(300), cfg.Queue.VisibilitySecs)
	assert.Equal(t, "ses", cfg.Provider.Name)
	assert.Equal(t, 300, cfg.Scheduler.LeaseTTLSeconds)
}

func TestConfigIsDev(t *testing.T) {
	cfg := Config{Env: "dev"}
	assert.True(t, cfg.IsDev())
	cfg.Env = "production"
	assert.False(t, cfg.IsDev())
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_SECRET_KEY", "env-secret")
	t.Setenv("EMAIL_PROVIDER", "brevo")
	t.Setenv("APP_ENV", "dev")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.supabase.co", cfg.Store.BaseURL)
	assert.Equal(t, "env-secret", cfg.Store.APIKey)
	assert.Equal(t, "brevo", cfg.Provider.Name)
	assert.True(t, cfg.IsDev())
}
