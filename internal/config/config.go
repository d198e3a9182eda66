// Package config loads the dispatch worker's runtime configuration from a
// YAML file with environment-variable overrides layered on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the dispatch worker and its sibling
// delivery-event handler.
type Config struct {
	Store       StoreConfig       `yaml:"store"`
	Queue       QueueConfig       `yaml:"queue"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Provider    ProviderConfig    `yaml:"provider"`
	SES         SESConfig         `yaml:"ses"`
	Brevo       BrevoConfig       `yaml:"brevo"`
	Cache       CacheConfig       `yaml:"cache"`
	Env         string            `yaml:"env"`
	EventServer EventServerConfig `yaml:"event_server"`
}

// StoreConfig holds the PostgREST-style store gateway's connection details.
type StoreConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Timeout returns the configured store RPC timeout.
func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// QueueConfig holds the batch-message queue's connection details.
type QueueConfig struct {
	BatchQueueURL    string `yaml:"batch_queue_url"`
	TrackingQueueURL string `yaml:"tracking_queue_url"`
	WaitTimeSeconds  int32  `yaml:"wait_time_seconds"`
	VisibilitySecs   int32  `yaml:"visibility_seconds"`
	MaxMessages      int32  `yaml:"max_messages"`
}

// SchedulerConfig holds the wake-up timer's EventBridge Scheduler wiring.
type SchedulerConfig struct {
	RuleName         string `yaml:"rule_name"`
	WorkerLambdaARN  string `yaml:"worker_lambda_arn"`
	SchedulerRoleARN string `yaml:"scheduler_role_arn"`
	LeaseTTLSeconds  int    `yaml:"lease_ttl_seconds"`
	SafetyWakeupMins int    `yaml:"safety_wakeup_minutes"`
}

// LeaseTTL returns the scheduler lock TTL as a duration.
func (c SchedulerConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// SafetyWakeup returns the fallback wake-up delay as a duration.
func (c SchedulerConfig) SafetyWakeup() time.Duration {
	return time.Duration(c.SafetyWakeupMins) * time.Minute
}

// ProviderConfig selects and configures the email provider adapter.
type ProviderConfig struct {
	Name        string `yaml:"name"` // "ses" (default) | "brevo"
	TrackingURL string `yaml:"tracking_url"`
	FromAddress string `yaml:"from_address"`
}

// SESConfig holds AWS SES v2 send configuration.
type SESConfig struct {
	Region           string `yaml:"region"`
	ConfigurationSet string `yaml:"configuration_set"`
}

// BrevoConfig holds Brevo transactional API configuration.
type BrevoConfig struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// CacheConfig holds the template-cache backend configuration.
type CacheConfig struct {
	RedisAddr  string `yaml:"redis_addr"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

// TTL returns the cache entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// EventServerConfig holds the delivery-event reconciler's HTTP listener
// configuration (used only by cmd/eventhandler in SNS-HTTPS mode).
type EventServerConfig struct {
	Port int `yaml:"port"`
}

// IsDev reports whether the worker is running in development mode, which
// enables the inter-recipient send throttle.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}

// Load reads and parses the configuration file, applying defaults for any
// unset field.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.TimeoutSeconds == 0 {
		cfg.Store.TimeoutSeconds = 30
	}
	if cfg.Store.MaxRetries == 0 {
		cfg.Store.MaxRetries = 3
	}
	if cfg.Queue.WaitTimeSeconds == 0 {
		cfg.Queue.WaitTimeSeconds = 5
	}
	if cfg.Queue.VisibilitySecs == 0 {
		cfg.Queue.VisibilitySecs = 300
	}
	if cfg.Queue.MaxMessages == 0 {
		cfg.Queue.MaxMessages = 10
	}
	if cfg.Scheduler.LeaseTTLSeconds == 0 {
		cfg.Scheduler.LeaseTTLSeconds = 300
	}
	if cfg.Scheduler.SafetyWakeupMins == 0 {
		cfg.Scheduler.SafetyWakeupMins = 60
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "ses"
	}
	if cfg.Provider.TrackingURL == "" {
		cfg.Provider.TrackingURL = "https://apex.borls.com"
	}
	if cfg.Provider.FromAddress == "" {
		cfg.Provider.FromAddress = "notify@borls.com"
	}
	if cfg.SES.Region == "" {
		cfg.SES.Region = "us-east-1"
	}
	if cfg.SES.ConfigurationSet == "" {
		cfg.SES.ConfigurationSet = "apex-collection-tracking"
	}
	if cfg.Brevo.APIURL == "" {
		cfg.Brevo.APIURL = "https://api.brevo.com/v3/smtp/email"
	}
	if cfg.EventServer.Port == 0 {
		cfg.EventServer.Port = 8082
	}
}

// LoadFromEnv loads configuration from an optional YAML file and layers
// environment-variable overrides on top, keeping secrets out of the
// checked-in config file. A .env file, if present, is loaded first so
// local development can rely on it.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		if loaded, err := Load(path); err == nil {
			cfg = *loaded
		}
	}
	applyDefaults(&cfg)

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := os.Getenv("SUPABASE_SECRET_KEY"); v != "" {
		cfg.Store.APIKey = v
	}
	if v := os.Getenv("SQS_BATCH_QUEUE_URL"); v != "" {
		cfg.Queue.BatchQueueURL = v
	}
	if v := os.Getenv("SQS_TRACKING_QUEUE_URL"); v != "" {
		cfg.Queue.TrackingQueueURL = v
	}
	if v := os.Getenv("LAMBDA_EMAIL_WORKER_ARN"); v != "" {
		cfg.Scheduler.WorkerLambdaARN = v
	}
	if v := os.Getenv("EVENTBRIDGE_RULE_NAME"); v != "" {
		cfg.Scheduler.RuleName = v
	}
	if v := os.Getenv("EVENTBRIDGE_SCHEDULER_ROLE_ARN"); v != "" {
		cfg.Scheduler.SchedulerRoleARN = v
	}
	if v := os.Getenv("EMAIL_PROVIDER"); v != "" {
		cfg.Provider.Name = v
	}
	if v := os.Getenv("TRACKING_URL"); v != "" {
		cfg.Provider.TrackingURL = v
	}
	if v := os.Getenv("FROM_EMAIL"); v != "" {
		cfg.Provider.FromAddress = v
	}
	if v := os.Getenv("SES_CONFIGURATION_SET"); v != "" {
		cfg.SES.ConfigurationSet = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.SES.Region = v
	}
	if v := os.Getenv("BREVO_API_KEY"); v != "" {
		cfg.Brevo.APIKey = v
	}
	if v := os.Getenv("BREVO_SMTP_API_URL"); v != "" {
		cfg.Brevo.APIURL = v
	}
	if v := os.Getenv("TEMPLATE_CACHE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}

	return &cfg, nil
}
