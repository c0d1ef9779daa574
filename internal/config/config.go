package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sapliy/staff-notify/pkg/secrets"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NOTIFY_HTTP_ADDR.
const EnvPrefix = "NOTIFY"

type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`
	Debug       bool   `mapstructure:"debug"`
	Timezone    string `mapstructure:"timezone"`
	PortalURL   string `mapstructure:"portal_url"`

	DatabaseURL string `mapstructure:"database_url"`
	RedisURL    string `mapstructure:"redis_url"`
	RabbitMQURL string `mapstructure:"rabbitmq_url"`

	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Resend    ResendConfig    `mapstructure:"resend"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	AWS       AWSConfig       `mapstructure:"aws"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type DirectoryConfig struct {
	URL      string        `mapstructure:"url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type ResendConfig struct {
	APIKey     string `mapstructure:"api_key"`
	From       string `mapstructure:"from"`
	RedirectTo string `mapstructure:"redirect_to"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type PolicyConfig struct {
	// Engine is "hardcoded" or "opa".
	Engine string `mapstructure:"engine"`
	// File optionally replaces the built-in Rego module.
	File string `mapstructure:"file"`
}

type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// AlertsConfig tunes the failed-delivery watcher.
type AlertsConfig struct {
	Group     string        `mapstructure:"group"`
	Queue     string        `mapstructure:"queue"`
	Window    time.Duration `mapstructure:"window"`
	Threshold int           `mapstructure:"threshold"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Environment string  `mapstructure:"environment"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type AWSConfig struct {
	Region   string `mapstructure:"region"`
	SecretID string `mapstructure:"secret_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("debug", false)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("portal_url", "http://localhost:3000")

	v.SetDefault("database_url", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("rabbitmq_url", "")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "notification-events")

	v.SetDefault("directory.url", "http://localhost:8081/employees")
	v.SetDefault("directory.timeout", 10*time.Second)
	v.SetDefault("directory.cache_ttl", 5*time.Minute)

	v.SetDefault("resend.api_key", "")
	v.SetDefault("resend.from", "onboarding@resend.dev")
	v.SetDefault("resend.redirect_to", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "staff-notify")

	v.SetDefault("policy.engine", "hardcoded")
	v.SetDefault("policy.file", "")

	v.SetDefault("scheduler.interval", 30*time.Second)

	v.SetDefault("alerts.group", "notify-alerts")
	v.SetDefault("alerts.queue", "notify_alerts")
	v.SetDefault("alerts.window", 10*time.Minute)
	v.SetDefault("alerts.threshold", 3)

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_ratio", 1.0)

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.secret_id", "")
}

// Load reads defaults, then the optional YAML file at path, then NOTIFY_*
// environment variables (nested keys use underscores, e.g. NOTIFY_JWT_SECRET).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	return &cfg, nil
}

// splitList accepts both YAML lists and a single comma-separated value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Location returns the configured timezone for calendar-day filtering.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate checks settings required by the API server.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt.secret is required"))
	}
	switch c.Policy.Engine {
	case "hardcoded", "opa":
	default:
		errs = append(errs, fmt.Errorf("unknown policy engine %q", c.Policy.Engine))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("invalid timezone: %w", err))
	}
	return errors.Join(errs...)
}

// secretKeys maps keys of the Secrets Manager JSON document to the settings
// they override.
var secretKeys = map[string]func(c *Config, v string){
	"database_url":   func(c *Config, v string) { c.DatabaseURL = v },
	"redis_url":      func(c *Config, v string) { c.RedisURL = v },
	"rabbitmq_url":   func(c *Config, v string) { c.RabbitMQURL = v },
	"resend_api_key": func(c *Config, v string) { c.Resend.APIKey = v },
	"jwt_secret":     func(c *Config, v string) { c.JWT.Secret = v },
}

// ApplySecrets overrides credentials with values from AWS Secrets Manager
// when aws.secret_id is set. Unknown keys are ignored.
func (c *Config) ApplySecrets(ctx context.Context, api secrets.API) error {
	if c.AWS.SecretID == "" {
		return nil
	}
	values, err := secrets.Fetch(ctx, api, c.AWS.SecretID)
	if err != nil {
		return err
	}
	for k, v := range values {
		if set, ok := secretKeys[k]; ok && v != "" {
			set(c, v)
		}
	}
	return nil
}
