package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"activeoi/internal/symbols"
)

// DefaultPath is the configuration file used when no -config flag is given.
const DefaultPath = "config/config.yml"

type Config struct {
	App       AppConfig        `yaml:"app"`
	Coinalyze CoinalyzeConfig  `yaml:"coinalyze"`
	Exchanges []ExchangeConfig `yaml:"exchanges"`
	Pipeline  PipelineConfig   `yaml:"pipeline"`
	Secret    SecretConfig     `yaml:"secret"`
	Storage   StorageConfig    `yaml:"storage"`
	Lock      LockConfig       `yaml:"lock"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Schedule  ScheduleConfig   `yaml:"schedule"`
	Logging   LoggingConfig    `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type CoinalyzeConfig struct {
	BaseURL              string          `yaml:"base_url"`
	Interval             string          `yaml:"interval"`
	Lookback             time.Duration   `yaml:"lookback"`
	ConvertToUSD         bool            `yaml:"convert_to_usd"`
	Timeout              time.Duration   `yaml:"timeout"`
	MaxSymbolsPerRequest int             `yaml:"max_symbols_per_request"`
	UserAgent            string          `yaml:"user_agent"`
	RateLimit            RateLimitConfig `yaml:"rate_limit"`
	Retry                RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

type RetryConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	BaseDelay         time.Duration `yaml:"base_delay"`
	MaxDelay          time.Duration `yaml:"max_delay"`
	BackoffMultiplier int           `yaml:"backoff_multiplier"`
}

type ExchangeConfig struct {
	Name      string   `yaml:"name"`
	Code      string   `yaml:"code"`
	Contracts []string `yaml:"contracts"`
}

type PipelineConfig struct {
	Window                int `yaml:"window"`
	DisplayUTCOffsetHours int `yaml:"display_utc_offset_hours"`
}

type SecretConfig struct {
	Source   string `yaml:"source"`
	EnvVar   string `yaml:"env_var"`
	SecretID string `yaml:"secret_id"`
	Region   string `yaml:"region"`
}

type StorageConfig struct {
	LocalDir    string   `yaml:"local_dir"`
	RawKey      string   `yaml:"raw_key"`
	DerivedKey  string   `yaml:"derived_key"`
	Compression string   `yaml:"compression"`
	S3          S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LockConfig struct {
	Redis RedisLockConfig `yaml:"redis"`
}

type RedisLockConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	CloudWatch  CloudWatchConfig  `yaml:"cloudwatch"`
	Pushgateway PushgatewayConfig `yaml:"pushgateway"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type PushgatewayConfig struct {
	URL string `yaml:"url"`
	Job string `yaml:"job"`
}

// ScheduleConfig switches the binary into a long-running scheduler when Cron is
// set. An empty expression means a single run.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func defaultExchanges() []ExchangeConfig {
	var out []ExchangeConfig
	for _, ex := range symbols.DefaultExchanges() {
		out = append(out, ExchangeConfig{Name: ex.Name, Code: ex.Code, Contracts: ex.Contracts})
	}
	return out
}

func defaultConfig() Config {
	return Config{
		App: AppConfig{Name: "activeoi", Version: "dev"},
		Coinalyze: CoinalyzeConfig{
			BaseURL:              "https://api.coinalyze.net/v1",
			Interval:             "5min",
			Lookback:             10 * 24 * time.Hour,
			ConvertToUSD:         true,
			Timeout:              30 * time.Second,
			MaxSymbolsPerRequest: 20,
			UserAgent:            "activeoi/1.0",
			RateLimit:            RateLimitConfig{RequestsPerMinute: 40, Burst: 1},
			Retry: RetryConfig{
				MaxAttempts:       4,
				BaseDelay:         time.Second,
				MaxDelay:          30 * time.Second,
				BackoffMultiplier: 2,
			},
		},
		Exchanges: defaultExchanges(),
		Pipeline:  PipelineConfig{Window: 864, DisplayUTCOffsetHours: 9},
		Secret:    SecretConfig{Source: "env", EnvVar: "COINALYZE_API_KEY"},
		Storage: StorageConfig{
			LocalDir:    "data",
			RawKey:      "coinalyze_oi_raw.parquet",
			DerivedKey:  "coinalyze_active_oi.parquet",
			Compression: "snappy",
		},
		Lock: LockConfig{Redis: RedisLockConfig{
			Addr: "localhost:6379",
			Key:  "activeoi:run-lock",
			TTL:  10 * time.Minute,
		}},
		Metrics: MetricsConfig{
			CloudWatch:  CloudWatchConfig{Namespace: "ActiveOI"},
			Pushgateway: PushgatewayConfig{Job: "activeoi"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)
	config.Storage.S3.Prefix = strings.Trim(strings.TrimSpace(config.Storage.S3.Prefix), "/")

	// Validate configuration
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv("COINALYZE_BASE_URL"); v != "" {
		config.Coinalyze.BaseURL = strings.TrimSpace(v)
	}

	if v := os.Getenv("AWS_REGION"); v != "" {
		region := strings.TrimSpace(v)
		config.Storage.S3.Region = region
		if config.Secret.Region == "" {
			config.Secret.Region = region
		}
		if config.Metrics.CloudWatch.Region == "" {
			config.Metrics.CloudWatch.Region = region
		}
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		config.Lock.Redis.Addr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		config.Lock.Redis.Password = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	c := cfg.Coinalyze
	if c.BaseURL == "" {
		return fmt.Errorf("coinalyze.base_url is required")
	}
	if c.Interval == "" {
		return fmt.Errorf("coinalyze.interval is required")
	}
	if c.Lookback <= 0 {
		return fmt.Errorf("coinalyze.lookback must be greater than 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("coinalyze.timeout must be greater than 0")
	}
	if c.MaxSymbolsPerRequest <= 0 {
		return fmt.Errorf("coinalyze.max_symbols_per_request must be greater than 0")
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("coinalyze.rate_limit.requests_per_minute must be greater than 0")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("coinalyze.retry.max_attempts must be greater than 0")
	}

	if _, err := symbols.NewRegistry(cfg.ExchangeTable()); err != nil {
		return fmt.Errorf("exchanges: %w", err)
	}

	if cfg.Pipeline.Window <= 1 {
		return fmt.Errorf("pipeline.window must be greater than 1")
	}
	if off := cfg.Pipeline.DisplayUTCOffsetHours; off < -12 || off > 14 {
		return fmt.Errorf("pipeline.display_utc_offset_hours %d is out of range", off)
	}

	switch cfg.Secret.Source {
	case "env":
		if cfg.Secret.EnvVar == "" {
			return fmt.Errorf("secret.env_var is required when secret.source is env")
		}
	case "aws":
		if cfg.Secret.SecretID == "" {
			return fmt.Errorf("secret.secret_id is required when secret.source is aws")
		}
	default:
		return fmt.Errorf("secret.source '%s' is invalid (env|aws)", cfg.Secret.Source)
	}

	if cfg.Storage.LocalDir == "" {
		return fmt.Errorf("storage.local_dir is required")
	}
	if cfg.Storage.RawKey == "" || cfg.Storage.DerivedKey == "" {
		return fmt.Errorf("storage.raw_key and storage.derived_key are required")
	}
	if cfg.Storage.RawKey == cfg.Storage.DerivedKey {
		return fmt.Errorf("storage.raw_key and storage.derived_key must differ")
	}
	switch strings.ToLower(cfg.Storage.Compression) {
	case "snappy", "gzip", "uncompressed", "none", "":
	default:
		return fmt.Errorf("storage.compression '%s' is invalid", cfg.Storage.Compression)
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if (cfg.Storage.S3.AccessKeyID == "") != (cfg.Storage.S3.SecretAccessKey == "") {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key must be set together")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if r := cfg.Lock.Redis; r.Enabled {
		if r.Addr == "" || r.Key == "" {
			return fmt.Errorf("lock.redis.addr and lock.redis.key are required when the redis lock is enabled")
		}
		if r.TTL <= 0 {
			return fmt.Errorf("lock.redis.ttl must be greater than 0")
		}
	}

	if cfg.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			return fmt.Errorf("schedule.cron '%s' is invalid: %w", cfg.Schedule.Cron, err)
		}
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format '%s' is invalid", cfg.Logging.Format)
	}

	return nil
}

// ExchangeTable converts the configured exchanges for the symbol registry.
func (c *Config) ExchangeTable() []symbols.Exchange {
	out := make([]symbols.Exchange, 0, len(c.Exchanges))
	for _, ex := range c.Exchanges {
		out = append(out, symbols.Exchange{Name: ex.Name, Code: ex.Code, Contracts: ex.Contracts})
	}
	return out
}

// Location is the fixed zone timestamps are rendered in.
func (p PipelineConfig) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", p.DisplayUTCOffsetHours), p.DisplayUTCOffsetHours*3600)
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
