package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempConfig writes content to a config file in a temporary directory and
// returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"COINALYZE_BASE_URL", "AWS_REGION", "S3_BUCKET", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "REDIS_ADDR", "REDIS_PASSWORD", "APP_ENV"} {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "app:\n  name: \"TestApp\"\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.App.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.App.Name)
	}
	if cfg.Pipeline.Window != 864 {
		t.Errorf("unexpected window: %d", cfg.Pipeline.Window)
	}
	if cfg.Coinalyze.Lookback != 240*time.Hour {
		t.Errorf("unexpected lookback: %s", cfg.Coinalyze.Lookback)
	}
	if len(cfg.Exchanges) != 4 || cfg.Exchanges[1].Name != "Bybit" {
		t.Errorf("unexpected default exchanges: %+v", cfg.Exchanges)
	}
}

func TestLoadShippedConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadConfig("config.yml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := len(cfg.ExchangeTable()); got != 4 {
		t.Fatalf("expected 4 exchanges, got %d", got)
	}
	if cfg.Coinalyze.Retry.BaseDelay != time.Second {
		t.Errorf("unexpected base delay: %s", cfg.Coinalyze.Retry.BaseDelay)
	}
	if cfg.Lock.Redis.TTL != 10*time.Minute {
		t.Errorf("unexpected lock ttl: %s", cfg.Lock.Redis.TTL)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("COINALYZE_BASE_URL", "http://localhost:9999")
	t.Setenv("AWS_REGION", "eu-west-1")
	t.Setenv("S3_BUCKET", "override-bucket")
	t.Setenv("REDIS_ADDR", "redis:6380")

	path := writeTempConfig(t, `app:
  name: "TestApp"
storage:
  s3:
    enabled: true
    bucket: "file-bucket"
    region: "us-east-1"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Coinalyze.BaseURL != "http://localhost:9999" {
		t.Errorf("base url not overridden: %s", cfg.Coinalyze.BaseURL)
	}
	if cfg.Storage.S3.Bucket != "override-bucket" || cfg.Storage.S3.Region != "eu-west-1" {
		t.Errorf("s3 not overridden: %+v", cfg.Storage.S3)
	}
	if cfg.Secret.Region != "eu-west-1" {
		t.Errorf("secret region not defaulted from AWS_REGION: %q", cfg.Secret.Region)
	}
	if cfg.Lock.Redis.Addr != "redis:6380" {
		t.Errorf("redis addr not overridden: %s", cfg.Lock.Redis.Addr)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"window", "pipeline:\n  window: 0\n", "pipeline.window"},
		{"secret source", "secret:\n  source: vault\n", "secret.source"},
		{"aws secret id", "secret:\n  source: aws\n", "secret.secret_id"},
		{"same keys", "storage:\n  raw_key: a\n  derived_key: a\n", "must differ"},
		{"compression", "storage:\n  compression: lz4\n", "storage.compression"},
		{"cron", "schedule:\n  cron: \"not a cron\"\n", "schedule.cron"},
		{"empty exchanges", "exchanges: []\n", "exchanges"},
		{"duplicate code", "exchanges:\n  - {name: A, code: X, contracts: [BTCUSDT]}\n  - {name: B, code: X, contracts: [BTCUSDT]}\n", "exchange code"},
		{"bucket", "storage:\n  s3:\n    enabled: true\n    bucket: Bad_Bucket\n    region: us-east-1\n", "is invalid"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadConfig(writeTempConfig(t, c.content))
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q does not mention %q", err, c.want)
			}
		})
	}
}

func TestPipelineLocation(t *testing.T) {
	loc := PipelineConfig{DisplayUTCOffsetHours: 9}.Location()
	_, offset := time.Unix(0, 0).In(loc).Zone()
	if offset != 9*3600 {
		t.Fatalf("unexpected offset: %d", offset)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("APP_ENV", "prod")
	if got := ResolvePath(""); got != DefaultPath {
		t.Fatalf("expected default path without env file, got %s", got)
	}

	if err := os.MkdirAll("config", 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile("config/config.production.yml", []byte("app: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := ResolvePath(""); got != "config/config.production.yml" {
		t.Fatalf("expected production config, got %s", got)
	}
	if got := ResolvePath("custom.yml"); got != "custom.yml" {
		t.Fatalf("explicit path must win, got %s", got)
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestAppEnvironment(t *testing.T) {
	cases := map[string]Environment{
		"":            Development,
		"prod":        Production,
		" Staging ":   Staging,
		"stg":         Staging,
		"qa":          Environment("qa"),
	}
	for in, want := range cases {
		t.Setenv("APP_ENV", in)
		if got := AppEnvironment(); got != want {
			t.Errorf("AppEnvironment(%q) = %q, want %q", in, got, want)
		}
	}

	if !Production.ProductionLike() || !Staging.ProductionLike() || Development.ProductionLike() {
		t.Fatalf("unexpected ProductionLike classification")
	}
}
